package tcpannotate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the annotator's Prometheus instrumentation (spec §4.4,
// §8's testable properties), registered the same way dropmon's are —
// against a caller-supplied registry so more than one Engine can coexist
// in a test binary.
type Metrics struct {
	DiagTx           prometheus.Counter
	DiagRx           prometheus.Counter
	SeqLost          prometheus.Counter
	Timeouts         prometheus.Counter
	SamplesAnnotated prometheus.Counter
	Coalesced        prometheus.Counter
}

// NewMetrics registers the annotator's counters against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DiagTx: f.NewCounter(prometheus.CounterOpts{
			Namespace: "hsflowd",
			Subsystem: "tcpannotate",
			Name:      "diag_tx_total",
			Help:      "SOCK_DIAG requests sent.",
		}),
		DiagRx: f.NewCounter(prometheus.CounterOpts{
			Namespace: "hsflowd",
			Subsystem: "tcpannotate",
			Name:      "diag_rx_total",
			Help:      "SOCK_DIAG replies received.",
		}),
		SeqLost: f.NewCounter(prometheus.CounterOpts{
			Namespace: "hsflowd",
			Subsystem: "tcpannotate",
			Name:      "nl_seq_lost_total",
			Help:      "Netlink sequence gaps observed between consecutive SOCK_DIAG replies.",
		}),
		Timeouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: "hsflowd",
			Subsystem: "tcpannotate",
			Name:      "diag_timeouts_total",
			Help:      "Correlation-table entries abandoned without a reply.",
		}),
		SamplesAnnotated: f.NewCounter(prometheus.CounterOpts{
			Namespace: "hsflowd",
			Subsystem: "tcpannotate",
			Name:      "samples_annotated_total",
			Help:      "Flow samples that received a TCP-info element.",
		}),
		Coalesced: f.NewCounter(prometheus.CounterOpts{
			Namespace: "hsflowd",
			Subsystem: "tcpannotate",
			Name:      "samples_coalesced_total",
			Help:      "Flow samples that rode an already-outstanding request for the same socket.",
		}),
	}
}
