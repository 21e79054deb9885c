package dropmon

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the drop-monitor engine's Prometheus instrumentation,
// grounded on the counter style DataDog-datadog-agent registers its
// netlink-derived gauges with (promauto.With(reg), a dedicated
// sub-registry per collaborator rather than the global default one, so
// more than one Engine can coexist in a test binary without a duplicate
// registration panic).
type Metrics struct {
	ControlErrors prometheus.Counter
	RateLimited   prometheus.Counter
	CircuitTrips  prometheus.Counter
	IgnoredSW     prometheus.Counter
	IgnoredHW     prometheus.Counter
	Emitted       prometheus.Counter
	Unrecognized  prometheus.Counter
}

// NewMetrics registers the engine's counters against reg. Pass
// prometheus.NewRegistry() in tests; a production process hands in its
// own top-level registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ControlErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "hsflowd",
			Subsystem: "dropmon",
			Name:      "control_errors_total",
			Help:      "NLMSG_ERROR frames with a nonzero errno seen in reply to CONFIG/START/STOP.",
		}),
		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: "hsflowd",
			Subsystem: "dropmon",
			Name:      "rate_limited_total",
			Help:      "Drop events suppressed by the per-second/per-decisecond quota.",
		}),
		CircuitTrips: f.NewCounter(prometheus.CounterOpts{
			Namespace: "hsflowd",
			Subsystem: "dropmon",
			Name:      "circuit_trips_total",
			Help:      "Times the circuit breaker has fired (0 or 1 for the life of a process).",
		}),
		IgnoredSW: f.NewCounter(prometheus.CounterOpts{
			Namespace: "hsflowd",
			Subsystem: "dropmon",
			Name:      "ignored_sw_total",
			Help:      "Software drop events ignored because the sw namespace is policy-disabled.",
		}),
		IgnoredHW: f.NewCounter(prometheus.CounterOpts{
			Namespace: "hsflowd",
			Subsystem: "dropmon",
			Name:      "ignored_hw_total",
			Help:      "Hardware drop events ignored because the hw namespace is policy-disabled.",
		}),
		Emitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "hsflowd",
			Subsystem: "dropmon",
			Name:      "events_emitted_total",
			Help:      "Discard events successfully written to the sFlow agent.",
		}),
		Unrecognized: f.NewCounter(prometheus.CounterOpts{
			Namespace: "hsflowd",
			Subsystem: "dropmon",
			Name:      "unrecognized_total",
			Help:      "Alerts whose drop point the catalog could not resolve to a reason.",
		}),
	}
}
