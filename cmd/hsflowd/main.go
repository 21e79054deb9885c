// Command hsflowd wires the drop-monitor and TCP-info annotator engines
// up to real netlink sockets and a minimal in-process scheduler, so they
// can be exercised against a live kernel outside of the unit tests.
//
// Grounded on the teacher's own cmd/dropspy/main.go: flag-driven startup,
// a SIGINT handler that stops the feed before exiting. Drop events are
// kept in the in-process LocalAgent rather than printed; only the
// Prometheus counters on /metrics expose them.
package main

import (
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/openhsflow/hsflowd/dropcatalog"
	"github.com/openhsflow/hsflowd/dropmon"
	"github.com/openhsflow/hsflowd/ifaces"
	"github.com/openhsflow/hsflowd/nlsocket"
	"github.com/openhsflow/hsflowd/sflowio"
	"github.com/openhsflow/hsflowd/tcpannotate"
)

// scheduler is a minimal in-process sflowio.Bus: a 1Hz tick, a 10Hz deci
// tick, and a flow-sample fan-out, driven by two time.Tickers. A real
// deployment's event bus is considerably richer; this is just enough to
// drive both engines end to end.
type scheduler struct {
	mu            sync.Mutex
	configChanged []func()
	configFirst   []func()
	tick          []func()
	deci          []func()
	flowSample    []func(*sflowio.PendingSample)
	final         []func()

	firedFirst bool
}

func (s *scheduler) OnConfigFirst(f func())   { s.configFirst = append(s.configFirst, f) }
func (s *scheduler) OnConfigChanged(f func()) { s.configChanged = append(s.configChanged, f) }
func (s *scheduler) OnTick(f func())          { s.tick = append(s.tick, f) }
func (s *scheduler) OnDeci(f func())          { s.deci = append(s.deci, f) }
func (s *scheduler) OnFlowSample(f func(*sflowio.PendingSample)) {
	s.flowSample = append(s.flowSample, f)
}
func (s *scheduler) OnFinal(f func()) { s.final = append(s.final, f) }
func (s *scheduler) Now() time.Time   { return time.Now() }

func (s *scheduler) fireConfig() {
	s.mu.Lock()
	first := !s.firedFirst
	s.firedFirst = true
	s.mu.Unlock()

	for _, f := range s.configChanged {
		f()
	}
	if first {
		for _, f := range s.configFirst {
			f()
		}
	}
}

func (s *scheduler) run(stop <-chan struct{}) {
	tick := time.NewTicker(1 * time.Second)
	deci := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	defer deci.Stop()

	for {
		select {
		case <-tick.C:
			for _, f := range s.tick {
				f()
			}
		case <-deci.C:
			for _, f := range s.deci {
				f()
			}
		case <-stop:
			for _, f := range s.final {
				f()
			}
			return
		}
	}
}

func main() {
	var (
		sw, hw       bool
		limit, max   uint
		group        uint
		start        bool
		metricsAddr  string
	)
	flag.BoolVar(&sw, "sw", true, "process software drop alerts")
	flag.BoolVar(&hw, "hw", true, "process hardware drop alerts")
	flag.UintVar(&limit, "limit", 0, "discard-event rate limit, events/sec (0 = unlimited)")
	flag.UintVar(&max, "max", 0, "circuit-breaker threshold, drops/tick (0 = disabled)")
	flag.UintVar(&group, "group", 1, "nonzero enables drop-monitor initialization")
	flag.BoolVar(&start, "own-lifecycle", true, "issue CMD_START/CMD_STOP ourselves")
	flag.StringVar(&metricsAddr, "metrics-addr", ":9256", "address to serve /metrics on")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	reg := prometheus.NewRegistry()
	dmMetrics := dropmon.NewMetrics(reg)
	taMetrics := tcpannotate.NewMetrics(reg)

	cfg := sflowio.Config{
		DropMonSW:    sw,
		DropMonHW:    hw,
		DropMonStart: start,
		DropMonGroup: uint32(group),
		DropMonLimit: uint32(limit),
		DropMonMax:   uint32(max),
	}

	genSess, err := nlsocket.DialGeneric()
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial generic netlink: %s\n", err)
		os.Exit(1)
	}
	diagSess, err := nlsocket.DialDiag()
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial sock_diag: %s\n", err)
		os.Exit(1)
	}

	local, err := ifaces.LoadLocalAddresses()
	if err != nil {
		log.WithError(err).Warn("could not load local addresses; tcp-info direction will be unset")
	}

	catalogs := dropcatalog.NewTwoCatalogs(sw, hw)
	dropcatalog.Load(log, catalogs.SW, dropcatalog.DefaultSW)
	dropcatalog.Load(log, catalogs.HW, dropcatalog.DefaultHW)

	agent := sflowio.NewLocalAgent(1)

	bus := &scheduler{}

	dm := dropmon.NewEngine(cfg, genSess, agent, catalogs, dmMetrics, log)
	dm.Attach(bus)

	var isLocal func(net.IP) bool
	if local != nil {
		isLocal = local.IsLocal
	}
	ta := tcpannotate.NewEngine(diagSess, agent, bus, taMetrics, log, isLocal)
	ta.Attach(bus)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.WithError(err).Warn("metrics server exited")
		}
	}()

	stop := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Info("got interrupt, shutting down")
		close(stop)
	}()

	bus.fireConfig()
	bus.run(stop)

	_ = genSess.Close()
	_ = diagSess.Close()
}
