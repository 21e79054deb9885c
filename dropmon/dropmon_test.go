package dropmon

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/openhsflow/hsflowd/dropcatalog"
	"github.com/openhsflow/hsflowd/nlsocket"
	"github.com/openhsflow/hsflowd/sflowio"
)

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func testLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(discardWriter{})
	return l
}

func newTestEngine(t *testing.T, cfg sflowio.Config) (*Engine, *sflowio.LocalAgent) {
	t.Helper()
	catalogs := dropcatalog.NewTwoCatalogs(true, true)
	dropcatalog.Load(testLog(), catalogs.SW, dropcatalog.DefaultSW)

	agent := sflowio.NewLocalAgent(1)
	e := NewEngine(cfg, nil, agent, catalogs, NewMetrics(prometheus.NewRegistry()), testLog())
	e.state = StateRun
	return e, agent
}

// fakeTransport records CMD_STOP sends so tests can assert on the
// circuit-breaker-trip and graceful-shutdown STOP paths without a real
// netlink socket.
type fakeTransport struct {
	stopsSent  int
	groupsLeft int
}

func (f *fakeTransport) Family(name string) (uint16, uint32, string, error) {
	return 0, 0, "", nil
}

func (f *fakeTransport) Send(famID uint16, cmd uint8, data []byte, ack bool) (uint32, error) {
	if cmd == CmdStop {
		f.stopsSent++
	}
	return 1, nil
}

func (f *fakeTransport) JoinGroup(group uint32) error { return nil }

func (f *fakeTransport) LeaveGroup(group uint32) error {
	f.groupsLeft++
	return nil
}

func (f *fakeTransport) Recv(cb func(nlsocket.GenericMessage), onErr func(nlsocket.KernelError)) error {
	return nil
}

func newTestEngineWithTransport(t *testing.T, cfg sflowio.Config) (*Engine, *sflowio.LocalAgent, *fakeTransport) {
	t.Helper()
	catalogs := dropcatalog.NewTwoCatalogs(true, true)
	dropcatalog.Load(testLog(), catalogs.SW, dropcatalog.DefaultSW)

	agent := sflowio.NewLocalAgent(1)
	transport := &fakeTransport{}
	e := NewEngine(cfg, transport, agent, catalogs, NewMetrics(prometheus.NewRegistry()), testLog())
	e.state = StateRun
	return e, agent, transport
}

func TestExactSymbolRecognized(t *testing.T) {
	e, agent := newTestEngine(t, sflowio.Config{})

	payload := make([]byte, 42)
	e.processAlert(AlertEvent{Symbol: "kfree_skb_reason", IfIndex: 3, Payload: payload, OrigLen: 42}, time.Time{})

	if len(agent.Emitted) != 1 {
		t.Fatalf("got %d emitted events, want 1", len(agent.Emitted))
	}
	if agent.Emitted[0].Reason != dropcatalog.ReasonUnknown {
		t.Errorf("reason = %v, want ReasonUnknown", agent.Emitted[0].Reason)
	}
	if agent.Emitted[0].Input != 3 {
		t.Errorf("input = %d, want 3", agent.Emitted[0].Input)
	}

	if len(agent.Emitted[0].Elements) != 2 {
		t.Fatalf("got %d elements, want 2 (header + function)", len(agent.Emitted[0].Elements))
	}
	hdr, ok := agent.Emitted[0].Elements[0].(sflowio.HeaderElement)
	if !ok {
		t.Fatalf("elements[0] type = %T, want HeaderElement", agent.Emitted[0].Elements[0])
	}
	if hdr.HeaderLength != 42 {
		t.Errorf("header-element length = %d, want 42", hdr.HeaderLength)
	}
	fn, ok := agent.Emitted[0].Elements[1].(sflowio.FunctionElement)
	if !ok {
		t.Fatalf("elements[1] type = %T, want FunctionElement", agent.Emitted[0].Elements[1])
	}
	if fn.Symbol != "kfree_skb_reason" {
		t.Errorf("function-element symbol = %q, want %q", fn.Symbol, "kfree_skb_reason")
	}
}

func TestPatternSymbolRecognized(t *testing.T) {
	e, agent := newTestEngine(t, sflowio.Config{})

	e.processAlert(AlertEvent{Symbol: "tcp_v4_rcv_bad"}, time.Time{})

	if len(agent.Emitted) != 1 {
		t.Fatalf("got %d emitted events, want 1", len(agent.Emitted))
	}
	if agent.Emitted[0].Reason != dropcatalog.ReasonTCPInvalidSeq {
		t.Errorf("reason = %v, want ReasonTCPInvalidSeq", agent.Emitted[0].Reason)
	}
}

func TestUnrecognizedSymbolNotEmitted(t *testing.T) {
	e, agent := newTestEngine(t, sflowio.Config{})

	e.processAlert(AlertEvent{Symbol: "some_unmapped_symbol"}, time.Time{})

	if len(agent.Emitted) != 0 {
		t.Fatalf("got %d emitted events, want 0", len(agent.Emitted))
	}
}

func TestIgnoredReasonNotEmitted(t *testing.T) {
	e, agent := newTestEngine(t, sflowio.Config{})

	// __kfree_skb is loaded with an empty reason name, i.e. sflowio.None.
	e.processAlert(AlertEvent{Symbol: "__kfree_skb"}, time.Time{})

	if len(agent.Emitted) != 0 {
		t.Fatalf("got %d emitted events, want 0 (reason is None)", len(agent.Emitted))
	}
}

func TestRateLimiterCarriesNoQuotaIntoNextEmission(t *testing.T) {
	e, agent := newTestEngine(t, sflowio.Config{DropMonLimit: 1})
	e.limiter.OnTick() // refill: quota = 1

	e.processAlert(AlertEvent{Symbol: "kfree_skb_reason"}, time.Time{})
	e.processAlert(AlertEvent{Symbol: "kfree_skb_reason"}, time.Time{})
	e.processAlert(AlertEvent{Symbol: "kfree_skb_reason"}, time.Time{})

	if len(agent.Emitted) != 1 {
		t.Fatalf("got %d emitted events in the first tick, want 1", len(agent.Emitted))
	}
	if agent.Emitted[0].Drops != 0 {
		t.Errorf("first emission Drops = %d, want 0", agent.Emitted[0].Drops)
	}

	e.limiter.OnTick() // refill: quota = 1 again
	e.processAlert(AlertEvent{Symbol: "kfree_skb_reason"}, time.Time{})

	if len(agent.Emitted) != 2 {
		t.Fatalf("got %d emitted events after second tick, want 2", len(agent.Emitted))
	}
	if agent.Emitted[1].Drops != 2 {
		t.Errorf("second emission Drops = %d, want 2 (carried from the two rate-limited events)", agent.Emitted[1].Drops)
	}
}

func TestCircuitBreakerTripsAndStaysTripped(t *testing.T) {
	e, agent := newTestEngine(t, sflowio.Config{DropMonMax: 2})

	for i := 0; i < 5; i++ {
		e.processAlert(AlertEvent{Symbol: "kfree_skb_reason"}, time.Time{})
	}
	if len(agent.Emitted) != 0 {
		t.Fatalf("got %d emitted events before the tick that evaluates the breaker, want 0", len(agent.Emitted))
	}

	// The breaker is evaluated once a second, in onTick, against the
	// volume seen in the tick just completed.
	e.onTick()
	if !e.limiter.Tripped() {
		t.Fatalf("expected circuit breaker to have tripped")
	}
	if !e.disabled {
		t.Fatalf("expected engine to be permanently disabled after the trip")
	}

	// Once disabled, every handler is a no-op for the rest of the
	// process's life: it never auto-recovers (spec §4.5).
	e.onTick()
	e.onDeci()
	e.onConfigChanged()
	e.processAlert(AlertEvent{Symbol: "kfree_skb_reason"}, time.Time{})
	if len(agent.Emitted) != 0 {
		t.Fatalf("breaker reopened after disable; got %d emitted events, want 0", len(agent.Emitted))
	}
}

func TestCircuitBreakerTripIssuesStop(t *testing.T) {
	e, _, transport := newTestEngineWithTransport(t, sflowio.Config{DropMonMax: 2, DropMonStart: true})

	for i := 0; i < 5; i++ {
		e.processAlert(AlertEvent{Symbol: "kfree_skb_reason"}, time.Time{})
	}
	e.onTick()

	if !e.disabled {
		t.Fatalf("expected engine to be disabled after the trip")
	}
	if transport.stopsSent != 1 {
		t.Fatalf("got %d CMD_STOP sends after trip, want 1", transport.stopsSent)
	}

	// onFinal must not send a second STOP: tripBreaker already sent it.
	e.onFinal()
	if transport.stopsSent != 1 {
		t.Fatalf("got %d CMD_STOP sends after onFinal, want 1 (no duplicate)", transport.stopsSent)
	}
}

func TestOnFinalSkipsStopAfterControlErrors(t *testing.T) {
	e, _, transport := newTestEngineWithTransport(t, sflowio.Config{DropMonStart: true})

	e.onKernelError(nlsocket.KernelError{Errno: -1})
	e.onFinal()

	if transport.stopsSent != 0 {
		t.Fatalf("got %d CMD_STOP sends with control errors observed, want 0", transport.stopsSent)
	}
}

func TestOnFinalSendsStopWithoutControlErrors(t *testing.T) {
	e, _, transport := newTestEngineWithTransport(t, sflowio.Config{DropMonStart: true})

	e.onFinal()

	if transport.stopsSent != 1 {
		t.Fatalf("got %d CMD_STOP sends with no control errors, want 1", transport.stopsSent)
	}
}

func TestConfigChangedAdvancesFromInit(t *testing.T) {
	e, _ := newTestEngine(t, sflowio.Config{DropMonGroup: 5})
	e.state = StateInit

	e.onConfigChanged()

	if e.state != StateGetFamily {
		t.Errorf("state = %v, want GET_FAMILY", e.state)
	}
}

func TestConfigChangedStaysInInitWhenDisabled(t *testing.T) {
	e, _ := newTestEngine(t, sflowio.Config{})
	e.state = StateInit

	e.onConfigChanged()

	if e.state != StateInit {
		t.Errorf("state = %v, want INIT (dropmon group is 0, feed disabled)", e.state)
	}
}
