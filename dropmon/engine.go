// Package dropmon is the Drop-Monitor engine (spec §4.3): a
// generic-netlink NET_DM client that turns kernel packet-discard alerts
// into sFlow discard events, rate-limited and circuit-broken per spec
// §4.5 and classified through the Drop-Point Catalog (package
// dropcatalog).
//
// Grounded on the teacher's Session/drop_mon.go state handling
// (superfly/dropspy), generalized into an explicit named-state FSM that
// only ever advances from a tick or a receive callback — it never blocks
// waiting on the kernel, per spec §4.3 and §5.
package dropmon

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openhsflow/hsflowd/dropcatalog"
	"github.com/openhsflow/hsflowd/nlsocket"
	"github.com/openhsflow/hsflowd/sflowio"
)

// State is one of the engine's nine named lifecycle states (spec §4.3).
type State int

const (
	StateInit State = iota
	StateGetFamily
	StateWait
	StateGotGroup
	StateJoinGroup
	StateConfigure
	StateStart
	StateRun
	StateStop
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateGetFamily:
		return "GET_FAMILY"
	case StateWait:
		return "WAIT"
	case StateGotGroup:
		return "GOT_GROUP"
	case StateJoinGroup:
		return "JOIN_GROUP"
	case StateConfigure:
		return "CONFIGURE"
	case StateStart:
		return "START"
	case StateRun:
		return "RUN"
	case StateStop:
		return "STOP"
	default:
		return "UNKNOWN"
	}
}

// waitBackoffTicks is how long the engine parks in StateWait before
// retrying a failed family lookup or group join (spec §4.3 leniency:
// transient ENOENT during module load is expected at boot).
const waitBackoffTicks = 5

const familyName = "NET_DM"

// genericTransport is the slice of *nlsocket.GenericSession this engine
// needs; narrowed to an interface so tests can drive the FSM and the
// circuit-breaker/shutdown STOP paths without a real netlink socket.
type genericTransport interface {
	Family(name string) (famID uint16, groupID uint32, groupName string, err error)
	Send(famID uint16, cmd uint8, data []byte, ack bool) (seq uint32, err error)
	JoinGroup(group uint32) error
	LeaveGroup(group uint32) error
	Recv(cb func(nlsocket.GenericMessage), onErr func(nlsocket.KernelError)) error
}

// Engine drives one NET_DM session through its lifecycle and turns its
// alerts into sFlow discard events.
type Engine struct {
	cfg      sflowio.Config
	sess     genericTransport
	agent    sflowio.Agent
	catalogs *dropcatalog.TwoCatalogs
	limiter  *RateLimiter
	log      logrus.FieldLogger
	metrics  *Metrics

	state      State
	waitTicks  int
	famID      uint16
	groupID    uint32
	configSeq  uint32
	startSeq   uint32
	stopSeq    uint32
	haveConfig bool

	// disabled is set permanently once the circuit breaker trips (spec
	// §4.3 "any | drop volume > threshold this second | STOP + disabled").
	// Once set, every bus handler becomes a no-op for the rest of the
	// process's life.
	disabled bool

	// controlErrors counts every NLMSG_ERROR frame with a nonzero errno
	// this engine receives, gating the graceful-shutdown STOP (spec §4.3's
	// "feedControlErrors == 0" condition, §7). Frames are not matched
	// against configSeq/startSeq or the FSM state, so an error answering
	// any request counts.
	controlErrors uint32

	notifiers map[uint32]*sflowio.Notifier
}

// NewEngine builds an Engine in StateInit. It does not touch the network
// until the bus delivers its first config-changed/tick events.
func NewEngine(cfg sflowio.Config, sess genericTransport, agent sflowio.Agent, catalogs *dropcatalog.TwoCatalogs, metrics *Metrics, log logrus.FieldLogger) *Engine {
	return &Engine{
		cfg:       cfg,
		sess:      sess,
		agent:     agent,
		catalogs:  catalogs,
		limiter:   NewRateLimiter(cfg.DropMonLimit, cfg.DropMonMax),
		log:       log.WithField("mod", "dropmon"),
		metrics:   metrics,
		notifiers: map[uint32]*sflowio.Notifier{},
	}
}

// Attach subscribes the engine's handlers to bus. Called once, after
// construction.
func (e *Engine) Attach(bus sflowio.Bus) {
	bus.OnConfigChanged(e.onConfigChanged)
	bus.OnTick(e.onTick)
	bus.OnDeci(e.onDeci)
	bus.OnFinal(e.onFinal)
}

// State reports the engine's current lifecycle state, chiefly for tests
// and diagnostics.
func (e *Engine) State() State { return e.state }

func (e *Engine) onConfigChanged() {
	if e.disabled {
		return
	}
	e.haveConfig = true
	if e.state == StateInit && e.cfg.DropMonGroup != 0 {
		e.state = StateGetFamily
	}
}

// onTick advances the FSM by at most one step and, in StateRun, polls the
// socket for alerts. It also drives the rate limiter's once-a-second
// refill and circuit-breaker evaluation regardless of state; alerts are
// only read, and so only counted toward the breaker, in StateRun. Once
// the breaker has tripped, every subsequent tick is a no-op (spec §4.3,
// §7).
func (e *Engine) onTick() {
	if e.disabled {
		return
	}

	e.limiter.OnTick()
	if e.limiter.Tripped() {
		e.tripBreaker()
		return
	}

	switch e.state {
	case StateInit:
		// Nothing to do until configuration arrives.
	case StateGetFamily:
		e.tryGetFamily()
	case StateWait:
		e.waitTicks--
		if e.waitTicks <= 0 {
			e.state = StateGetFamily
		}
	case StateGotGroup:
		e.tryJoinGroup()
	case StateJoinGroup:
		e.sendConfigure()
	case StateConfigure:
		// Spec §9 Open Question, decided: do not gate START on an ACK to
		// CONFIGURE. A kernel that silently ignores unknown config
		// attributes never acks; waiting for one would wedge the FSM
		// forever on older kernels. Any ERROR frame is still counted via
		// onKernelError below.
		e.sendStart()
	case StateStart:
		e.state = StateRun
		e.log.Info("dropmon: feed running")
	case StateRun:
		e.poll()
	case StateStop:
		// onFinal already did the teardown; nothing left to drive.
	}
}

func (e *Engine) onDeci() {
	if e.disabled {
		return
	}
	e.limiter.OnDeci()
	if e.state == StateRun {
		e.poll()
	}
}

// tripBreaker issues the STOP command (if this engine owns the feed's
// lifecycle) and permanently disables the engine: no further tick, deci,
// config-changed, or flow-sample processing occurs for the rest of the
// process's life (spec §4.3 "any | drop volume > threshold this second |
// STOP + disabled", mod_dropmon.c's stopMonitoring()/dropmon_disabled).
func (e *Engine) tripBreaker() {
	e.metrics.CircuitTrips.Inc()
	if e.state == StateRun && e.cfg.DropMonStart {
		if _, err := e.sess.Send(e.famID, CmdStop, nil, true); err != nil {
			e.log.WithError(err).Warn("dropmon: send stop failed after circuit breaker trip")
		}
	}
	e.state = StateStop
	e.disabled = true
	e.log.Warn("dropmon: circuit breaker tripped, feed disabled for the remainder of the process")
}

func (e *Engine) enterWait() {
	e.state = StateWait
	e.waitTicks = waitBackoffTicks
}

func (e *Engine) tryGetFamily() {
	famID, groupID, _, err := e.sess.Family(familyName)
	if err != nil {
		e.log.WithError(err).Debug("dropmon: family lookup failed, retrying")
		e.enterWait()
		return
	}
	e.famID = famID
	e.groupID = groupID
	e.state = StateGotGroup
}

func (e *Engine) tryJoinGroup() {
	if err := e.sess.JoinGroup(e.groupID); err != nil {
		e.log.WithError(err).Warn("dropmon: join group failed, retrying")
		e.enterWait()
		return
	}
	e.state = StateJoinGroup
}

func (e *Engine) sendConfigure() {
	payload := encodeConfig(e.cfg)
	seq, err := e.sess.Send(e.famID, CmdConfig, payload, true)
	if err != nil {
		e.log.WithError(err).Warn("dropmon: send config failed, retrying")
		e.enterWait()
		return
	}
	e.configSeq = seq
	e.state = StateConfigure
}

func (e *Engine) sendStart() {
	if !e.cfg.DropMonStart {
		// We don't own the feed's lifecycle; assume some other
		// collaborator already issued CMD_START.
		e.state = StateStart
		return
	}
	seq, err := e.sess.Send(e.famID, CmdStart, nil, true)
	if err != nil {
		e.log.WithError(err).Warn("dropmon: send start failed, retrying")
		e.enterWait()
		return
	}
	e.startSeq = seq
	e.state = StateStart
}

// encodeConfig builds the CMD_CONFIG payload requesting packet-mode
// alerts (spec §4.3: summary mode carries no symbol, so this module
// always asks for packet mode).
func encodeConfig(cfg sflowio.Config) []byte {
	return encodeU8Attr(AttrAlertMode, AlertModePacket)
}

func encodeU8Attr(typ uint16, val uint8) []byte {
	// 4-byte header + 1 byte value, padded to the 4-byte boundary.
	buf := make([]byte, attrHeaderLen+attrAlign)
	putAttrHeader(buf, typ, attrHeaderLen+1)
	buf[attrHeaderLen] = val
	return buf
}

func putAttrHeader(buf []byte, typ uint16, length int) {
	buf[0] = byte(length)
	buf[1] = byte(length >> 8)
	buf[2] = byte(typ)
	buf[3] = byte(typ >> 8)
}

// poll drains the socket once, non-blockingly, dispatching decoded alerts
// and kernel errors. Safe to call from either the 1Hz or 10Hz handler.
func (e *Engine) poll() {
	if e.sess == nil {
		return
	}
	err := e.sess.Recv(e.onMessage, e.onKernelError)
	if err != nil {
		e.log.WithError(err).Warn("dropmon: receive error")
	}
}

func (e *Engine) onKernelError(kerr nlsocket.KernelError) {
	if kerr.IsACK() {
		return
	}
	e.metrics.ControlErrors.Inc()
	e.controlErrors++
	e.log.WithFields(logrus.Fields{"errno": kerr.Errno, "seq": kerr.Seq}).
		Warn("dropmon: kernel rejected a control message")
}

func (e *Engine) onMessage(msg nlsocket.GenericMessage) {
	if e.disabled || e.state != StateRun {
		return
	}
	switch msg.Command {
	case CmdAlert, CmdPacketAlert:
		ev, err := decodeAlert(msg.Data)
		if err != nil {
			e.log.WithError(err).Warn("dropmon: malformed alert, discarding buffer")
			return
		}
		e.processAlert(ev, time.Now())
	default:
		// Unrelated command (e.g. CONFIG_NEW echoing our request back);
		// nothing to do.
	}
}

// processAlert resolves ev against the appropriate catalog namespace,
// applies the rate limiter/circuit breaker, and — if both let it through
// — writes a discard event to the agent. Split out from onMessage so
// tests can drive it directly with hand-built AlertEvents.
func (e *Engine) processAlert(ev AlertEvent, now time.Time) {
	if e.disabled {
		return
	}

	var dp dropcatalog.DropPoint
	var ok bool
	if ev.Origin == OriginHW {
		ignored := e.catalogs.IgnoredHW
		dp, ok = e.catalogs.LookupHW(ev.HWGroup, ev.HWTrap)
		if e.catalogs.IgnoredHW != ignored {
			e.metrics.IgnoredHW.Inc()
			return
		}
	} else {
		ignored := e.catalogs.IgnoredSW
		dp, ok = e.catalogs.LookupSW(ev.Symbol)
		if e.catalogs.IgnoredSW != ignored {
			e.metrics.IgnoredSW.Inc()
			return
		}
	}
	if !ok {
		e.metrics.Unrecognized.Inc()
		return
	}
	reason := dp.Reason
	if reason == sflowioNone() {
		// Recognized drop point, deliberately silenced.
		return
	}

	// Breaker-trip detection itself happens once a second, in onTick;
	// Allow only accounts this event against that tick's volume.
	allow, drops := e.limiter.Allow()
	if !allow {
		e.metrics.RateLimited.Inc()
		return
	}

	elements := []sflowio.FlowSampleElement{
		sflowio.HeaderElement{
			HeaderLength:   uint32(len(ev.Payload)),
			FrameLength:    ev.OrigLen,
			HeaderProtocol: ev.Proto,
			HeaderBytes:    ev.Payload,
			Stripped:       4, // NET_DM_ATTR_PAYLOAD always strips the leading 4 bytes (spec §6).
		},
	}
	if ev.Origin != OriginHW {
		elements = append(elements, sflowio.FunctionElement{Symbol: ev.Symbol})
	}

	n := e.notifierFor(ev.IfIndex)
	e.agent.WriteEventSample(n, sflowio.DiscardEvent{
		Reason:   reason,
		Input:    ev.IfIndex,
		Drops:    drops,
		Elements: elements,
	})
	e.metrics.Emitted.Inc()
}

func (e *Engine) notifierFor(ifIndex uint32) *sflowio.Notifier {
	if n, ok := e.notifiers[ifIndex]; ok {
		return n
	}
	n := e.agent.AddNotifier(sflowio.DataSourceID{IfIndex: ifIndex})
	e.notifiers[ifIndex] = n
	return n
}

// sflowioNone indirects to sflowio.None, kept as its own function only so
// the zero value of dropcatalog.ReasonCode (which is also a valid,
// resolvable reason — ReasonUnknown) never gets silently confused with
// "ignored" at the call site above.
func sflowioNone() dropcatalog.ReasonCode { return sflowio.None }

// onFinal issues the graceful-shutdown STOP only if this engine owns the
// feed's lifecycle AND no control errors were ever observed on this
// session (spec §4.3: "if start=true ... AND feedControlErrors == 0").
// A feed that has seen a control error is assumed to already be managed
// by some other collaborator; stopping it out from under that owner
// would be wrong. If the circuit breaker already tripped, STOP was sent
// from tripBreaker; this only tidies up the multicast membership.
func (e *Engine) onFinal() {
	if !e.disabled && e.state == StateRun && e.cfg.DropMonStart && e.controlErrors == 0 {
		if seq, err := e.sess.Send(e.famID, CmdStop, nil, true); err != nil {
			e.log.WithError(err).Warn("dropmon: send stop failed during shutdown")
		} else {
			e.stopSeq = seq
		}
	}
	if e.groupID != 0 {
		if err := e.sess.LeaveGroup(e.groupID); err != nil {
			e.log.WithError(err).Warn("dropmon: leave group failed during shutdown")
		}
	}
	e.state = StateStop
}
