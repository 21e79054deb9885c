// Package tcpannotate is the TCP-Info Annotator engine (spec §4.4): for
// every sampled TCP packet it asks the kernel's SOCK_DIAG handler for
// that socket's live tcp_info and attaches the answer to the sample as
// an sFlow flow-sample element.
//
// Grounded on the teacher's Session/receive-loop shape (superfly/dropspy,
// generalized via nlsocket), and on m-lab/tcp-info's inetdiag wire
// structs (package inetdiag) for the request/reply shapes themselves.
package tcpannotate

import (
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openhsflow/hsflowd/inetdiag"
	"github.com/openhsflow/hsflowd/nlsocket"
	"github.com/openhsflow/hsflowd/sflowio"
)

const (
	afINET  = 2
	afINET6 = 10

	protoTCP = 6
	protoUDP = 17

	// DefaultTimeout is the correlation-table entry lifetime: a request
	// that hasn't been answered within this long is abandoned and its
	// samples released unannotated (spec §4.4 "400ms plus up to 100ms of
	// sweep granularity").
	DefaultTimeout = 400 * time.Millisecond
)

// request is one in-flight SOCK_DIAG query, holding every sample that
// coalesced onto it while it was outstanding.
type request struct {
	key        inetdiag.Key
	seq        uint32
	enqueuedAt time.Time
	samples    []*sflowio.PendingSample

	// udp and flipped record how the request was built (spec §3's
	// TcpSampleRequest.udp/flipped fields): udp selects the protocol
	// this query was issued for, flipped records that the captured
	// packet's direction was "received" so idiag_src/idiag_dst were
	// swapped to keep idiag_src on the local side.
	udp     bool
	flipped bool

	prev, next *request
}

// diagTransport is the slice of *nlsocket.DiagSession this engine needs;
// narrowed to an interface so tests can drive the correlation logic
// without a real netlink socket.
type diagTransport interface {
	Send(msgType uint16, payload []byte, dump bool) (uint32, error)
	Recv(cb func(nlsocket.DiagMessage), onErr func(nlsocket.KernelError)) error
}

// Engine is the correlation-table-driven annotator.
type Engine struct {
	diag    diagTransport
	agent   sflowio.Agent
	bus     sflowio.Bus
	log     logrus.FieldLogger
	metrics *Metrics
	isLocal func(net.IP) bool
	timeout time.Duration

	byKey            map[inetdiag.Key]*request
	fifoHead, fifoTail *request

	haveLastRx bool
	lastRxSeq  uint32
}

// NewEngine builds an Engine. isLocal, if non-nil, classifies an address
// as belonging to this host, used to set a sample's send/receive
// direction (spec §4.4); a nil isLocal leaves every sample directionless
// (DirSent, the zero value).
func NewEngine(diag diagTransport, agent sflowio.Agent, bus sflowio.Bus, metrics *Metrics, log logrus.FieldLogger, isLocal func(net.IP) bool) *Engine {
	return &Engine{
		diag:    diag,
		agent:   agent,
		bus:     bus,
		log:     log.WithField("mod", "tcpannotate"),
		metrics: metrics,
		isLocal: isLocal,
		timeout: DefaultTimeout,
		byKey:   map[inetdiag.Key]*request{},
	}
}

// Attach subscribes the engine to bus.
func (e *Engine) Attach(bus sflowio.Bus) {
	bus.OnFlowSample(e.OnFlowSample)
	bus.OnDeci(e.onDeci)
}

// Outstanding is the number of SOCK_DIAG requests currently awaiting a
// reply: the size of the correlation table, which shrinks both when a
// reply is matched and when a request times out.
func (e *Engine) Outstanding() int { return len(e.byKey) }

// OnFlowSample decodes ps's header; if it's a TCP or UDP/IP packet
// straddling this host (exactly one of src/dst is local — transit
// traffic is skipped per spec §4.4 step 2), it either coalesces the
// sample onto an already-outstanding request for the same 4-tuple, or
// issues a new SOCK_DIAG request and parks ps awaiting the reply
// (spec §4.4).
func (e *Engine) OnFlowSample(ps *sflowio.PendingSample) {
	if !decodeHeader(ps) {
		return
	}
	var udp bool
	switch ps.Proto {
	case protoTCP:
		udp = false
	case protoUDP:
		udp = true
	default:
		return
	}

	e.classifyLocality(ps)
	if e.isLocal != nil && ps.LocalSrc == ps.LocalDst {
		// Neither endpoint is local (transit traffic) or both are
		// (loopback): not what this engine correlates.
		return
	}

	id, flipped := sockIDFromSample(ps)
	key := id.MaskedKey()

	if req, ok := e.byKey[key]; ok {
		ps.Hold()
		req.samples = append(req.samples, ps)
		e.metrics.Coalesced.Inc()
		return
	}

	family := uint8(afINET)
	if ps.IPVersion == 6 {
		family = afINET6
	}
	var reqMsg inetdiag.ReqV2
	if udp {
		reqMsg = inetdiag.NewUDPInfoRequest(family, id)
	} else {
		reqMsg = inetdiag.NewTCPInfoRequest(family, id)
	}
	seq, err := e.diag.Send(inetdiag.SockDiagByFamily, reqMsg.Encode(), false)
	if err != nil {
		e.log.WithError(err).Warn("tcpannotate: sock_diag request failed")
		return
	}

	ps.Hold()
	req := &request{
		key:        key,
		seq:        seq,
		enqueuedAt: e.bus.Now(),
		samples:    []*sflowio.PendingSample{ps},
		udp:        udp,
		flipped:    flipped,
	}
	e.byKey[key] = req
	e.pushFIFO(req)
	e.metrics.DiagTx.Inc()
}

// classifyLocality runs isLocal against ps's addresses once per sample,
// caching the result on ps itself (spec §4.4 step 1/step 2).
func (e *Engine) classifyLocality(ps *sflowio.PendingSample) {
	if ps.LocalTested() {
		return
	}
	if e.isLocal != nil {
		ps.LocalSrc = e.isLocal(ps.Src)
		ps.LocalDst = e.isLocal(ps.Dst)
	}
	ps.MarkLocalTested()
}

// sockIDFromSample builds the sockid to query, always placing the local
// endpoint in idiag_src (spec §4.4 step 3): if the captured direction
// was "received" (local is the destination), src/dst are swapped and
// flipped is reported true. When locality hasn't been classified (no
// isLocal configured), the captured src/dst order is kept as-is.
func sockIDFromSample(ps *sflowio.PendingSample) (inetdiag.SockID, bool) {
	var id inetdiag.SockID
	flipped := ps.LocalDst && !ps.LocalSrc
	if flipped {
		id.SPort = portBytes(ps.DstPort)
		id.DPort = portBytes(ps.SrcPort)
		id.Src = ipBytes(ps.Dst)
		id.Dst = ipBytes(ps.Src)
	} else {
		id.SPort = portBytes(ps.SrcPort)
		id.DPort = portBytes(ps.DstPort)
		id.Src = ipBytes(ps.Src)
		id.Dst = ipBytes(ps.Dst)
	}
	return id, flipped
}

func portBytes(p uint16) [2]byte { return [2]byte{byte(p >> 8), byte(p)} }

func ipBytes(ip net.IP) [16]byte {
	var b [16]byte
	if v4 := ip.To4(); v4 != nil {
		copy(b[:4], v4)
		return b
	}
	copy(b[:], ip.To16())
	return b
}

func (e *Engine) onDeci() {
	e.poll()
	e.sweepTimeouts()
}

func (e *Engine) poll() {
	if e.diag == nil {
		return
	}
	if err := e.diag.Recv(e.onDiagMessage, e.onKernelError); err != nil {
		e.log.WithError(err).Warn("tcpannotate: receive error")
	}
}

func (e *Engine) onKernelError(kerr nlsocket.KernelError) {
	if kerr.IsACK() {
		return
	}
	e.log.WithFields(logrus.Fields{"errno": kerr.Errno, "seq": kerr.Seq}).
		Debug("tcpannotate: sock_diag reported an error for a query")
}

// onDiagMessage decodes one SOCK_DIAG reply, accounts for any sequence
// gap since the last reply (spec §4.4: nl_seq_lost assumes in-order
// replies), and finishes the correlated request if one is outstanding.
func (e *Engine) onDiagMessage(msg nlsocket.DiagMessage) {
	if msg.Type != inetdiag.SockDiagByFamily {
		return
	}
	diagMsg, rest, err := inetdiag.DecodeDiagMsg(msg.Data)
	if err != nil {
		e.log.WithError(err).Debug("tcpannotate: malformed sock_diag reply")
		return
	}

	if e.haveLastRx {
		lost := msg.Sequence - e.lastRxSeq - 1
		if lost > 0 && lost < 1<<30 {
			e.metrics.SeqLost.Add(float64(lost))
		}
	}
	e.lastRxSeq = msg.Sequence
	e.haveLastRx = true
	e.metrics.DiagRx.Inc()

	key := diagMsg.ID.MaskedKey()
	req, ok := e.byKey[key]
	if !ok {
		// No one is waiting on this reply (already timed out, or this
		// was an unsolicited dump entry); nothing to attach it to.
		return
	}

	attrs := inetdiag.WalkAttrs(rest)
	raw, ok := attrs[inetdiag.AttrInfo]
	if !ok {
		e.finishRequest(req, nil)
		return
	}
	info := inetdiag.DecodeTCPInfo(raw)
	e.finishRequest(req, &info)
}

// finishRequest detaches req from both index structures and, if info is
// non-nil, attaches a TCPInfoElement to every sample parked on it before
// releasing each one's hold.
func (e *Engine) finishRequest(req *request, info *inetdiag.LinuxTCPInfo) {
	e.removeFIFO(req)
	delete(e.byKey, req.key)

	for _, ps := range req.samples {
		if info != nil {
			e.attach(ps, info)
			e.metrics.SamplesAnnotated.Inc()
		}
		ps.Release()
	}
}

func (e *Engine) attach(ps *sflowio.PendingSample, info *inetdiag.LinuxTCPInfo) {
	e.classifyLocality(ps)
	direction := sflowio.DirSent
	if ps.LocalDst && !ps.LocalSrc {
		direction = sflowio.DirReceived
	}

	el := sflowio.TCPInfoElement{
		Direction:  direction,
		SndMSS:     info.SndMSS,
		RcvMSS:     info.RcvMSS,
		Unacked:    info.Unacked,
		Lost:       info.Lost,
		Retrans:    info.Retrans,
		PMTU:       info.PMTU,
		RTT:        info.RTT,
		RTTVar:     info.RTTVar,
		SndCwnd:    info.SndCwnd,
		Reordering: info.Reordering,
		MinRTT:     info.MinRTT,
	}
	if ps.FlowSample != nil {
		e.agent.AddElement(ps.FlowSample, el)
	}
}

// sweepTimeouts walks the FIFO from its head, abandoning every request
// whose age has reached the timeout, and stops at the first one that
// hasn't — the FIFO's enqueue order is monotonic, so nothing after that
// point can be expired either (spec §4.4).
func (e *Engine) sweepTimeouts() {
	now := e.bus.Now()
	for {
		head := e.fifoHead
		if head == nil || now.Sub(head.enqueuedAt) < e.timeout {
			return
		}
		e.removeFIFO(head)
		delete(e.byKey, head.key)
		for _, ps := range head.samples {
			ps.Release()
		}
		e.metrics.Timeouts.Inc()
	}
}

func (e *Engine) pushFIFO(r *request) {
	r.prev = e.fifoTail
	r.next = nil
	if e.fifoTail != nil {
		e.fifoTail.next = r
	} else {
		e.fifoHead = r
	}
	e.fifoTail = r
}

func (e *Engine) removeFIFO(r *request) {
	if r.prev != nil {
		r.prev.next = r.next
	} else {
		e.fifoHead = r.next
	}
	if r.next != nil {
		r.next.prev = r.prev
	} else {
		e.fifoTail = r.prev
	}
	r.prev, r.next = nil, nil
}
