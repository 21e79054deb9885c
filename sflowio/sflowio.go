// Package sflowio defines the narrow contracts this module consumes from,
// and exposes to, the collaborators that own the rest of the sFlow agent:
// the event bus scheduler, the sFlow wire encoder, and the process-wide
// configuration loader. None of those are implemented here (see spec §6);
// this package only pins down the shapes that cross the boundary, plus a
// small in-process Agent (LocalAgent) good enough to exercise dropmon and
// tcpannotate end to end without a real encoder. No Bus implementation
// lives here.
package sflowio

import (
	"net"
	"sync"
	"time"
)

// Bus is the event-bus scheduler contract. A real deployment's scheduler
// calls back into registered handlers; dropmon and tcpannotate only ever
// subscribe, never create or own a Bus.
type Bus interface {
	// OnConfigFirst registers a handler invoked once, the first time
	// configuration is available.
	OnConfigFirst(func())
	// OnConfigChanged registers a handler invoked whenever configuration
	// is (re)applied.
	OnConfigChanged(func())
	// OnTick registers a handler invoked once per second.
	OnTick(func())
	// OnDeci registers a handler invoked ten times per second.
	OnDeci(func())
	// OnFlowSample registers a handler invoked once per sampled packet.
	OnFlowSample(func(*PendingSample))
	// OnFinal registers a handler invoked once during shutdown.
	OnFinal(func())
	// Now returns the bus's notion of current time, used for the TA
	// correlation table's enqueue timestamps so tests can control it.
	Now() time.Time
}

// Notifier is a per-ingress-interface sFlow event sink.
type Notifier struct {
	IfIndex               uint32
	MaxHeaderSize         uint32
	receiverIndex         int
}

// DataSourceID identifies a Notifier the way sfl_agent_addNotifier keys one:
// by (source, index, instance) — here just the ifindex.
type DataSourceID struct {
	IfIndex uint32
}

// Agent is the shared, mutex-guarded sFlow agent singleton (spec §5). All
// writes to it — adding notifiers, emitting samples — must be safe to call
// from either the drop-monitor bus or the packet-sample bus concurrently.
type Agent interface {
	AddNotifier(dsi DataSourceID) *Notifier
	WriteEventSample(n *Notifier, discard DiscardEvent)
	AddElement(fs *FlowSample, el FlowSampleElement)
}

// DiscardEvent is an sFlow discard record: reason code, ingress interface,
// the rate-limit omission count exposed as "drops" (spec §4.5), and the
// packet-header element plus (for software drops) the function-symbol
// element the record carries alongside those three fields (spec §4.3).
type DiscardEvent struct {
	Reason   ReasonCode
	Input    uint32
	Drops    uint32
	Elements []FlowSampleElement
}

// ReasonCode is the closed discard-reason enumeration (spec §3).
type ReasonCode int32

// None means "recognized but deliberately ignored; do not emit an event".
const None ReasonCode = -1

// FlowSampleElement is any sFlow flow-sample element (header, function,
// tcp-info, ...) that can be attached to a FlowSample via Agent.AddElement.
type FlowSampleElement interface {
	isFlowSampleElement()
}

// HeaderElement carries a (possibly truncated) raw packet header.
type HeaderElement struct {
	HeaderLength     uint32
	FrameLength      uint32
	HeaderProtocol   uint32
	HeaderBytes      []byte
	Stripped         uint32
}

func (HeaderElement) isFlowSampleElement() {}

// FunctionElement names the kernel symbol responsible for a software drop.
type FunctionElement struct {
	Symbol string
}

func (FunctionElement) isFlowSampleElement() {}

// PacketDirection is sent/received, set per-sample from its own local-src
// flag (spec §4.4 reply processing).
type PacketDirection int

const (
	DirSent PacketDirection = iota
	DirReceived
)

// TCPInfoElement is the EX_TCP_INFO element attached to every pending
// sample in an answered TcpSampleRequest (spec §4.4).
type TCPInfoElement struct {
	Direction   PacketDirection
	SndMSS      uint32
	RcvMSS      uint32
	Unacked     uint32
	Lost        uint32
	Retrans     uint32
	PMTU        uint32
	RTT         uint32
	RTTVar      uint32
	SndCwnd     uint32
	Reordering  uint32
	MinRTT      uint32
}

func (TCPInfoElement) isFlowSampleElement() {}

// FlowSample is the sample a PendingSample ultimately becomes; engines
// attach elements to it via Agent.AddElement and, for discard events,
// submit a DiscardEvent directly through Agent.WriteEventSample.
type FlowSample struct {
	Elements []FlowSampleElement
}

// PendingSample is one sampled packet awaiting dispatch from the external
// sampling pipeline (spec §3). The raw header bytes start at the link
// layer; ipVersion/proto/4-tuple are filled in by decode once known.
type PendingSample struct {
	mu sync.Mutex

	Header    []byte
	L4Offset  int
	SamplerIf uint32
	FlowSample *FlowSample

	IPVersion int
	Proto     uint8
	Src, Dst  net.IP
	SrcPort, DstPort uint16

	LocalSrc, LocalDst bool
	localTested        bool

	refs int32
}

// Hold increments the reference count; callers that park a sample in a
// correlation table while awaiting a kernel reply must Hold it first.
func (ps *PendingSample) Hold() {
	ps.mu.Lock()
	ps.refs++
	ps.mu.Unlock()
}

// Release decrements the reference count. It never frees anything itself
// (that's the external sampling pipeline's job once refs reaches zero) —
// it exists so dropmon/tcpannotate code reads the same way the teacher's
// holdPendingSample/releasePendingSample pair does in the original source.
func (ps *PendingSample) Release() int32 {
	ps.mu.Lock()
	ps.refs--
	n := ps.refs
	ps.mu.Unlock()
	return n
}

// LocalTested reports whether IsLocalAddress classification has already
// run for this sample, so callers only classify once (mirrors
// ps->localTest in the original C source).
func (ps *PendingSample) LocalTested() bool { return ps.localTested }

// MarkLocalTested records that classification has happened.
func (ps *PendingSample) MarkLocalTested() { ps.localTested = true }
