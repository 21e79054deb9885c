package sflowio

import "sync"

// LocalAgent is a mutex-guarded, in-process stand-in for the real sFlow
// agent singleton. It is grounded on the teacher's SEMLOCK_DO(sp->sync_agent)
// pattern from the original C source (mod_dropmon.c, mod_tcp.c): every
// write — adding a notifier, emitting a sample — happens under a single
// lock because the agent is reachable from more than one bus (spec §5).
//
// A production deployment swaps this for an adapter over the real sFlow
// wire encoder; LocalAgent exists so this module is self-testing without
// one.
type LocalAgent struct {
	mu        sync.Mutex
	notifiers map[uint32]*Notifier
	receiverIndex int

	Emitted []DiscardEvent
}

// NewLocalAgent returns a ready-to-use LocalAgent.
func NewLocalAgent(receiverIndex int) *LocalAgent {
	return &LocalAgent{
		notifiers:     map[uint32]*Notifier{},
		receiverIndex: receiverIndex,
	}
}

// AddNotifier returns the cached Notifier for dsi.IfIndex, creating it
// (under the lock) on first use. Lifetime = process (spec §3).
func (a *LocalAgent) AddNotifier(dsi DataSourceID) *Notifier {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n, ok := a.notifiers[dsi.IfIndex]; ok {
		return n
	}
	n := &Notifier{
		IfIndex:       dsi.IfIndex,
		MaxHeaderSize: 256,
		receiverIndex: a.receiverIndex,
	}
	a.notifiers[dsi.IfIndex] = n
	return n
}

// WriteEventSample records a discard event under the agent lock.
func (a *LocalAgent) WriteEventSample(n *Notifier, discard DiscardEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Emitted = append(a.Emitted, discard)
}

// AddElement attaches el to fs. Flow samples aren't notifier-scoped the
// way discard events are, so this doesn't need the agent lock in the real
// encoder, but we take it anyway for a single, simple concurrency story.
func (a *LocalAgent) AddElement(fs *FlowSample, el FlowSampleElement) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fs.Elements = append(fs.Elements, el)
}
