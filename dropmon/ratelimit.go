package dropmon

// RateLimiter is the embedded rate controller and circuit breaker (spec
// §4.5), grounded on mod_dropmon.c's evt_tick/evt_deci quota-refill pair.
//
// Quota is refilled once a second for limits under 10/sec, or once per
// decisecond (limit/10 per tick) for limits at or above 10/sec — matching
// the original's choice to spread a coarse per-second budget across ten
// sub-ticks so a burst early in the second doesn't starve the rest of it.
// The circuit breaker inspects the volume of drop events observed in a
// single tick (not the post-rate-limit emitted count) and, once it trips,
// never resets: a permanently misbehaving feed should stay silenced for
// the life of the process, not flap.
type RateLimiter struct {
	limit uint32
	max   uint32

	quota   uint32
	noQuota uint32

	tickDrops uint32
	tripped   bool
}

// NewRateLimiter builds a limiter. limit is the events/sec quota (0 means
// unlimited); max is the circuit-breaker threshold in drops/tick (0
// disables the breaker).
func NewRateLimiter(limit, max uint32) *RateLimiter {
	return &RateLimiter{limit: limit, max: max}
}

// OnTick runs once a second: evaluates the circuit breaker against the
// volume seen in the tick just completed, then (for sub-10 limits) refills
// the whole-second quota.
func (r *RateLimiter) OnTick() {
	if r.max > 0 && !r.tripped && r.tickDrops > r.max {
		r.tripped = true
	}
	r.tickDrops = 0
	if r.limit > 0 && r.limit < 10 {
		r.quota = r.limit
	}
}

// OnDeci runs ten times a second: refills a tenth of the quota for
// limits at or above 10/sec. Limits under 10/sec are refilled only by
// OnTick, since a tenth of e.g. 3/sec would round to zero every time.
func (r *RateLimiter) OnDeci() {
	if r.limit >= 10 {
		r.quota = r.limit / 10
	}
}

// Allow accounts one observed drop event against the circuit breaker and,
// unless the breaker has already tripped, against the rate quota. ok
// reports whether this event may be emitted; drops is the count of prior
// events silently rate-limited away, to be attached as the DiscardEvent's
// Drops field per spec §4.5 ("exposed on the next successfully emitted
// event"). A tripped breaker reports ok=false without touching the quota
// or the noQuota carry — once tripped, this feed no longer participates
// in rate accounting at all.
func (r *RateLimiter) Allow() (ok bool, drops uint32) {
	r.tickDrops++
	if r.tripped {
		return false, 0
	}
	if r.limit == 0 {
		return true, 0
	}
	if r.quota == 0 {
		r.noQuota++
		return false, 0
	}
	r.quota--
	drops = r.noQuota
	r.noQuota = 0
	return true, drops
}

// Tripped reports whether the circuit breaker has fired.
func (r *RateLimiter) Tripped() bool { return r.tripped }
