package dropcatalog

import "github.com/openhsflow/hsflowd/sflowio"

// ReasonCode is a small integer drawn from a closed enumeration of named
// discard reasons (spec §3). None (sflowio.None, -1) means "recognized
// and deliberately ignored; do not emit an event".
type ReasonCode = sflowio.ReasonCode

// The reason table below stands in for the sFlow discard-reason
// enumeration included from a static table in the original C source
// (mod_dropmon.c's sflow_drop.h, not carried in this module's source
// pack — the set here is a small stable subset of that standard that
// covers every reason name the default tables in tables.go use;
// queue_full, socket_error and tcp_invalid_checksum are referenced by no
// default entry). Names are looked up by
// the catalog loader; unresolved names cause their entry to be skipped
// with a warning, never a fatal error (spec §4.2).
const (
	ReasonUnknown ReasonCode = iota
	ReasonQueueFull
	ReasonSocketError
	ReasonTCPInvalidSeq
	ReasonTCPResetClosed
	ReasonTCPInvalidChecksum
	ReasonIPHeaderInvalid
	ReasonIPFragmentDropped
	ReasonTTLExceeded
	ReasonNetFilterDrop
	ReasonBridgeDrop
	ReasonDecapError
	ReasonACLDeny
)

var reasonNames = map[string]ReasonCode{
	"unknown":             ReasonUnknown,
	"queue_full":           ReasonQueueFull,
	"socket_error":         ReasonSocketError,
	"tcp_invalid_seq":      ReasonTCPInvalidSeq,
	"tcp_reset_closed":     ReasonTCPResetClosed,
	"tcp_invalid_checksum": ReasonTCPInvalidChecksum,
	"ip_header_invalid":    ReasonIPHeaderInvalid,
	"ip_fragment_dropped":  ReasonIPFragmentDropped,
	"ttl_exceeded":         ReasonTTLExceeded,
	"netfilter_drop":       ReasonNetFilterDrop,
	"bridge_drop":          ReasonBridgeDrop,
	"decap_error":          ReasonDecapError,
	"acl_deny":             ReasonACLDeny,
}

// lookupReason resolves a reason name to its code. An empty name resolves
// to sflowio.None ("recognized and ignored") per spec §4.2; any other
// unresolved name is reported via ok=false so the loader can skip the
// entry with a warning.
func lookupReason(name string) (code ReasonCode, ok bool) {
	if name == "" {
		return sflowio.None, true
	}
	code, ok = reasonNames[name]
	return code, ok
}
