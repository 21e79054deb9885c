package inetdiag

import (
	"bytes"
	"encoding/binary"
)

// Diag request/reply constants from uapi/linux/inet_diag.h and
// uapi/linux/sock_diag.h.
const SockDiagByFamily = 20

const (
	AttrNone = iota
	AttrMemInfo
	AttrInfo
	AttrVegasInfo
	AttrCong
	AttrTOS
	AttrTClass
	AttrSKMemInfo
	AttrShutdown
)

// ReqV2 is the wire-exact inet_diag_req_v2 request struct (spec §4.4).
type ReqV2 struct {
	Family   uint8
	Protocol uint8
	Ext      uint8
	Pad      uint8
	States   uint32
	ID       SockID
}

// Encode serializes req in little-endian byte order, which is the
// kernel's host order on the little-endian hosts this package targets
// (spec §6 — netlink payloads are host-order unless explicitly flagged
// otherwise, and inet_diag doesn't flag this one). Big-endian hosts are
// not handled.
func (req ReqV2) Encode() []byte {
	buf := &bytes.Buffer{}
	_ = binary.Write(buf, binary.LittleEndian, req)
	return buf.Bytes()
}

// NewTCPInfoRequest builds a request for one socket's TCP info, asking
// only for the INET_DIAG_INFO extension (spec §4.4: we never need the
// other extensions this module doesn't consume). The state mask is
// narrowed to ESTABLISHED: a sampled packet only ever correlates to a
// connection in that state, and querying the full state space just
// costs the kernel more work to filter on our behalf.
func NewTCPInfoRequest(family uint8, id SockID) ReqV2 {
	return ReqV2{
		Family:   family,
		Protocol: 6, // IPPROTO_TCP
		Ext:      1 << (AttrInfo - 1),
		States:   1 << uint(TCPEstablished),
		ID:       id,
	}
}

// NewUDPInfoRequest builds the UDP counterpart: UDP sockets carry no
// TCP state machine, so the mask asks for every state (spec §4.4 step 3,
// open question: idiag_states = 0xFFFF).
func NewUDPInfoRequest(family uint8, id SockID) ReqV2 {
	return ReqV2{
		Family:   family,
		Protocol: 17, // IPPROTO_UDP
		Ext:      1 << (AttrInfo - 1),
		States:   0xFFFF,
		ID:       id,
	}
}
