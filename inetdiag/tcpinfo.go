package inetdiag

import (
	"bytes"
	"encoding/binary"
)

// LinuxTCPInfo mirrors the leading fields of struct tcp_info
// (uapi/linux/tcp.h), from state through data_segs_out, grounded on
// m-lab/tcp-info's tcp.LinuxTCPInfo — in the kernel's field order so the
// copy discipline below lines up byte-for-byte with the kernel's prefix.
// The TCP-info sFlow element (spec §4.4) reads only a subset of them.
type LinuxTCPInfo struct {
	State       uint8
	CAState     uint8
	Retransmits uint8
	Probes      uint8
	Backoff     uint8
	Options     uint8
	WScale      uint8
	AppLimited  uint8

	RTO    uint32
	ATO    uint32
	SndMSS uint32
	RcvMSS uint32

	Unacked uint32
	Sacked  uint32
	Lost    uint32
	Retrans uint32
	Fackets uint32

	LastDataSent uint32
	LastAckSent  uint32
	LastDataRecv uint32
	LastAckRecv  uint32

	PMTU        uint32
	RcvSsThresh uint32
	RTT         uint32
	RTTVar      uint32
	SndSsThresh uint32
	SndCwnd     uint32
	AdvMSS      uint32
	Reordering  uint32

	RcvRTT   uint32
	RcvSpace uint32

	TotalRetrans uint32

	PacingRate    int64
	MaxPacingRate int64

	BytesAcked    int64
	BytesReceived int64
	SegsOut       int32
	SegsIn        int32

	NotsentBytes uint32
	MinRTT       uint32
	DataSegsIn   uint32
	DataSegsOut  uint32
}

// sizeofLinuxTCPInfo is computed once from the struct's field widths
// (all fixed-size, so this matches the wire size regardless of any
// alignment padding the Go compiler might otherwise introduce, since
// DecodeTCPInfo reads through encoding/binary rather than an unsafe
// struct cast).
var sizeofLinuxTCPInfo = binary.Size(LinuxTCPInfo{})

// DecodeTCPInfo implements spec §4.4's forward/backward-compatible copy
// discipline: start from a zero-valued struct, then copy min(len(raw),
// sizeof(LinuxTCPInfo)) bytes over it. An older kernel that sends a
// shorter tcp_info leaves this struct's tail fields at their zero value;
// a newer kernel that sends a longer one has its extra trailing fields
// silently dropped. Either way decoding never fails on a size mismatch.
func DecodeTCPInfo(raw []byte) LinuxTCPInfo {
	buf := make([]byte, sizeofLinuxTCPInfo)
	n := len(raw)
	if n > len(buf) {
		n = len(buf)
	}
	copy(buf, raw[:n])

	var info LinuxTCPInfo
	_ = binary.Read(bytes.NewReader(buf), binary.LittleEndian, &info)
	return info
}
