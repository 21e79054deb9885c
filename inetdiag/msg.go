package inetdiag

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// DiagMsg is the wire-exact inet_diag_msg reply header (spec §4.4).
type DiagMsg struct {
	Family   uint8
	State    uint8
	Timer    uint8
	Retrans  uint8
	ID       SockID
	Expires  uint32
	RQueue   uint32
	WQueue   uint32
	UID      uint32
	Inode    uint32
}

// sizeofDiagMsg is DiagMsg's encoded wire size: 4 header bytes + a
// 48-byte SockID + 5 trailing uint32s.
const sizeofDiagMsg = 4 + 48 + 5*4

// DecodeDiagMsg decodes the fixed-size inet_diag_msg header from the
// front of a SOCK_DIAG reply payload and returns the remaining bytes,
// which hold the reply's netlink attributes (TCP info among them).
func DecodeDiagMsg(data []byte) (DiagMsg, []byte, error) {
	if len(data) < sizeofDiagMsg {
		return DiagMsg{}, nil, fmt.Errorf("inetdiag: short message: %d < %d bytes", len(data), sizeofDiagMsg)
	}
	var msg DiagMsg
	if err := binary.Read(bytes.NewReader(data[:sizeofDiagMsg]), binary.LittleEndian, &msg); err != nil {
		return DiagMsg{}, nil, fmt.Errorf("inetdiag: decode: %w", err)
	}
	return msg, data[sizeofDiagMsg:], nil
}

// attrHeaderLen is the 4-byte (len,type) header every netlink attribute
// in the trailing attribute list carries.
const attrHeaderLen = 4
const attrAlign = 4

func alignAttr(n int) int { return (n + attrAlign - 1) &^ (attrAlign - 1) }

// WalkAttrs decodes the flat attribute list following a DiagMsg.
// Malformed TLVs stop the walk and return what was decoded so far,
// mirroring the netlink-socket layer's "halt on malformed TLV, don't
// guess" rule (spec §4.1, §7).
func WalkAttrs(data []byte) map[uint16][]byte {
	attrs := map[uint16][]byte{}
	for len(data) >= attrHeaderLen {
		length := int(binary.LittleEndian.Uint16(data[0:2]))
		typ := binary.LittleEndian.Uint16(data[2:4])
		if length < attrHeaderLen || length > len(data) {
			return attrs
		}
		attrs[typ] = data[attrHeaderLen:length]
		data = data[alignAttr(length):]
	}
	return attrs
}
