package dropmon

import (
	"encoding/binary"
	"fmt"
)

// errMalformedAttr is returned by decodeAlert when a TLV's declared length
// over- or under-runs the remaining buffer; the caller logs and discards
// the whole message rather than guessing at a partial decode (spec §4.3,
// §7 "malformed TLV").
var errMalformedAttr = fmt.Errorf("dropmon: malformed attribute TLV")

const attrHeaderLen = 4
const attrAlign = 4

func alignAttr(n int) int {
	return (n + attrAlign - 1) &^ (attrAlign - 1)
}

// walkAttrs decodes a flat sequence of netlink attributes into a map
// keyed by type (the NLA_F_NESTED bit, if set, is masked off so nested
// and non-nested attributes of the same numeric type collide the way the
// kernel's own nla_type() macro treats them).
func walkAttrs(data []byte) (map[uint16][]byte, error) {
	attrs := map[uint16][]byte{}
	for len(data) > 0 {
		if len(data) < attrHeaderLen {
			return nil, errMalformedAttr
		}
		length := binary.LittleEndian.Uint16(data[0:2])
		typ := binary.LittleEndian.Uint16(data[2:4]) &^ attrFNested
		if int(length) < attrHeaderLen || int(length) > len(data) {
			return nil, errMalformedAttr
		}
		attrs[typ] = data[attrHeaderLen:length]
		data = data[alignAttr(int(length)):]
	}
	return attrs, nil
}

// AlertEvent is the decoded shape of a CMD_ALERT / CMD_PACKET_ALERT
// payload, cross-checked per spec §4.3.
type AlertEvent struct {
	Origin  int
	Symbol  string
	HWGroup string
	HWTrap  string
	IfIndex uint32
	Proto   uint32

	HeaderLen uint32
	TruncLen  uint32
	OrigLen   uint32
	QueueLen  uint32
	Payload   []byte
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func u16(b []byte) uint16 {
	if len(b) < 2 {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func u32(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// decodeAlert parses an alert payload and applies spec §4.3's three
// cross-checks: frame length defaults to header length when the kernel
// omits it, truncation length is clamped to the payload actually
// captured, and origin length is never allowed below the header length
// (a kernel report shorter than what we actually received is a kernel
// bug, not ours to propagate).
func decodeAlert(data []byte) (AlertEvent, error) {
	attrs, err := walkAttrs(data)
	if err != nil {
		return AlertEvent{}, err
	}

	var ev AlertEvent
	ev.Symbol = cString(attrs[AttrSymbol])
	ev.Proto = uint32(u16(attrs[AttrProto]))
	ev.QueueLen = u32(attrs[AttrQueueLen])
	ev.TruncLen = u32(attrs[AttrTruncLen])
	ev.OrigLen = u32(attrs[AttrOrigLen])
	ev.Payload = attrs[AttrPayload]
	ev.HeaderLen = uint32(len(ev.Payload))

	if origin, ok := attrs[AttrOrigin]; ok {
		ev.Origin = int(u16(origin))
	}
	ev.HWGroup = cString(attrs[AttrHWTrapGroupName])
	ev.HWTrap = cString(attrs[AttrHWTrapName])

	if nested, ok := attrs[AttrInPort]; ok {
		if inner, err := walkAttrs(nested); err == nil {
			ev.IfIndex = u32(inner[NAttrPortNetdevIfindex])
		}
	}

	if ev.Proto == 0 {
		ev.Proto = headerProtocolEthernet
	}
	if ev.OrigLen == 0 {
		ev.OrigLen = ev.HeaderLen
	}
	if ev.TruncLen == 0 || ev.TruncLen > ev.HeaderLen {
		ev.TruncLen = ev.HeaderLen
	}
	if ev.OrigLen < ev.HeaderLen {
		ev.OrigLen = ev.HeaderLen
	}

	return ev, nil
}
