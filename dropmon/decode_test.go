package dropmon

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// appendAttr appends one TLV (header + value, padded to 4 bytes) to buf.
func appendAttr(buf []byte, typ uint16, value []byte) []byte {
	length := attrHeaderLen + len(value)
	hdr := make([]byte, attrHeaderLen)
	binary.LittleEndian.PutUint16(hdr[0:2], uint16(length))
	binary.LittleEndian.PutUint16(hdr[2:4], typ)
	buf = append(buf, hdr...)
	buf = append(buf, value...)
	pad := alignAttr(length) - length
	buf = append(buf, make([]byte, pad)...)
	return buf
}

func cStr(s string) []byte { return append([]byte(s), 0) }

func u32b(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func TestDecodeAlertBasicFields(t *testing.T) {
	payload := []byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02}
	var buf []byte
	buf = appendAttr(buf, AttrSymbol, cStr("kfree_skb_reason"))
	buf = appendAttr(buf, AttrPayload, payload)

	ev, err := decodeAlert(buf)
	if err != nil {
		t.Fatalf("decodeAlert: %v", err)
	}
	if ev.Symbol != "kfree_skb_reason" {
		t.Errorf("symbol = %q", ev.Symbol)
	}
	if !bytes.Equal(ev.Payload, payload) {
		t.Errorf("payload = %v, want %v", ev.Payload, payload)
	}
}

func TestDecodeAlertDefaultsFrameLengthToHeaderLength(t *testing.T) {
	payload := make([]byte, 10)
	var buf []byte
	buf = appendAttr(buf, AttrSymbol, cStr("x"))
	buf = appendAttr(buf, AttrPayload, payload)

	ev, err := decodeAlert(buf)
	if err != nil {
		t.Fatalf("decodeAlert: %v", err)
	}
	if ev.OrigLen != uint32(len(payload)) {
		t.Errorf("OrigLen = %d, want %d (defaulted from header length)", ev.OrigLen, len(payload))
	}
}

func TestDecodeAlertClampsTruncLength(t *testing.T) {
	payload := make([]byte, 10)
	var buf []byte
	buf = appendAttr(buf, AttrSymbol, cStr("x"))
	buf = appendAttr(buf, AttrPayload, payload)
	buf = appendAttr(buf, AttrTruncLen, u32b(9000))

	ev, err := decodeAlert(buf)
	if err != nil {
		t.Fatalf("decodeAlert: %v", err)
	}
	if ev.TruncLen != uint32(len(payload)) {
		t.Errorf("TruncLen = %d, want clamped to %d", ev.TruncLen, len(payload))
	}
}

func TestDecodeAlertRaisesOrigLenToHeaderLength(t *testing.T) {
	payload := make([]byte, 20)
	var buf []byte
	buf = appendAttr(buf, AttrSymbol, cStr("x"))
	buf = appendAttr(buf, AttrPayload, payload)
	buf = appendAttr(buf, AttrOrigLen, u32b(5))

	ev, err := decodeAlert(buf)
	if err != nil {
		t.Fatalf("decodeAlert: %v", err)
	}
	if ev.OrigLen != uint32(len(payload)) {
		t.Errorf("OrigLen = %d, want raised to %d", ev.OrigLen, len(payload))
	}
}

func TestDecodeAlertDefaultsProtocolToEthernet(t *testing.T) {
	var buf []byte
	buf = appendAttr(buf, AttrSymbol, cStr("x"))

	ev, err := decodeAlert(buf)
	if err != nil {
		t.Fatalf("decodeAlert: %v", err)
	}
	if ev.Proto != headerProtocolEthernet {
		t.Errorf("Proto = %d, want %d", ev.Proto, headerProtocolEthernet)
	}
}

func TestDecodeAlertNestedInPort(t *testing.T) {
	var nested []byte
	nested = appendAttr(nested, NAttrPortNetdevIfindex, u32b(7))

	var buf []byte
	buf = appendAttr(buf, AttrSymbol, cStr("x"))
	buf = appendAttr(buf, AttrInPort, nested)

	ev, err := decodeAlert(buf)
	if err != nil {
		t.Fatalf("decodeAlert: %v", err)
	}
	if ev.IfIndex != 7 {
		t.Errorf("IfIndex = %d, want 7", ev.IfIndex)
	}
}

func TestDecodeAlertMalformedTLVRejected(t *testing.T) {
	buf := []byte{0xff, 0xff, 0x00, 0x00} // length 65535, far beyond the buffer
	if _, err := decodeAlert(buf); err == nil {
		t.Fatalf("expected an error for an overrunning TLV length")
	}
}
