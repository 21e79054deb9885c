package ifaces

import (
	"net"
	"testing"
)

func TestIsLocal(t *testing.T) {
	la := &LocalAddresses{addrs: map[string]struct{}{
		"10.0.0.1": {},
	}}

	if !la.IsLocal(net.ParseIP("10.0.0.1")) {
		t.Errorf("expected 10.0.0.1 to be local")
	}
	if la.IsLocal(net.ParseIP("10.0.0.2")) {
		t.Errorf("expected 10.0.0.2 not to be local")
	}
}

func TestIsLocalNilReceiver(t *testing.T) {
	var la *LocalAddresses
	if la.IsLocal(net.ParseIP("10.0.0.1")) {
		t.Errorf("a nil LocalAddresses should classify nothing as local")
	}
}
