// Package ifaces is the minimal interface-table collaborator (spec §3.7):
// an ifindex->name map, and a set of this host's own addresses used to
// classify a sampled packet's direction. cmd/hsflowd wires the address
// set into tcpannotate; nothing in this module calls LinkList.
//
// Adapted from the teacher's own ifaces.go (superfly/dropspy), which
// only ever listed links; generalized here to also list addresses, via
// the same rtnetlink connection, for tcpannotate's local/remote
// classification (spec §4.4 supplement).
package ifaces

import (
	"fmt"
	"net"

	"github.com/jsimonetti/rtnetlink"
)

// LinkList returns every interface's index mapped to its name.
func LinkList() (map[uint32]string, error) {
	conn, err := rtnetlink.Dial(nil)
	if err != nil {
		return nil, fmt.Errorf("ifaces: link list: %w", err)
	}
	defer conn.Close()

	msgs, err := conn.Link.List()
	if err != nil {
		return nil, fmt.Errorf("ifaces: link list: %w", err)
	}

	ret := map[uint32]string{}
	for _, link := range msgs {
		ret[link.Index] = link.Attributes.Name
	}
	return ret, nil
}

// LocalAddresses is the set of IP addresses configured on this host's
// own interfaces, used to answer "is this address mine" (spec §4.4's
// send/receive direction classification).
type LocalAddresses struct {
	addrs map[string]struct{}
}

// LoadLocalAddresses queries every interface's addresses over rtnetlink.
func LoadLocalAddresses() (*LocalAddresses, error) {
	conn, err := rtnetlink.Dial(nil)
	if err != nil {
		return nil, fmt.Errorf("ifaces: address list: %w", err)
	}
	defer conn.Close()

	msgs, err := conn.Address.List()
	if err != nil {
		return nil, fmt.Errorf("ifaces: address list: %w", err)
	}

	la := &LocalAddresses{addrs: map[string]struct{}{}}
	for _, a := range msgs {
		if a.Attributes == nil {
			continue
		}
		if ip := a.Attributes.Address; ip != nil {
			la.addrs[ip.String()] = struct{}{}
		}
		if ip := a.Attributes.Local; ip != nil {
			la.addrs[ip.String()] = struct{}{}
		}
	}
	return la, nil
}

// IsLocal reports whether ip is configured on one of this host's own
// interfaces. Suitable as tcpannotate.NewEngine's isLocal callback.
func (la *LocalAddresses) IsLocal(ip net.IP) bool {
	if la == nil {
		return false
	}
	_, ok := la.addrs[ip.String()]
	return ok
}
