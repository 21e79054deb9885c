package nlsocket

import (
	"errors"
	"net"
)

// isWouldBlock reports whether err represents an EAGAIN-style "no more
// data right now" condition on the underlying socket, which is how
// mdlayher/netlink surfaces read timeouts set via SetReadDeadline.
func isWouldBlock(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) {
		return nerr.Timeout()
	}
	return false
}
