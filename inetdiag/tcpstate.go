package inetdiag

import "fmt"

// TCPState is the inet_diag_msg/tcp_info connection-state enumeration
// (uapi/linux/tcp.h), grounded on m-lab/tcp-info's tcp.State.
type TCPState uint8

const (
	TCPInvalid     TCPState = 0
	TCPEstablished TCPState = 1
	TCPSynSent     TCPState = 2
	TCPSynRecv     TCPState = 3
	TCPFinWait1    TCPState = 4
	TCPFinWait2    TCPState = 5
	TCPTimeWait    TCPState = 6
	TCPClose       TCPState = 7
	TCPCloseWait   TCPState = 8
	TCPLastAck     TCPState = 9
	TCPListen      TCPState = 10
	TCPClosing     TCPState = 11
)

var tcpStateNames = map[TCPState]string{
	TCPInvalid:     "INVALID",
	TCPEstablished: "ESTABLISHED",
	TCPSynSent:     "SYN_SENT",
	TCPSynRecv:     "SYN_RECV",
	TCPFinWait1:    "FIN_WAIT1",
	TCPFinWait2:    "FIN_WAIT2",
	TCPTimeWait:    "TIME_WAIT",
	TCPClose:       "CLOSE",
	TCPCloseWait:   "CLOSE_WAIT",
	TCPLastAck:     "LAST_ACK",
	TCPListen:      "LISTEN",
	TCPClosing:     "CLOSING",
}

func (s TCPState) String() string {
	if name, ok := tcpStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN_STATE_%d", uint8(s))
}
