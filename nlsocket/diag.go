package nlsocket

import (
	"fmt"

	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"
)

// DiagSession is a raw netlink.Conn dialed against NETLINK_SOCK_DIAG, the
// transport tcpannotate rides on. mdlayher/netlink dials arbitrary
// protocol families, not just generic netlink (the same way the pack's
// conntrack/nfqueue examples open NETLINK_NETFILTER directly), so this is
// the same library as GenericSession, just a different family number.
type DiagSession struct {
	conn *netlink.Conn
	seq  seqCounter
}

// DialDiag opens a SOCK_DIAG netlink socket.
func DialDiag() (*DiagSession, error) {
	conn, err := netlink.Dial(unix.NETLINK_SOCK_DIAG, nil)
	if err != nil {
		return nil, fmt.Errorf("nlsocket: dial sock_diag: %w", err)
	}
	return &DiagSession{conn: conn}, nil
}

// Close releases the underlying socket.
func (s *DiagSession) Close() error { return s.conn.Close() }

// Send writes a raw SOCK_DIAG_BY_FAMILY request, assigning the next
// sequence number. msgType is the netlink message type (20 for
// SOCK_DIAG_BY_FAMILY); dump selects NLM_F_DUMP for UDP's all-states scan.
func (s *DiagSession) Send(msgType uint16, payload []byte, dump bool) (seq uint32, err error) {
	flags := netlink.Request
	if dump {
		flags |= netlink.Dump
	}
	seq = s.seq.next()
	_, err = s.conn.Send(netlink.Message{
		Header: netlink.Header{
			Type:     netlink.HeaderType(msgType),
			Flags:    flags,
			Sequence: seq,
		},
		Data: payload,
	})
	if err != nil {
		return seq, fmt.Errorf("nlsocket: send: %w", err)
	}
	return seq, nil
}

// DiagMessage is the decoded shape Recv hands to its callback: the raw
// message type/sequence plus its data payload (inetdiag.DiagMsg + RTAs).
type DiagMessage struct {
	Type     uint16
	Sequence uint32
	Data     []byte
}

// Recv reads up to RecvBatchLimit messages, invoking cb per ordinary
// payload and onErr per NLMSG_ERROR frame (spec §4.1).
func (s *DiagSession) Recv(cb func(DiagMessage), onErr func(KernelError)) error {
	for i := 0; i < RecvBatchLimit; i++ {
		msgs, err := s.conn.Receive()
		if err != nil {
			if isWouldBlock(err) {
				return nil
			}
			return fmt.Errorf("nlsocket: receive: %w", err)
		}
		if len(msgs) == 0 {
			return nil
		}
		for _, m := range msgs {
			done, kerr, ordinary := classifyHeader(m)
			if done {
				continue
			}
			if kerr != nil {
				if onErr != nil {
					onErr(*kerr)
				}
				continue
			}
			if !ordinary {
				continue
			}
			cb(DiagMessage{
				Type:     uint16(m.Header.Type),
				Sequence: m.Header.Sequence,
				Data:     m.Data,
			})
		}
	}
	return nil
}
