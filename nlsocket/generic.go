package nlsocket

import (
	"fmt"

	"github.com/mdlayher/genetlink"
	"github.com/mdlayher/netlink"
)

// GenericSession wraps a *genetlink.Conn the way the teacher's Session
// type does, adding our own sequence assignment and a bounded, batched
// receive loop. It is the transport dropmon rides on.
type GenericSession struct {
	conn *genetlink.Conn
	seq  seqCounter
}

// DialGeneric opens a generic-netlink socket and sizes its receive buffer.
func DialGeneric() (*GenericSession, error) {
	conn, err := genetlink.Dial(nil)
	if err != nil {
		return nil, fmt.Errorf("nlsocket: dial generic: %w", err)
	}
	if err := conn.SetReadBuffer(DefaultRecvBuffer); err != nil {
		// Non-fatal: some kernels/containers refuse SO_RCVBUF above a
		// ceiling; continue with whatever the kernel granted.
		_ = err
	}
	return &GenericSession{conn: conn}, nil
}

// Close releases the underlying socket.
func (s *GenericSession) Close() error { return s.conn.Close() }

// Family resolves a generic-netlink family by name, returning its id and
// the id and name of the first multicast group it advertises; a family
// with no multicast groups is reported as an error.
func (s *GenericSession) Family(name string) (famID uint16, groupID uint32, groupName string, err error) {
	fam, err := s.conn.GetFamily(name)
	if err != nil {
		return 0, 0, "", fmt.Errorf("nlsocket: lookup family %q: %w", name, err)
	}
	if len(fam.Groups) == 0 {
		return fam.ID, 0, "", fmt.Errorf("nlsocket: family %q advertises no multicast groups", name)
	}
	return fam.ID, fam.Groups[0].ID, fam.Groups[0].Name, nil
}

// Send assembles and sends a generic-netlink message, assigning the next
// sequence number itself so the caller can correlate later.
func (s *GenericSession) Send(famID uint16, cmd uint8, data []byte, ack bool) (seq uint32, err error) {
	flags := netlink.Request
	if ack {
		flags |= netlink.Acknowledge
	}
	seq = s.seq.next()
	_, err = s.conn.Send(genetlink.Message{
		Header: genetlink.Header{Command: cmd, Version: 1},
		Data:   data,
	}, famID, flags)
	if err != nil {
		return seq, fmt.Errorf("nlsocket: send: %w", err)
	}
	return seq, nil
}

// JoinGroup subscribes the socket to a multicast group via
// NETLINK_ADD_MEMBERSHIP (level SOL_NETLINK, spec §6).
func (s *GenericSession) JoinGroup(group uint32) error {
	if err := s.conn.JoinGroup(group); err != nil {
		return fmt.Errorf("nlsocket: join group %d: %w", group, err)
	}
	return nil
}

// LeaveGroup unsubscribes from a multicast group. Errors are returned,
// not swallowed, but callers in a shutdown path should log-and-continue.
func (s *GenericSession) LeaveGroup(group uint32) error {
	if err := s.conn.LeaveGroup(group); err != nil {
		return fmt.Errorf("nlsocket: leave group %d: %w", group, err)
	}
	return nil
}

// GenericMessage is the decoded shape Recv hands to its callback.
type GenericMessage struct {
	Command uint8
	Version uint8
	Data    []byte
}

// Recv reads up to RecvBatchLimit messages, invoking cb once per decoded
// generic-netlink payload and onErr (which may be nil) once per
// NLMSG_ERROR frame; NLMSG_DONE frames are skipped. Recv never blocks
// past the first ErrWouldBlock from the kernel.
func (s *GenericSession) Recv(cb func(GenericMessage), onErr func(KernelError)) error {
	for i := 0; i < RecvBatchLimit; i++ {
		msgs, raws, err := s.conn.Receive()
		if err != nil {
			if isWouldBlock(err) {
				return nil
			}
			return fmt.Errorf("nlsocket: receive: %w", err)
		}
		for j, raw := range raws {
			done, kerr, ordinary := classifyHeader(raw)
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
			if j >= len(msgs) {
				continue
			}
			cb(GenericMessage{
				Command: msgs[j].Header.Command,
				Version: msgs[j].Header.Version,
				Data:    msgs[j].Data,
			})
		}
		if len(msgs) == 0 {
			return nil
		}
	}
	return nil
}
