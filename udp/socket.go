package udp

import (
	"fmt"
	"math"
	"net/netip"

	"github.com/ystepanoff/otplat/engine"
)

// Socket is a handle onto a slot of a Table. Methods run on the
// cooperative loop. A Socket that becomes unreachable without Close is
// closed by the next Table.Reap.
type Socket struct {
	t       *Table
	ref     slotRef
	closed  bool
	cleanup tracker
}

func (s *Socket) slot() (*slot, error) {
	if s.closed {
		return nil, ErrClosed
	}
	sl, ok := s.t.lookup(s.ref)
	if !ok {
		return nil, ErrClosed
	}
	return sl, nil
}

// IsOpen reports whether the socket is registered with the engine.
func (s *Socket) IsOpen() bool {
	sl, err := s.slot()
	return err == nil && sl.native.IsOpen()
}

// Open registers the socket with the engine. port is recorded as the
// preferred local port; Bind makes it effective.
func (s *Socket) Open(port uint16) error {
	sl, err := s.slot()
	if err != nil {
		return err
	}
	if sl.native.IsOpen() {
		return nil
	}
	sl.native.SockName.Port = port
	if err := engine.Check(s.t.eng.UDPOpen(&sl.native, s.t.deliver, uint32(s.ref.index))); err != nil {
		return fmt.Errorf("udp: open: %w", err)
	}
	return nil
}

// Bind opens the socket if needed and binds it to port on the Thread
// interface.
func (s *Socket) Bind(port uint16) error {
	if err := s.Open(port); err != nil {
		return err
	}
	sl, err := s.slot()
	if err != nil {
		return err
	}
	addr := engine.SockAddr{Port: port}
	if err := engine.Check(s.t.eng.UDPBind(&sl.native, addr, engine.NetifThread)); err != nil {
		return fmt.Errorf("udp: bind %d: %w", port, err)
	}
	return nil
}

// LocalPort returns the bound or preferred local port.
func (s *Socket) LocalPort() uint16 {
	sl, err := s.slot()
	if err != nil {
		return 0
	}
	return sl.native.SockName.Port
}

// Send transmits data to dst:port. The engine message is freed on any
// failure after allocation.
func (s *Socket) Send(dst netip.Addr, port uint16, data []byte) error {
	sl, err := s.slot()
	if err != nil {
		return err
	}
	if !dst.IsValid() {
		return ErrInvalidAddress
	}
	if len(data) > math.MaxUint16 {
		return ErrTooLarge
	}

	info := engine.MessageInfo{PeerAddr: dst.As16(), PeerPort: port}

	msg := s.t.eng.UDPNewMessage()
	if msg == nil {
		return fmt.Errorf("udp: send: %w", &engine.InternalError{Code: engine.StatusNoBufs})
	}
	if err := engine.Check(msg.Append(data)); err != nil {
		msg.Free()
		return fmt.Errorf("udp: send: %w", err)
	}
	if err := engine.Check(s.t.eng.UDPSend(&sl.native, msg, &info)); err != nil {
		msg.Free()
		return fmt.Errorf("udp: send: %w", err)
	}
	return nil
}

// Receive copies the pending datagram into buf, at most len(buf) bytes,
// and clears it. With nothing pending it returns 0 and the unspecified
// address without blocking.
func (s *Socket) Receive(buf []byte) (n int, from netip.Addr, port uint16, err error) {
	sl, err := s.slot()
	if err != nil {
		return 0, netip.IPv6Unspecified(), 0, err
	}
	n, peer, port := sl.take(buf)
	if n == 0 {
		return 0, netip.IPv6Unspecified(), 0, nil
	}
	return n, netip.AddrFrom16(peer).Unmap(), port, nil
}

// Close unregisters the socket and returns its slot. Further calls are
// no-ops.
func (s *Socket) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.cleanup.Stop()

	if _, err := s.t.release(s.ref); err != nil {
		return fmt.Errorf("udp: close: %w", err)
	}
	return nil
}
