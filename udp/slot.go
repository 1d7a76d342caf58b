package udp

import (
	"github.com/ystepanoff/otplat/engine"
	"github.com/ystepanoff/otplat/internal/critical"
)

// slot is the stable storage behind one Socket.
type slot struct {
	native engine.UDPSocket

	// guarded by the table
	inUse bool
	gen   uint32

	// receive state, guarded by mu
	mu       critical.Mutex
	buf      []byte
	n        int
	peer     [16]byte
	peerPort uint16
}

func (sl *slot) reset(size int) {
	sl.native = engine.UDPSocket{}
	sl.mu.With(func() {
		if cap(sl.buf) >= size {
			sl.buf = sl.buf[:size]
		} else {
			sl.buf = make([]byte, size)
		}
		sl.n = 0
		sl.peer = [16]byte{}
		sl.peerPort = 0
	})
}

// store copies at most len(buf) bytes of msg, replacing any datagram not
// yet received. It reports whether msg was truncated.
func (sl *slot) store(msg engine.Message, info *engine.MessageInfo) bool {
	length := int(msg.Length())
	n := min(length, len(sl.buf))
	sl.mu.With(func() {
		sl.n = msg.Read(0, sl.buf[:n])
		sl.peer = info.PeerAddr
		sl.peerPort = info.PeerPort
	})
	return length > n
}

// take copies the pending datagram into buf and clears it.
func (sl *slot) take(buf []byte) (n int, peer [16]byte, port uint16) {
	sl.mu.With(func() {
		if sl.n == 0 {
			return
		}
		n = copy(buf, sl.buf[:sl.n])
		peer, port = sl.peer, sl.peerPort
		sl.n = 0
	})
	return n, peer, port
}
