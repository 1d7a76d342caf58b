package sim

import (
	"net/netip"

	"github.com/ystepanoff/otplat/engine"
)

// MaxMessageSize bounds one message, as the IPv6 minimum MTU does.
const MaxMessageSize = 1280

const defaultHopLimit = 64

type message struct {
	e      *Engine
	data   []byte
	pooled bool
	freed  bool
}

var _ engine.Message = (*message)(nil)

func (m *message) Append(data []byte) engine.Status {
	if len(m.data)+len(data) > MaxMessageSize {
		return engine.StatusNoBufs
	}
	m.data = append(m.data, data...)
	return engine.StatusNone
}

func (m *message) Length() uint16 { return uint16(len(m.data)) }

func (m *message) Read(offset uint16, buf []byte) int {
	if int(offset) >= len(m.data) {
		return 0
	}
	return copy(buf, m.data[offset:])
}

func (m *message) Free() {
	if m.freed {
		return
	}
	m.freed = true
	if m.pooled {
		m.e.liveMsgs--
	}
}

// socketHandle is stored in engine.UDPSocket.Handle while open.
type socketHandle struct {
	bound bool
}

func (e *Engine) UDPOpen(sock *engine.UDPSocket, handler engine.UDPHandler, context uint32) engine.Status {
	if sock.IsOpen() {
		return engine.StatusAlready
	}
	sock.Handler = handler
	sock.Context = context
	sock.Handle = &socketHandle{}
	e.sockets = append(e.sockets, sock)
	return engine.StatusNone
}

func (e *Engine) UDPBind(sock *engine.UDPSocket, addr engine.SockAddr, netif engine.NetifID) engine.Status {
	h, ok := sock.Handle.(*socketHandle)
	if !ok {
		return engine.StatusInvalidState
	}
	if addr.Port == 0 {
		addr.Port = e.nextEphemeral()
	}
	for _, other := range e.sockets {
		if other != sock && other.SockName.Port == addr.Port && other.Handle.(*socketHandle).bound {
			return engine.StatusAlready
		}
	}
	sock.SockName = addr
	h.bound = true
	return engine.StatusNone
}

func (e *Engine) UDPClose(sock *engine.UDPSocket) engine.Status {
	if !sock.IsOpen() {
		return engine.StatusNone
	}
	for i, s := range e.sockets {
		if s == sock {
			e.sockets = append(e.sockets[:i], e.sockets[i+1:]...)
			break
		}
	}
	sock.Handle = nil
	return engine.StatusNone
}

func (e *Engine) UDPNewMessage() engine.Message {
	if e.liveMsgs >= e.poolSize {
		return nil
	}
	e.liveMsgs++
	return &message{e: e, pooled: true}
}

// LiveMessages reports messages allocated and not yet freed.
func (e *Engine) LiveMessages() int { return e.liveMsgs }

// UDPSend takes ownership of msg only when it returns StatusNone.
func (e *Engine) UDPSend(sock *engine.UDPSocket, msg engine.Message, info *engine.MessageInfo) engine.Status {
	if !sock.IsOpen() {
		return engine.StatusInvalidState
	}
	if !e.ip6Up {
		return engine.StatusInvalidState
	}
	m, ok := msg.(*message)
	if !ok || m.freed {
		return engine.StatusInvalidArgs
	}
	if sock.SockName.Port == 0 {
		sock.SockName.Port = e.nextEphemeral()
	}

	out := engine.MessageInfo{
		SockAddr: info.SockAddr,
		SockPort: sock.SockName.Port,
		PeerAddr: info.PeerAddr,
		PeerPort: info.PeerPort,
		HopLimit: info.HopLimit,
	}
	if out.SockAddr == ([16]byte{}) {
		out.SockAddr = e.sourceFor(out.PeerAddr)
	}
	if out.HopLimit == 0 {
		out.HopLimit = defaultHopLimit
	}

	if e.isOwnAddress(out.PeerAddr) {
		e.post(func() {
			e.deliverLocal(m.data, &out)
			m.Free()
		})
		return engine.StatusNone
	}

	if !e.threadUp {
		return engine.StatusInvalidState
	}
	if len(m.data) > MaxFramePayload {
		return engine.StatusNoBufs
	}
	if len(e.txQueue) >= txQueueSize {
		return engine.StatusBusy
	}

	f := Frame{
		Seq:      e.seq,
		PanID:    e.active.PanID,
		DstShort: broadcastShort,
		SrcExt:   e.extAddr,
		Src:      out.SockAddr,
		Dst:      out.PeerAddr,
		SrcPort:  out.SockPort,
		DstPort:  out.PeerPort,
		Payload:  m.data,
	}
	e.seq++

	psdu := make([]byte, engine.MaxPSDU)
	n, err := EncodeFrame(&f, psdu)
	if err != nil {
		return engine.StatusNoBufs
	}
	e.txQueue = append(e.txQueue, psdu[:n])
	m.Free()
	e.kickTx()
	return engine.StatusNone
}

// deliverLocal hands a datagram to the socket bound to its port. info
// describes it from the sender's side.
func (e *Engine) deliverLocal(payload []byte, info *engine.MessageInfo) bool {
	rx := engine.MessageInfo{
		SockAddr: info.PeerAddr,
		SockPort: info.PeerPort,
		PeerAddr: info.SockAddr,
		PeerPort: info.SockPort,
		HopLimit: info.HopLimit,
	}
	for _, s := range e.sockets {
		if s.SockName.Port != rx.SockPort {
			continue
		}
		if s.SockName.Address != ([16]byte{}) && s.SockName.Address != rx.SockAddr {
			continue
		}
		msg := &message{e: e, data: payload}
		s.Handler(s.Context, msg, &rx)
		msg.Free()
		e.stats.Delivered++
		return true
	}
	e.log.Debug().Uint16("port", rx.SockPort).Msg("no socket for datagram")
	return false
}

func (e *Engine) nextEphemeral() uint16 {
	for {
		p := e.ephemeral
		e.ephemeral++
		if e.ephemeral == 0 {
			e.ephemeral = 49152
		}
		if !e.portInUse(p) {
			return p
		}
	}
}

func (e *Engine) portInUse(port uint16) bool {
	for _, s := range e.sockets {
		if s.SockName.Port == port {
			return true
		}
	}
	return false
}

func isMulticast(a [16]byte) bool {
	return netip.AddrFrom16(a).IsMulticast()
}
