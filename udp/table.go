// Package udp implements UDP sockets on top of the engine's socket API.
//
// The engine keeps a pointer to each open socket and calls back into it
// when a datagram arrives, so socket state must never move while open.
// Sockets therefore live in slots of a Table allocated once; a Socket is
// only a handle naming its slot and the engine's callback context is the
// slot index.
package udp

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/ystepanoff/otplat/engine"
	"github.com/ystepanoff/otplat/internal/critical"
)

// DefaultBufferSize is the receive buffer used when none is given.
const DefaultBufferSize = 1024

var (
	ErrTableFull      = errors.New("udp: socket table full")
	ErrClosed         = errors.New("udp: socket closed")
	ErrInvalidAddress = errors.New("udp: invalid destination address")
	ErrTooLarge       = errors.New("udp: datagram too large")
)

// Engine is the part of the engine function table sockets use.
type Engine interface {
	UDPOpen(sock *engine.UDPSocket, handler engine.UDPHandler, context uint32) engine.Status
	UDPBind(sock *engine.UDPSocket, addr engine.SockAddr, netif engine.NetifID) engine.Status
	UDPClose(sock *engine.UDPSocket) engine.Status
	UDPNewMessage() engine.Message
	UDPSend(sock *engine.UDPSocket, msg engine.Message, info *engine.MessageInfo) engine.Status
}

type slotRef struct {
	index int
	gen   uint32
}

// Table owns a fixed number of socket slots.
type Table struct {
	eng   Engine
	slots []*slot

	mu      critical.Mutex // guards inUse, gen, free and orphans
	free    []int
	orphans []slotRef

	log zerolog.Logger
}

// NewTable allocates capacity slots.
func NewTable(eng Engine, capacity int, log zerolog.Logger) *Table {
	t := &Table{
		eng:   eng,
		slots: make([]*slot, capacity),
		free:  make([]int, 0, capacity),
		log:   log.With().Str("component", "udp").Logger(),
	}
	for i := range t.slots {
		t.slots[i] = &slot{}
		t.free = append(t.free, capacity-1-i)
	}
	return t
}

// Capacity returns the number of slots.
func (t *Table) Capacity() int { return len(t.slots) }

// InUse returns the number of allocated slots.
func (t *Table) InUse() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots) - len(t.free)
}

// NewSocket allocates a closed socket with a receive buffer of size
// bytes (DefaultBufferSize when size <= 0).
func (t *Table) NewSocket(size int) (*Socket, error) {
	if size <= 0 {
		size = DefaultBufferSize
	}

	var (
		ref slotRef
		err error
	)
	t.mu.With(func() {
		if len(t.free) == 0 {
			err = ErrTableFull
			return
		}
		idx := t.free[len(t.free)-1]
		t.free = t.free[:len(t.free)-1]
		sl := t.slots[idx]
		sl.gen++
		sl.inUse = true
		ref = slotRef{index: idx, gen: sl.gen}
	})
	if err != nil {
		return nil, err
	}

	sl := t.slots[ref.index]
	sl.reset(size)

	s := &Socket{t: t, ref: ref}
	s.cleanup = track(s, t, ref)
	return s, nil
}

// Reap closes slots whose Socket handles were garbage collected without
// Close. It runs from the cooperative loop and reports how many it freed.
func (t *Table) Reap() int {
	var refs []slotRef
	t.mu.With(func() {
		refs, t.orphans = t.orphans, nil
	})
	n := 0
	for _, ref := range refs {
		ok, err := t.release(ref)
		if err != nil {
			t.log.Warn().Err(err).Int("slot", ref.index).Msg("close failed")
		}
		if ok {
			t.log.Debug().Int("slot", ref.index).Msg("reaped unreferenced socket")
			n++
		}
	}
	return n
}

// HasOrphans reports whether Reap has work.
func (t *Table) HasOrphans() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.orphans) > 0
}

// CloseAll unregisters every open socket, for shutdown.
func (t *Table) CloseAll() {
	for i, sl := range t.slots {
		if sl.native.IsOpen() {
			if st := t.eng.UDPClose(&sl.native); st != engine.StatusNone {
				t.log.Warn().Int("slot", i).Stringer("status", st).Msg("close failed")
			}
			sl.native.Handle = nil
		}
	}
}

func (t *Table) orphan(ref slotRef) {
	t.mu.With(func() { t.orphans = append(t.orphans, ref) })
}

// lookup returns the slot for ref when the handle is still current.
func (t *Table) lookup(ref slotRef) (*slot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sl := t.slots[ref.index]
	if !sl.inUse || sl.gen != ref.gen {
		return nil, false
	}
	return sl, true
}

// release unregisters the slot from the engine and returns it to the
// free list. ok is false for a stale ref.
func (t *Table) release(ref slotRef) (ok bool, err error) {
	sl, ok := t.lookup(ref)
	if !ok {
		return false, nil
	}
	if sl.native.IsOpen() {
		err = engine.Check(t.eng.UDPClose(&sl.native))
		sl.native.Handle = nil
	}
	t.mu.With(func() {
		sl.inUse = false
		t.free = append(t.free, ref.index)
	})
	return true, err
}

// deliver is the engine receive handler for every socket in t.
func (t *Table) deliver(context uint32, msg engine.Message, info *engine.MessageInfo) {
	idx := int(context)
	if idx >= len(t.slots) {
		return
	}
	sl := t.slots[idx]
	if truncated := sl.store(msg, info); truncated {
		t.log.Debug().Int("slot", idx).Uint16("len", msg.Length()).Int("cap", len(sl.buf)).Msg("datagram truncated")
	}
}
