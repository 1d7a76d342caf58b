//go:build tinygo || baremetal

package critical

import "runtime/interrupt"

// Mutex is a critical section. Entering masks interrupts and leaving
// restores the previous mask, so sections on different Mutex values nest
// as long as they are left in reverse order.
type Mutex struct {
	state interrupt.State
}

func (m *Mutex) Lock() {
	m.state = interrupt.Disable()
}

func (m *Mutex) Unlock() {
	interrupt.Restore(m.state)
}
