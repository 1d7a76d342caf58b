// Package critical provides the critical sections that guard state shared
// between interrupt and cooperative contexts.
//
// On a single-core device a section masks interrupts; on the host it is a
// mutex. Sections do not nest on the same Mutex: code running inside a
// section must not try to enter it again.
package critical

// With runs f inside m's critical section.
func (m *Mutex) With(f func()) {
	m.Lock()
	defer m.Unlock()
	f()
}
