//go:build !tinygo && !baremetal

package critical

import "sync"

// Mutex is a critical section. The zero value is ready to use.
type Mutex struct {
	mu sync.Mutex
}

func (m *Mutex) Lock()   { m.mu.Lock() }
func (m *Mutex) Unlock() { m.mu.Unlock() }
