// Package settings implements the engine's non-volatile key/value store.
// Each key holds an ordered list of values; most keys hold one.
package settings

import (
	"bytes"
	"errors"
	"maps"
	"slices"
	"sync"
)

// DeleteAll passed as index to Delete removes every value of a key.
const DeleteAll = -1

var (
	ErrNotFound = errors.New("settings: not found")
)

// Store is the settings backend used by the platform.
type Store interface {
	// Get returns the index-th value of key.
	Get(key uint16, index int) ([]byte, error)
	// Set replaces all values of key with value.
	Set(key uint16, value []byte) error
	// Add appends value to key.
	Add(key uint16, value []byte) error
	// Delete removes the index-th value of key, or all with DeleteAll.
	Delete(key uint16, index int) error
	// Wipe removes everything.
	Wipe() error
}

// Memory is a volatile Store.
type Memory struct {
	mu      sync.Mutex
	entries map[uint16][][]byte
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{entries: make(map[uint16][][]byte)}
}

func (m *Memory) Get(key uint16, index int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vals := m.entries[key]
	if index < 0 || index >= len(vals) {
		return nil, ErrNotFound
	}
	return bytes.Clone(vals[index]), nil
}

func (m *Memory) Set(key uint16, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = [][]byte{bytes.Clone(value)}
	return nil
}

func (m *Memory) Add(key uint16, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = append(m.entries[key], bytes.Clone(value))
	return nil
}

func (m *Memory) Delete(key uint16, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	vals, ok := m.entries[key]
	if !ok {
		return ErrNotFound
	}
	if index == DeleteAll {
		delete(m.entries, key)
		return nil
	}
	if index < 0 || index >= len(vals) {
		return ErrNotFound
	}
	vals = slices.Delete(vals, index, index+1)
	if len(vals) == 0 {
		delete(m.entries, key)
	} else {
		m.entries[key] = vals
	}
	return nil
}

func (m *Memory) Wipe() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.entries)
	return nil
}

// Keys returns the stored keys in ascending order.
func (m *Memory) Keys() []uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Sorted(maps.Keys(m.entries))
}

func (m *Memory) snapshot() map[uint16][][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uint16][][]byte, len(m.entries))
	for k, vals := range m.entries {
		cp := make([][]byte, len(vals))
		for i, v := range vals {
			cp[i] = bytes.Clone(v)
		}
		out[k] = cp
	}
	return out
}

func (m *Memory) restore(entries map[uint16][][]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = entries
	if m.entries == nil {
		m.entries = make(map[uint16][][]byte)
	}
}
