//go:build tinygo || baremetal

package udp

// Without cleanups, sockets must be closed explicitly.
type tracker struct{}

func (tracker) Stop() {}

func track(*Socket, *Table, slotRef) tracker { return tracker{} }
