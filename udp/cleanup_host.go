//go:build !tinygo && !baremetal

package udp

import "runtime"

type tracker = runtime.Cleanup

func track(s *Socket, t *Table, ref slotRef) tracker {
	return runtime.AddCleanup(s, t.orphan, ref)
}
