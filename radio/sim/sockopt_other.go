//go:build !unix

package sim

import "syscall"

func reuseControl(network, address string, c syscall.RawConn) error { return nil }
