//go:build !unix

// File: internal/netutil/reuse_other.go
// License: Apache-2.0

package netutil

import "syscall"

func reuseAddrControl(_, _ string, _ syscall.RawConn) error {
	return nil
}
