// File: internal/netutil/listen.go
// Package netutil builds the loopback listener used by the supervisor.
// License: Apache-2.0

package netutil

import (
	"context"
	"net"
)

// Listen binds a TCP listener on addr with SO_REUSEADDR where the platform
// supports it, so a restarted process can rebind while old sockets linger
// in TIME_WAIT.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	lc := net.ListenConfig{Control: reuseAddrControl}
	return lc.Listen(ctx, "tcp", addr)
}
