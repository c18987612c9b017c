package netutil

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListen_RebindAfterClose(t *testing.T) {
	ln, err := Listen(context.Background(), "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()
	client, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	server := <-accepted

	// Close the server side first so its socket lingers in TIME_WAIT.
	require.NoError(t, server.Close())
	require.NoError(t, client.Close())
	require.NoError(t, ln.Close())

	again, err := Listen(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, addr, again.Addr().String())
	require.NoError(t, again.Close())
}
