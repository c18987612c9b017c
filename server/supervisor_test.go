package server

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/beatbridge/api"
	"github.com/momentics/beatbridge/control"
	"github.com/momentics/beatbridge/message"
	"github.com/momentics/beatbridge/protocol"
)

var quiet = log.New(io.Discard, "", 0)

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.HeartbeatInterval = time.Hour
	cfg.LivenessTimeout = 2 * time.Hour
	cfg.HandshakeTimeout = time.Second
	return cfg
}

func startSupervisor(t *testing.T, cfg *Config, opts ...Option) *Supervisor {
	t.Helper()
	s, err := New(cfg, append([]Option{WithLogger(quiet)}, opts...)...)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Serve(context.Background()) }()
	select {
	case <-s.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not bind")
	}
	t.Cleanup(func() {
		require.NoError(t, s.Close())
		require.NoError(t, <-done)
	})
	return s
}

func dial(t *testing.T, s *Supervisor) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial("ws://"+s.Addr().String()+"/", nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func readMessage(t *testing.T, c *websocket.Conn) message.Message {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, data, err := c.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, kind)
	msg, err := message.Decode(data)
	require.NoError(t, err, string(data))
	return msg
}

func waitConnected(t *testing.T, s *Supervisor, want bool) api.ConnectionState {
	t.Helper()
	require.Eventually(t, func() bool { return s.State().IsConnected == want }, 2*time.Second, 5*time.Millisecond)
	return s.State()
}

func TestSupervisor_InteropWithGorilla(t *testing.T) {
	s := startSupervisor(t, testConfig())
	c := dial(t, s)
	st := waitConnected(t, s, true)
	assert.Equal(t, api.PhaseConnected, st.Phase)
	assert.NotEmpty(t, st.ConnectionID)

	require.NoError(t, s.SendCommand(message.NewCommand(message.CommandPause)))
	got := readMessage(t, c)
	assert.Equal(t, message.NewCommand(message.CommandPause), got)
}

func TestSupervisor_RepliesToPing(t *testing.T) {
	s := startSupervisor(t, testConfig())
	c := dial(t, s)

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{"type":"PING","timestamp":42}`)))
	assert.Equal(t, &message.Pong{Timestamp: 42}, readMessage(t, c))
}

func TestSupervisor_TrackInfoAndOptimisticSeek(t *testing.T) {
	s := startSupervisor(t, testConfig())
	c := dial(t, s)

	track := `{"type":"TRACK_INFO","data":{"id":"v1","title":"Song","artist":"Band","isPlaying":true,"currentTime":3,"duration":200,"isLiked":false}}`
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(track)))
	require.Eventually(t, func() bool { return s.Snapshot().Track != nil }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "v1", s.Snapshot().Track.ID)
	assert.True(t, s.Snapshot().Connected)

	require.NoError(t, s.SendCommand(message.NewSeek(50)))
	assert.Equal(t, 50.0, s.Snapshot().Track.CurrentTime)
	readMessage(t, c)
}

func TestSupervisor_RejectsInvalidOutboundCommand(t *testing.T) {
	s := startSupervisor(t, testConfig())
	dial(t, s)
	waitConnected(t, s, true)

	err := s.SendCommand(&message.Command{Command: message.CommandSeek})
	assert.True(t, api.IsCode(err, api.ErrCodeProtocol))
	assert.True(t, s.State().IsConnected)
}

func TestSupervisor_SendWhileDisconnected(t *testing.T) {
	metrics := control.NewMetricsRegistry()
	s, err := New(testConfig(), WithLogger(quiet), WithMetrics(metrics))
	require.NoError(t, err)
	assert.ErrorIs(t, s.SendCommand(message.NewCommand(message.CommandNext)), api.ErrNotConnected)

	s = startSupervisor(t, testConfig(), WithMetrics(metrics))
	assert.ErrorIs(t, s.SendCommand(message.NewCommand(message.CommandNext)), api.ErrNotConnected)
	assert.Equal(t, int64(1), metrics.Counter(control.MetricCommandsDropped))
	assert.Equal(t, api.PhaseListening, s.State().Phase)
}

func TestSupervisor_NewConnectionReplacesActive(t *testing.T) {
	metrics := control.NewMetricsRegistry()
	s := startSupervisor(t, testConfig(), WithMetrics(metrics))

	first := dial(t, s)
	firstID := waitConnected(t, s, true).ConnectionID
	second := dial(t, s)

	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := first.ReadMessage()
	require.Error(t, err)
	var netErr net.Error
	if errors.As(err, &netErr) {
		assert.False(t, netErr.Timeout(), "first connection should be closed, not idle")
	}
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	st := s.State()
	assert.True(t, st.IsConnected)
	assert.NotEqual(t, firstID, st.ConnectionID)
	assert.Equal(t, int64(1), metrics.Counter(control.MetricReplaced))

	require.NoError(t, s.SendCommand(message.NewCommand(message.CommandNext)))
	assert.Equal(t, message.NewCommand(message.CommandNext), readMessage(t, second))
}

func TestSupervisor_SimultaneousConnectionsLeaveExactlyOneOpen(t *testing.T) {
	s := startSupervisor(t, testConfig())

	conns := make([]*websocket.Conn, 2)
	var wg sync.WaitGroup
	for i := range conns {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, _, err := websocket.DefaultDialer.Dial("ws://"+s.Addr().String()+"/", nil)
			if err == nil {
				conns[i] = c
			}
		}(i)
	}
	wg.Wait()
	for _, c := range conns {
		require.NotNil(t, c)
		defer c.Close()
	}

	require.NoError(t, s.SendCommand(message.NewCommand(message.CommandPlay)))

	open := 0
	for _, c := range conns {
		require.NoError(t, c.SetReadDeadline(time.Now().Add(time.Second)))
		if _, _, err := c.ReadMessage(); err == nil {
			open++
		}
	}
	assert.Equal(t, 1, open)
	assert.True(t, s.State().IsConnected)
}

func TestSupervisor_HealthProbeDoesNotDisplaceActive(t *testing.T) {
	metrics := control.NewMetricsRegistry()
	s := startSupervisor(t, testConfig(), WithMetrics(metrics))
	c := dial(t, s)
	id := waitConnected(t, s, true).ConnectionID

	probe, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer probe.Close()
	_, err = probe.Write([]byte("GET /health HTTP/1.1\r\nHost: localhost\r\n\r\n"))
	require.NoError(t, err)
	require.NoError(t, probe.SetReadDeadline(time.Now().Add(2*time.Second)))
	resp, err := io.ReadAll(probe)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(resp), "HTTP/1.1 200 OK"))
	assert.Contains(t, string(resp), `{"status":"ok"}`)

	assert.Equal(t, id, s.State().ConnectionID)
	assert.Equal(t, int64(1), metrics.Counter(control.MetricHealthProbes))
	require.NoError(t, s.SendCommand(message.NewCommand(message.CommandToggleLike)))
	readMessage(t, c)
}

func TestSupervisor_RejectsUpgradeWithoutKey(t *testing.T) {
	metrics := control.NewMetricsRegistry()
	s := startSupervisor(t, testConfig(), WithMetrics(metrics))

	nc, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer nc.Close()
	_, err = nc.Write([]byte("GET / HTTP/1.1\r\nHost: localhost\r\nUpgrade: websocket\r\n\r\n"))
	require.NoError(t, err)
	require.NoError(t, nc.SetReadDeadline(time.Now().Add(2*time.Second)))
	resp, err := io.ReadAll(nc)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(resp), "HTTP/1.1 400"))
	assert.False(t, s.State().IsConnected)
	assert.Equal(t, int64(1), metrics.Counter(control.MetricHandshakeFailures))
}

func TestSupervisor_HandshakeTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.HandshakeTimeout = 50 * time.Millisecond
	s := startSupervisor(t, cfg)

	nc, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer nc.Close()
	_, err = nc.Write([]byte("GET / HTTP/1.1\r\n"))
	require.NoError(t, err)

	require.NoError(t, nc.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = io.ReadAll(nc)
	require.NoError(t, err)
	assert.False(t, s.State().IsConnected)
}

func TestSupervisor_RejectsTruncatedRequestHead(t *testing.T) {
	metrics := control.NewMetricsRegistry()
	s := startSupervisor(t, testConfig(), WithMetrics(metrics))

	nc, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer nc.Close()
	_, err = nc.Write([]byte("GET / HTTP/1.1\r\nHost: 127.0.0.1\r\n"))
	require.NoError(t, err)
	require.NoError(t, nc.(*net.TCPConn).CloseWrite())

	require.NoError(t, nc.SetReadDeadline(time.Now().Add(2*time.Second)))
	resp, err := io.ReadAll(nc)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(resp), "HTTP/1.1 400"), string(resp))
	assert.Contains(t, string(resp), api.ErrIncompleteRequest.Error())
	assert.Equal(t, int64(1), metrics.Counter(control.MetricHandshakeFailures))
}

func TestReadRequestHead_EOFIsIncomplete(t *testing.T) {
	local, remote := net.Pipe()
	go func() {
		_, _ = remote.Write([]byte("GET / HTTP/1.1\r\n"))
		_ = remote.Close()
	}()
	_, _, err := readRequestHead(local)
	assert.ErrorIs(t, err, api.ErrIncompleteRequest)
}

func TestConnPeer_FailedPongReplyDisconnects(t *testing.T) {
	s, err := New(testConfig(), WithLogger(quiet))
	require.NoError(t, err)

	local, remote := net.Pipe()
	require.NoError(t, remote.Close())
	conn := protocol.NewConn(local, protocol.RoleServer)
	s.active = conn

	require.NoError(t, s.router.Route(connPeer{s: s, conn: conn}, []byte(`{"type":"PING","timestamp":7}`)))

	assert.Nil(t, s.active)
	assert.Equal(t, api.StatusClosed, conn.Status())
	st := s.State()
	assert.False(t, st.IsConnected)
	assert.Equal(t, api.PhaseListening, st.Phase)
	assert.Contains(t, st.LastError, "write to connection")
}

func TestSupervisor_HeartbeatKeepsResponsivePeerAlive(t *testing.T) {
	cfg := testConfig()
	cfg.HeartbeatInterval = 30 * time.Millisecond
	cfg.LivenessTimeout = 150 * time.Millisecond
	cfg.LivenessCheckInterval = 10 * time.Millisecond
	s := startSupervisor(t, cfg)
	c := dial(t, s)
	id := waitConnected(t, s, true).ConnectionID

	pings := 0
	deadline := time.Now().Add(400 * time.Millisecond)
	for time.Now().Before(deadline) {
		msg := readMessage(t, c)
		ping, ok := msg.(*message.Ping)
		require.True(t, ok)
		pings++
		pong, err := message.Encode(message.NewPong(ping))
		require.NoError(t, err)
		require.NoError(t, c.WriteMessage(websocket.TextMessage, pong))
	}
	assert.GreaterOrEqual(t, pings, 3)
	st := s.State()
	assert.True(t, st.IsConnected)
	assert.Equal(t, id, st.ConnectionID)
}

func TestSupervisor_LivenessTimeoutForcesDisconnect(t *testing.T) {
	cfg := testConfig()
	cfg.HeartbeatInterval = 30 * time.Millisecond
	cfg.LivenessTimeout = 100 * time.Millisecond
	cfg.LivenessCheckInterval = 10 * time.Millisecond
	metrics := control.NewMetricsRegistry()
	s := startSupervisor(t, cfg, WithMetrics(metrics))

	dial(t, s)
	waitConnected(t, s, true)
	st := waitConnected(t, s, false)

	assert.Equal(t, api.PhaseListening, st.Phase)
	assert.Contains(t, st.LastError, "no PONG")
	assert.Equal(t, int64(1), metrics.Counter(control.MetricLivenessTimeouts))
	assert.False(t, s.Snapshot().Connected)
}

func TestSupervisor_ServeTwice(t *testing.T) {
	s := startSupervisor(t, testConfig())
	assert.ErrorIs(t, s.Serve(context.Background()), api.ErrAlreadyRunning)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.LivenessTimeout = cfg.HeartbeatInterval
	assert.Error(t, cfg.Validate())

	_, err := New(&Config{})
	assert.Error(t, err)
}
