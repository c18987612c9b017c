// File: server/supervisor.go
// License: Apache-2.0
//
// Supervisor owns the single active WebSocket connection of the native
// process. A single actor goroutine owns the active connection, its
// generation number and timers; socket readers and timers post
// generation-tagged events into its mailbox and anything tagged with a
// superseded generation is dropped.

package server

import (
	"context"
	"errors"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/beatbridge/api"
	"github.com/momentics/beatbridge/control"
	"github.com/momentics/beatbridge/internal/concurrency"
	"github.com/momentics/beatbridge/internal/events"
	"github.com/momentics/beatbridge/internal/netutil"
	"github.com/momentics/beatbridge/message"
	"github.com/momentics/beatbridge/protocol"
	"github.com/momentics/beatbridge/router"
)

var (
	errReplaced = errors.New("replaced by a newer connection")
	errStopped  = errors.New("supervisor stopped")
)

// Supervisor is the server-role connection supervisor.
type Supervisor struct {
	cfg     Config
	logger  *log.Logger
	router  *router.Router
	metrics *control.MetricsRegistry
	sched   api.Scheduler

	mailbox  chan event
	stopped  chan struct{}
	quit     chan struct{}
	finished chan struct{}
	ready    chan struct{}

	running   atomic.Bool
	closeOnce sync.Once
	readyOnce sync.Once

	states  *events.Bus[api.ConnectionState]
	stateMu sync.RWMutex
	state   api.ConnectionState

	current atomic.Pointer[protocol.Conn]

	listenerMu sync.Mutex
	listener   net.Listener

	pendingMu  sync.Mutex
	pending    map[net.Conn]struct{}
	handshakes sync.WaitGroup
	readers    sync.WaitGroup

	// Owned by the actor goroutine.
	active    *protocol.Conn
	gen       uint64
	heartbeat api.Cancelable
	liveness  api.Cancelable
}

// New builds a Supervisor. A nil cfg selects DefaultConfig.
func New(cfg *Config, opts ...Option) (*Supervisor, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mailbox := cfg.MailboxSize
	if mailbox <= 0 {
		mailbox = 64
	}
	s := &Supervisor{
		cfg:      *cfg,
		logger:   log.Default(),
		mailbox:  make(chan event, mailbox),
		stopped:  make(chan struct{}),
		quit:     make(chan struct{}),
		finished: make(chan struct{}),
		ready:    make(chan struct{}),
		states:   events.NewBus[api.ConnectionState](0),
		state:    api.ConnectionState{Phase: api.PhaseInitializing},
		pending:  make(map[net.Conn]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.sched == nil {
		s.sched = concurrency.NewScheduler()
	}
	if s.router == nil {
		s.router = router.New(router.WithLogger(s.logger), router.WithMetrics(s.metrics), router.WithPingLiveness(true))
	}
	return s, nil
}

// Serve binds the listener and supervises connections until ctx is done or
// Close is called. Listener failures are retried with linear backoff.
func (s *Supervisor) Serve(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return api.ErrAlreadyRunning
	}
	defer close(s.finished)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	go s.run(ctx)

	attempt := 0
	for ctx.Err() == nil {
		ln, err := netutil.Listen(ctx, s.cfg.Addr)
		if err == nil {
			attempt = 0
			s.setListener(ln)
			s.logger.Printf("[supervisor] listening on %s", ln.Addr())
			s.post(listenerEvent{bound: true})
			err = s.acceptLoop(ctx, ln)
			_ = ln.Close()
			if ctx.Err() != nil {
				break
			}
		}
		attempt++
		delay := s.cfg.ListenerBackoff.Delay(attempt)
		s.metrics.Inc(control.MetricListenerRebinds)
		s.logger.Printf("[supervisor] listener failure (attempt %d): %v; retrying in %s", attempt, err, delay)
		s.post(listenerEvent{
			err:     api.WrapError(api.ErrCodeTransport, "listener", err),
			attempt: attempt,
			retryAt: s.sched.Now().Add(delay),
		})
		if !s.sleep(ctx, delay) {
			break
		}
	}

	s.closePending()
	<-s.stopped
	s.handshakes.Wait()
	s.readers.Wait()
	s.logger.Printf("[supervisor] stopped")
	return nil
}

func (s *Supervisor) acceptLoop(ctx context.Context, ln net.Listener) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = ln.Close()
		case <-stop:
		}
	}()
	for {
		nc, err := ln.Accept()
		if err != nil {
			return err
		}
		s.handshakes.Add(1)
		go s.handshake(nc)
	}
}

func (s *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
	t := s.sched.Schedule(d, func() {})
	select {
	case <-t.Done():
		return ctx.Err() == nil
	case <-ctx.Done():
		t.Cancel()
		return false
	}
}

// run is the actor loop.
func (s *Supervisor) run(ctx context.Context) {
	defer close(s.stopped)
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case ev := <-s.mailbox:
			s.handle(ev)
		}
	}
}

func (s *Supervisor) shutdown() {
	s.closeActive(errStopped)
	s.updateState(func(st *api.ConnectionState) {
		st.IsConnected = false
		st.ConnectionID = ""
		st.Reconnecting = false
		st.NextReconnectTime = nil
		st.Phase = api.PhaseError
		st.LastError = errStopped.Error()
	})
	for {
		select {
		case ev := <-s.mailbox:
			s.discard(ev)
		default:
			return
		}
	}
}

func (s *Supervisor) discard(ev event) {
	switch e := ev.(type) {
	case upgradeEvent:
		e.result <- false
	case sendEvent:
		e.reply <- api.ErrNotConnected
	}
}

func (s *Supervisor) handle(ev event) {
	switch e := ev.(type) {
	case upgradeEvent:
		s.accept(e)
	case inboundEvent:
		if !s.isLive(e.gen) {
			return
		}
		s.metrics.Inc(control.MetricFramesIn)
		_ = s.router.Route(connPeer{s: s, conn: s.active}, e.payload)
	case frameErrorEvent:
		if !s.isLive(e.gen) {
			return
		}
		s.metrics.Inc(control.MetricFrameErrors)
		s.logger.Printf("[supervisor] dropping malformed frame on %s: %v", s.active, e.err)
	case readClosedEvent:
		if !s.isLive(e.gen) {
			return
		}
		s.fail(e.err)
	case heartbeatEvent:
		if !s.isLive(e.gen) {
			return
		}
		if err := s.write(s.active, message.NewPing(s.sched.Now())); err != nil {
			s.fail(err)
		}
	case livenessEvent:
		if !s.isLive(e.gen) {
			return
		}
		silence := s.sched.Now().Sub(s.active.LastPongAt())
		if silence > s.cfg.LivenessTimeout {
			s.metrics.Inc(control.MetricLivenessTimeouts)
			s.fail(api.NewError(api.ErrCodeLivenessTimeout, "no PONG received").
				WithContext("silence", silence.Round(time.Millisecond).String()))
		}
	case sendEvent:
		e.reply <- s.send(e.msg)
	case listenerEvent:
		s.applyListener(e)
	}
}

// isLive reports whether gen names the live connection.
func (s *Supervisor) isLive(gen uint64) bool {
	return s.active != nil && gen == s.gen
}

func (s *Supervisor) accept(e upgradeEvent) {
	if s.active != nil {
		s.metrics.Inc(control.MetricReplaced)
		s.logger.Printf("[supervisor] replacing %s with new connection from %s", s.active, e.nc.RemoteAddr())
		s.closeActive(errReplaced)
	}
	s.gen++
	gen := s.gen

	conn := protocol.NewConn(e.nc, protocol.RoleServer,
		protocol.WithBuffered(e.leftover),
		protocol.WithWriteTimeout(s.cfg.WriteTimeout))
	if err := conn.WriteRaw(e.response); err != nil {
		_ = conn.Close()
		e.result <- false
		s.metrics.Inc(control.MetricHandshakeFailures)
		s.logger.Printf("[supervisor] sending upgrade response: %v", err)
		s.updateState(func(st *api.ConnectionState) {
			st.IsConnected = false
			st.ConnectionID = ""
			st.Phase = api.PhaseListening
			st.LastError = err.Error()
		})
		return
	}
	e.result <- true

	now := s.sched.Now()
	conn.SetStatus(api.StatusOpen)
	conn.MarkPong(now)
	s.active = conn
	s.current.Store(conn)
	s.metrics.Inc(control.MetricHandshakes)
	s.metrics.Set(control.MetricActiveConnection, conn.ID())

	s.readers.Add(1)
	go func() {
		defer s.readers.Done()
		err := conn.ReadLoop(readHandler{s: s, gen: gen})
		s.post(readClosedEvent{gen: gen, err: err})
	}()
	s.heartbeat = s.sched.Every(s.cfg.HeartbeatInterval, func() { s.post(heartbeatEvent{gen: gen}) })
	s.liveness = s.sched.Every(s.cfg.LivenessCheckInterval, func() { s.post(livenessEvent{gen: gen}) })

	s.logger.Printf("[supervisor] %s open", conn)
	s.router.OnOpen(api.OpenEvent{ConnectionID: conn.ID(), RemoteAddr: conn.RemoteAddr(), At: now})
	s.updateState(func(st *api.ConnectionState) {
		st.IsConnected = true
		st.ConnectionID = conn.ID()
		st.Phase = api.PhaseConnected
		st.LastError = ""
		st.Reconnecting = false
		st.NextReconnectTime = nil
		st.AttemptCount = 0
	})
}

// closeActive tears down the active connection and its timers.
func (s *Supervisor) closeActive(reason error) {
	if s.active == nil {
		return
	}
	concurrency.CancelAll(s.heartbeat, s.liveness)
	s.heartbeat, s.liveness = nil, nil

	conn := s.active
	s.active = nil
	s.current.Store(nil)
	conn.SetStatus(api.StatusClosing)
	if errors.Is(reason, errReplaced) || errors.Is(reason, errStopped) {
		_ = conn.SendClose(protocol.CloseGoingAway, reason.Error())
	}
	_ = conn.Close()
	s.metrics.Set(control.MetricActiveConnection, "")
	s.router.OnClose(api.CloseEvent{ConnectionID: conn.ID(), Err: reason, At: s.sched.Now()})
}

// fail routes a per-connection failure into the disconnection path. The
// listener keeps serving; the extension is expected to reconnect.
func (s *Supervisor) fail(err error) {
	if s.active == nil {
		return
	}
	s.logger.Printf("[supervisor] %s failed (%s): %v", s.active, api.CodeOf(err), err)
	s.closeActive(err)
	s.updateState(func(st *api.ConnectionState) {
		st.IsConnected = false
		st.ConnectionID = ""
		st.Phase = api.PhaseListening
		if err != nil && !errors.Is(err, protocol.ErrClosedByPeer) {
			st.LastError = err.Error()
		}
	})
}

func (s *Supervisor) send(m message.Message) error {
	if s.active == nil {
		if _, ok := m.(*message.Command); ok {
			s.metrics.Inc(control.MetricCommandsDropped)
		}
		return api.ErrNotConnected
	}
	if err := message.Validate(m); err != nil {
		return err
	}
	if err := s.write(s.active, m); err != nil {
		s.fail(err)
		return err
	}
	if cmd, ok := m.(*message.Command); ok {
		s.metrics.Inc(control.MetricCommandsSent)
		if cmd.Command == message.CommandSeek && cmd.Data != nil && cmd.Data.Position != nil {
			s.router.ApplySeek(*cmd.Data.Position)
		}
	}
	return nil
}

func (s *Supervisor) write(conn *protocol.Conn, m message.Message) error {
	data, err := message.Encode(m)
	if err != nil {
		return err
	}
	if err := conn.WriteText(data); err != nil {
		return err
	}
	s.metrics.Inc(control.MetricFramesOut)
	return nil
}

func (s *Supervisor) applyListener(e listenerEvent) {
	if e.bound {
		s.readyOnce.Do(func() { close(s.ready) })
		s.updateState(func(st *api.ConnectionState) {
			st.Reconnecting = false
			st.NextReconnectTime = nil
			st.AttemptCount = 0
			if s.active == nil {
				st.Phase = api.PhaseListening
				st.LastError = ""
			}
		})
		return
	}
	retryAt := e.retryAt
	s.updateState(func(st *api.ConnectionState) {
		st.Phase = api.PhaseError
		st.LastError = e.err.Error()
		st.Reconnecting = true
		st.AttemptCount = e.attempt
		st.NextReconnectTime = &retryAt
	})
}

// post delivers ev to the actor; false once the actor has stopped.
func (s *Supervisor) post(ev event) bool {
	select {
	case <-s.stopped:
		return false
	default:
	}
	select {
	case s.mailbox <- ev:
		return true
	case <-s.stopped:
		return false
	}
}

func (s *Supervisor) updateState(fn func(*api.ConnectionState)) {
	s.stateMu.Lock()
	fn(&s.state)
	snap := s.state.Clone()
	s.stateMu.Unlock()
	s.states.Publish(snap)
}

// Send writes m to the active connection. Messages sent while disconnected
// are dropped with api.ErrNotConnected.
func (s *Supervisor) Send(m message.Message) error {
	if !s.running.Load() {
		return api.ErrNotConnected
	}
	reply := make(chan error, 1)
	if !s.post(sendEvent{msg: m, reply: reply}) {
		return api.ErrNotConnected
	}
	select {
	case err := <-reply:
		return err
	case <-s.stopped:
		return api.ErrNotConnected
	}
}

// SendCommand forwards a playback command to the extension.
func (s *Supervisor) SendCommand(cmd *message.Command) error {
	return s.Send(cmd)
}

// State returns the current connection state.
func (s *Supervisor) State() api.ConnectionState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state.Clone()
}

// Subscribe streams every state transition.
func (s *Supervisor) Subscribe() (<-chan api.ConnectionState, func()) {
	return s.states.Subscribe()
}

// Snapshot returns the now-playing state.
func (s *Supervisor) Snapshot() router.Snapshot {
	return s.router.Snapshot()
}

// Router exposes the message router.
func (s *Supervisor) Router() *router.Router {
	return s.router
}

// Ready is closed once the listener is bound for the first time.
func (s *Supervisor) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound listener address, or nil before binding.
func (s *Supervisor) Addr() net.Addr {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Supervisor) setListener(ln net.Listener) {
	s.listenerMu.Lock()
	s.listener = ln
	s.listenerMu.Unlock()
}

// RegisterProbes publishes supervisor state on dp.
func (s *Supervisor) RegisterProbes(dp *control.DebugProbes) {
	dp.RegisterProbe("supervisor.state", func() any { return s.State() })
	dp.RegisterProbe("supervisor.connection", func() any {
		c := s.current.Load()
		if c == nil {
			return nil
		}
		return map[string]any{
			"id":         c.ID(),
			"remote":     c.RemoteAddr(),
			"status":     c.Status().String(),
			"lastPongAt": c.LastPongAt(),
			"stats":      c.Stats(),
		}
	})
}

// Close stops Serve and waits for it to return.
func (s *Supervisor) Close() error {
	s.closeOnce.Do(func() { close(s.quit) })
	if s.running.Load() {
		<-s.finished
	}
	s.states.Close()
	return nil
}
