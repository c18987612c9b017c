// File: client/connector.go
// License: Apache-2.0
//
// Connector is the extension-side half of the bridge. One actor goroutine
// owns the socket, the attempt counter and every timer; the dialer, the
// socket reader and the timers post generation-tagged events into its
// mailbox, and events from a superseded generation are dropped.

package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/beatbridge/api"
	"github.com/momentics/beatbridge/control"
	"github.com/momentics/beatbridge/internal/concurrency"
	"github.com/momentics/beatbridge/internal/events"
	"github.com/momentics/beatbridge/message"
	"github.com/momentics/beatbridge/protocol"
	"github.com/momentics/beatbridge/router"
)

// MaxAttemptsMessage is surfaced once the reconnect budget is spent.
const MaxAttemptsMessage = "Max reconnection attempts reached. Please restart the native app."

var errStopped = errors.New("connector closed")

// Connector is the client-role connection manager.
type Connector struct {
	cfg      Config
	endpoint *url.URL
	logger   *log.Logger
	router   *router.Router
	metrics  *control.MetricsRegistry
	sched    api.Scheduler
	http     *http.Client
	diag     *diagnosticLog

	ctx     context.Context
	cancel  context.CancelFunc
	mailbox chan event
	quit    chan struct{}
	stopped chan struct{}

	closeOnce sync.Once
	dials     sync.WaitGroup
	readers   sync.WaitGroup

	states  *events.Bus[api.ConnectionState]
	stateMu sync.RWMutex
	state   api.ConnectionState

	current atomic.Pointer[protocol.Conn]

	// Owned by the actor goroutine.
	active     *protocol.Conn
	gen        uint64
	dialing    bool
	dialCancel context.CancelFunc
	attempts   int
	terminal   bool
	connectTmr api.Cancelable
	reconnect  api.Cancelable
	heartbeat  api.Cancelable
	liveness   api.Cancelable
	portCheck  api.Cancelable
}

// New builds a Connector and starts its actor. No connection is attempted
// until Connect is called. A nil cfg selects DefaultConfig.
func New(cfg *Config, opts ...Option) (*Connector, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	endpoint, _ := url.Parse(cfg.URL)
	mailbox := cfg.MailboxSize
	if mailbox <= 0 {
		mailbox = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connector{
		cfg:      *cfg,
		endpoint: endpoint,
		logger:   log.Default(),
		http:     &http.Client{Timeout: cfg.HealthTimeout},
		diag:     newDiagnosticLog(cfg.DiagnosticsSize),
		ctx:      ctx,
		cancel:   cancel,
		mailbox:  make(chan event, mailbox),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
		states:   events.NewBus[api.ConnectionState](0),
		state:    api.ConnectionState{Phase: api.PhaseInitializing},
	}
	for _, o := range opts {
		o(c)
	}
	if c.sched == nil {
		c.sched = concurrency.NewScheduler()
	}
	if c.router == nil {
		c.router = router.New(router.WithLogger(c.logger), router.WithMetrics(c.metrics))
	}
	go c.run()
	return c, nil
}

// Connect starts a connection attempt. It is a no-op while connecting or
// open. Called after the reconnect budget is spent it starts over with a
// fresh attempt counter.
func (c *Connector) Connect() {
	c.post(connectEvent{manual: true})
}

func (c *Connector) run() {
	defer close(c.stopped)
	for {
		select {
		case <-c.quit:
			c.shutdown()
			return
		case ev := <-c.mailbox:
			c.handle(ev)
		}
	}
}

func (c *Connector) shutdown() {
	c.teardown(errStopped)
	concurrency.CancelAll(c.portCheck)
	c.portCheck = nil
	c.cancel()
	c.updateState(func(st *api.ConnectionState) {
		st.IsConnected = false
		st.ConnectionID = ""
		st.Reconnecting = false
		st.NextReconnectTime = nil
		st.Phase = api.PhaseError
		st.LastError = errStopped.Error()
	})
	for {
		select {
		case ev := <-c.mailbox:
			c.discard(ev)
		default:
			return
		}
	}
}

func (c *Connector) discard(ev event) {
	switch e := ev.(type) {
	case dialResult:
		if e.conn != nil {
			_ = e.conn.Close()
		}
	case sendEvent:
		e.reply <- api.ErrNotConnected
	}
}

func (c *Connector) handle(ev event) {
	switch e := ev.(type) {
	case connectEvent:
		if c.dialing || c.active != nil {
			return
		}
		if e.manual {
			concurrency.CancelAll(c.reconnect, c.portCheck)
			c.reconnect, c.portCheck = nil, nil
			if c.terminal {
				c.terminal = false
				c.attempts = 0
			}
		}
		c.attempt()
	case dialResult:
		if e.gen != c.gen || !c.dialing {
			if e.conn != nil {
				_ = e.conn.Close()
			}
			return
		}
		c.endDial()
		if e.err != nil {
			c.fail(e.err)
			return
		}
		c.open(e.conn)
	case connectTimeoutEvent:
		if e.gen != c.gen || !c.dialing {
			return
		}
		c.endDial()
		c.fail(api.NewError(api.ErrCodeTransport, "connect timeout").
			WithContext("timeout", c.cfg.ConnectTimeout.String()))
	case reconnectEvent:
		if e.gen != c.gen || c.dialing || c.active != nil || c.terminal {
			return
		}
		c.reconnect = nil
		c.metrics.Inc(control.MetricReconnects)
		c.attempt()
	case inboundEvent:
		if !c.isLive(e.gen) {
			return
		}
		c.metrics.Inc(control.MetricFramesIn)
		_ = c.router.Route(connPeer{c: c, conn: c.active}, e.payload)
	case frameErrorEvent:
		if !c.isLive(e.gen) {
			return
		}
		c.metrics.Inc(control.MetricFrameErrors)
		c.logger.Printf("[connector] dropping malformed frame on %s: %v", c.active, e.err)
	case readClosedEvent:
		if !c.isLive(e.gen) {
			return
		}
		c.fail(e.err)
	case heartbeatEvent:
		if !c.isLive(e.gen) {
			return
		}
		if err := c.write(c.active, message.NewPing(c.sched.Now())); err != nil {
			c.fail(err)
		}
	case livenessEvent:
		if !c.isLive(e.gen) {
			return
		}
		silence := c.sched.Now().Sub(c.active.LastPongAt())
		if silence > c.cfg.LivenessTimeout {
			c.metrics.Inc(control.MetricLivenessTimeouts)
			c.fail(api.NewError(api.ErrCodeLivenessTimeout, "connection timeout, no PONG received").
				WithContext("silence", silence.Round(time.Millisecond).String()))
		}
	case portCheckEvent:
		if !c.terminal || !e.available || c.dialing || c.active != nil {
			return
		}
		concurrency.CancelAll(c.portCheck)
		c.portCheck = nil
		c.terminal = false
		c.attempts = 0
		c.record("app_detected", nil)
		c.attempt()
	case sendEvent:
		e.reply <- c.send(e.msg)
	}
}

func (c *Connector) isLive(gen uint64) bool {
	return c.active != nil && gen == c.gen
}

// attempt tears down any prior socket and starts dialing.
func (c *Connector) attempt() {
	c.teardown(nil)
	c.gen++
	gen := c.gen
	c.dialing = true

	ctx, cancel := context.WithCancel(c.ctx)
	c.dialCancel = cancel
	c.connectTmr = c.sched.Schedule(c.cfg.ConnectTimeout, func() { c.post(connectTimeoutEvent{gen: gen}) })

	now := c.sched.Now()
	c.record("connect_attempt", map[string]any{"attempt": c.attempts, "url": c.cfg.URL})
	c.updateState(func(st *api.ConnectionState) {
		st.IsConnected = false
		st.ConnectionID = ""
		st.Phase = api.PhaseConnecting
		st.LastAttemptTime = &now
	})

	c.dials.Add(1)
	go func() {
		defer c.dials.Done()
		conn, err := c.dial(ctx)
		if !c.post(dialResult{gen: gen, conn: conn, err: err}) && conn != nil {
			_ = conn.Close()
		}
	}()
}

// dial opens the TCP connection and performs the Upgrade exchange. The
// socket is closed if ctx is cancelled before the handshake completes.
func (c *Connector) dial(ctx context.Context) (*protocol.Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", c.endpoint.Host)
	if err != nil {
		return nil, api.WrapError(api.ErrCodeTransport, "dial", err)
	}
	stop := context.AfterFunc(ctx, func() { _ = nc.Close() })
	defer stop()

	key, err := protocol.NewClientKey()
	if err != nil {
		_ = nc.Close()
		return nil, api.WrapError(api.ErrCodeHandshake, "generate key", err)
	}
	if _, err := nc.Write(protocol.BuildClientRequest(c.endpoint.Host, c.endpoint.RequestURI(), key)); err != nil {
		_ = nc.Close()
		return nil, api.WrapError(api.ErrCodeTransport, "write upgrade request", err)
	}
	br := bufio.NewReader(nc)
	if err := protocol.ReadServerResponse(br, key); err != nil {
		_ = nc.Close()
		return nil, err
	}
	return protocol.NewConn(nc, protocol.RoleClient,
		protocol.WithReader(br),
		protocol.WithWriteTimeout(c.cfg.WriteTimeout)), nil
}

func (c *Connector) endDial() {
	concurrency.CancelAll(c.connectTmr)
	c.connectTmr = nil
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
	c.dialing = false
}

func (c *Connector) open(conn *protocol.Conn) {
	gen := c.gen
	now := c.sched.Now()
	conn.SetStatus(api.StatusOpen)
	conn.MarkPong(now)
	c.active = conn
	c.current.Store(conn)
	c.attempts = 0
	c.metrics.Inc(control.MetricHandshakes)
	c.metrics.Set(control.MetricActiveConnection, conn.ID())

	c.readers.Add(1)
	go func() {
		defer c.readers.Done()
		err := conn.ReadLoop(readHandler{c: c, gen: gen})
		c.post(readClosedEvent{gen: gen, err: err})
	}()
	c.heartbeat = c.sched.Every(c.cfg.HeartbeatInterval, func() { c.post(heartbeatEvent{gen: gen}) })
	c.liveness = c.sched.Every(c.cfg.LivenessCheckInterval, func() { c.post(livenessEvent{gen: gen}) })

	c.logger.Printf("[connector] %s open", conn)
	c.record("connected", map[string]any{"connectionId": conn.ID()})
	c.router.OnOpen(api.OpenEvent{ConnectionID: conn.ID(), RemoteAddr: conn.RemoteAddr(), At: now})
	c.updateState(func(st *api.ConnectionState) {
		st.IsConnected = true
		st.ConnectionID = conn.ID()
		st.Phase = api.PhaseConnected
		st.LastError = ""
		st.Reconnecting = false
		st.NextReconnectTime = nil
		st.AttemptCount = 0
	})

	if err := c.write(conn, message.NewPing(now)); err != nil {
		c.fail(err)
	}
}

// teardown drops the in-flight dial or the open socket and its timers.
func (c *Connector) teardown(reason error) {
	if c.dialing {
		c.endDial()
	}
	concurrency.CancelAll(c.reconnect)
	c.reconnect = nil
	if c.active == nil {
		return
	}
	concurrency.CancelAll(c.heartbeat, c.liveness)
	c.heartbeat, c.liveness = nil, nil

	conn := c.active
	c.active = nil
	c.current.Store(nil)
	conn.SetStatus(api.StatusClosing)
	if errors.Is(reason, errStopped) {
		_ = conn.SendClose(protocol.CloseNormalClosure, reason.Error())
	}
	_ = conn.Close()
	c.metrics.Set(control.MetricActiveConnection, "")
	c.router.OnClose(api.CloseEvent{ConnectionID: conn.ID(), Err: reason, At: c.sched.Now()})
}

// fail routes a dial or connection failure into the reconnect path.
func (c *Connector) fail(err error) {
	c.teardown(err)
	c.logger.Printf("[connector] connection failed (%s): %v", api.CodeOf(err), err)
	c.record("disconnected", map[string]any{"error": err.Error(), "attempts": c.attempts})

	if c.cfg.Reconnect.Exhausted(c.attempts) {
		c.giveUp()
		return
	}
	delay := c.cfg.Reconnect.Delay(c.attempts)
	c.attempts++
	gen := c.gen
	c.reconnect = c.sched.Schedule(delay, func() { c.post(reconnectEvent{gen: gen}) })

	next := c.sched.Now().Add(delay)
	attempts := c.attempts
	c.logger.Printf("[connector] reconnect attempt %d in %s", attempts, delay)
	c.updateState(func(st *api.ConnectionState) {
		st.IsConnected = false
		st.ConnectionID = ""
		st.LastError = err.Error()
		st.Reconnecting = true
		st.NextReconnectTime = &next
		st.AttemptCount = attempts
		st.Phase = api.PhaseReconnecting
	})
}

// giveUp enters the terminal state. With port checking enabled the
// connector keeps probing the health endpoint and starts over once the
// native process answers.
func (c *Connector) giveUp() {
	c.terminal = true
	err := api.NewError(api.ErrCodeMaxAttempts, MaxAttemptsMessage).WithContext("attempts", c.attempts)
	c.logger.Printf("[connector] %v", err)
	c.record("max_attempts", map[string]any{"attempts": c.attempts})

	phase := api.PhaseError
	if c.cfg.PortCheckInterval > 0 {
		phase = api.PhaseWaitingForApp
		c.portCheck = c.sched.Every(c.cfg.PortCheckInterval, func() {
			c.post(portCheckEvent{available: c.CheckHealth(c.ctx) == nil})
		})
	}
	attempts := c.attempts
	c.updateState(func(st *api.ConnectionState) {
		st.IsConnected = false
		st.ConnectionID = ""
		st.LastError = MaxAttemptsMessage
		st.Reconnecting = false
		st.NextReconnectTime = nil
		st.AttemptCount = attempts
		st.Phase = phase
	})
}

func (c *Connector) send(m message.Message) error {
	if c.active == nil {
		return api.ErrNotConnected
	}
	if err := message.Validate(m); err != nil {
		return err
	}
	if err := c.write(c.active, m); err != nil {
		c.fail(err)
		return err
	}
	return nil
}

func (c *Connector) write(conn *protocol.Conn, m message.Message) error {
	data, err := message.Encode(m)
	if err != nil {
		return err
	}
	if err := conn.WriteText(data); err != nil {
		return err
	}
	c.metrics.Inc(control.MetricFramesOut)
	return nil
}

func (c *Connector) record(name string, details map[string]any) {
	c.diag.add(DiagnosticEntry{Time: c.sched.Now(), Event: name, Details: details})
}

// post delivers ev to the actor; false once the actor has stopped.
func (c *Connector) post(ev event) bool {
	select {
	case <-c.stopped:
		return false
	default:
	}
	select {
	case c.mailbox <- ev:
		return true
	case <-c.stopped:
		return false
	}
}

func (c *Connector) updateState(fn func(*api.ConnectionState)) {
	c.stateMu.Lock()
	fn(&c.state)
	snap := c.state.Clone()
	c.stateMu.Unlock()
	c.states.Publish(snap)
}

// CheckHealth probes the native process health endpoint.
func (c *Connector) CheckHealth(ctx context.Context) error {
	u := url.URL{Scheme: "http", Host: c.endpoint.Host, Path: "/health"}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return api.WrapError(api.ErrCodeTransport, "health probe", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return api.NewError(api.ErrCodeTransport, fmt.Sprintf("health probe returned %d", resp.StatusCode))
	}
	return nil
}

// Send writes m to the open connection. Messages sent while disconnected
// are dropped with api.ErrNotConnected.
func (c *Connector) Send(m message.Message) error {
	reply := make(chan error, 1)
	if !c.post(sendEvent{msg: m, reply: reply}) {
		return api.ErrNotConnected
	}
	select {
	case err := <-reply:
		return err
	case <-c.stopped:
		return api.ErrNotConnected
	}
}

// SendTrackInfo reports the currently playing track.
func (c *Connector) SendTrackInfo(t message.Track) error {
	return c.Send(&message.TrackInfo{Data: t})
}

// SendSearchResults relays search results to the native process.
func (c *Connector) SendSearchResults(results []message.SearchResult) error {
	return c.Send(&message.SearchResults{Data: results})
}

// SendSearchError reports a failed search.
func (c *Connector) SendSearchError(reason, searchURL string) error {
	return c.Send(&message.SearchError{Error: reason, SearchURL: searchURL})
}

// State returns the current connection state.
func (c *Connector) State() api.ConnectionState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state.Clone()
}

// Subscribe streams every state transition.
func (c *Connector) Subscribe() (<-chan api.ConnectionState, func()) {
	return c.states.Subscribe()
}

// Diagnostics returns the recent connection events, newest first.
func (c *Connector) Diagnostics() []DiagnosticEntry {
	return c.diag.entries()
}

// Router exposes the message router.
func (c *Connector) Router() *router.Router {
	return c.router
}

// RegisterProbes publishes connector state on dp.
func (c *Connector) RegisterProbes(dp *control.DebugProbes) {
	dp.RegisterProbe("connector.state", func() any { return c.State() })
	dp.RegisterProbe("connector.diagnostics", func() any { return c.Diagnostics() })
	dp.RegisterProbe("connector.connection", func() any {
		conn := c.current.Load()
		if conn == nil {
			return nil
		}
		return map[string]any{
			"id":         conn.ID(),
			"status":     conn.Status().String(),
			"lastPongAt": conn.LastPongAt(),
			"stats":      conn.Stats(),
		}
	})
}

// Close stops the actor, closes any connection and waits for background
// goroutines.
func (c *Connector) Close() error {
	c.closeOnce.Do(func() { close(c.quit) })
	<-c.stopped
	c.dials.Wait()
	c.readers.Wait()
	c.states.Close()
	return nil
}
