// File: router/router.go
// Package router interprets decoded messages and dispatches them by type.
// License: Apache-2.0
//
// The router holds the now-playing state (current track plus recent history)
// and publishes a Snapshot after every change. Connection lifecycle
// notifications arrive through OnOpen and OnClose.

package router

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/momentics/beatbridge/api"
	"github.com/momentics/beatbridge/control"
	"github.com/momentics/beatbridge/internal/events"
	"github.com/momentics/beatbridge/internal/history"
	"github.com/momentics/beatbridge/message"
)

const storeTimeout = 2 * time.Second

// Snapshot is what the UI sink observes.
type Snapshot struct {
	Connected    bool            `json:"connected"`
	ConnectionID string          `json:"connectionId,omitempty"`
	Track        *message.Track  `json:"track,omitempty"`
	History      []message.Track `json:"history"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Option customizes a Router.
type Option func(*Router)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithMediaControl sets the COMMAND consumer.
func WithMediaControl(m MediaControl) Option {
	return func(r *Router) { r.media = m }
}

// WithSearchSink sets the search response consumer.
func WithSearchSink(s SearchSink) Option {
	return func(r *Router) { r.search = s }
}

// WithHistoryStore persists history entries.
func WithHistoryStore(s HistoryStore) Option {
	return func(r *Router) { r.store = s }
}

// WithHistoryCapacity overrides the history bound.
func WithHistoryCapacity(n int) Option {
	return func(r *Router) { r.history = history.New(n) }
}

// WithMetrics reports routed and rejected message counts.
func WithMetrics(m *control.MetricsRegistry) Option {
	return func(r *Router) { r.metrics = m }
}

// WithPingLiveness makes an inbound PING refresh the peer's liveness the
// same way a PONG does. Off by default, so only PONG counts.
func WithPingLiveness(on bool) Option {
	return func(r *Router) { r.pingLiveness = on }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// Router dispatches inbound messages.
type Router struct {
	logger  *log.Logger
	media   MediaControl
	search  SearchSink
	store   HistoryStore
	metrics *control.MetricsRegistry
	now     func() time.Time

	pingLiveness bool

	mu        sync.RWMutex
	history   *history.History
	current   *message.Track
	connected bool
	connID    string
	updatedAt time.Time

	snapshots *events.Bus[Snapshot]
	opens     *events.Bus[api.OpenEvent]
	closes    *events.Bus[api.CloseEvent]
}

// New creates a Router.
func New(opts ...Option) *Router {
	r := &Router{
		logger:    log.New(io.Discard, "", 0),
		now:       time.Now,
		history:   history.New(history.DefaultCapacity),
		snapshots: events.NewBus[Snapshot](0),
		opens:     events.NewBus[api.OpenEvent](0),
		closes:    events.NewBus[api.CloseEvent](0),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// LoadHistory restores persisted history, if a store is configured.
func (r *Router) LoadHistory(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	r.mu.Lock()
	limit := r.history.Capacity()
	r.mu.Unlock()

	tracks, err := r.store.LoadHistory(ctx, limit)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.history.Restore(tracks)
	r.updatedAt = r.now()
	r.mu.Unlock()
	r.publish()
	return nil
}

// Route decodes raw and dispatches it. Unknown types are logged and
// ignored; other decode failures are returned as protocol errors after
// logging. Neither is fatal to the connection.
func (r *Router) Route(p Peer, raw []byte) error {
	msg, err := message.Decode(raw)
	if err != nil {
		if errors.Is(err, message.ErrUnknownType) {
			r.logger.Printf("[router] ignoring message: %v", err)
			return nil
		}
		r.metrics.Inc(control.MetricMessagesRejected)
		r.logger.Printf("[router] dropping message: %v", err)
		return err
	}
	r.metrics.Inc(control.MetricMessagesRouted)
	r.Dispatch(p, msg)
	return nil
}

// Dispatch handles an already decoded message.
func (r *Router) Dispatch(p Peer, msg message.Message) {
	switch m := msg.(type) {
	case *message.Ping:
		if p == nil {
			return
		}
		if r.pingLiveness {
			p.MarkPong(r.now())
		}
		if err := p.Send(message.NewPong(m)); err != nil {
			r.logger.Printf("[router] pong reply failed: %v", err)
		}
	case *message.Pong:
		if p != nil {
			p.MarkPong(r.now())
		}
	case *message.Command:
		if r.media == nil {
			r.logger.Printf("[router] no media control for command %q", m.Command)
			return
		}
		r.media.HandleCommand(m)
	case *message.TrackInfo:
		r.updateTrack(m.Data)
	case *message.SearchResults:
		if r.search != nil {
			r.search.SearchResults(m)
		}
	case *message.SearchError:
		if r.search != nil {
			r.search.SearchError(m)
		}
	default:
		r.logger.Printf("[router] unhandled message kind %s", msg.Kind())
	}
}

func (r *Router) updateTrack(t message.Track) {
	r.mu.Lock()
	track := t
	r.current = &track
	added := r.history.Add(t)
	r.updatedAt = r.now()
	at := r.updatedAt
	r.mu.Unlock()

	if added && r.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		if err := r.store.SaveTrack(ctx, t, at); err != nil {
			r.logger.Printf("[router] persisting track %s: %v", t.ID, err)
		}
		cancel()
	}
	r.publish()
}

// ApplySeek optimistically moves the cached track position after a seek
// command was sent, ahead of the confirming TRACK_INFO.
func (r *Router) ApplySeek(position float64) {
	r.mu.Lock()
	if r.current == nil {
		r.mu.Unlock()
		return
	}
	r.current.CurrentTime = position
	r.updatedAt = r.now()
	r.mu.Unlock()
	r.publish()
}

// OnOpen records that a connection became active.
func (r *Router) OnOpen(ev api.OpenEvent) {
	r.mu.Lock()
	r.connected = true
	r.connID = ev.ConnectionID
	r.updatedAt = ev.At
	r.mu.Unlock()
	r.opens.Publish(ev)
	r.publish()
}

// OnClose records that the active connection went away. Events for a
// connection other than the current one are ignored.
func (r *Router) OnClose(ev api.CloseEvent) {
	r.mu.Lock()
	if ev.ConnectionID != "" && ev.ConnectionID != r.connID {
		r.mu.Unlock()
		return
	}
	r.connected = false
	r.connID = ""
	r.updatedAt = ev.At
	r.mu.Unlock()
	r.closes.Publish(ev)
	r.publish()
}

// Snapshot returns the current now-playing state.
func (r *Router) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Router) snapshotLocked() Snapshot {
	s := Snapshot{
		Connected:    r.connected,
		ConnectionID: r.connID,
		History:      r.history.Tracks(),
		UpdatedAt:    r.updatedAt,
	}
	if r.current != nil {
		t := *r.current
		s.Track = &t
	}
	return s
}

func (r *Router) publish() {
	r.mu.RLock()
	s := r.snapshotLocked()
	r.mu.RUnlock()
	r.snapshots.Publish(s)
}

// SubscribeSnapshots streams a Snapshot after every change.
func (r *Router) SubscribeSnapshots() (<-chan Snapshot, func()) {
	return r.snapshots.Subscribe()
}

// SubscribeOpen streams connection-open notifications.
func (r *Router) SubscribeOpen() (<-chan api.OpenEvent, func()) {
	return r.opens.Subscribe()
}

// SubscribeClose streams disconnect notifications.
func (r *Router) SubscribeClose() (<-chan api.CloseEvent, func()) {
	return r.closes.Subscribe()
}

// Close releases subscribers.
func (r *Router) Close() {
	r.snapshots.Close()
	r.opens.Close()
	r.closes.Close()
}
