// Package fake
// License: Apache-2.0
//
// Recording implementations of the router collaborators for tests and the
// demo binary.

package fake

import (
	"sync"
	"time"

	"github.com/momentics/beatbridge/api"
	"github.com/momentics/beatbridge/message"
)

// Peer records messages sent to it and liveness marks.
type Peer struct {
	mu        sync.Mutex
	sent      []message.Message
	pongs     []time.Time
	closed    bool
	sendError error
}

// NewPeer creates an open fake peer.
func NewPeer() *Peer {
	return &Peer{}
}

// Send implements router.Peer.
func (p *Peer) Send(m message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return api.ErrNotConnected
	}
	if p.sendError != nil {
		return p.sendError
	}
	p.sent = append(p.sent, m)
	return nil
}

// MarkPong implements router.Peer.
func (p *Peer) MarkPong(at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pongs = append(p.pongs, at)
}

// Sent returns a copy of the sent messages.
func (p *Peer) Sent() []message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]message.Message(nil), p.sent...)
}

// Pongs returns the recorded liveness marks.
func (p *Peer) Pongs() []time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Time(nil), p.pongs...)
}

// SetSendError makes subsequent sends fail with err.
func (p *Peer) SetSendError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sendError = err
}

// Close makes subsequent sends fail with api.ErrNotConnected.
func (p *Peer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}
