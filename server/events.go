// File: server/events.go
// License: Apache-2.0

package server

import (
	"net"
	"time"

	"github.com/momentics/beatbridge/message"
	"github.com/momentics/beatbridge/protocol"
)

// event is anything delivered to the supervisor mailbox.
type event interface{ supervisorEvent() }

// upgradeEvent hands a negotiated socket to the actor. The actor answers on
// result whether it took ownership of nc.
type upgradeEvent struct {
	nc       net.Conn
	response []byte
	leftover []byte
	result   chan bool
}

type inboundEvent struct {
	gen     uint64
	payload []byte
}

type frameErrorEvent struct {
	gen uint64
	err error
}

type readClosedEvent struct {
	gen uint64
	err error
}

type heartbeatEvent struct{ gen uint64 }

type livenessEvent struct{ gen uint64 }

type sendEvent struct {
	msg   message.Message
	reply chan error
}

type listenerEvent struct {
	bound   bool
	err     error
	attempt int
	retryAt time.Time
}

func (upgradeEvent) supervisorEvent()    {}
func (inboundEvent) supervisorEvent()    {}
func (frameErrorEvent) supervisorEvent() {}
func (readClosedEvent) supervisorEvent() {}
func (heartbeatEvent) supervisorEvent()  {}
func (livenessEvent) supervisorEvent()   {}
func (sendEvent) supervisorEvent()       {}
func (listenerEvent) supervisorEvent()   {}

// readHandler forwards reader-goroutine output into the mailbox.
type readHandler struct {
	s   *Supervisor
	gen uint64
}

func (h readHandler) HandleMessage(_ *protocol.Conn, payload []byte) {
	h.s.post(inboundEvent{gen: h.gen, payload: payload})
}

func (h readHandler) HandleFrameError(_ *protocol.Conn, err error) {
	h.s.post(frameErrorEvent{gen: h.gen, err: err})
}

// connPeer lets the router reply on the connection a message arrived on.
// It is only used from the actor goroutine.
type connPeer struct {
	s    *Supervisor
	conn *protocol.Conn
}

// Send writes m and routes a write failure on the live connection into the
// disconnection path, the same as any other send.
func (p connPeer) Send(m message.Message) error {
	err := p.s.write(p.conn, m)
	if err != nil && p.s.active == p.conn {
		p.s.fail(err)
	}
	return err
}

func (p connPeer) MarkPong(at time.Time) {
	p.conn.MarkPong(at)
}
