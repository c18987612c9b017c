// File: client/events.go
// License: Apache-2.0

package client

import (
	"time"

	"github.com/momentics/beatbridge/message"
	"github.com/momentics/beatbridge/protocol"
)

// event is anything delivered to the connector mailbox.
type event interface{ connectorEvent() }

type connectEvent struct{ manual bool }

// dialResult carries the outcome of the dial goroutine for attempt gen.
type dialResult struct {
	gen  uint64
	conn *protocol.Conn
	err  error
}

type connectTimeoutEvent struct{ gen uint64 }

type reconnectEvent struct{ gen uint64 }

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

type portCheckEvent struct{ available bool }

type sendEvent struct {
	msg   message.Message
	reply chan error
}

func (connectEvent) connectorEvent()        {}
func (dialResult) connectorEvent()          {}
func (connectTimeoutEvent) connectorEvent() {}
func (reconnectEvent) connectorEvent()      {}
func (inboundEvent) connectorEvent()        {}
func (frameErrorEvent) connectorEvent()     {}
func (readClosedEvent) connectorEvent()     {}
func (heartbeatEvent) connectorEvent()      {}
func (livenessEvent) connectorEvent()       {}
func (portCheckEvent) connectorEvent()      {}
func (sendEvent) connectorEvent()           {}

type readHandler struct {
	c   *Connector
	gen uint64
}

func (h readHandler) HandleMessage(_ *protocol.Conn, payload []byte) {
	h.c.post(inboundEvent{gen: h.gen, payload: payload})
}

func (h readHandler) HandleFrameError(_ *protocol.Conn, err error) {
	h.c.post(frameErrorEvent{gen: h.gen, err: err})
}

// connPeer lets the router answer native PINGs and record PONGs. It is
// only used from the actor goroutine.
type connPeer struct {
	c    *Connector
	conn *protocol.Conn
}

func (p connPeer) Send(m message.Message) error {
	err := p.c.write(p.conn, m)
	if err != nil && p.c.active == p.conn {
		p.c.fail(err)
	}
	return err
}

func (p connPeer) MarkPong(at time.Time) {
	p.conn.MarkPong(at)
}
