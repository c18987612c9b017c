// File: protocol/connection.go
// Package protocol implements the core WebSocket connection handling.
// License: Apache-2.0
//
// Conn encapsulates one full-duplex WebSocket session over a net.Conn: its
// lifecycle status, the time of the last observed PONG, and I/O counters.

package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/momentics/beatbridge/api"
)

// ErrClosedByPeer is returned by ReadLoop when the peer sent a close frame.
var ErrClosedByPeer = errors.New("connection closed by peer")

const readChunkSize = 4096

// Role selects masking behaviour: clients mask every frame, servers never do.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

// MessageHandler receives decoded data frames and non-fatal frame errors.
type MessageHandler interface {
	HandleMessage(c *Conn, payload []byte)
	HandleFrameError(c *Conn, err error)
}

// ConnOption customizes a Conn.
type ConnOption func(*Conn)

// WithReader reads from r instead of the socket, e.g. a bufio.Reader that
// already holds bytes received after the handshake.
func WithReader(r io.Reader) ConnOption {
	return func(c *Conn) { c.reader = r }
}

// WithBuffered seeds the frame reader with bytes read past the request head.
func WithBuffered(p []byte) ConnOption {
	return func(c *Conn) {
		if len(p) > 0 {
			c.frames.Feed(p)
		}
	}
}

// WithWriteTimeout bounds every write.
func WithWriteTimeout(d time.Duration) ConnOption {
	return func(c *Conn) { c.writeTimeout = d }
}

// Conn is one WebSocket session.
type Conn struct {
	id           string
	netConn      net.Conn
	reader       io.Reader
	role         Role
	writeTimeout time.Duration
	frames       FrameReader

	status   atomic.Int32
	lastPong atomic.Int64

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}

	bytesReceived  atomic.Int64
	bytesSent      atomic.Int64
	framesReceived atomic.Int64
	framesSent     atomic.Int64
}

// NewConn wraps nc in the Handshaking state.
func NewConn(nc net.Conn, role Role, opts ...ConnOption) *Conn {
	c := &Conn{
		id:      uuid.NewString(),
		netConn: nc,
		reader:  nc,
		role:    role,
		done:    make(chan struct{}),
	}
	c.status.Store(int32(api.StatusHandshaking))
	for _, o := range opts {
		o(c)
	}
	return c
}

// ID returns the unique connection identifier.
func (c *Conn) ID() string { return c.id }

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string {
	if a := c.netConn.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}

// Status returns the lifecycle status.
func (c *Conn) Status() api.ConnectionStatus {
	return api.ConnectionStatus(c.status.Load())
}

// SetStatus moves the connection to s. Closed is terminal.
func (c *Conn) SetStatus(s api.ConnectionStatus) {
	for {
		cur := c.status.Load()
		if api.ConnectionStatus(cur) == api.StatusClosed {
			return
		}
		if c.status.CompareAndSwap(cur, int32(s)) {
			return
		}
	}
}

// MarkPong records liveness at t.
func (c *Conn) MarkPong(t time.Time) {
	c.lastPong.Store(t.UnixNano())
}

// LastPongAt returns the last recorded liveness time.
func (c *Conn) LastPongAt() time.Time {
	return time.Unix(0, c.lastPong.Load())
}

// WriteRaw writes p verbatim; used for handshake traffic.
func (c *Conn) WriteRaw(p []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.netConn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	n, err := c.netConn.Write(p)
	c.bytesSent.Add(int64(n))
	if err != nil {
		return api.WrapError(api.ErrCodeTransport, "write to connection", err)
	}
	return nil
}

// WriteText sends payload as one text frame, masked when acting as a client.
func (c *Conn) WriteText(payload []byte) error {
	return c.writeFrame(OpcodeText, payload)
}

// WriteControl sends a control frame.
func (c *Conn) WriteControl(opcode byte, payload []byte) error {
	return c.writeFrame(opcode, payload)
}

func (c *Conn) writeFrame(opcode byte, payload []byte) error {
	if c.Status() == api.StatusClosed {
		return api.ErrTransportClosed
	}
	var (
		data []byte
		err  error
	)
	if c.role == RoleServer && opcode == OpcodeText {
		data = EncodeTextFrame(payload)
	} else {
		data, err = EncodeFrame(opcode, payload, c.role == RoleClient)
		if err != nil {
			return err
		}
	}
	if err := c.WriteRaw(data); err != nil {
		return err
	}
	c.framesSent.Add(1)
	return nil
}

// ReadLoop reads until the transport fails or the peer closes, dispatching
// data frames to h. Frame errors are reported to h and do not end the loop.
func (c *Conn) ReadLoop(h MessageHandler) error {
	if err := c.drain(h); err != nil {
		return err
	}
	buf := make([]byte, readChunkSize)
	for {
		n, err := c.reader.Read(buf)
		if n > 0 {
			c.bytesReceived.Add(int64(n))
			c.frames.Feed(buf[:n])
			if derr := c.drain(h); derr != nil {
				return derr
			}
		}
		if err != nil {
			select {
			case <-c.done:
				return api.ErrTransportClosed
			default:
			}
			return api.WrapError(api.ErrCodeTransport, "read from connection", err)
		}
	}
}

// drain dispatches every complete buffered frame.
func (c *Conn) drain(h MessageHandler) error {
	for {
		frame, err := c.frames.Next()
		if err != nil {
			h.HandleFrameError(c, err)
			continue
		}
		if frame == nil {
			return nil
		}
		c.framesReceived.Add(1)
		if handled, cerr := c.handleControl(frame); handled {
			if cerr != nil {
				return cerr
			}
			continue
		}
		h.HandleMessage(c, frame.Payload)
	}
}

// handleControl processes ping, pong, and close control frames per RFC6455.
// Returns true if the frame was a control frame that has been handled.
func (c *Conn) handleControl(frame *Frame) (bool, error) {
	if !frame.IsControl() {
		return false, nil
	}
	switch frame.Opcode {
	case OpcodePing:
		_ = c.WriteControl(OpcodePong, frame.Payload)
		return true, nil
	case OpcodePong:
		c.MarkPong(time.Now())
		return true, nil
	case OpcodeClose:
		_ = c.WriteControl(OpcodeClose, frame.Payload)
		return true, ErrClosedByPeer
	default:
		return false, nil
	}
}

// SendClose sends a close frame carrying code and reason. The socket stays
// open; callers follow up with Close.
func (c *Conn) SendClose(code uint16, reason string) error {
	payload := make([]byte, 2, 2+len(reason))
	binary.BigEndian.PutUint16(payload, code)
	payload = append(payload, reason...)
	if len(payload) > MaxControlPayloadLen {
		payload = payload[:MaxControlPayloadLen]
	}
	return c.WriteControl(OpcodeClose, payload)
}

// Close tears down the socket; idempotent.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.status.Store(int32(api.StatusClosed))
		close(c.done)
		err = c.netConn.Close()
	})
	return err
}

// Done returns a channel closed when the connection is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// String identifies the connection in logs.
func (c *Conn) String() string {
	return fmt.Sprintf("conn[%s %s %s]", c.id[:8], c.RemoteAddr(), c.Status())
}

// Stats returns a snapshot of connection statistics for metrics reporting.
func (c *Conn) Stats() map[string]int64 {
	return map[string]int64{
		"bytes_received":  c.bytesReceived.Load(),
		"bytes_sent":      c.bytesSent.Load(),
		"frames_received": c.framesReceived.Load(),
		"frames_sent":     c.framesSent.Load(),
	}
}
