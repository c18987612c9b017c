// File: server/handshake.go
// License: Apache-2.0
//
// Per-connection upgrade handling. Each accepted socket is read until the
// request head is complete, then answered directly (health probe, reject)
// or handed to the actor as an upgrade.

package server

import (
	"bytes"
	"errors"
	"io"
	"net"
	"time"

	"github.com/momentics/beatbridge/api"
	"github.com/momentics/beatbridge/control"
	"github.com/momentics/beatbridge/protocol"
)

var headEnd = []byte("\r\n\r\n")

func (s *Supervisor) handshake(nc net.Conn) {
	defer s.handshakes.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("[supervisor] panic in handshake: %v", r)
			_ = nc.Close()
		}
	}()
	if !s.trackPending(nc) {
		_ = nc.Close()
		return
	}
	defer s.untrackPending(nc)

	timer := s.sched.Schedule(s.cfg.HandshakeTimeout, func() {
		s.logger.Printf("[supervisor] handshake timeout from %s", nc.RemoteAddr())
		_ = nc.Close()
	})
	head, leftover, err := readRequestHead(nc)
	if !timer.Cancel() {
		// Timer already fired and closed the socket.
		s.metrics.Inc(control.MetricHandshakeFailures)
		return
	}
	if err != nil {
		s.reject(nc, err)
		return
	}

	req, err := protocol.ParseUpgradeRequest(head)
	if err != nil {
		s.reject(nc, err)
		return
	}
	switch req.Kind() {
	case protocol.RequestHealth:
		s.metrics.Inc(control.MetricHealthProbes)
		s.writeAndClose(nc, protocol.BuildHealthResponse())
		return
	case protocol.RequestInvalid:
		s.reject(nc, protocol.ErrMissingWebSocketKey)
		return
	}

	response, err := protocol.Negotiate(req)
	if err != nil {
		s.reject(nc, err)
		return
	}
	result := make(chan bool, 1)
	if !s.post(upgradeEvent{nc: nc, response: response, leftover: leftover, result: result}) {
		_ = nc.Close()
		return
	}
	select {
	case ok := <-result:
		if !ok {
			_ = nc.Close()
		}
	case <-s.stopped:
		_ = nc.Close()
	}
}

// readRequestHead reads until the blank line ending the request head and
// returns the head plus any bytes that followed it.
func readRequestHead(nc net.Conn) (head, leftover []byte, err error) {
	buf := make([]byte, 0, 1024)
	chunk := make([]byte, 1024)
	for {
		n, rerr := nc.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if i := bytes.Index(buf, headEnd); i >= 0 {
			end := i + len(headEnd)
			return buf[:end], buf[end:], nil
		}
		if len(buf) >= 3 && !bytes.HasPrefix(buf, []byte("GET")) {
			return nil, nil, protocol.ErrNotHTTPRequest
		}
		if len(buf) > protocol.MaxHandshakeRequestSize {
			return nil, nil, protocol.ErrRequestTooLarge
		}
		if errors.Is(rerr, io.EOF) {
			return nil, nil, api.ErrIncompleteRequest
		}
		if rerr != nil {
			return nil, nil, rerr
		}
	}
}

func (s *Supervisor) reject(nc net.Conn, err error) {
	s.metrics.Inc(control.MetricHandshakeFailures)
	s.logger.Printf("[supervisor] handshake from %s failed: %v", nc.RemoteAddr(), err)
	s.writeAndClose(nc, protocol.BuildRejectResponse(err.Error()))
}

func (s *Supervisor) writeAndClose(nc net.Conn, response []byte) {
	if s.cfg.WriteTimeout > 0 {
		_ = nc.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	_, _ = nc.Write(response)
	_ = nc.Close()
}

func (s *Supervisor) trackPending(nc net.Conn) bool {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if s.pending == nil {
		return false
	}
	s.pending[nc] = struct{}{}
	return true
}

func (s *Supervisor) untrackPending(nc net.Conn) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if s.pending != nil {
		delete(s.pending, nc)
	}
}

// closePending aborts handshakes still in flight and refuses new ones.
func (s *Supervisor) closePending() {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	for nc := range s.pending {
		_ = nc.Close()
	}
	s.pending = nil
}
