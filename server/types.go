// File: server/types.go
// Package server implements the native-side connection supervisor.
// License: Apache-2.0

package server

import (
	"errors"
	"time"

	"github.com/momentics/beatbridge/internal/concurrency"
)

// DefaultAddr is the fixed loopback endpoint the extension dials.
const DefaultAddr = "127.0.0.1:8089"

// Config holds supervisor configuration parameters.
type Config struct {
	Addr                  string        // TCP bind address
	HeartbeatInterval     time.Duration // PING cadence while Open
	LivenessTimeout       time.Duration // silence that forces a disconnect
	LivenessCheckInterval time.Duration // how often silence is measured
	HandshakeTimeout      time.Duration // per-connection upgrade deadline
	WriteTimeout          time.Duration // per-write deadline, 0 disables
	ListenerBackoff       concurrency.ListenerBackoff
	MailboxSize           int // buffered supervisor events
}

// DefaultConfig returns the loopback defaults: 5s heartbeat, 10s liveness.
func DefaultConfig() *Config {
	return &Config{
		Addr:                  DefaultAddr,
		HeartbeatInterval:     5 * time.Second,
		LivenessTimeout:       10 * time.Second,
		LivenessCheckInterval: time.Second,
		HandshakeTimeout:      5 * time.Second,
		WriteTimeout:          5 * time.Second,
		ListenerBackoff:       concurrency.DefaultListenerBackoff(),
		MailboxSize:           64,
	}
}

// Validate rejects configurations the supervisor cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return errors.New("server: empty listen address")
	case c.HeartbeatInterval <= 0:
		return errors.New("server: heartbeat interval must be positive")
	case c.LivenessTimeout <= c.HeartbeatInterval:
		return errors.New("server: liveness timeout must exceed the heartbeat interval")
	case c.LivenessCheckInterval <= 0:
		return errors.New("server: liveness check interval must be positive")
	case c.HandshakeTimeout <= 0:
		return errors.New("server: handshake timeout must be positive")
	case c.ListenerBackoff.Unit <= 0 || c.ListenerBackoff.Max <= 0:
		return errors.New("server: listener backoff must be positive")
	}
	return nil
}
