// File: client/types.go
// Package client implements the extension-side connector: it dials the
// native process, keeps the link alive with heartbeats and reconnects with
// exponential backoff.
// License: Apache-2.0

package client

import (
	"errors"
	"net/url"
	"time"

	"github.com/momentics/beatbridge/internal/concurrency"
)

// DefaultURL is the native process endpoint.
const DefaultURL = "ws://127.0.0.1:8089/"

// DefaultDiagnostics bounds the diagnostic log.
const DefaultDiagnostics = 100

// Config holds connector configuration parameters.
type Config struct {
	URL                   string        // ws:// endpoint of the native process
	ConnectTimeout        time.Duration // dial plus upgrade deadline
	HeartbeatInterval     time.Duration // PING cadence while Open
	LivenessTimeout       time.Duration // silence that forces a disconnect
	LivenessCheckInterval time.Duration // how often silence is measured
	WriteTimeout          time.Duration // per-write deadline, 0 disables
	Reconnect             concurrency.ReconnectPolicy
	PortCheckInterval     time.Duration // health probing once retries are exhausted, 0 disables
	HealthTimeout         time.Duration // per health probe
	DiagnosticsSize       int
	MailboxSize           int
}

// DefaultConfig mirrors the extension defaults: 5s connect timeout, 5s
// heartbeat, 10s liveness, 10 reconnect attempts.
func DefaultConfig() *Config {
	return &Config{
		URL:                   DefaultURL,
		ConnectTimeout:        5 * time.Second,
		HeartbeatInterval:     5 * time.Second,
		LivenessTimeout:       10 * time.Second,
		LivenessCheckInterval: 5 * time.Second,
		WriteTimeout:          5 * time.Second,
		Reconnect:             concurrency.DefaultReconnectPolicy(),
		HealthTimeout:         time.Second,
		DiagnosticsSize:       DefaultDiagnostics,
		MailboxSize:           64,
	}
}

// Validate rejects configurations the connector cannot run with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.URL)
	switch {
	case c.URL == "":
		return errors.New("client: empty URL")
	case err != nil:
		return err
	case u.Scheme != "ws":
		return errors.New("client: only ws:// endpoints are supported")
	case u.Host == "":
		return errors.New("client: URL has no host")
	case c.ConnectTimeout <= 0:
		return errors.New("client: connect timeout must be positive")
	case c.HeartbeatInterval <= 0:
		return errors.New("client: heartbeat interval must be positive")
	case c.LivenessTimeout <= c.HeartbeatInterval:
		return errors.New("client: liveness timeout must exceed the heartbeat interval")
	case c.LivenessCheckInterval <= 0:
		return errors.New("client: liveness check interval must be positive")
	case c.Reconnect.Base <= 0 || c.Reconnect.Max < c.Reconnect.Base:
		return errors.New("client: invalid reconnect policy")
	case c.PortCheckInterval < 0:
		return errors.New("client: port check interval must not be negative")
	}
	return nil
}
