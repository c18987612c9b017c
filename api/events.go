// File: api/events.go
// Package api defines core event types.
// License: Apache-2.0

package api

import "time"

// OpenEvent is emitted when a connection completes its handshake.
type OpenEvent struct {
	ConnectionID string
	RemoteAddr   string
	At           time.Time
}

// CloseEvent is emitted when a connection is torn down.
type CloseEvent struct {
	ConnectionID string
	Err          error
	At           time.Time
}
