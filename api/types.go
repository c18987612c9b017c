// File: api/types.go
//
// Shared API-level type declarations: per-connection status and the
// externally observed connection state record.

package api

import "time"

// ConnectionStatus enumerates the lifecycle of a single WebSocket connection.
type ConnectionStatus int32

const (
	StatusHandshaking ConnectionStatus = iota
	StatusOpen
	StatusClosing
	StatusClosed
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusHandshaking:
		return "handshaking"
	case StatusOpen:
		return "open"
	case StatusClosing:
		return "closing"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Phase is the coarse connectivity phase reported to UI consumers.
type Phase string

const (
	PhaseInitializing  Phase = "INITIALIZING"
	PhaseListening     Phase = "LISTENING"
	PhaseConnecting    Phase = "CONNECTING"
	PhaseConnected     Phase = "CONNECTED"
	PhaseReconnecting  Phase = "RECONNECTING"
	PhaseWaitingForApp Phase = "WAITING_FOR_APP"
	PhaseError         Phase = "ERROR"
)

// ConnectionState is the externally observable connectivity record.
// It is mutated only by the supervisor or connector and broadcast after
// every transition.
type ConnectionState struct {
	IsConnected       bool       `json:"isConnected"`
	LastError         string     `json:"lastError,omitempty"`
	Reconnecting      bool       `json:"reconnecting"`
	NextReconnectTime *time.Time `json:"nextReconnectTime,omitempty"`
	AttemptCount      int        `json:"attemptCount"`
	Phase             Phase      `json:"connectionState"`
	LastAttemptTime   *time.Time `json:"lastAttemptTime,omitempty"`
	ConnectionID      string     `json:"connectionId,omitempty"`
}

// Description renders a human-readable summary of the state.
func (s ConnectionState) Description() string {
	switch s.Phase {
	case PhaseInitializing:
		return "Starting bridge..."
	case PhaseListening:
		return "Waiting for the extension to connect"
	case PhaseConnecting:
		return "Connecting..."
	case PhaseConnected:
		return "Connected"
	case PhaseReconnecting:
		return "Reconnecting..."
	case PhaseWaitingForApp:
		return "Native app not running, waiting for it to start..."
	case PhaseError:
		if s.LastError != "" {
			return s.LastError
		}
		return "Connection error"
	default:
		return "Unknown state"
	}
}

// Clone returns a deep copy so snapshots can cross goroutines safely.
func (s ConnectionState) Clone() ConnectionState {
	out := s
	if s.NextReconnectTime != nil {
		t := *s.NextReconnectTime
		out.NextReconnectTime = &t
	}
	if s.LastAttemptTime != nil {
		t := *s.LastAttemptTime
		out.LastAttemptTime = &t
	}
	return out
}
