// File: internal/concurrency/backoff.go
// License: Apache-2.0
//
// Backoff policies for client reconnects and listener rebinds.

package concurrency

import "time"

// ReconnectPolicy is the client-side exponential backoff.
type ReconnectPolicy struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int
}

// DefaultReconnectPolicy returns base 1s, cap 30s, 10 attempts.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		Base:        time.Second,
		Max:         30 * time.Second,
		MaxAttempts: 10,
	}
}

// Delay returns min(Base × 2^attempts, Max) where attempts is the number of
// reconnects already scheduled.
func (p ReconnectPolicy) Delay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	d := p.Base
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= p.Max {
			return p.Max
		}
	}
	if d > p.Max {
		return p.Max
	}
	return d
}

// Exhausted reports whether no further attempt may be scheduled.
func (p ReconnectPolicy) Exhausted(attempts int) bool {
	return p.MaxAttempts > 0 && attempts >= p.MaxAttempts
}

// ListenerBackoff is the linear backoff applied before rebinding a listener:
// attempt × 2 units, capped at Max.
type ListenerBackoff struct {
	Unit time.Duration
	Max  time.Duration
}

// DefaultListenerBackoff returns 2s per attempt, capped at 30s.
func DefaultListenerBackoff() ListenerBackoff {
	return ListenerBackoff{Unit: time.Second, Max: 30 * time.Second}
}

// Delay returns the wait before rebind number attempt (1-based).
func (b ListenerBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(attempt) * 2 * b.Unit
	if d > b.Max {
		return b.Max
	}
	return d
}
