// Package api
//
// Scheduler contract for heartbeat, reconnect and timeout timers.

package api

import "time"

// Cancelable is a scheduled operation that may be aborted before it fires.
type Cancelable interface {
	// Cancel stops the operation; it reports false if it already fired or was cancelled.
	Cancel() bool
	// Done is closed once the operation fired or was cancelled.
	Done() <-chan struct{}
}

// Scheduler abstracts timer scheduling so components never hold bare timers.
type Scheduler interface {
	// Schedule runs fn once after delay and returns a handle owning that timer.
	Schedule(delay time.Duration, fn func()) Cancelable

	// Every runs fn at the given interval until the handle is cancelled.
	Every(interval time.Duration, fn func()) Cancelable

	// Now returns the scheduler's notion of the current time.
	Now() time.Time
}
