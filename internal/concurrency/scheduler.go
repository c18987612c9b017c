// File: internal/concurrency/scheduler.go
// License: Apache-2.0
//
// Timer scheduler handing out explicit cancellable handles, so a timer that
// belongs to a superseded connection can always be stopped before it acts.

package concurrency

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/beatbridge/api"
)

const (
	handlePending int32 = iota
	handleFired
	handleCancelled
)

// Scheduler implements api.Scheduler on top of runtime timers.
type Scheduler struct {
	now func() time.Time
}

var _ api.Scheduler = (*Scheduler)(nil)

// NewScheduler returns a Scheduler using the wall clock.
func NewScheduler() *Scheduler {
	return &Scheduler{now: time.Now}
}

// Now returns the current time.
func (s *Scheduler) Now() time.Time {
	return s.now()
}

// Schedule runs fn once after delay.
func (s *Scheduler) Schedule(delay time.Duration, fn func()) api.Cancelable {
	h := &onceHandle{done: make(chan struct{})}
	h.timer = time.AfterFunc(delay, func() {
		if !atomic.CompareAndSwapInt32(&h.state, handlePending, handleFired) {
			return
		}
		close(h.done)
		fn()
	})
	return h
}

// Every runs fn each interval until cancelled. Ticks are never run concurrently.
func (s *Scheduler) Every(interval time.Duration, fn func()) api.Cancelable {
	h := &tickHandle{stop: make(chan struct{}), done: make(chan struct{})}
	go func() {
		defer close(h.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-h.stop:
				return
			case <-ticker.C:
				select {
				case <-h.stop:
					return
				default:
				}
				fn()
			}
		}
	}()
	return h
}

type onceHandle struct {
	state int32
	timer *time.Timer
	done  chan struct{}
}

func (h *onceHandle) Cancel() bool {
	if !atomic.CompareAndSwapInt32(&h.state, handlePending, handleCancelled) {
		return false
	}
	h.timer.Stop()
	close(h.done)
	return true
}

func (h *onceHandle) Done() <-chan struct{} {
	return h.done
}

type tickHandle struct {
	once sync.Once
	stop chan struct{}
	done chan struct{}
}

func (h *tickHandle) Cancel() bool {
	cancelled := false
	h.once.Do(func() {
		close(h.stop)
		cancelled = true
	})
	return cancelled
}

func (h *tickHandle) Done() <-chan struct{} {
	return h.done
}

// CancelAll cancels every non-nil handle.
func CancelAll(handles ...api.Cancelable) {
	for _, h := range handles {
		if h != nil {
			h.Cancel()
		}
	}
}
