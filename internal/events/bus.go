// File: internal/events/bus.go
// Package events provides a typed publish/subscribe bus, one per event kind.
// License: Apache-2.0
//
// Subscribers receive values on a buffered channel. A slow subscriber never
// blocks the publisher: when its buffer is full the oldest pending value is
// dropped to make room for the newest.

package events

import "sync"

// DefaultBuffer is the per-subscriber channel capacity used by NewBus(0).
const DefaultBuffer = 16

// Bus fans out values of type T to all current subscribers.
type Bus[T any] struct {
	mu     sync.Mutex
	subs   map[int]chan T
	nextID int
	buffer int
	closed bool
}

// NewBus creates a bus whose subscribers buffer up to buffer values.
func NewBus[T any](buffer int) *Bus[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus[T]{subs: make(map[int]chan T), buffer: buffer}
}

// Subscribe registers a new subscriber. The returned cancel func unregisters
// it and closes the channel; it is safe to call more than once.
func (b *Bus[T]) Subscribe() (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan T, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers v to every subscriber without blocking.
func (b *Bus[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- v:
			continue
		default:
		}
		// Full: drop the oldest value and retry once.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

// Subscribers returns the number of registered subscribers.
func (b *Bus[T]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close unregisters and closes every subscriber channel.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
