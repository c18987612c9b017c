// File: internal/history/history.go
// Package history keeps a bounded, id-deduplicated list of recently played tracks.
// License: Apache-2.0
//
// Entries live in an eapache/queue ring: the tail is the newest entry and the
// head the oldest, so eviction is a single Remove.

package history

import (
	"github.com/eapache/queue"

	"github.com/momentics/beatbridge/message"
)

// DefaultCapacity is the number of tracks retained.
const DefaultCapacity = 10

// History is not safe for concurrent use; the owning actor serializes access.
type History struct {
	ring     *queue.Queue
	ids      map[string]struct{}
	capacity int
}

// New returns an empty history holding at most capacity tracks.
func New(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &History{
		ring:     queue.New(),
		ids:      make(map[string]struct{}, capacity),
		capacity: capacity,
	}
}

// Add records t as the newest entry unless its id is already present.
// Returns true when the history changed.
func (h *History) Add(t message.Track) bool {
	if _, seen := h.ids[t.ID]; seen {
		return false
	}
	h.ring.Add(t)
	h.ids[t.ID] = struct{}{}
	for h.ring.Length() > h.capacity {
		evicted := h.ring.Remove().(message.Track)
		delete(h.ids, evicted.ID)
	}
	return true
}

// Contains reports whether id is in the history.
func (h *History) Contains(id string) bool {
	_, ok := h.ids[id]
	return ok
}

// Len returns the number of stored tracks.
func (h *History) Len() int {
	return h.ring.Length()
}

// Capacity returns the retention bound.
func (h *History) Capacity() int {
	return h.capacity
}

// Tracks returns a newest-first copy.
func (h *History) Tracks() []message.Track {
	n := h.ring.Length()
	out := make([]message.Track, 0, n)
	for i := n - 1; i >= 0; i-- {
		out = append(out, h.ring.Get(i).(message.Track))
	}
	return out
}

// Restore replaces the contents with tracks given newest first, applying the
// same dedupe and capacity rules as Add.
func (h *History) Restore(tracks []message.Track) {
	h.ring = queue.New()
	h.ids = make(map[string]struct{}, h.capacity)
	for i := len(tracks) - 1; i >= 0; i-- {
		h.Add(tracks[i])
	}
}
