// File: client/diagnostics.go
// License: Apache-2.0

package client

import (
	"sync"
	"time"

	"github.com/eapache/queue"
)

// DiagnosticEntry is one connection event kept for troubleshooting.
type DiagnosticEntry struct {
	Time    time.Time      `json:"timestamp"`
	Event   string         `json:"event"`
	Details map[string]any `json:"details,omitempty"`
}

// diagnosticLog is a bounded ring; the oldest entry is evicted first.
type diagnosticLog struct {
	mu  sync.Mutex
	q   *queue.Queue
	cap int
}

func newDiagnosticLog(capacity int) *diagnosticLog {
	if capacity <= 0 {
		capacity = DefaultDiagnostics
	}
	return &diagnosticLog{q: queue.New(), cap: capacity}
}

func (d *diagnosticLog) add(e DiagnosticEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.q.Add(e)
	for d.q.Length() > d.cap {
		d.q.Remove()
	}
}

// entries returns a copy, newest first.
func (d *diagnosticLog) entries() []DiagnosticEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.q.Length()
	out := make([]DiagnosticEntry, 0, n)
	for i := n - 1; i >= 0; i-- {
		out = append(out, d.q.Get(i).(DiagnosticEntry))
	}
	return out
}
