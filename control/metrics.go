// File: control/metrics.go
// License: Apache-2.0
//
// Runtime metrics for the bridge: monotonically increasing counters plus
// free-form gauges, exported as one flat snapshot.

package control

import (
	"sync"
	"time"
)

// Counter and gauge names reported by the supervisor, connector and router.
const (
	MetricFramesIn          = "frames.in"
	MetricFramesOut         = "frames.out"
	MetricFrameErrors       = "frames.errors"
	MetricHandshakes        = "handshake.accepted"
	MetricHandshakeFailures = "handshake.failed"
	MetricHealthProbes      = "handshake.health_probes"
	MetricReplaced          = "connection.replaced"
	MetricLivenessTimeouts  = "connection.liveness_timeouts"
	MetricReconnects        = "connection.reconnect_attempts"
	MetricListenerRebinds   = "listener.rebinds"
	MetricCommandsSent      = "commands.sent"
	MetricCommandsDropped   = "commands.dropped"
	MetricMessagesRouted    = "messages.routed"
	MetricMessagesRejected  = "messages.rejected"
	MetricActiveConnection  = "connection.active"
)

// MetricsRegistry holds counters and gauges.
type MetricsRegistry struct {
	mu       sync.RWMutex
	counters map[string]int64
	gauges   map[string]any
	updated  time.Time
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		counters: make(map[string]int64),
		gauges:   make(map[string]any),
	}
}

// Inc adds one to the named counter. A nil registry ignores the call.
func (mr *MetricsRegistry) Inc(key string) {
	mr.Add(key, 1)
}

// Add adds delta to the named counter.
func (mr *MetricsRegistry) Add(key string, delta int64) {
	if mr == nil {
		return
	}
	mr.mu.Lock()
	mr.counters[key] += delta
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// Set sets or updates a gauge.
func (mr *MetricsRegistry) Set(key string, value any) {
	if mr == nil {
		return
	}
	mr.mu.Lock()
	mr.gauges[key] = value
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// Counter returns the current value of a counter.
func (mr *MetricsRegistry) Counter(key string) int64 {
	if mr == nil {
		return 0
	}
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return mr.counters[key]
}

// GetSnapshot returns counters and gauges in one map.
func (mr *MetricsRegistry) GetSnapshot() map[string]any {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make(map[string]any, len(mr.counters)+len(mr.gauges)+1)
	for k, v := range mr.counters {
		out[k] = v
	}
	for k, v := range mr.gauges {
		out[k] = v
	}
	if !mr.updated.IsZero() {
		out["updated_at"] = mr.updated.UTC().Format(time.RFC3339Nano)
	}
	return out
}
