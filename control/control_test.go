package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistry_CountersAndGauges(t *testing.T) {
	reg := NewMetricsRegistry()
	reg.Inc(MetricFramesIn)
	reg.Add(MetricFramesIn, 2)
	reg.Set(MetricActiveConnection, "abc")

	snap := reg.GetSnapshot()
	assert.Equal(t, int64(3), snap[MetricFramesIn])
	assert.Equal(t, "abc", snap[MetricActiveConnection])
	assert.Contains(t, snap, "updated_at")
	assert.Equal(t, int64(3), reg.Counter(MetricFramesIn))
}

func TestMetricsRegistry_NilIsNoop(t *testing.T) {
	var reg *MetricsRegistry
	reg.Inc(MetricFramesOut)
	reg.Set("x", 1)
	assert.Zero(t, reg.Counter(MetricFramesOut))
}

func TestConfigStore_NotifiesListeners(t *testing.T) {
	cs := NewConfigStore()
	var seen map[string]any
	cs.OnChange(func(snap map[string]any) { seen = snap })

	cs.SetConfig(map[string]any{"server.addr": "127.0.0.1:8089"})
	require.NotNil(t, seen)
	assert.Equal(t, "127.0.0.1:8089", seen["server.addr"])

	v, ok := cs.Get("server.addr")
	assert.True(t, ok)
	assert.Equal(t, "127.0.0.1:8089", v)
}

func TestControl_Stats(t *testing.T) {
	c := New()
	c.Config.SetConfig(map[string]any{"k": "v"})
	c.Metrics.Inc(MetricHandshakes)
	c.Debug.RegisterProbe("custom", func() any { return 7 })

	stats := c.Stats()
	assert.Equal(t, int64(1), stats[MetricHandshakes])
	assert.Equal(t, 7, stats["debug.custom"])
	assert.Equal(t, map[string]any{"k": "v"}, stats["debug.config"])
	assert.Contains(t, stats, "debug.runtime.goroutines")
	assert.Contains(t, c.Debug.Names(), "platform.cpus")
}
