// File: control/control.go
// License: Apache-2.0

package control

// Control bundles the config store, metrics and debug probes of one process.
type Control struct {
	Config  *ConfigStore
	Metrics *MetricsRegistry
	Debug   *DebugProbes
}

// New creates a Control with runtime probes registered.
func New() *Control {
	c := &Control{
		Config:  NewConfigStore(),
		Metrics: NewMetricsRegistry(),
		Debug:   NewDebugProbes(),
	}
	RegisterRuntimeProbes(c.Debug)
	c.Debug.RegisterProbe("config", func() any { return c.Config.GetSnapshot() })
	return c
}

// Stats merges metrics with evaluated probes, prefixing probe names with "debug.".
func (c *Control) Stats() map[string]any {
	combined := c.Metrics.GetSnapshot()
	for k, v := range c.Debug.DumpState() {
		combined["debug."+k] = v
	}
	return combined
}
