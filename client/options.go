// File: client/options.go
// License: Apache-2.0

package client

import (
	"log"

	"github.com/momentics/beatbridge/api"
	"github.com/momentics/beatbridge/control"
	"github.com/momentics/beatbridge/router"
)

// Option customizes connector initialization.
type Option func(*Connector)

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(l *log.Logger) Option {
	return func(c *Connector) { c.logger = l }
}

// WithRouter sets the router inbound messages are dispatched to.
func WithRouter(r *router.Router) Option {
	return func(c *Connector) { c.router = r }
}

// WithMetrics reports counters into m.
func WithMetrics(m *control.MetricsRegistry) Option {
	return func(c *Connector) { c.metrics = m }
}

// WithScheduler overrides the timer facility.
func WithScheduler(s api.Scheduler) Option {
	return func(c *Connector) { c.sched = s }
}
