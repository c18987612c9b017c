// File: server/options.go
// Package server defines functional options for the Supervisor.
// License: Apache-2.0

package server

import (
	"log"

	"github.com/momentics/beatbridge/api"
	"github.com/momentics/beatbridge/control"
	"github.com/momentics/beatbridge/router"
)

// Option customizes supervisor initialization.
type Option func(*Supervisor)

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(l *log.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// WithRouter sets the message router. A bare router is created otherwise.
func WithRouter(r *router.Router) Option {
	return func(s *Supervisor) { s.router = r }
}

// WithMetrics reports counters into m.
func WithMetrics(m *control.MetricsRegistry) Option {
	return func(s *Supervisor) { s.metrics = m }
}

// WithScheduler overrides the timer facility.
func WithScheduler(sched api.Scheduler) Option {
	return func(s *Supervisor) { s.sched = sched }
}
