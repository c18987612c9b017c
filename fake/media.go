// Package fake
// License: Apache-2.0

package fake

import (
	"log"
	"sync"

	"github.com/momentics/beatbridge/message"
)

// MediaControl records commands. When Logger is set each command is also logged,
// which is all the demo binary needs from a media surface.
type MediaControl struct {
	Logger *log.Logger

	mu       sync.Mutex
	commands []*message.Command
	notify   chan *message.Command
}

// NewMediaControl creates a recorder that also delivers commands on Commands().
func NewMediaControl() *MediaControl {
	return &MediaControl{notify: make(chan *message.Command, 64)}
}

// HandleCommand implements router.MediaControl.
func (m *MediaControl) HandleCommand(cmd *message.Command) {
	m.mu.Lock()
	m.commands = append(m.commands, cmd)
	m.mu.Unlock()
	if m.Logger != nil {
		m.Logger.Printf("[media] command %s", cmd.Command)
	}
	select {
	case m.notify <- cmd:
	default:
	}
}

// Commands delivers each handled command.
func (m *MediaControl) Commands() <-chan *message.Command {
	return m.notify
}

// Received returns a copy of every handled command.
func (m *MediaControl) Received() []*message.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*message.Command(nil), m.commands...)
}

// SearchSink records relayed search responses.
type SearchSink struct {
	mu       sync.Mutex
	results  []*message.SearchResults
	failures []*message.SearchError
}

// NewSearchSink creates an empty recorder.
func NewSearchSink() *SearchSink {
	return &SearchSink{}
}

// SearchResults implements router.SearchSink.
func (s *SearchSink) SearchResults(r *message.SearchResults) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
}

// SearchError implements router.SearchSink.
func (s *SearchSink) SearchError(e *message.SearchError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, e)
}

// Results returns the recorded result batches.
func (s *SearchSink) Results() []*message.SearchResults {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*message.SearchResults(nil), s.results...)
}

// Failures returns the recorded search errors.
func (s *SearchSink) Failures() []*message.SearchError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*message.SearchError(nil), s.failures...)
}
