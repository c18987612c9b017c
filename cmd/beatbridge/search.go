// File: cmd/beatbridge/search.go
// License: Apache-2.0

package main

import (
	"log"
	"sync"

	"github.com/momentics/beatbridge/message"
)

// searchLog logs relayed search responses and remembers only the latest one.
type searchLog struct {
	logger *log.Logger

	mu      sync.Mutex
	results *message.SearchResults
	failure *message.SearchError
}

func newSearchLog(logger *log.Logger) *searchLog {
	return &searchLog{logger: logger}
}

// SearchResults implements router.SearchSink.
func (s *searchLog) SearchResults(r *message.SearchResults) {
	s.mu.Lock()
	s.results, s.failure = r, nil
	s.mu.Unlock()
	s.logger.Printf("[search] %d results", len(r.Data))
}

// SearchError implements router.SearchSink.
func (s *searchLog) SearchError(e *message.SearchError) {
	s.mu.Lock()
	s.results, s.failure = nil, e
	s.mu.Unlock()
	s.logger.Printf("[search] failed: %s", e.Error)
}

// Latest reports the most recent response for the debug endpoint.
func (s *searchLog) Latest() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.results != nil:
		return map[string]any{"results": s.results.Data}
	case s.failure != nil:
		return map[string]any{"error": s.failure.Error, "searchUrl": s.failure.SearchURL}
	}
	return nil
}
