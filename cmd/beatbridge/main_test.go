package main

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/beatbridge/control"
	"github.com/momentics/beatbridge/message"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("BEATBRIDGE_TEST_SET", "127.0.0.1:9000")
	t.Setenv("BEATBRIDGE_TEST_EMPTY", "")

	assert.Equal(t, "127.0.0.1:9000", getEnv("BEATBRIDGE_TEST_SET", "x"))
	assert.Equal(t, "", getEnv("BEATBRIDGE_TEST_EMPTY", "x"), "an explicit empty value disables")
	assert.Equal(t, "x", getEnv("BEATBRIDGE_TEST_UNSET", "x"))
}

func TestSearchLog_KeepsOnlyLatestResponse(t *testing.T) {
	var out bytes.Buffer
	s := newSearchLog(log.New(&out, "", 0))
	assert.Nil(t, s.Latest())

	for i := 0; i < 100; i++ {
		s.SearchResults(&message.SearchResults{Data: []message.SearchResult{{ID: "old"}}})
	}
	s.SearchResults(&message.SearchResults{Data: []message.SearchResult{{ID: "a"}, {ID: "b"}}})
	assert.Equal(t, map[string]any{"results": []message.SearchResult{{ID: "a"}, {ID: "b"}}}, s.Latest())

	s.SearchError(&message.SearchError{Error: "timeout", SearchURL: "https://example.test/q"})
	assert.Equal(t, map[string]any{"error": "timeout", "searchUrl": "https://example.test/q"}, s.Latest())

	assert.Contains(t, out.String(), "[search] 2 results")
	assert.Contains(t, out.String(), "[search] failed: timeout")
}

func TestSearchLog_ExposedThroughDebugState(t *testing.T) {
	s := newSearchLog(log.New(&bytes.Buffer{}, "", 0))
	ctl := control.New()
	ctl.Debug.RegisterProbe("search.latest", s.Latest)

	s.SearchResults(&message.SearchResults{Data: []message.SearchResult{{ID: "x"}}})
	state := ctl.Debug.DumpState()
	require.Contains(t, state, "search.latest")
	assert.Equal(t, map[string]any{"results": []message.SearchResult{{ID: "x"}}}, state["search.latest"])
}
