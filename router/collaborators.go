// File: router/collaborators.go
// License: Apache-2.0
//
// Contracts between the router and the components it feeds.

package router

import (
	"context"
	"time"

	"github.com/momentics/beatbridge/message"
)

// Peer is the connection a message arrived on.
type Peer interface {
	// Send writes m back to the remote side. Fire-and-forget.
	Send(m message.Message) error
	// MarkPong records that the remote side is alive.
	MarkPong(at time.Time)
}

// MediaControl turns COMMAND messages into playback actions. It is expected
// to report the outcome later through a fresh TRACK_INFO.
type MediaControl interface {
	HandleCommand(cmd *message.Command)
}

// SearchSink receives search responses relayed over the socket.
type SearchSink interface {
	SearchResults(results *message.SearchResults)
	SearchError(failure *message.SearchError)
}

// HistoryStore persists the recent-tracks list across restarts.
type HistoryStore interface {
	LoadHistory(ctx context.Context, limit int) ([]message.Track, error)
	SaveTrack(ctx context.Context, t message.Track, at time.Time) error
}
