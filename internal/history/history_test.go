package history

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/beatbridge/message"
)

func track(id string) message.Track {
	return message.Track{ID: id, Title: "title " + id, Artist: "artist"}
}

func ids(tracks []message.Track) []string {
	out := make([]string, len(tracks))
	for i, t := range tracks {
		out[i] = t.ID
	}
	return out
}

func TestHistory_NewestFirstAndDedupe(t *testing.T) {
	h := New(DefaultCapacity)
	require.True(t, h.Add(track("a")))
	require.True(t, h.Add(track("b")))
	assert.False(t, h.Add(track("a")))

	assert.Equal(t, []string{"b", "a"}, ids(h.Tracks()))
	assert.Equal(t, 2, h.Len())
}

func TestHistory_EvictsOldestPastCapacity(t *testing.T) {
	h := New(DefaultCapacity)
	for i := 1; i <= 11; i++ {
		h.Add(track(fmt.Sprintf("t%d", i)))
	}
	require.Equal(t, 10, h.Len())
	assert.False(t, h.Contains("t1"))
	assert.True(t, h.Contains("t11"))

	got := ids(h.Tracks())
	assert.Equal(t, "t11", got[0])
	assert.Equal(t, "t2", got[9])

	// An evicted id counts as new again.
	assert.True(t, h.Add(track("t1")))
	assert.False(t, h.Contains("t2"))
}

func TestHistory_Restore(t *testing.T) {
	h := New(3)
	h.Restore([]message.Track{track("c"), track("b"), track("b"), track("a"), track("z")})
	assert.Equal(t, []string{"c", "b", "a"}, ids(h.Tracks()))
}
