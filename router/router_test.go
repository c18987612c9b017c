package router_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/beatbridge/api"
	"github.com/momentics/beatbridge/control"
	"github.com/momentics/beatbridge/fake"
	"github.com/momentics/beatbridge/message"
	"github.com/momentics/beatbridge/router"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newRouter(opts ...router.Option) *router.Router {
	return router.New(append([]router.Option{router.WithClock(func() time.Time { return fixedNow })}, opts...)...)
}

func trackInfo(id string) []byte {
	return []byte(fmt.Sprintf(`{"type":"TRACK_INFO","data":{"id":%q,"title":"Song %s","artist":"Band","isPlaying":true,"currentTime":1,"duration":180,"isLiked":false}}`, id, id))
}

func TestRoute_PingRepliesWithEchoedPong(t *testing.T) {
	r := newRouter()
	peer := fake.NewPeer()

	require.NoError(t, r.Route(peer, []byte(`{"type":"PING","timestamp":1700000000123}`)))

	sent := peer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, &message.Pong{Timestamp: 1700000000123}, sent[0])
	assert.Empty(t, peer.Pongs(), "only PONG refreshes liveness by default")
}

func TestRoute_PingRefreshesLivenessWhenEnabled(t *testing.T) {
	r := newRouter(router.WithPingLiveness(true))
	peer := fake.NewPeer()

	require.NoError(t, r.Route(peer, []byte(`{"type":"PING","timestamp":5}`)))
	assert.Len(t, peer.Sent(), 1)
	assert.Equal(t, []time.Time{fixedNow}, peer.Pongs())
}

func TestRoute_FailedPongReplyIsNotFatal(t *testing.T) {
	r := newRouter()
	peer := fake.NewPeer()
	peer.SetSendError(errors.New("broken pipe"))

	assert.NoError(t, r.Route(peer, []byte(`{"type":"PING","timestamp":5}`)))
	assert.Empty(t, peer.Sent())
}

func TestRoute_PongOnlyUpdatesLiveness(t *testing.T) {
	r := newRouter()
	peer := fake.NewPeer()
	snaps, cancel := r.SubscribeSnapshots()
	defer cancel()

	require.NoError(t, r.Route(peer, []byte(`{"type":"PONG","timestamp":1}`)))
	assert.Empty(t, peer.Sent())
	assert.Len(t, peer.Pongs(), 1)
	assert.Empty(t, snaps)
}

func TestRoute_CommandForwardedToMedia(t *testing.T) {
	media := fake.NewMediaControl()
	r := newRouter(router.WithMediaControl(media))

	require.NoError(t, r.Route(fake.NewPeer(), []byte(`{"type":"COMMAND","command":"seek","data":{"position":30}}`)))

	got := media.Received()
	require.Len(t, got, 1)
	assert.Equal(t, message.CommandSeek, got[0].Command)
	assert.Equal(t, 30.0, *got[0].Data.Position)
}

func TestRoute_SearchRelayed(t *testing.T) {
	sink := fake.NewSearchSink()
	r := newRouter(router.WithSearchSink(sink))

	require.NoError(t, r.Route(nil, []byte(`{"type":"SEARCH_RESULTS","data":[{"id":"1","title":"t","artist":"a","type":"song"}]}`)))
	require.NoError(t, r.Route(nil, []byte(`{"type":"SEARCH_ERROR","error":"failed","searchUrl":"https://music.youtube.com"}`)))

	require.Len(t, sink.Results(), 1)
	assert.Equal(t, "1", sink.Results()[0].Data[0].ID)
	require.Len(t, sink.Failures(), 1)
	assert.Equal(t, "https://music.youtube.com", sink.Failures()[0].SearchURL)
}

func TestRoute_UnknownTypeIgnored(t *testing.T) {
	metrics := control.NewMetricsRegistry()
	r := newRouter(router.WithMetrics(metrics))
	peer := fake.NewPeer()

	assert.NoError(t, r.Route(peer, []byte(`{"type":"LYRICS","text":"la"}`)))
	assert.Empty(t, peer.Sent())
	assert.Zero(t, metrics.Counter(control.MetricMessagesRejected))
}

func TestRoute_MalformedIsProtocolError(t *testing.T) {
	metrics := control.NewMetricsRegistry()
	r := newRouter(router.WithMetrics(metrics))

	err := r.Route(fake.NewPeer(), []byte(`not json`))
	assert.True(t, api.IsCode(err, api.ErrCodeProtocol))
	err = r.Route(fake.NewPeer(), []byte(`{"data":1}`))
	assert.True(t, api.IsCode(err, api.ErrCodeProtocol))
	assert.Equal(t, int64(2), metrics.Counter(control.MetricMessagesRejected))
}

func TestRoute_TrackHistoryDedupeAndEviction(t *testing.T) {
	r := newRouter()

	require.NoError(t, r.Route(nil, trackInfo("t1")))
	require.NoError(t, r.Route(nil, trackInfo("t1")))
	snap := r.Snapshot()
	require.Len(t, snap.History, 1)
	require.NotNil(t, snap.Track)
	assert.Equal(t, "t1", snap.Track.ID)

	for i := 2; i <= 11; i++ {
		require.NoError(t, r.Route(nil, trackInfo(fmt.Sprintf("t%d", i))))
	}
	snap = r.Snapshot()
	require.Len(t, snap.History, 10)
	assert.Equal(t, "t11", snap.History[0].ID)
	assert.Equal(t, "t2", snap.History[9].ID)
	for _, tr := range snap.History {
		assert.NotEqual(t, "t1", tr.ID)
	}
}

func TestRoute_TrackPublishesSnapshot(t *testing.T) {
	r := newRouter()
	snaps, cancel := r.SubscribeSnapshots()
	defer cancel()

	require.NoError(t, r.Route(nil, trackInfo("abc")))
	select {
	case s := <-snaps:
		require.NotNil(t, s.Track)
		assert.Equal(t, "abc", s.Track.ID)
		assert.Equal(t, fixedNow, s.UpdatedAt)
	case <-time.After(time.Second):
		t.Fatal("no snapshot published")
	}
}

func TestApplySeek_UpdatesCurrentTime(t *testing.T) {
	r := newRouter()
	r.ApplySeek(10)
	assert.Nil(t, r.Snapshot().Track)

	require.NoError(t, r.Route(nil, trackInfo("abc")))
	r.ApplySeek(95.5)
	assert.Equal(t, 95.5, r.Snapshot().Track.CurrentTime)
	assert.Equal(t, 1.0, r.Snapshot().History[0].CurrentTime)
}

func TestOpenClose_TracksActiveConnection(t *testing.T) {
	r := newRouter()
	opens, cancelOpen := r.SubscribeOpen()
	defer cancelOpen()
	closes, cancelClose := r.SubscribeClose()
	defer cancelClose()

	r.OnOpen(api.OpenEvent{ConnectionID: "b", At: fixedNow})
	assert.True(t, r.Snapshot().Connected)
	assert.Equal(t, "b", (<-opens).ConnectionID)

	// A stale close for a superseded connection is ignored.
	r.OnClose(api.CloseEvent{ConnectionID: "a", At: fixedNow})
	assert.True(t, r.Snapshot().Connected)
	assert.Empty(t, closes)

	r.OnClose(api.CloseEvent{ConnectionID: "b", Err: errors.New("eof"), At: fixedNow})
	assert.False(t, r.Snapshot().Connected)
	assert.Equal(t, "b", (<-closes).ConnectionID)
}

type memoryStore struct {
	mu     sync.Mutex
	tracks []message.Track
}

func (m *memoryStore) LoadHistory(_ context.Context, limit int) ([]message.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]message.Track, 0, limit)
	for i := len(m.tracks) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.tracks[i])
	}
	return out, nil
}

func (m *memoryStore) SaveTrack(_ context.Context, t message.Track, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracks = append(m.tracks, t)
	return nil
}

func TestHistoryStore_PersistsAndRestores(t *testing.T) {
	store := &memoryStore{}
	r := newRouter(router.WithHistoryStore(store))
	require.NoError(t, r.Route(nil, trackInfo("x")))
	require.NoError(t, r.Route(nil, trackInfo("y")))
	require.NoError(t, r.Route(nil, trackInfo("x")))
	assert.Len(t, store.tracks, 2)

	restored := newRouter(router.WithHistoryStore(store))
	require.NoError(t, restored.LoadHistory(context.Background()))
	hist := restored.Snapshot().History
	require.Len(t, hist, 2)
	assert.Equal(t, "y", hist[0].ID)
	assert.Equal(t, "x", hist[1].ID)
}
