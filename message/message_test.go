package message_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/beatbridge/api"
	"github.com/momentics/beatbridge/message"
)

func TestDecode_Dispatch(t *testing.T) {
	tests := []struct {
		raw  string
		kind message.Type
	}{
		{`{"type":"PING","timestamp":1700000000000}`, message.TypePing},
		{`{"type":"PING"}`, message.TypePing},
		{`{"type":"PONG","timestamp":1700000000.25}`, message.TypePong},
		{`{"type":"COMMAND","command":"pause"}`, message.TypeCommand},
		{`{"type":"COMMAND","command":"seek","data":{"position":42.5}}`, message.TypeCommand},
		{`{"type":"COMMAND","command":"play","data":{"id":"abc","type":"song"}}`, message.TypeCommand},
		{`{"type":"TRACK_INFO","data":{"id":"t1","title":"Song","artist":"Band","isPlaying":true,"currentTime":3,"duration":200,"isLiked":false}}`, message.TypeTrackInfo},
		{`{"type":"SEARCH_RESULTS","data":[{"id":"r1","title":"A","artist":"B","type":"song"}]}`, message.TypeSearchResults},
		{`{"type":"SEARCH_RESULTS","data":[]}`, message.TypeSearchResults},
		{`{"type":"SEARCH_ERROR","error":"timeout","searchUrl":"https://music.youtube.com/search?q=x"}`, message.TypeSearchError},
	}
	for _, tc := range tests {
		msg, err := message.Decode([]byte(tc.raw))
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.kind, msg.Kind(), tc.raw)
	}
}

func TestDecode_TypedPayloads(t *testing.T) {
	msg, err := message.Decode([]byte(`{"type":"COMMAND","command":"seek","data":{"position":42.5}}`))
	require.NoError(t, err)
	cmd := msg.(*message.Command)
	require.NotNil(t, cmd.Data)
	require.NotNil(t, cmd.Data.Position)
	assert.Equal(t, 42.5, *cmd.Data.Position)

	msg, err = message.Decode([]byte(`{"type":"TRACK_INFO","data":{"id":"t1","title":"Song","artist":"Band","albumArt":"https://img","isPlaying":true,"currentTime":3,"duration":200,"isLiked":true}}`))
	require.NoError(t, err)
	track := msg.(*message.TrackInfo).Data
	assert.Equal(t, message.Track{
		ID: "t1", Title: "Song", Artist: "Band", AlbumArt: "https://img",
		IsPlaying: true, CurrentTime: 3, Duration: 200, IsLiked: true,
	}, track)
}

func TestDecode_ProtocolErrors(t *testing.T) {
	tests := map[string]string{
		"malformed json":     `{"type":`,
		"missing type":       `{"timestamp":1}`,
		"unknown command":    `{"type":"COMMAND","command":"rewind"}`,
		"seek without data":  `{"type":"COMMAND","command":"seek"}`,
		"negative seek":      `{"type":"COMMAND","command":"seek","data":{"position":-1}}`,
		"track without id":   `{"type":"TRACK_INFO","data":{"title":"x"}}`,
		"result without id":  `{"type":"SEARCH_RESULTS","data":[{"title":"x"}]}`,
		"error without text": `{"type":"SEARCH_ERROR","searchUrl":"u"}`,
		"wrong field type":   `{"type":"PING","timestamp":"soon"}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := message.Decode([]byte(raw))
			require.Error(t, err)
			assert.True(t, api.IsCode(err, api.ErrCodeProtocol), "got %v", err)
			assert.False(t, errors.Is(err, message.ErrUnknownType))
		})
	}
}

func TestDecode_UnknownType(t *testing.T) {
	_, err := message.Decode([]byte(`{"type":"HELLO"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, message.ErrUnknownType)
	assert.True(t, api.IsCode(err, api.ErrCodeProtocol))
}

func TestEncode_CarriesTypeTag(t *testing.T) {
	data, err := message.Encode(message.NewSeek(12))
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, "COMMAND", fields["type"])
	assert.Equal(t, "seek", fields["command"])
	assert.Equal(t, map[string]any{"position": 12.0}, fields["data"])

	decoded, err := message.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, message.NewSeek(12), decoded)
}

func TestEncode_AllKinds(t *testing.T) {
	msgs := []message.Message{
		message.NewPing(time.UnixMilli(1700000000000)),
		&message.Pong{Timestamp: 5},
		message.NewCommand(message.CommandNext),
		message.NewPlay("abc", "song"),
		&message.TrackInfo{Data: message.Track{ID: "t", Title: "T", Artist: "A", Duration: 10}},
		&message.SearchResults{Data: []message.SearchResult{{ID: "r", Title: "x", Type: "song", ThumbnailURL: "u"}}},
		&message.SearchError{Error: "boom", SearchURL: "https://example"},
	}
	for _, m := range msgs {
		data, err := message.Encode(m)
		require.NoError(t, err)
		got, err := message.Decode(data)
		require.NoError(t, err, string(data))
		assert.Equal(t, m, got)
	}
}

func TestNewPong_EchoesTimestamp(t *testing.T) {
	ping := message.NewPing(time.UnixMilli(1234))
	assert.Equal(t, 1234.0, message.NewPong(ping).Timestamp)
}
