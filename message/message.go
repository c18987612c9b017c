// File: message/message.go
// Package message defines the JSON messages exchanged over the bridge.
// License: Apache-2.0
//
// Every message is a JSON object keyed by a top-level "type". Decode reads
// the tag once and unmarshals into the matching strongly typed payload.

package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/momentics/beatbridge/api"
)

// Type is the top-level "type" tag.
type Type string

const (
	TypePing          Type = "PING"
	TypePong          Type = "PONG"
	TypeCommand       Type = "COMMAND"
	TypeTrackInfo     Type = "TRACK_INFO"
	TypeSearchResults Type = "SEARCH_RESULTS"
	TypeSearchError   Type = "SEARCH_ERROR"
)

// Playback commands understood by the media control surface.
const (
	CommandPlay             = "play"
	CommandPause            = "pause"
	CommandNext             = "next"
	CommandPrevious         = "previous"
	CommandSeek             = "seek"
	CommandToggleLike       = "toggleLike"
	CommandOpenYouTubeMusic = "openYouTubeMusic"
)

// ErrUnknownType is wrapped by Decode when the tag names no known message.
var ErrUnknownType = errors.New("unknown message type")

// Message is one of *Ping, *Pong, *Command, *TrackInfo, *SearchResults or *SearchError.
type Message interface {
	Kind() Type
}

// Ping is a heartbeat probe. Timestamp is whatever clock unit the sender uses.
type Ping struct {
	Timestamp float64 `json:"timestamp"`
}

// Pong answers a Ping, echoing its timestamp.
type Pong struct {
	Timestamp float64 `json:"timestamp"`
}

// CommandData carries optional command arguments.
type CommandData struct {
	Position *float64 `json:"position,omitempty"`
	ID       string   `json:"id,omitempty"`
	Type     string   `json:"type,omitempty"`
}

// Command asks the media control surface to act.
type Command struct {
	Command string       `json:"command" validate:"required,oneof=play pause next previous seek toggleLike openYouTubeMusic"`
	Data    *CommandData `json:"data,omitempty"`
}

// Track is the now-playing snapshot reported by the extension.
type Track struct {
	ID          string  `json:"id" validate:"required"`
	Title       string  `json:"title"`
	Artist      string  `json:"artist"`
	AlbumArt    string  `json:"albumArt,omitempty"`
	IsPlaying   bool    `json:"isPlaying"`
	CurrentTime float64 `json:"currentTime" validate:"min=0"`
	Duration    float64 `json:"duration" validate:"min=0"`
	IsLiked     bool    `json:"isLiked"`
}

// TrackInfo carries the current Track.
type TrackInfo struct {
	Data Track `json:"data"`
}

// SearchResult is one entry of a search response.
type SearchResult struct {
	ID           string `json:"id" validate:"required"`
	Title        string `json:"title"`
	Artist       string `json:"artist"`
	Type         string `json:"type"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

// SearchResults relays results produced by the search subsystem.
type SearchResults struct {
	Data []SearchResult `json:"data" validate:"dive"`
}

// SearchError relays a failed search.
type SearchError struct {
	Error     string `json:"error" validate:"required"`
	SearchURL string `json:"searchUrl"`
}

func (*Ping) Kind() Type          { return TypePing }
func (*Pong) Kind() Type          { return TypePong }
func (*Command) Kind() Type       { return TypeCommand }
func (*TrackInfo) Kind() Type     { return TypeTrackInfo }
func (*SearchResults) Kind() Type { return TypeSearchResults }
func (*SearchError) Kind() Type   { return TypeSearchError }

// NewPing stamps a Ping with the wall clock in milliseconds.
func NewPing(at time.Time) *Ping {
	return &Ping{Timestamp: float64(at.UnixMilli())}
}

// NewPong answers p.
func NewPong(p *Ping) *Pong {
	return &Pong{Timestamp: p.Timestamp}
}

// NewCommand builds an argument-less command.
func NewCommand(name string) *Command {
	return &Command{Command: name}
}

// NewSeek builds a seek command to position seconds.
func NewSeek(position float64) *Command {
	return &Command{Command: CommandSeek, Data: &CommandData{Position: &position}}
}

// NewPlay builds a play command, optionally targeting an item by id.
func NewPlay(id, kind string) *Command {
	cmd := &Command{Command: CommandPlay}
	if id != "" {
		cmd.Data = &CommandData{ID: id, Type: kind}
	}
	return cmd
}

// envelope peeks at the tag only.
type envelope struct {
	Type Type `json:"type"`
}

// Decode parses raw into a typed message and validates it.
// All failures carry api.ErrCodeProtocol.
func Decode(raw []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, api.WrapError(api.ErrCodeProtocol, "malformed JSON", err)
	}
	if env.Type == "" {
		return nil, api.NewError(api.ErrCodeProtocol, "missing message type")
	}

	var msg Message
	switch env.Type {
	case TypePing:
		msg = &Ping{}
	case TypePong:
		msg = &Pong{}
	case TypeCommand:
		msg = &Command{}
	case TypeTrackInfo:
		msg = &TrackInfo{}
	case TypeSearchResults:
		msg = &SearchResults{}
	case TypeSearchError:
		msg = &SearchError{}
	default:
		return nil, api.WrapError(api.ErrCodeProtocol, fmt.Sprintf("message type %q", env.Type), ErrUnknownType)
	}

	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, api.WrapError(api.ErrCodeProtocol, fmt.Sprintf("malformed %s payload", env.Type), err)
	}
	if err := Validate(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Encode renders m with its type tag.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, api.NewError(api.ErrCodeProtocol, "nil message")
	}
	data, err := json.Marshal(tagged{Type: m.Kind(), Message: m})
	if err != nil {
		return nil, api.WrapError(api.ErrCodeProtocol, "encode message", err)
	}
	return data, nil
}

// tagged flattens the payload's fields next to the "type" key.
type tagged struct {
	Type    Type
	Message Message
}

func (t tagged) MarshalJSON() ([]byte, error) {
	body, err := json.Marshal(t.Message)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = make(map[string]json.RawMessage, 1)
	}
	tag, _ := json.Marshal(t.Type)
	fields["type"] = tag
	return json.Marshal(fields)
}
