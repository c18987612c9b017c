// File: protocol/handshake.go
// Package protocol provides the native WebSocket handshake without HTTP dependency.
// License: Apache-2.0
//
// The server side parses the raw Upgrade request directly: header lines are
// split on CRLF, each line on its first colon, and keys/values are trimmed.
// Only Sec-WebSocket-Key is mandatory. Header names are matched
// case-insensitively.

package protocol

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/momentics/beatbridge/api"
)

// WebSocketGUID is the fixed GUID from RFC6455 section 1.3.
const WebSocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// MaxHandshakeRequestSize bounds the bytes buffered while waiting for a full request.
const MaxHandshakeRequestSize = 8192

// HealthPath answers liveness probes for the native process.
const HealthPath = "/health"

// Handshake errors.
var (
	ErrNotHTTPRequest      = api.NewError(api.ErrCodeHandshake, "not an HTTP GET request")
	ErrMissingWebSocketKey = api.NewError(api.ErrCodeHandshake, "missing Sec-WebSocket-Key header")
	ErrRequestTooLarge     = api.NewError(api.ErrCodeHandshake, "handshake request too large")
)

var headerTerminator = []byte("\r\n\r\n")

// RequestKind classifies an inbound HTTP request.
type RequestKind int

const (
	RequestUpgrade RequestKind = iota
	RequestHealth
	RequestInvalid
)

// UpgradeRequest is a parsed HTTP request head.
type UpgradeRequest struct {
	Method  string
	Path    string
	headers map[string]string
}

// Header returns the value of the named header, matched case-insensitively.
func (r *UpgradeRequest) Header(name string) string {
	return r.headers[strings.ToLower(name)]
}

// Kind classifies the request: a WebSocket key makes it an upgrade, a bare
// GET on HealthPath a health probe.
func (r *UpgradeRequest) Kind() RequestKind {
	switch {
	case r.Header("Sec-WebSocket-Key") != "":
		return RequestUpgrade
	case r.Path == HealthPath:
		return RequestHealth
	default:
		return RequestInvalid
	}
}

// RequestComplete reports whether raw contains the full request head.
func RequestComplete(raw []byte) bool {
	return bytes.Contains(raw, headerTerminator)
}

// ParseUpgradeRequest parses a request head recognized by its GET prefix.
func ParseUpgradeRequest(raw []byte) (*UpgradeRequest, error) {
	if !bytes.HasPrefix(raw, []byte("GET")) {
		return nil, ErrNotHTTPRequest
	}
	head := raw
	if i := bytes.Index(raw, headerTerminator); i >= 0 {
		head = raw[:i]
	}
	lines := strings.Split(string(head), "\r\n")

	req := &UpgradeRequest{headers: make(map[string]string, len(lines))}
	if fields := strings.Fields(lines[0]); len(fields) >= 2 {
		req.Method = fields[0]
		req.Path = fields[1]
	} else {
		req.Method = "GET"
		req.Path = "/"
	}

	for _, line := range lines[1:] {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		req.headers[strings.ToLower(key)] = strings.TrimSpace(value)
	}
	return req, nil
}

// Negotiate validates an upgrade request and returns the 101 response bytes.
func Negotiate(req *UpgradeRequest) ([]byte, error) {
	key := req.Header("Sec-WebSocket-Key")
	if key == "" {
		return nil, ErrMissingWebSocketKey
	}
	return BuildUpgradeResponse(ComputeAcceptKey(key)), nil
}

// ComputeAcceptKey computes the Sec-WebSocket-Accept value from the client's key.
// This implements the algorithm specified in RFC6455 Section 1.3.
func ComputeAcceptKey(clientKey string) string {
	hash := sha1.Sum([]byte(clientKey + WebSocketGUID))
	return base64.StdEncoding.EncodeToString(hash[:])
}

// BuildUpgradeResponse renders the CRLF-joined 101 Switching Protocols response.
func BuildUpgradeResponse(accept string) []byte {
	return []byte(strings.Join([]string{
		"HTTP/1.1 101 Switching Protocols",
		"Upgrade: websocket",
		"Connection: Upgrade",
		"Sec-WebSocket-Accept: " + accept,
		"",
		"",
	}, "\r\n"))
}

// BuildHealthResponse renders the reply to a health probe.
func BuildHealthResponse() []byte {
	return buildPlainResponse(200, "OK", "application/json", `{"status":"ok"}`)
}

// BuildRejectResponse renders a 400 reply for a failed upgrade.
func BuildRejectResponse(reason string) []byte {
	return buildPlainResponse(400, "Bad Request", "text/plain; charset=utf-8", reason)
}

func buildPlainResponse(code int, status, contentType, body string) []byte {
	return []byte(fmt.Sprintf(
		"HTTP/1.1 %d %s\r\nContent-Type: %s\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		code, status, contentType, len(body), body,
	))
}
