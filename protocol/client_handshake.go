// File: protocol/client_handshake.go
// License: Apache-2.0
//
// Client side of the HTTP Upgrade exchange.

package protocol

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/momentics/beatbridge/api"
)

// NewClientKey returns a random base64-encoded 16-byte Sec-WebSocket-Key.
func NewClientKey() (string, error) {
	keyBytes := make([]byte, 16)
	if _, err := rand.Read(keyBytes); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(keyBytes), nil
}

// BuildClientRequest renders the GET Upgrade request per RFC6455.
func BuildClientRequest(host, path, key string) []byte {
	if path == "" {
		path = "/"
	}
	return []byte(fmt.Sprintf(
		"GET %s HTTP/1.1\r\nHost: %s\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Key: %s\r\nSec-WebSocket-Version: 13\r\n\r\n",
		path, host, key,
	))
}

// ReadServerResponse reads the 101 response from br and verifies the accept
// value. Bytes following the response head stay buffered in br.
func ReadServerResponse(br *bufio.Reader, key string) error {
	resp, err := http.ReadResponse(br, nil)
	if err != nil {
		return api.WrapError(api.ErrCodeHandshake, "handshake read response", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		return api.NewError(api.ErrCodeHandshake, "handshake failed").
			WithContext("status", resp.StatusCode)
	}
	if got, want := resp.Header.Get("Sec-WebSocket-Accept"), ComputeAcceptKey(key); got != want {
		return api.NewError(api.ErrCodeHandshake, "handshake accept mismatch").
			WithContext("accept", got)
	}
	return nil
}
