// File: protocol/frame_codec.go
// Package protocol implements the frame codec with frame size enforcement.
// License: Apache-2.0
//
// Only single-frame messages are accepted: fragmented messages and reserved
// bits are rejected as frame errors. Server-originated frames are never
// masked; client-originated frames always are.

package protocol

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/momentics/beatbridge/api"
)

// Frame errors.
var (
	ErrFrameTooLarge     = api.NewError(api.ErrCodeFrame, "frame payload exceeds maximum allowed size")
	ErrReservedBits      = api.NewError(api.ErrCodeFrame, "reserved bits set without negotiated extension")
	ErrUnknownOpcode     = api.NewError(api.ErrCodeFrame, "unknown opcode")
	ErrFragmentedMessage = api.NewError(api.ErrCodeFrame, "fragmented messages are not supported")
	ErrBadControlFrame   = api.NewError(api.ErrCodeFrame, "control frame must be final and at most 125 bytes")
)

// DecodeFrame parses one WebSocket frame from the head of raw.
// Returns frame, consumed bytes, and error.
// If the frame is incomplete, returns (nil, 0, nil) and the caller must
// accumulate more bytes before retrying.
// Once the header is complete, errors report the declared size of the
// offending frame as consumed, which may exceed len(raw); the caller skips
// that many stream bytes and resumes at the next frame boundary. consumed == 0
// with an error means the declared length cannot be a real frame and the
// stream is unusable.
func DecodeFrame(raw []byte) (*Frame, int, error) {
	if len(raw) < 2 {
		return nil, 0, nil // Incomplete
	}
	fin := raw[0]&FinBit != 0
	opcode := raw[0] & OpcodeMask
	masked := raw[1]&MaskBit != 0
	length := uint64(raw[1] & LenMask)
	offset := 2

	switch length {
	case len16Marker:
		if len(raw) < offset+2 {
			return nil, 0, nil // Incomplete
		}
		length = uint64(binary.BigEndian.Uint16(raw[offset:]))
		offset += 2
	case len64Marker:
		if len(raw) < offset+8 {
			return nil, 0, nil // Incomplete
		}
		length = binary.BigEndian.Uint64(raw[offset:])
		offset += 8
	}
	// Too large to skip, including lengths with the reserved high bit set.
	if length > maxDeclaredLength {
		return nil, 0, ErrFrameTooLarge
	}

	var maskKey [4]byte
	if masked {
		if len(raw) < offset+4 {
			return nil, 0, nil // Incomplete
		}
		copy(maskKey[:], raw[offset:offset+4])
		offset += 4
	}
	totalLen := offset + int(length)

	if err := checkHeader(raw[0], opcode, fin, length); err != nil {
		return nil, totalLen, err
	}
	if len(raw) < totalLen {
		return nil, 0, nil // Incomplete
	}

	payload := make([]byte, length)
	if masked {
		maskBytes(payload, raw[offset:totalLen], maskKey)
	} else {
		copy(payload, raw[offset:totalLen])
	}

	return &Frame{
		IsFinal:    fin,
		Opcode:     opcode,
		Masked:     masked,
		PayloadLen: int64(length),
		MaskKey:    maskKey,
		Payload:    payload,
	}, totalLen, nil
}

// checkHeader rejects frames this codec does not accept.
func checkHeader(first, opcode byte, fin bool, length uint64) error {
	switch {
	case first&RsvBits != 0:
		return ErrReservedBits
	case !knownOpcode(opcode):
		return ErrUnknownOpcode
	case length > MaxFramePayload:
		return ErrFrameTooLarge
	case isControl(opcode) && (!fin || length > MaxControlPayloadLen):
		return ErrBadControlFrame
	case !fin || opcode == OpcodeContinuation:
		return ErrFragmentedMessage
	}
	return nil
}

func knownOpcode(op byte) bool {
	switch op {
	case OpcodeContinuation, OpcodeText, OpcodeBinary, OpcodeClose, OpcodePing, OpcodePong:
		return true
	}
	return false
}

// EncodeTextFrame serializes payload as a single unmasked text frame (0x81),
// the form every server-originated message takes.
func EncodeTextFrame(payload []byte) []byte {
	return appendFrame(make([]byte, 0, MaxFrameHeaderLen+len(payload)), OpcodeText, payload, nil)
}

// EncodeFrame serializes a final frame with the given opcode. When mask is
// true a fresh random masking key is drawn, as RFC6455 requires of clients.
func EncodeFrame(opcode byte, payload []byte, mask bool) ([]byte, error) {
	if len(payload) > MaxFramePayload {
		return nil, ErrFrameTooLarge
	}
	if isControl(opcode) && len(payload) > MaxControlPayloadLen {
		return nil, ErrBadControlFrame
	}
	dst := make([]byte, 0, MaxFrameHeaderLen+len(payload))
	if !mask {
		return appendFrame(dst, opcode, payload, nil), nil
	}
	var key [4]byte
	if _, err := rand.Read(key[:]); err != nil {
		return nil, err
	}
	return appendFrame(dst, opcode, payload, &key), nil
}

// EncodeMaskedFrame serializes a final frame masked with a caller-chosen key.
func EncodeMaskedFrame(opcode byte, payload []byte, key [4]byte) []byte {
	return appendFrame(make([]byte, 0, MaxFrameHeaderLen+len(payload)), opcode, payload, &key)
}

// appendFrame writes header and payload into dst using the three-tier length scheme.
func appendFrame(dst []byte, opcode byte, payload []byte, key *[4]byte) []byte {
	var maskBit byte
	if key != nil {
		maskBit = MaskBit
	}
	plen := len(payload)

	dst = append(dst, FinBit|(opcode&OpcodeMask))
	switch {
	case plen <= 125:
		dst = append(dst, byte(plen)|maskBit)
	case plen <= 0xFFFF:
		dst = append(dst, len16Marker|maskBit)
		dst = binary.BigEndian.AppendUint16(dst, uint16(plen))
	default:
		dst = append(dst, len64Marker|maskBit)
		dst = binary.BigEndian.AppendUint64(dst, uint64(plen))
	}

	if key == nil {
		return append(dst, payload...)
	}
	dst = append(dst, key[:]...)
	start := len(dst)
	dst = append(dst, payload...)
	maskBytes(dst[start:], dst[start:], *key)
	return dst
}
