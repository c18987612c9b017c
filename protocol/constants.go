// Package protocol
//
// WebSocket wire protocol constants

package protocol

const (
	// Control opcodes (<0x8)
	OpcodeContinuation = 0x0
	OpcodeText         = 0x1
	OpcodeBinary       = 0x2
	OpcodeClose        = 0x8
	OpcodePing         = 0x9
	OpcodePong         = 0xA

	// Frame limit settings
	MaxControlPayloadLen = 125
	MaxFrameHeaderLen    = 14 // for extended payloads with masking

	// Bit masks
	FinBit     = 0x80
	RsvBits    = 0x70
	MaskBit    = 0x80
	OpcodeMask = 0x0F
	LenMask    = 0x7F

	// Length tiers
	len16Marker = 126
	len64Marker = 127

	// Close codes
	CloseNormalClosure = 1000
	CloseGoingAway     = 1001
)

// MaxFramePayload defines the maximum allowed payload size for a single frame.
// This limit protects against excessively large frames that could exhaust memory.
const MaxFramePayload = 1 << 20 // 1 MiB

// maxDeclaredLength bounds the oversized frames a reader will skip over; a
// larger declared length leaves the stream unusable.
const maxDeclaredLength = 1<<31 - MaxFrameHeaderLen
