// Package protocol
//
// WebSocket frame model and masking helpers.

package protocol

// Frame represents a decoded WebSocket frame.
type Frame struct {
	IsFinal    bool  // FIN bit
	Opcode     byte  // Operation code
	Masked     bool  // Whether the frame was masked
	PayloadLen int64 // Declared payload length
	MaskKey    [4]byte
	Payload    []byte // Unmasked payload, owned by the frame
}

// IsControl reports whether the frame carries a control opcode.
func (f *Frame) IsControl() bool {
	return isControl(f.Opcode)
}

func isControl(opcode byte) bool {
	return opcode&0x08 != 0
}

// Text returns the payload as a string.
func (f *Frame) Text() string {
	return string(f.Payload)
}

// maskBytes XORs src with key into dst; dst and src may alias.
func maskBytes(dst, src []byte, key [4]byte) {
	for i := 0; i < len(src); i++ {
		dst[i] = src[i] ^ key[i%4]
	}
}
