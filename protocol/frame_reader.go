// File: protocol/frame_reader.go
// License: Apache-2.0

package protocol

// FrameReader accumulates stream bytes and yields complete frames.
type FrameReader struct {
	buf  []byte
	skip int // bytes of a rejected frame still to be discarded
}

// Feed appends freshly received bytes, first discarding what remains of a
// rejected frame.
func (r *FrameReader) Feed(p []byte) {
	if r.skip > 0 {
		n := min(r.skip, len(p))
		r.skip -= n
		p = p[n:]
	}
	r.buf = append(r.buf, p...)
}

// Buffered returns the number of bytes waiting for a complete frame.
func (r *FrameReader) Buffered() int {
	return len(r.buf)
}

// Skipping returns the number of incoming bytes that will be discarded.
func (r *FrameReader) Skipping() int {
	return r.skip
}

// Next returns the next complete frame, or (nil, nil) when more bytes are
// needed. A rejected frame is dropped whole, including payload bytes not
// received yet, so parsing resumes at the following frame.
func (r *FrameReader) Next() (*Frame, error) {
	frame, n, err := DecodeFrame(r.buf)
	if err != nil {
		switch {
		case n == 0:
			r.Reset()
		case n > len(r.buf):
			skip := n - len(r.buf)
			r.Reset()
			r.skip = skip
		default:
			r.consume(n)
		}
		return nil, err
	}
	if frame == nil {
		return nil, nil
	}
	r.consume(n)
	return frame, nil
}

// Reset discards all buffered bytes and any pending skip.
func (r *FrameReader) Reset() {
	r.buf = r.buf[:0]
	r.skip = 0
}

func (r *FrameReader) consume(n int) {
	rest := copy(r.buf, r.buf[n:])
	r.buf = r.buf[:rest]
}
