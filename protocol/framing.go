package protocol

import "bytes"

// FrameBuffer accumulates inbound bytes and cuts them into frames at each
// delimiter that is not inside a JSON string literal.
type FrameBuffer struct {
	buf      []byte
	max      int
	inString bool
	escaped  bool
}

// NewFrameBuffer creates a buffer that discards undelimited data beyond max bytes.
func NewFrameBuffer(max int) *FrameBuffer {
	if max <= 0 {
		max = MaxFrameBytes
	}
	return &FrameBuffer{max: max}
}

// Feed appends data and returns every complete frame, in arrival order,
// without delimiters. dropped counts bytes discarded because a frame grew
// past the limit.
func (b *FrameBuffer) Feed(data []byte) (frames [][]byte, dropped int) {
	for _, c := range data {
		b.buf = append(b.buf, c)
		switch {
		case b.escaped:
			b.escaped = false
		case b.inString && c == '\\':
			b.escaped = true
		case c == '"':
			b.inString = !b.inString
		case !b.inString && c == Delimiter:
			frame := bytes.TrimSpace(b.buf[:len(b.buf)-1])
			if len(frame) > 0 {
				frames = append(frames, append([]byte(nil), frame...))
			}
			b.buf = b.buf[:0]
			continue
		}
		if len(b.buf) > b.max {
			dropped += len(b.buf)
			b.Reset()
		}
	}
	return frames, dropped
}

// Buffered returns the number of bytes waiting for a delimiter.
func (b *FrameBuffer) Buffered() int { return len(b.buf) }

// Reset drops any partial frame.
func (b *FrameBuffer) Reset() {
	b.buf = b.buf[:0]
	b.inString = false
	b.escaped = false
}
