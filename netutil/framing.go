// Package netutil implements the length-prefixed frame codec used on the
// gameplay TCP wire: a 4-byte big-endian payload length followed by the
// payload bytes.
package netutil

import (
	"encoding/binary"
	"errors"
)

// MaxFrameLen is the largest payload length accepted on the wire.
const MaxFrameLen = 10_000_000

// ErrInvalidLength is returned when a frame header carries a zero length or a
// length above MaxFrameLen. The connection must be closed: the stream can no
// longer be resynchronized.
var ErrInvalidLength = errors.New("netutil: invalid frame length")

// BuildFrame prepends the big-endian length header to payload.
func BuildFrame(payload []byte) []byte {
	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[4:], payload)
	return frame
}

// FrameParser accumulates received bytes and extracts complete frames
// independent of how the stream was chunked.
type FrameParser struct {
	buf      []byte
	expected uint32
	haveLen  bool
}

// Feed appends a received chunk to the parse buffer.
func (p *FrameParser) Feed(b []byte) {
	p.buf = append(p.buf, b...)
}

// Buffered reports how many bytes are currently accumulated.
func (p *FrameParser) Buffered() int { return len(p.buf) }

// TryExtract returns the next complete payload if one is available. ok is
// false when more bytes are needed. A non-nil error means the length prefix
// was invalid; the parser does not advance and the caller must drop the
// connection.
func (p *FrameParser) TryExtract() (payload []byte, ok bool, err error) {
	if !p.haveLen {
		if len(p.buf) < 4 {
			return nil, false, nil
		}
		n := binary.BigEndian.Uint32(p.buf)
		if n == 0 || n > MaxFrameLen {
			return nil, false, ErrInvalidLength
		}
		p.expected = n
		p.haveLen = true
	}
	total := 4 + int(p.expected)
	if len(p.buf) < total {
		return nil, false, nil
	}
	payload = make([]byte, p.expected)
	copy(payload, p.buf[4:total])
	p.buf = p.buf[:copy(p.buf, p.buf[total:])]
	p.haveLen = false
	p.expected = 0
	return payload, true, nil
}
