package rawsocket

import (
	"encoding/binary"
	"math"
)

const (
	// FrameHeaderSize is the size of the big-endian length prefix of every frame.
	FrameHeaderSize = 4
	// defaultMaxFrameSize is the largest payload accepted when no limit is configured (16MB).
	defaultMaxFrameSize = 1 << 24
)

// FrameCodec splits a byte stream into length-prefixed payloads and frames
// outbound payloads the same way.
//
// Each frame on the wire is a 4-byte unsigned big-endian length N followed by
// N bytes of payload. Bytes of an incomplete frame are retained until a later
// Feed completes it. A FrameCodec is not safe for concurrent use; a Conn owns
// exactly one and only touches it from its read loop.
type FrameCodec struct {
	buf     []byte
	maxSize uint32
}

// NewFrameCodec returns a codec that rejects payloads larger than maxSize.
// A maxSize of zero disables the limit up to what the length prefix can express.
func NewFrameCodec(maxSize int) *FrameCodec {
	limit := uint32(math.MaxUint32)
	if maxSize > 0 && uint64(maxSize) < math.MaxUint32 {
		limit = uint32(maxSize)
	}
	return &FrameCodec{maxSize: limit}
}

// Feed appends data to the pending input and returns every payload completed by it,
// in stream order. A frame is only returned once all of its payload bytes arrived.
//
// If a length prefix exceeds the configured maximum, Feed returns the payloads
// completed before it together with ErrFrameTooLarge; the codec must not be fed
// again after that.
//
// data is copied, so callers may reuse it once Feed returns.
func (f *FrameCodec) Feed(data []byte) ([][]byte, error) {
	f.buf = append(f.buf, data...)

	var payloads [][]byte
	offset := 0
	for len(f.buf)-offset >= FrameHeaderSize {
		length := binary.BigEndian.Uint32(f.buf[offset : offset+FrameHeaderSize])
		if length > f.maxSize {
			f.compact(offset)
			return payloads, ErrFrameTooLarge
		}

		end := offset + FrameHeaderSize + int(length)
		if end > len(f.buf) {
			break
		}
		payloads = append(payloads, f.buf[offset+FrameHeaderSize:end:end])
		offset = end
	}

	f.compact(offset)
	return payloads, nil
}

// compact drops consumed bytes. The remainder always moves to a fresh array so
// payloads handed out earlier never share memory with later input.
func (f *FrameCodec) compact(offset int) {
	if offset == 0 {
		return
	}
	rest := f.buf[offset:]
	if len(rest) == 0 {
		f.buf = nil
		return
	}
	f.buf = append(make([]byte, 0, len(rest)), rest...)
}

// Buffered returns the number of bytes held for an incomplete frame.
func (f *FrameCodec) Buffered() int {
	return len(f.buf)
}

// Reset discards any partially received frame.
func (f *FrameCodec) Reset() {
	f.buf = nil
}

// Encode returns payload prefixed with its 4-byte big-endian length.
func (f *FrameCodec) Encode(payload []byte) ([]byte, error) {
	if uint64(len(payload)) > uint64(f.maxSize) {
		return nil, ErrFrameTooLarge
	}

	frame := make([]byte, FrameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(frame[:FrameHeaderSize], uint32(len(payload)))
	copy(frame[FrameHeaderSize:], payload)
	return frame, nil
}
