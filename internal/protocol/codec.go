package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrFrameTooLarge is returned when a declared frame length exceeds MaxFrameSize.
var ErrFrameTooLarge = errors.New("protocol: frame exceeds maximum size")

// ErrInvalidFrameLength is returned when a declared frame length is not positive.
var ErrInvalidFrameLength = errors.New("protocol: invalid frame length")

// Codec is a stateful byte-stream reassembler. Wire format per frame:
//
//	[4-byte big-endian length N >= 1][1-byte type][N-1 bytes payload]
//
// The length field counts the type byte plus payload. Feed appends
// arbitrary-sized chunks and returns every frame (type byte || payload,
// length prefix stripped) that has become complete. Partial trailing bytes
// remain buffered for the next call. An invalid length is fatal: the codec
// never silently discards bytes and the same error is returned on every
// subsequent Feed call once raised.
type Codec struct {
	buf    []byte
	filled int
	start  int
	err    error
}

const initialBufferSize = 64 * 1024

// NewCodec creates a fresh reassembler with an empty internal buffer.
func NewCodec() *Codec {
	return &Codec{buf: make([]byte, initialBufferSize)}
}

// Feed appends chunk to the internal buffer and returns every frame that is
// now complete, in arrival order. Each returned byte slice is a fresh copy
// that does not alias the internal buffer, so it stays valid after later
// calls to Feed.
func (c *Codec) Feed(chunk []byte) ([][]byte, error) {
	if c.err != nil {
		return nil, c.err
	}

	c.append(chunk)

	var frames [][]byte
	for {
		frame, ok, err := c.tryExtract()
		if err != nil {
			c.err = err
			return frames, err
		}
		if !ok {
			break
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// append grows the buffer (doubling) as needed and copies chunk in.
func (c *Codec) append(chunk []byte) {
	need := c.filled + len(chunk)
	if need > len(c.buf) {
		newSize := len(c.buf)
		if newSize == 0 {
			newSize = initialBufferSize
		}
		for newSize < need {
			newSize *= 2
		}
		grown := make([]byte, newSize)
		copy(grown, c.buf[c.start:c.filled])
		c.buf = grown
		c.filled -= c.start
		c.start = 0
	}
	copy(c.buf[c.filled:], chunk)
	c.filled += len(chunk)
}

// tryExtract pulls a single complete frame off the front of the buffer, if
// one is available. It compacts the buffer (moving the unread tail to the
// front) after every successful extraction.
func (c *Codec) tryExtract() (frame []byte, ok bool, err error) {
	available := c.filled - c.start
	if available < LengthFieldSize {
		return nil, false, nil
	}

	length := binary.BigEndian.Uint32(c.buf[c.start : c.start+LengthFieldSize])
	if length < MinFrameLength {
		return nil, false, fmt.Errorf("%w: length %d", ErrInvalidFrameLength, length)
	}
	if length > MaxFrameSize {
		return nil, false, fmt.Errorf("%w: declared length %d", ErrFrameTooLarge, length)
	}

	total := LengthFieldSize + int(length)
	if available < total {
		return nil, false, nil
	}

	out := make([]byte, length)
	copy(out, c.buf[c.start+LengthFieldSize:c.start+total])

	c.start += total
	c.compact()

	return out, true, nil
}

// compact moves the unread tail to the front of the buffer once the read
// cursor has advanced, so the buffer does not grow unboundedly on a stream
// of many small frames.
func (c *Codec) compact() {
	if c.start == 0 {
		return
	}
	remaining := c.filled - c.start
	copy(c.buf, c.buf[c.start:c.filled])
	c.start = 0
	c.filled = remaining
}

// Encode serializes a single frame (type tag + payload) into its
// length-prefixed wire form.
func Encode(msgType uint8, payload []byte) ([]byte, error) {
	length := 1 + len(payload)
	if length > MaxFrameSize {
		return nil, fmt.Errorf("%w: encoded length %d", ErrFrameTooLarge, length)
	}
	out := make([]byte, LengthFieldSize+length)
	binary.BigEndian.PutUint32(out[0:LengthFieldSize], uint32(length))
	out[LengthFieldSize] = msgType
	copy(out[LengthFieldSize+1:], payload)
	return out, nil
}
