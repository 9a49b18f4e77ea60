// Package frame implements the VictorDB wire frame: a 4-byte big-endian
// header packing a 4-bit message type and a 28-bit payload length,
// followed by that many bytes of payload. The same format is used on
// the client socket and in the write-ahead log.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// HeaderSize is the length in bytes of the frame header.
	HeaderSize = 4

	// MaxType is the largest message type representable in 4 bits.
	MaxType = 0x0F

	// MaxLen is the largest payload length representable in 28 bits.
	MaxLen = 1<<28 - 1

	// defaultCap is the initial payload capacity new Buffers allocate.
	// Buffers grow past this on demand, so it is a tuning knob, not a
	// hard limit.
	defaultCap = 4096
)

// ErrHeaderRange is returned by SerializeHeader when type or length fall
// outside the bits the wire format allocates for them.
var ErrHeaderRange = errors.New("frame: type or length out of range")

// ErrShortRead indicates a frame was truncated mid-header or mid-payload:
// a hard protocol violation distinct from a clean end-of-stream before
// any byte of the next frame is read.
var ErrShortRead = errors.New("frame: short read")

// Buffer holds one frame's header and payload in a single contiguous,
// reusable allocation. A connection or WAL handle keeps exactly one
// Buffer and reuses it for every message it reads or writes.
type Buffer struct {
	raw []byte // raw[:HeaderSize] is the header, raw[HeaderSize:HeaderSize+n] is the payload
	n   int
}

// NewBuffer allocates a Buffer with room for defaultCap payload bytes.
func NewBuffer() *Buffer {
	return &Buffer{raw: make([]byte, HeaderSize+defaultCap)}
}

// Type returns the frame's message type.
func (b *Buffer) Type() byte {
	return b.raw[0] >> 4
}

// Len returns the payload length in bytes.
func (b *Buffer) Len() int {
	return b.n
}

// Payload returns the current payload bytes. The slice is only valid
// until the next call to SetPayload or ReadFrame on this Buffer.
func (b *Buffer) Payload() []byte {
	return b.raw[HeaderSize : HeaderSize+b.n]
}

// SetPayload replaces the payload with a copy of p and sets the frame
// type, growing the backing array if p does not fit.
func (b *Buffer) SetPayload(msgType byte, p []byte) error {
	if msgType > MaxType {
		return fmt.Errorf("%w: type %d", ErrHeaderRange, msgType)
	}
	if len(p) > MaxLen {
		return fmt.Errorf("%w: len %d", ErrHeaderRange, len(p))
	}
	b.grow(len(p))
	copy(b.raw[HeaderSize:], p)
	b.n = len(p)
	binary.BigEndian.PutUint32(b.raw[:HeaderSize], (uint32(msgType)<<28)|uint32(b.n))
	return nil
}

// grow ensures the backing array can hold n payload bytes.
func (b *Buffer) grow(n int) {
	need := HeaderSize + n
	if cap(b.raw) >= need {
		b.raw = b.raw[:need]
		return
	}
	grown := make([]byte, need)
	copy(grown, b.raw)
	b.raw = grown
}

// Raw returns the full wire-exact frame bytes (header immediately
// followed by payload), suitable for writing verbatim to a WAL.
func (b *Buffer) Raw() []byte {
	return b.raw[:HeaderSize+b.n]
}

// SerializeHeader packs msgType and length into the 32-bit wire header word.
func SerializeHeader(msgType byte, length uint32) (uint32, error) {
	if msgType > MaxType || length > MaxLen {
		return 0, fmt.Errorf("%w: type=%d len=%d", ErrHeaderRange, msgType, length)
	}
	return uint32(msgType)<<28 | length, nil
}

// ParseHeader unpacks a 32-bit wire header word into type and length,
// rejecting any header whose type or length field cannot occur under
// the wire format's bit allocation.
func ParseHeader(word uint32) (msgType byte, length uint32, err error) {
	msgType = byte(word >> 28)
	length = word & MaxLen
	if msgType > MaxType {
		return 0, 0, fmt.Errorf("%w: type=%d", ErrHeaderRange, msgType)
	}
	return msgType, length, nil
}

// ReadFrame reads one complete frame from r into buf, growing buf's
// payload capacity as needed.
//
// Three outcomes distinguish clean shutdown from protocol violation:
//   - io.EOF: zero bytes were read at the very start, a clean
//     end-of-stream, not an error.
//   - ErrShortRead: at least one header byte, or any payload byte, was
//     read before the stream ended, a truncated frame.
//   - any other error: the underlying I/O failure.
func ReadFrame(r io.Reader, buf *Buffer) error {
	var header [HeaderSize]byte
	n, err := io.ReadFull(r, header[:])
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return ErrShortRead
		}
		return err
	}

	word := binary.BigEndian.Uint32(header[:])
	msgType, length, err := ParseHeader(word)
	if err != nil {
		return err
	}

	buf.grow(int(length))
	if length > 0 {
		if _, err := io.ReadFull(r, buf.raw[HeaderSize:HeaderSize+length]); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return ErrShortRead
			}
			return err
		}
	}
	copy(buf.raw[:HeaderSize], header[:])
	buf.n = int(length)
	return nil
}

// WriteFrame serializes buf's header from its current type and length
// and writes the full frame (header + payload) in a single call.
func WriteFrame(w io.Writer, buf *Buffer) error {
	word, err := SerializeHeader(buf.Type(), uint32(buf.n))
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint32(buf.raw[:HeaderSize], word)
	_, err = w.Write(buf.Raw())
	return err
}
