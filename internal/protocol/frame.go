// Package protocol implements the length-prefixed binary framing spoken by the
// Wyoming transcription backend.
//
// A frame is a little-endian uint32 length followed by exactly that many
// payload bytes. There is no message type tag and no handshake: a request is
// one frame out and the response is one frame back.
//
//	+----------------+---------------------------+
//	| length (u32le) | payload (length bytes)    |
//	+----------------+---------------------------+
//
// Readers never trust a single Read call to return everything asked for. Both
// the header and the payload are accumulated until satisfied, and a stream that
// ends early is reported as a protocol error rather than a shorter frame.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
)

// HeaderSize is the length of the frame prefix in bytes.
const HeaderSize = 4

// DefaultMaxFrame bounds buffering when no explicit limit is configured.
const DefaultMaxFrame = 16 << 20

// ─────────────────────────────────────────────────────────────────────────────
// Encoder
// ─────────────────────────────────────────────────────────────────────────────

// Encoder writes length-prefixed frames.
type Encoder struct {
	w        io.Writer
	maxFrame int
	mu       sync.Mutex
}

// NewEncoder creates an encoder for the given writer. A maxFrame <= 0 selects
// DefaultMaxFrame.
func NewEncoder(w io.Writer, maxFrame int) *Encoder {
	return &Encoder{w: w, maxFrame: normalizeMax(maxFrame)}
}

// Encode writes payload as a single frame. The header and payload go out in
// one vectored write when the writer is a network connection.
func (e *Encoder) Encode(payload []byte) error {
	if err := CheckSize(len(payload), e.maxFrame); err != nil {
		return err
	}

	var header [HeaderSize]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(payload)))

	e.mu.Lock()
	defer e.mu.Unlock()

	bufs := net.Buffers{header[:], payload}
	if _, err := bufs.WriteTo(e.w); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Decoder
// ─────────────────────────────────────────────────────────────────────────────

// Decoder reads length-prefixed frames.
type Decoder struct {
	r        io.Reader
	maxFrame int
}

// NewDecoder creates a decoder for the given reader. A maxFrame <= 0 selects
// DefaultMaxFrame.
func NewDecoder(r io.Reader, maxFrame int) *Decoder {
	return &Decoder{r: r, maxFrame: normalizeMax(maxFrame)}
}

// Decode reads the next frame and returns its payload. Partial payloads are
// discarded on error.
func (d *Decoder) Decode() ([]byte, error) {
	var header [HeaderSize]byte
	if n, err := io.ReadFull(d.r, header[:]); err != nil {
		if isEOF(err) {
			return nil, &Error{Reason: ReasonShortHeader, Want: HeaderSize, Got: n}
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	length := binary.LittleEndian.Uint32(header[:])
	if uint64(length) > uint64(d.maxFrame) {
		return nil, &Error{Reason: ReasonTooLarge, Want: int(length), Got: d.maxFrame}
	}

	payload := make([]byte, length)
	if n, err := io.ReadFull(d.r, payload); err != nil {
		if isEOF(err) {
			return nil, &Error{Reason: ReasonTruncated, Want: int(length), Got: n}
		}
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return payload, nil
}

// CheckSize reports whether a payload of n bytes fits in a frame bounded by
// maxFrame.
func CheckSize(n, maxFrame int) error {
	limit := normalizeMax(maxFrame)
	if n > limit || uint64(n) > math.MaxUint32 {
		return &Error{Reason: ReasonTooLarge, Want: n, Got: limit}
	}
	return nil
}

func normalizeMax(maxFrame int) int {
	if maxFrame <= 0 {
		return DefaultMaxFrame
	}
	return maxFrame
}

// io.ReadFull returns io.EOF when nothing was read and io.ErrUnexpectedEOF
// when the stream ended part way through.
func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
