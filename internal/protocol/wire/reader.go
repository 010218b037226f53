// Package wire provides the big-endian byte cursor shared by the protocol decoders.
package wire

import (
	"encoding/binary"
	"fmt"

	"firestige.xyz/tendium/internal/core"
)

// Reader is a forward-only cursor over a received buffer.
// A failed read leaves the cursor where it was.
type Reader struct {
	buf []byte
	off int
}

// NewReader returns a cursor positioned at the start of b.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	return len(r.buf) - r.off
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int {
	return r.off
}

func (r *Reader) need(n int) error {
	if r.Len() < n {
		return fmt.Errorf("need %d bytes at offset %d, have %d: %w", n, r.off, r.Len(), core.ErrTruncated)
	}
	return nil
}

// Uint8 reads one byte.
func (r *Reader) Uint8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

// Uint16 reads a big-endian 16-bit integer.
func (r *Reader) Uint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v, nil
}

// ReadFull fills dst from the cursor.
func (r *Reader) ReadFull(dst []byte) error {
	if err := r.need(len(dst)); err != nil {
		return err
	}
	r.off += copy(dst, r.buf[r.off:])
	return nil
}

// Rest consumes and returns a copy of every remaining byte.
// The copy keeps decoded values valid after the device buffer is reused.
func (r *Reader) Rest() []byte {
	rest := make([]byte, r.Len())
	copy(rest, r.buf[r.off:])
	r.off = len(r.buf)
	return rest
}
