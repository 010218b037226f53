package wire

import (
	"encoding/binary"
	"io"
)

// Writer accumulates big-endian fields and flushes them in one call.
type Writer struct {
	buf []byte
}

// Uint8 appends one byte.
func (w *Writer) Uint8(v uint8) {
	w.buf = append(w.buf, v)
}

// Uint16 appends a big-endian 16-bit integer.
func (w *Writer) Uint16(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

// Bytes appends b verbatim.
func (w *Writer) Bytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// Len returns the number of buffered bytes.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Flush writes the buffered bytes to dst and reports how many were written.
func (w *Writer) Flush(dst io.Writer) (int64, error) {
	n, err := dst.Write(w.buf)
	return int64(n), err
}
