// Package util provides the low-level byte cursor and byte sink shared
// by the decoder and encoder.
package util

import (
	"errors"

	"github.com/vertexdlt/wasmkit/leb128"
)

// ErrEOF is returned when a read runs past the end of the underlying
// byte slice.
var ErrEOF = errors.New("util: unexpected end of input")

// ByteReader is an append-free cursor over an immutable byte slice,
// used by the decoder to walk section and expression bodies.
type ByteReader struct {
	b   []byte
	pos int
}

// NewByteReader wraps b in a ByteReader starting at offset 0.
func NewByteReader(b []byte) *ByteReader {
	return &ByteReader{b: b}
}

// Offset returns the current read position, used to annotate decode
// errors with the offending byte offset.
func (r *ByteReader) Offset() int {
	return r.pos
}

// Len returns the number of unread bytes.
func (r *ByteReader) Len() int {
	return len(r.b) - r.pos
}

// ReadByte reads a single byte.
func (r *ByteReader) ReadByte() (byte, error) {
	if r.pos >= len(r.b) {
		return 0, ErrEOF
	}
	b := r.b[r.pos]
	r.pos++
	return b, nil
}

// ReadBytes reads exactly n bytes.
func (r *ByteReader) ReadBytes(n uint32) ([]byte, error) {
	if r.pos+int(n) > len(r.b) {
		return nil, ErrEOF
	}
	b := r.b[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, nil
}

// ReadU32 reads an unsigned LEB128 u32.
func (r *ByteReader) ReadU32() (uint32, error) {
	v, n, err := leb128.DecodeU32(r.b[r.pos:])
	if err != nil {
		return 0, err
	}
	r.pos += n
	return v, nil
}

// ReadI32 reads a signed LEB128 i32.
func (r *ByteReader) ReadI32() (int32, error) {
	v, n, err := leb128.DecodeI32(r.b[r.pos:])
	if err != nil {
		return 0, err
	}
	r.pos += n
	return v, nil
}

// ReadU64 reads an unsigned LEB128 u64.
func (r *ByteReader) ReadU64() (uint64, error) {
	v, n, err := leb128.DecodeU64(r.b[r.pos:])
	if err != nil {
		return 0, err
	}
	r.pos += n
	return v, nil
}

// ReadI64 reads a signed LEB128 i64.
func (r *ByteReader) ReadI64() (int64, error) {
	v, n, err := leb128.DecodeI64(r.b[r.pos:])
	if err != nil {
		return 0, err
	}
	r.pos += n
	return v, nil
}

// Rest returns every byte from the current position to the end
// without advancing the cursor.
func (r *ByteReader) Rest() []byte {
	return r.b[r.pos:]
}
