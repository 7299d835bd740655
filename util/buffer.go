package util

import (
	"os"
	"unicode/utf8"

	"github.com/vertexdlt/wasmkit/leb128"
)

// Buffer is an append-only byte sink used by the encoder. It never
// reads back what it has written; decoding uses ByteReader instead.
type Buffer struct {
	b []byte
}

// NewBuffer returns an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Bytes returns the accumulated bytes.
func (buf *Buffer) Bytes() []byte {
	return buf.b
}

// Len returns the number of bytes written so far.
func (buf *Buffer) Len() int {
	return len(buf.b)
}

// Clear empties the buffer for reuse.
func (buf *Buffer) Clear() {
	buf.b = buf.b[:0]
}

// WriteByte appends a single byte.
func (buf *Buffer) WriteByte(b byte) {
	buf.b = append(buf.b, b)
}

// WriteBytes appends raw bytes verbatim.
func (buf *Buffer) WriteBytes(b []byte) {
	buf.b = append(buf.b, b...)
}

// WriteU32 appends the LEB128 encoding of an unsigned 32-bit integer.
func (buf *Buffer) WriteU32(v uint32) {
	buf.b = append(buf.b, leb128.EncodeU32(v)...)
}

// WriteI32 appends the LEB128 encoding of a signed 32-bit integer.
func (buf *Buffer) WriteI32(v int32) {
	buf.b = append(buf.b, leb128.EncodeI32(v)...)
}

// WriteU64 appends the LEB128 encoding of an unsigned 64-bit integer.
func (buf *Buffer) WriteU64(v uint64) {
	buf.b = append(buf.b, leb128.EncodeU64(v)...)
}

// WriteI64 appends the LEB128 encoding of a signed 64-bit integer.
func (buf *Buffer) WriteI64(v int64) {
	buf.b = append(buf.b, leb128.EncodeI64(v)...)
}

// WriteVec writes a LEB128 u32 length prefix followed by the raw
// bytes of b.
func (buf *Buffer) WriteVec(b []byte) {
	buf.WriteU32(uint32(len(b)))
	buf.WriteBytes(b)
}

// WriteString writes a LEB128 u32 byte-length prefix followed by the
// UTF-8 bytes of s.
func (buf *Buffer) WriteString(s string) {
	if !utf8.ValidString(s) {
		panic("util: WriteString requires valid UTF-8")
	}
	buf.WriteVec([]byte(s))
}

// Dump writes the accumulated bytes to path, creating or truncating
// the file as needed.
func (buf *Buffer) Dump(path string) error {
	return os.WriteFile(path, buf.b, 0644)
}
