package util

import (
	"bytes"
	"testing"
)

func TestBufferWriteVecAndString(t *testing.T) {
	buf := NewBuffer()
	buf.WriteString("hi")
	want := []byte{0x02, 'h', 'i'}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("got %v, want %v", buf.Bytes(), want)
	}
}

func TestBufferClear(t *testing.T) {
	buf := NewBuffer()
	buf.WriteByte(1)
	buf.Clear()
	if buf.Len() != 0 {
		t.Fatalf("expected empty buffer after Clear, got len %d", buf.Len())
	}
}

func TestByteReaderReadU32RoundTrip(t *testing.T) {
	buf := NewBuffer()
	buf.WriteU32(624485)
	r := NewByteReader(buf.Bytes())
	v, err := r.ReadU32()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 624485 {
		t.Fatalf("got %d, want 624485", v)
	}
	if r.Len() != 0 {
		t.Fatalf("expected reader exhausted, %d bytes left", r.Len())
	}
}

func TestByteReaderOffset(t *testing.T) {
	r := NewByteReader([]byte{0x01, 0x02, 0x03})
	r.ReadByte()
	if r.Offset() != 1 {
		t.Fatalf("got offset %d, want 1", r.Offset())
	}
}
