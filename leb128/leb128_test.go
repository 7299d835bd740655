package leb128

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestDecodeU32Fixtures(t *testing.T) {
	tests := []struct {
		name  string
		bytes []byte
		value uint32
		n     int
	}{
		{"624485", []byte{0xE5, 0x8E, 0x26}, 624485, 3},
		{"1048576", []byte{0x80, 0x80, 0xC0, 0x00, 0x0B}, 1048576, 4},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v, n, err := DecodeU32(tc.bytes)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if v != tc.value || n != tc.n {
				t.Fatalf("got (%d, %d), want (%d, %d)", v, n, tc.value, tc.n)
			}
		})
	}
}

func TestDecodeI32Fixtures(t *testing.T) {
	v, n, err := DecodeI32([]byte{0x7F})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != -1 || n != 1 {
		t.Fatalf("got (%d, %d), want (-1, 1)", v, n)
	}
}

func TestEncodeFixtures(t *testing.T) {
	if got := EncodeU32(128); !bytes.Equal(got, []byte{0x80, 0x01}) {
		t.Fatalf("EncodeU32(128) = %v", got)
	}
	if got := EncodeI32(-128); !bytes.Equal(got, []byte{0x80, 0x7F}) {
		t.Fatalf("EncodeI32(-128) = %v", got)
	}
}

func TestRoundTripU32(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 5000; i++ {
		v := rng.Uint32()
		enc := EncodeU32(v)
		got, n, err := DecodeU32(enc)
		if err != nil {
			t.Fatalf("decode(%d) error: %v", v, err)
		}
		if got != v || n != len(enc) {
			t.Fatalf("round trip mismatch for %d: got (%d, %d)", v, got, n)
		}
	}
}

func TestRoundTripI32(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 5000; i++ {
		v := int32(rng.Uint32())
		enc := EncodeI32(v)
		got, n, err := DecodeI32(enc)
		if err != nil {
			t.Fatalf("decode(%d) error: %v", v, err)
		}
		if got != v || n != len(enc) {
			t.Fatalf("round trip mismatch for %d: got (%d, %d)", v, got, n)
		}
	}
}

func TestEncodeMinimality(t *testing.T) {
	for _, v := range []uint32{0, 1, 127, 128, 1 << 31} {
		enc := EncodeU32(v)
		if enc[len(enc)-1]&0x80 != 0 {
			t.Fatalf("EncodeU32(%d) has continuation bit set on final byte", v)
		}
		if len(enc) > 1 && enc[len(enc)-1] == 0 {
			t.Fatalf("EncodeU32(%d) = % x ends in a redundant zero group", v, enc)
		}
	}
}

func TestDecodeU32Truncated(t *testing.T) {
	if _, _, err := DecodeU32([]byte{0x80, 0x80}); err != ErrTruncated {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestDecodeU32ShiftOverflow(t *testing.T) {
	overflow := []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}
	if _, _, err := DecodeU32(overflow); err == nil {
		t.Fatalf("expected shift overflow error")
	}
}
