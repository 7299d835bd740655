// Package leb128 implements the LEB128 variable-length integer encoding
// used throughout the Wasm binary format.
package leb128

import (
	"errors"
	"fmt"
)

// ErrShiftOverflow is returned (wrapped) when an encoded integer uses
// more 7-bit groups than maxGroups allows for the target width, which
// means the input is malformed.
var ErrShiftOverflow = errors.New("leb128: shift exceeds value width")

// ErrTruncated is returned when the byte slice ends before a
// continuation byte terminates the encoding.
var ErrTruncated = errors.New("leb128: truncated encoding")

// DecodeU32 reads an unsigned LEB128 integer from b and returns the
// decoded value along with the number of bytes consumed.
func DecodeU32(b []byte) (uint32, int, error) {
	v, n, err := decodeUnsigned(b, 32)
	return uint32(v), n, err
}

// DecodeU64 reads an unsigned LEB128 integer from b and returns the
// decoded value along with the number of bytes consumed.
func DecodeU64(b []byte) (uint64, int, error) {
	v, n, err := decodeUnsigned(b, 64)
	return v, n, err
}

// DecodeI32 reads a signed LEB128 integer from b and returns the
// decoded value along with the number of bytes consumed.
func DecodeI32(b []byte) (int32, int, error) {
	v, n, err := decodeSigned(b, 32)
	return int32(v), n, err
}

// DecodeI64 reads a signed LEB128 integer from b and returns the
// decoded value along with the number of bytes consumed.
func DecodeI64(b []byte) (int64, int, error) {
	return decodeSigned(b, 64)
}

// maxGroups is the maximum number of 7-bit groups that can contribute
// to a value of maxbit width without shifting bits out the top.
func maxGroups(maxbit uint) uint {
	return (maxbit + 7 - 1) / 7
}

func decodeUnsigned(b []byte, maxbit uint) (uint64, int, error) {
	var (
		result  uint64
		shift   uint
		byteCnt uint
	)
	for i := 0; i < len(b); i++ {
		cur := b[i]
		byteCnt++
		if byteCnt > maxGroups(maxbit) {
			return 0, 0, fmt.Errorf("leb128: %w", ErrShiftOverflow)
		}
		result |= uint64(cur&0x7f) << shift
		shift += 7
		if cur&0x80 == 0 {
			return result, i + 1, nil
		}
	}
	return 0, 0, ErrTruncated
}

func decodeSigned(b []byte, maxbit uint) (int64, int, error) {
	var (
		result  int64
		shift   uint
		byteCnt uint
		cur     byte
	)
	for i := 0; i < len(b); i++ {
		cur = b[i]
		byteCnt++
		if byteCnt > maxGroups(maxbit) {
			return 0, 0, fmt.Errorf("leb128: %w", ErrShiftOverflow)
		}
		result |= int64(cur&0x7f) << shift
		shift += 7
		if cur&0x80 == 0 {
			if shift < 64 && cur&0x40 != 0 {
				result |= -1 << shift
			}
			return result, i + 1, nil
		}
	}
	return 0, 0, ErrTruncated
}

// EncodeU32 emits the minimal unsigned LEB128 encoding of v.
func EncodeU32(v uint32) []byte {
	return encodeUnsigned(uint64(v))
}

// EncodeU64 emits the minimal unsigned LEB128 encoding of v.
func EncodeU64(v uint64) []byte {
	return encodeUnsigned(v)
}

func encodeUnsigned(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
		} else {
			out = append(out, b)
			break
		}
	}
	return out
}

// EncodeI32 emits the minimal signed LEB128 encoding of v.
func EncodeI32(v int32) []byte {
	return encodeSigned(int64(v))
}

// EncodeI64 emits the minimal signed LEB128 encoding of v.
func EncodeI64(v int64) []byte {
	return encodeSigned(v)
}

func encodeSigned(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			out = append(out, b)
			break
		}
		out = append(out, b|0x80)
	}
	return out
}
