// Package number implements the tagged numeric value used as the
// Wasm stack's Value entries: a number type discriminant plus a
// 64-bit bit pattern holding the value's native bits.
package number

import (
	"errors"
	"math"

	"github.com/chewxy/math32"
)

// Type is the discriminant over the four Wasm number types.
type Type uint8

// The four number types this toolkit understands.
const (
	I32 Type = iota
	I64
	F32
	F64
)

// String names a Type the way Wasm text format does.
func (t Type) String() string {
	switch t {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	}
	return "unknown"
}

// ErrTypeMismatch is returned when an arithmetic operator is handed
// operands of different number types.
var ErrTypeMismatch = errors.New("number: mismatched operand types")

// Number is a numeric value tagged by its Type. Bits holds the
// value's native bit pattern: the 32-bit pattern zero-extended for
// I32, as-is for I64, and IEEE-754 bits for F32/F64. Number is the
// only value kind the toolkit's operand stack ever holds.
type Number struct {
	Type Type
	Bits uint64
}

// I32Val builds an i32 Number.
func I32Val(v int32) Number { return Number{Type: I32, Bits: uint64(uint32(v))} }

// I64Val builds an i64 Number.
func I64Val(v int64) Number { return Number{Type: I64, Bits: uint64(v)} }

// F32Val builds an f32 Number.
func F32Val(v float32) Number { return Number{Type: F32, Bits: uint64(math32.Float32bits(v))} }

// F64Val builds an f64 Number.
func F64Val(v float64) Number { return Number{Type: F64, Bits: math.Float64bits(v)} }

// I32 reinterprets the Number as a signed 32-bit integer.
func (n Number) I32() int32 { return int32(uint32(n.Bits)) }

// U32 reinterprets the Number as an unsigned 32-bit integer.
func (n Number) U32() uint32 { return uint32(n.Bits) }

// I64 reinterprets the Number as a signed 64-bit integer.
func (n Number) I64() int64 { return int64(n.Bits) }

// U64 reinterprets the Number as an unsigned 64-bit integer.
func (n Number) U64() uint64 { return n.Bits }

// F32 reinterprets the Number as a 32-bit float.
func (n Number) F32() float32 { return math32.Float32frombits(uint32(n.Bits)) }

// F64 reinterprets the Number as a 64-bit float.
func (n Number) F64() float64 { return math.Float64frombits(n.Bits) }

// Zero returns the zero value for t, used to default-initialize
// declared locals.
func Zero(t Type) Number {
	return Number{Type: t}
}

// Add returns lhs + rhs. Both operands must share a Type.
func Add(lhs, rhs Number) (Number, error) {
	if lhs.Type != rhs.Type {
		return Number{}, ErrTypeMismatch
	}
	switch lhs.Type {
	case I32:
		return I32Val(lhs.I32() + rhs.I32()), nil
	case I64:
		return I64Val(lhs.I64() + rhs.I64()), nil
	case F32:
		return F32Val(lhs.F32() + rhs.F32()), nil
	case F64:
		return F64Val(lhs.F64() + rhs.F64()), nil
	}
	return Number{}, ErrTypeMismatch
}

// Sub returns lhs - rhs. Both operands must share a Type.
func Sub(lhs, rhs Number) (Number, error) {
	if lhs.Type != rhs.Type {
		return Number{}, ErrTypeMismatch
	}
	switch lhs.Type {
	case I32:
		return I32Val(lhs.I32() - rhs.I32()), nil
	case I64:
		return I64Val(lhs.I64() - rhs.I64()), nil
	case F32:
		return F32Val(lhs.F32() - rhs.F32()), nil
	case F64:
		return F64Val(lhs.F64() - rhs.F64()), nil
	}
	return Number{}, ErrTypeMismatch
}
