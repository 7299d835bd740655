// Package wasm implements the Wasm 1.0 module data model (§3) plus a
// symmetric binary decoder and encoder (§4.3, §4.4) for the subset of
// sections and instructions spec.md scopes this toolkit to.
package wasm

import (
	"fmt"
	"unicode/utf8"

	"github.com/vertexdlt/wasmkit/number"
	"github.com/vertexdlt/wasmkit/util"
)

// ValueType is a Wasm value type, which in this subset is always a
// number type.
type ValueType byte

// The four value types recognized by the binary format.
const (
	ValueTypeI32 ValueType = 0x7F
	ValueTypeI64 ValueType = 0x7E
	ValueTypeF32 ValueType = 0x7D
	ValueTypeF64 ValueType = 0x7C
)

func (v ValueType) String() string {
	switch v {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	}
	return fmt.Sprintf("valtype(%#x)", byte(v))
}

// NumberType maps a binary ValueType onto the runtime's number.Type.
func (v ValueType) NumberType() number.Type {
	switch v {
	case ValueTypeI32:
		return number.I32
	case ValueTypeI64:
		return number.I64
	case ValueTypeF32:
		return number.F32
	case ValueTypeF64:
		return number.F64
	}
	panic(fmt.Sprintf("wasm: invalid value type %#x", byte(v)))
}

func isValueType(b byte) bool {
	switch ValueType(b) {
	case ValueTypeI32, ValueTypeI64, ValueTypeF32, ValueTypeF64:
		return true
	}
	return false
}

func readValueType(r *util.ByteReader) (ValueType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	if !isValueType(b) {
		return 0, fmt.Errorf("wasm: invalid value type byte %#x at offset %d", b, r.Offset()-1)
	}
	return ValueType(b), nil
}

// blockTypeEmpty is the binary marker for a block type producing no
// value.
const blockTypeEmpty byte = 0x40

// BlockType is the return-arity signature of a structured region:
// either Empty (arity 0) or a single ValueType (arity 1).
type BlockType struct {
	Empty bool
	Value ValueType
}

// Arity returns the number of values the block type produces.
func (bt BlockType) Arity() int {
	if bt.Empty {
		return 0
	}
	return 1
}

func readBlockType(r *util.ByteReader) (BlockType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return BlockType{}, err
	}
	if b == blockTypeEmpty {
		return BlockType{Empty: true}, nil
	}
	if !isValueType(b) {
		return BlockType{}, fmt.Errorf("wasm: invalid block type byte %#x at offset %d", b, r.Offset()-1)
	}
	return BlockType{Value: ValueType(b)}, nil
}

func (bt BlockType) encode(buf *util.Buffer) {
	if bt.Empty {
		buf.WriteByte(blockTypeEmpty)
		return
	}
	buf.WriteByte(byte(bt.Value))
}

// funcTypeForm is the header byte of every function type.
const funcTypeForm byte = 0x60

// FuncType is a function signature: a vector of parameter types
// followed by a vector of result types. Equality is structural.
type FuncType struct {
	Params  []ValueType
	Results []ValueType
}

// Equal reports whether two function types are structurally equal.
func (ft FuncType) Equal(other FuncType) bool {
	if len(ft.Params) != len(other.Params) || len(ft.Results) != len(other.Results) {
		return false
	}
	for i := range ft.Params {
		if ft.Params[i] != other.Params[i] {
			return false
		}
	}
	for i := range ft.Results {
		if ft.Results[i] != other.Results[i] {
			return false
		}
	}
	return true
}

func readResultType(r *util.ByteReader) ([]ValueType, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	out := make([]ValueType, n)
	for i := range out {
		out[i], err = readValueType(r)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func writeResultType(buf *util.Buffer, types []ValueType) {
	buf.WriteU32(uint32(len(types)))
	for _, t := range types {
		buf.WriteByte(byte(t))
	}
}

func readFuncType(r *util.ByteReader) (FuncType, error) {
	form, err := r.ReadByte()
	if err != nil {
		return FuncType{}, err
	}
	if form != funcTypeForm {
		return FuncType{}, fmt.Errorf("wasm: invalid functype form %#x at offset %d", form, r.Offset()-1)
	}
	params, err := readResultType(r)
	if err != nil {
		return FuncType{}, err
	}
	results, err := readResultType(r)
	if err != nil {
		return FuncType{}, err
	}
	return FuncType{Params: params, Results: results}, nil
}

func (ft FuncType) encode(buf *util.Buffer) {
	buf.WriteByte(funcTypeForm)
	writeResultType(buf, ft.Params)
	writeResultType(buf, ft.Results)
}

// elemTypeFuncRef is the only element type Wasm 1.0 allows for tables.
const elemTypeFuncRef byte = 0x70

// Limits bounds a table or memory's size, as either {min} or
// {min, max}.
type Limits struct {
	HasMax bool
	Min    uint32
	Max    uint32
}

func readLimits(r *util.ByteReader) (Limits, error) {
	flag, err := r.ReadByte()
	if err != nil {
		return Limits{}, err
	}
	var l Limits
	switch flag {
	case 0x00:
		l.Min, err = r.ReadU32()
	case 0x01:
		l.HasMax = true
		if l.Min, err = r.ReadU32(); err == nil {
			l.Max, err = r.ReadU32()
		}
	default:
		return Limits{}, fmt.Errorf("wasm: invalid limits flag %#x at offset %d", flag, r.Offset()-1)
	}
	return l, err
}

func (l Limits) encode(buf *util.Buffer) {
	if l.HasMax {
		buf.WriteByte(0x01)
		buf.WriteU32(l.Min)
		buf.WriteU32(l.Max)
		return
	}
	buf.WriteByte(0x00)
	buf.WriteU32(l.Min)
}

// TableType describes a Table import/definition.
type TableType struct {
	ElemType byte
	Limits   Limits
}

func readTableType(r *util.ByteReader) (TableType, error) {
	elemType, err := r.ReadByte()
	if err != nil {
		return TableType{}, err
	}
	if elemType != elemTypeFuncRef {
		return TableType{}, fmt.Errorf("wasm: invalid table element type %#x at offset %d", elemType, r.Offset()-1)
	}
	limits, err := readLimits(r)
	if err != nil {
		return TableType{}, err
	}
	return TableType{ElemType: elemType, Limits: limits}, nil
}

func (t TableType) encode(buf *util.Buffer) {
	buf.WriteByte(t.ElemType)
	t.Limits.encode(buf)
}

// MemType describes a Memory import/definition.
type MemType struct {
	Limits Limits
}

func readMemType(r *util.ByteReader) (MemType, error) {
	limits, err := readLimits(r)
	if err != nil {
		return MemType{}, err
	}
	return MemType{Limits: limits}, nil
}

func (m MemType) encode(buf *util.Buffer) {
	m.Limits.encode(buf)
}

// GlobalType describes a Global's value type and mutability.
type GlobalType struct {
	Value   ValueType
	Mutable bool
}

func readGlobalType(r *util.ByteReader) (GlobalType, error) {
	vt, err := readValueType(r)
	if err != nil {
		return GlobalType{}, err
	}
	mutByte, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	if mutByte != 0x00 && mutByte != 0x01 {
		return GlobalType{}, fmt.Errorf("wasm: invalid mutability flag %#x at offset %d", mutByte, r.Offset()-1)
	}
	return GlobalType{Value: vt, Mutable: mutByte == 0x01}, nil
}

func (g GlobalType) encode(buf *util.Buffer) {
	buf.WriteByte(byte(g.Value))
	if g.Mutable {
		buf.WriteByte(0x01)
	} else {
		buf.WriteByte(0x00)
	}
}

func readName(r *util.ByteReader) (string, error) {
	n, err := r.ReadU32()
	if err != nil {
		return "", err
	}
	b, err := r.ReadBytes(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("wasm: invalid utf-8 string at offset %d", r.Offset()-int(n))
	}
	return string(b), nil
}
