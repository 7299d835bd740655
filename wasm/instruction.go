package wasm

import (
	"fmt"

	"github.com/vertexdlt/wasmkit/util"
)

// Op is a Wasm instruction opcode byte.
type Op byte

// Opcodes decoded by this toolkit. Naming and grouping follows the
// canonical Wasm binary encoding table. Every opcode below is
// decoded, encoded and interpreted by vm.Execute, except Else and
// End, which only terminate expressions and never become an
// Instruction; the decoder rejects any other opcode byte.
const (
	OpUnreachable Op = 0x00
	OpNop         Op = 0x01
	OpBlock       Op = 0x02
	OpLoop        Op = 0x03
	OpIf          Op = 0x04
	OpElse        Op = 0x05
	OpEnd         Op = 0x0B
	OpBr          Op = 0x0C
	OpBrIf        Op = 0x0D
	OpReturn      Op = 0x0F
	OpCall        Op = 0x10
	OpDrop        Op = 0x1A

	OpLocalGet  Op = 0x20
	OpLocalSet  Op = 0x21
	OpLocalTee  Op = 0x22
	OpGlobalGet Op = 0x23
	OpGlobalSet Op = 0x24

	OpI32Const Op = 0x41
	OpI64Const Op = 0x42
	OpF32Const Op = 0x43
	OpF64Const Op = 0x44

	OpI32Eqz Op = 0x45
	OpI32Eq  Op = 0x46
	OpI32Ne  Op = 0x47
	OpI32LtS Op = 0x48
	OpI32LtU Op = 0x49
	OpI32GtS Op = 0x4A
	OpI32GtU Op = 0x4B
	OpI32LeS Op = 0x4C
	OpI32LeU Op = 0x4D
	OpI32GeS Op = 0x4E
	OpI32GeU Op = 0x4F

	OpI32Add  Op = 0x6A
	OpI32Sub  Op = 0x6B
	OpI32Mul  Op = 0x6C
	OpI32DivS Op = 0x6D
	OpI32DivU Op = 0x6E
	OpI32RemS Op = 0x6F
	OpI32RemU Op = 0x70
	OpI32And  Op = 0x71
	OpI32Or   Op = 0x72
	OpI32Xor  Op = 0x73
	OpI32Shl  Op = 0x74
	OpI32ShrS Op = 0x75
	OpI32ShrU Op = 0x76
	OpI32Rotl Op = 0x77
	OpI32Rotr Op = 0x78
)

func (op Op) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return fmt.Sprintf("op(%#x)", byte(op))
}

var opNames = map[Op]string{
	OpUnreachable: "unreachable", OpNop: "nop", OpBlock: "block", OpLoop: "loop",
	OpIf: "if", OpElse: "else", OpEnd: "end", OpBr: "br", OpBrIf: "br_if",
	OpReturn: "return", OpCall: "call", OpDrop: "drop",
	OpLocalGet: "local.get", OpLocalSet: "local.set", OpLocalTee: "local.tee",
	OpGlobalGet: "global.get", OpGlobalSet: "global.set",
	OpI32Const: "i32.const", OpI64Const: "i64.const", OpF32Const: "f32.const", OpF64Const: "f64.const",
	OpI32Eqz: "i32.eqz", OpI32Eq: "i32.eq", OpI32Ne: "i32.ne",
	OpI32LtS: "i32.lt_s", OpI32LtU: "i32.lt_u", OpI32GtS: "i32.gt_s", OpI32GtU: "i32.gt_u",
	OpI32LeS: "i32.le_s", OpI32LeU: "i32.le_u", OpI32GeS: "i32.ge_s", OpI32GeU: "i32.ge_u",
	OpI32Add: "i32.add", OpI32Sub: "i32.sub", OpI32Mul: "i32.mul",
	OpI32DivS: "i32.div_s", OpI32DivU: "i32.div_u", OpI32RemS: "i32.rem_s", OpI32RemU: "i32.rem_u",
	OpI32And: "i32.and", OpI32Or: "i32.or", OpI32Xor: "i32.xor",
	OpI32Shl: "i32.shl", OpI32ShrS: "i32.shr_s", OpI32ShrU: "i32.shr_u",
	OpI32Rotl: "i32.rotl", OpI32Rotr: "i32.rotr",
}

// Instruction is a tagged variant over the opcodes above, carrying
// its immediates inline. Structured instructions (block/loop/if) own
// nested Then/Else expressions instead of a flattened byte range, so
// a branch target is a tree position rather than a byte offset.
type Instruction struct {
	Op Op

	// Index carries local/global/function/label indices for
	// local.get/set/tee, global.get/set, call, br, br_if.
	Index uint32

	// I32/I64/F32Bits/F64Bits carry the immediate of a const
	// instruction. F32Bits/F64Bits hold raw IEEE-754 bit patterns.
	I32     int32
	I64     int64
	F32Bits uint32
	F64Bits uint64

	// BlockType is valid for Block, Loop, and If.
	BlockType BlockType

	// Then is the body of Block/Loop, or the then-branch of If.
	Then []Instruction
	// Else is the else-branch of If; HasElse distinguishes a present
	// but empty else from no else at all.
	Else    []Instruction
	HasElse bool
}

// isStructured reports whether op owns a nested expression (block,
// loop, if).
func isStructured(op Op) bool {
	return op == OpBlock || op == OpLoop || op == OpIf
}

// readExpression parses instructions until it consumes a terminating
// End (0x0B) or, when stopAtElse is true, an Else (0x05) belonging to
// the same nesting depth. It returns the instructions read and which
// byte (OpEnd or OpElse) terminated them.
func readExpression(r *util.ByteReader, stopAtElse bool) ([]Instruction, Op, error) {
	var out []Instruction
	for {
		opByte, err := r.ReadByte()
		if err != nil {
			return nil, 0, err
		}
		op := Op(opByte)
		if op == OpEnd {
			return out, OpEnd, nil
		}
		if op == OpElse && stopAtElse {
			return out, OpElse, nil
		}
		ins, err := readInstruction(r, op)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, ins)
	}
}

func readInstruction(r *util.ByteReader, op Op) (Instruction, error) {
	ins := Instruction{Op: op}
	switch op {
	case OpUnreachable, OpNop, OpReturn, OpDrop,
		OpI32Eqz, OpI32Eq, OpI32Ne, OpI32LtS, OpI32LtU, OpI32GtS, OpI32GtU,
		OpI32LeS, OpI32LeU, OpI32GeS, OpI32GeU,
		OpI32Add, OpI32Sub, OpI32Mul, OpI32DivS, OpI32DivU, OpI32RemS, OpI32RemU,
		OpI32And, OpI32Or, OpI32Xor, OpI32Shl, OpI32ShrS, OpI32ShrU, OpI32Rotl, OpI32Rotr:
		return ins, nil
	case OpLocalGet, OpLocalSet, OpLocalTee, OpGlobalGet, OpGlobalSet, OpCall, OpBr, OpBrIf:
		idx, err := r.ReadU32()
		if err != nil {
			return ins, err
		}
		ins.Index = idx
		return ins, nil
	case OpI32Const:
		v, err := r.ReadI32()
		if err != nil {
			return ins, err
		}
		ins.I32 = v
		return ins, nil
	case OpI64Const:
		v, err := r.ReadI64()
		if err != nil {
			return ins, err
		}
		ins.I64 = v
		return ins, nil
	case OpF32Const:
		b, err := r.ReadBytes(4)
		if err != nil {
			return ins, err
		}
		ins.F32Bits = uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
		return ins, nil
	case OpF64Const:
		b, err := r.ReadBytes(8)
		if err != nil {
			return ins, err
		}
		var v uint64
		for i := 7; i >= 0; i-- {
			v = v<<8 | uint64(b[i])
		}
		ins.F64Bits = v
		return ins, nil
	case OpBlock, OpLoop, OpIf:
		bt, err := readBlockType(r)
		if err != nil {
			return ins, err
		}
		ins.BlockType = bt
		then, term, err := readExpression(r, op == OpIf)
		if err != nil {
			return ins, err
		}
		ins.Then = then
		if op == OpIf && term == OpElse {
			elseBody, _, err := readExpression(r, false)
			if err != nil {
				return ins, err
			}
			ins.Else = elseBody
			ins.HasElse = true
		}
		return ins, nil
	default:
		return ins, fmt.Errorf("wasm: unknown opcode %s at offset %d", op, r.Offset()-1)
	}
}

// size returns the encoded byte length of the instruction, including
// its opcode byte and any nested expressions.
func (ins Instruction) size() int {
	n := 1
	switch ins.Op {
	case OpLocalGet, OpLocalSet, OpLocalTee, OpGlobalGet, OpGlobalSet, OpCall, OpBr, OpBrIf:
		n += leb128SizeU32(ins.Index)
	case OpI32Const:
		n += leb128SizeI32(ins.I32)
	case OpI64Const:
		n += leb128SizeI64(ins.I64)
	case OpF32Const:
		n += 4
	case OpF64Const:
		n += 8
	case OpBlock, OpLoop, OpIf:
		n += 1 // block type byte
		n += expressionSize(ins.Then)
		n += 1 // terminating end or else byte for the then-branch
		if ins.HasElse {
			n += expressionSize(ins.Else)
			n += 1 // terminating end for the else-branch
		}
	}
	return n
}

func expressionSize(ins []Instruction) int {
	n := 0
	for _, i := range ins {
		n += i.size()
	}
	return n
}

// encode appends the instruction's bytes to buf, including a
// terminating End (and, for If with an else branch, an Else marker)
// for structured instructions.
func (ins Instruction) encode(buf *util.Buffer) {
	buf.WriteByte(byte(ins.Op))
	switch ins.Op {
	case OpLocalGet, OpLocalSet, OpLocalTee, OpGlobalGet, OpGlobalSet, OpCall, OpBr, OpBrIf:
		buf.WriteU32(ins.Index)
	case OpI32Const:
		buf.WriteI32(ins.I32)
	case OpI64Const:
		buf.WriteI64(ins.I64)
	case OpF32Const:
		v := ins.F32Bits
		buf.WriteBytes([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
	case OpF64Const:
		v := ins.F64Bits
		b := make([]byte, 8)
		for i := 0; i < 8; i++ {
			b[i] = byte(v)
			v >>= 8
		}
		buf.WriteBytes(b)
	case OpBlock, OpLoop, OpIf:
		ins.BlockType.encode(buf)
		encodeExpression(buf, ins.Then)
		if ins.HasElse {
			buf.WriteByte(byte(OpElse))
			encodeExpression(buf, ins.Else)
		}
		buf.WriteByte(byte(OpEnd))
	}
}

func encodeExpression(buf *util.Buffer, ins []Instruction) {
	for _, i := range ins {
		i.encode(buf)
	}
}

func leb128SizeU32(v uint32) int {
	n := 1
	for v >>= 7; v != 0; v >>= 7 {
		n++
	}
	return n
}

func leb128SizeI32(v int32) int {
	return leb128SizeI64(int64(v))
}

func leb128SizeI64(v int64) int {
	n := 1
	for {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			return n
		}
		n++
	}
}
