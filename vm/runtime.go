package vm

import (
	"fmt"
	"math/bits"

	"github.com/vertexdlt/wasmkit/number"
	"github.com/vertexdlt/wasmkit/wasm"
)

// MaxFrames bounds the interpreter's call depth.
const MaxFrames = 1024

// entryKind tags a Runtime stack slot.
type entryKind int

const (
	entryValue entryKind = iota
	entryLabel
)

// LabelKind distinguishes the three structured-instruction forms a
// Label can mark, since br resumes differently for each.
type LabelKind int

// The three structured-instruction label kinds.
const (
	LabelBlock LabelKind = iota
	LabelLoop
	LabelIf
)

// Label is a runtime entity pushed onto the operand stack on entry
// to a structured region: its kind, its declared result arity, and
// the operand-stack depth to truncate back to on exit.
type Label struct {
	Kind            LabelKind
	Arity           int
	SavedStackDepth int
}

// stackEntry is a single operand-stack slot, holding either a value
// or a label; the two are never tracked in separate stacks. A `br k`
// does not search this stack: its depth travels back up the recursive
// tree walk as a signal, and the targeted label's SavedStackDepth
// tells unwindToLabel where to truncate.
type stackEntry struct {
	kind  entryKind
	value number.Number
	label Label
}

// Frame holds a function activation's locals and the depth its
// operand stack started at, so `return` knows how much to unwind.
type Frame struct {
	fn        *Function
	locals    []number.Number
	baseDepth int
}

// Runtime is a single call to Execute: its frame stack and its
// interleaved value/label operand stack. A Runtime is single-use and
// not safe for concurrent calls.
type Runtime struct {
	instance *Instance
	stack    []stackEntry
	frames   []*Frame
	gas      *Gas
}

// control-flow signal returned by instruction execution: sigNone
// means fall through to the next instruction, sigReturn means unwind
// to the caller, and any value >= 0 means branch to the label k
// levels up (0 = innermost).
const (
	sigNone   = -1
	sigReturn = -2
)

// Execute resolves name in the instance's export map and invokes it
// with args, returning its single result (nil if the function has no
// result). gasLimit is ignored unless inst.GasPolicy is set.
func Execute(inst *Instance, name string, args []number.Number, gasLimit uint64) (result *number.Number, err error) {
	fn, _, err := inst.LookupFunction(name)
	if err != nil {
		return nil, err
	}
	if len(args) != len(fn.Type.Params) {
		return nil, ErrWrongNumberOfArgs
	}

	rt := &Runtime{instance: inst}
	if inst.GasPolicy != nil {
		rt.gas = &Gas{Limit: gasLimit}
	}

	defer func() {
		if r := recover(); r != nil {
			if ee, ok := r.(*ExecError); ok {
				err = ee
				return
			}
			panic(r)
		}
	}()

	return rt.invoke(fn, args)
}

// Invoke is Execute with a gas limit of 0. Execution is unmetered
// when inst.GasPolicy is nil; with a GasPolicy set, the first
// instruction with a non-zero cost fails with ErrOutOfGas.
func (inst *Instance) Invoke(name string, args ...number.Number) (*number.Number, error) {
	return Execute(inst, name, args, 0)
}

func (rt *Runtime) chargeGas(op wasm.Op) error {
	if rt.gas == nil || rt.instance.GasPolicy == nil {
		return nil
	}
	return rt.gas.charge(rt.instance.GasPolicy.GetCostForOp(op))
}

func (rt *Runtime) pushValue(v number.Number) {
	if len(rt.stack) >= StackSize {
		panic(ErrStackOverflow)
	}
	rt.stack = append(rt.stack, stackEntry{kind: entryValue, value: v})
}

func (rt *Runtime) popValue() number.Number {
	if len(rt.stack) == 0 {
		panic(ErrStackUnderflow)
	}
	e := rt.stack[len(rt.stack)-1]
	if e.kind != entryValue {
		panic(ErrMismatchedOperandType)
	}
	rt.stack = rt.stack[:len(rt.stack)-1]
	return e.value
}

func (rt *Runtime) peekValue() number.Number {
	if len(rt.stack) == 0 {
		panic(ErrStackUnderflow)
	}
	e := rt.stack[len(rt.stack)-1]
	if e.kind != entryValue {
		panic(ErrMismatchedOperandType)
	}
	return e.value
}

func (rt *Runtime) pushLabel(l Label) {
	rt.stack = append(rt.stack, stackEntry{kind: entryLabel, label: l})
}

// StackSize bounds the combined value/label operand stack.
const StackSize = 1 << 16

// invoke pushes a frame for fn, runs its body to completion (either
// by falling off the end or via an unwound `return`), and pops a
// single result off the operand stack if the function declares one.
func (rt *Runtime) invoke(fn *Function, args []number.Number) (*number.Number, error) {
	if fn.IsImport {
		if fn.Host == nil {
			return nil, fmt.Errorf("%w: %s.%s", ErrImportNotResolved, fn.Import.Module, fn.Import.Field)
		}
		return fn.Host(args)
	}

	if len(rt.frames) >= MaxFrames {
		panic(ErrFrameOverflow)
	}

	locals := make([]number.Number, len(args)+len(fn.Locals))
	copy(locals, args)
	for i, t := range fn.Locals {
		locals[len(args)+i] = number.Zero(t.NumberType())
	}

	frame := &Frame{fn: fn, locals: locals, baseDepth: len(rt.stack)}
	rt.frames = append(rt.frames, frame)

	sig, err := rt.execInstrs(frame, fn.Body)
	if err != nil {
		rt.frames = rt.frames[:len(rt.frames)-1]
		return nil, err
	}
	if sig >= 0 {
		rt.frames = rt.frames[:len(rt.frames)-1]
		panic(ErrInvalidBreakDepth)
	}
	// sig is now either sigNone (fell off the end) or sigReturn — both
	// unwind the same way, since a function body's implicit result is
	// whatever sits on top of the operand stack.

	var result *number.Number
	if len(fn.Type.Results) == 1 {
		v := rt.popValue()
		result = &v
	}
	rt.stack = rt.stack[:frame.baseDepth]
	rt.frames = rt.frames[:len(rt.frames)-1]
	return result, nil
}

// execInstrs runs instrs in order, stopping early if one of them
// yields a control-flow signal (branch or return).
func (rt *Runtime) execInstrs(frame *Frame, instrs []wasm.Instruction) (int, error) {
	for _, ins := range instrs {
		sig, err := rt.execOne(frame, ins)
		if err != nil {
			return sigNone, err
		}
		if sig != sigNone {
			return sig, nil
		}
	}
	return sigNone, nil
}

func (rt *Runtime) execOne(frame *Frame, ins wasm.Instruction) (sig int, err error) {
	if err := rt.chargeGas(ins.Op); err != nil {
		return sigNone, err
	}

	switch ins.Op {
	case wasm.OpUnreachable:
		panic(ErrUnreachable)
	case wasm.OpNop:
		return sigNone, nil
	case wasm.OpDrop:
		rt.popValue()
		return sigNone, nil

	case wasm.OpI32Const:
		rt.pushValue(number.I32Val(ins.I32))
		return sigNone, nil
	case wasm.OpI64Const:
		rt.pushValue(number.I64Val(ins.I64))
		return sigNone, nil
	case wasm.OpF32Const:
		rt.pushValue(number.Number{Type: number.F32, Bits: uint64(ins.F32Bits)})
		return sigNone, nil
	case wasm.OpF64Const:
		rt.pushValue(number.Number{Type: number.F64, Bits: ins.F64Bits})
		return sigNone, nil

	case wasm.OpLocalGet:
		rt.pushValue(frame.locals[ins.Index])
		return sigNone, nil
	case wasm.OpLocalSet:
		frame.locals[ins.Index] = rt.popValue()
		return sigNone, nil
	case wasm.OpLocalTee:
		frame.locals[ins.Index] = rt.peekValue()
		return sigNone, nil
	case wasm.OpGlobalGet:
		rt.pushValue(rt.instance.Globals[ins.Index])
		return sigNone, nil
	case wasm.OpGlobalSet:
		rt.instance.Globals[ins.Index] = rt.popValue()
		return sigNone, nil

	case wasm.OpReturn:
		return sigReturn, nil

	case wasm.OpCall:
		return rt.execCall(ins.Index)

	case wasm.OpBr:
		return int(ins.Index), nil
	case wasm.OpBrIf:
		cond := rt.popValue()
		if cond.I32() != 0 {
			return int(ins.Index), nil
		}
		return sigNone, nil

	case wasm.OpBlock:
		return rt.execStructured(frame, LabelBlock, ins)
	case wasm.OpLoop:
		return rt.execStructured(frame, LabelLoop, ins)
	case wasm.OpIf:
		cond := rt.popValue()
		if cond.I32() != 0 {
			return rt.execStructured(frame, LabelIf, ins)
		}
		if ins.HasElse {
			return rt.execIfElse(frame, ins)
		}
		return sigNone, nil

	default:
		return rt.execOperator(ins)
	}
}

func (rt *Runtime) execCall(funcIndex uint32) (int, error) {
	fn := rt.instance.Functions[funcIndex]
	args := make([]number.Number, len(fn.Type.Params))
	for i := len(args) - 1; i >= 0; i-- {
		args[i] = rt.popValue()
	}
	result, err := rt.invoke(fn, args)
	if err != nil {
		return sigNone, err
	}
	if result != nil {
		rt.pushValue(*result)
	}
	return sigNone, nil
}

// execStructured runs a block/loop/if's Then expression under a
// fresh label, looping to restart it when a branch targets this
// exact Loop label, and translating any branch targeting an
// enclosing label (sig > 0) or a return into a propagated signal.
func (rt *Runtime) execStructured(frame *Frame, kind LabelKind, ins wasm.Instruction) (int, error) {
	label := Label{Kind: kind, Arity: ins.BlockType.Arity(), SavedStackDepth: len(rt.stack)}
	rt.pushLabel(label)
	for {
		sig, err := rt.execInstrs(frame, ins.Then)
		if err != nil {
			return sigNone, err
		}
		switch {
		case sig == sigNone:
			rt.endLabel(label)
			return sigNone, nil
		case sig == sigReturn:
			return sigReturn, nil
		case sig == 0:
			rt.unwindToLabel(label)
			if kind == LabelLoop {
				continue
			}
			return sigNone, nil
		default:
			return sig - 1, nil
		}
	}
}

func (rt *Runtime) execIfElse(frame *Frame, ins wasm.Instruction) (int, error) {
	label := Label{Kind: LabelIf, Arity: ins.BlockType.Arity(), SavedStackDepth: len(rt.stack)}
	rt.pushLabel(label)
	sig, err := rt.execInstrs(frame, ins.Else)
	if err != nil {
		return sigNone, err
	}
	switch {
	case sig == sigNone:
		rt.endLabel(label)
		return sigNone, nil
	case sig == sigReturn:
		return sigReturn, nil
	case sig == 0:
		rt.unwindToLabel(label)
		return sigNone, nil
	default:
		return sig - 1, nil
	}
}

// endLabel pops the Label entry a structured instruction pushed,
// after verifying its arity matches what the body actually produced.
func (rt *Runtime) endLabel(label Label) {
	got := len(rt.stack) - 1 - label.SavedStackDepth
	if got != label.Arity {
		panic(NewExecError(fmt.Sprintf("block produced %d values, wanted %d", got, label.Arity)))
	}
	values := append([]number.Number(nil), rt.valuesAbove(label.SavedStackDepth+1)...)
	rt.stack = rt.stack[:label.SavedStackDepth]
	for _, v := range values {
		rt.pushValue(v)
	}
}

// unwindToLabel implements a br targeting this exact label: it
// preserves the label's declared arity of top values, truncates the
// stack back to the point just before the label was pushed, and for
// a Loop re-pushes the label so the caller can restart iteration.
func (rt *Runtime) unwindToLabel(label Label) {
	if len(rt.stack) < label.SavedStackDepth+1+label.Arity {
		panic(ErrInvalidBreakDepth)
	}
	var vals []number.Number
	for _, e := range rt.stack[len(rt.stack)-label.Arity:] {
		if e.kind != entryValue {
			panic(ErrMismatchedOperandType)
		}
		vals = append(vals, e.value)
	}
	rt.stack = rt.stack[:label.SavedStackDepth]
	if label.Kind == LabelLoop {
		rt.pushLabel(label)
	}
	for _, v := range vals {
		rt.pushValue(v)
	}
}

func (rt *Runtime) valuesAbove(depth int) []number.Number {
	var out []number.Number
	for _, e := range rt.stack[depth:] {
		if e.kind != entryValue {
			panic(ErrMismatchedOperandType)
		}
		out = append(out, e.value)
	}
	return out
}

// execOperator handles the i32 comparison and arithmetic opcodes,
// the only binary/unary operator families this subset interprets.
func (rt *Runtime) execOperator(ins wasm.Instruction) (int, error) {
	switch ins.Op {
	case wasm.OpI32Eqz:
		v := rt.popValue()
		rt.pushValue(boolNumber(v.I32() == 0))
		return sigNone, nil
	case wasm.OpI32Eq, wasm.OpI32Ne,
		wasm.OpI32LtS, wasm.OpI32LtU, wasm.OpI32GtS, wasm.OpI32GtU,
		wasm.OpI32LeS, wasm.OpI32LeU, wasm.OpI32GeS, wasm.OpI32GeU:
		rhs := rt.popValue()
		lhs := rt.popValue()
		rt.pushValue(boolNumber(compareI32(ins.Op, lhs.I32(), rhs.I32(), lhs.U32(), rhs.U32())))
		return sigNone, nil
	case wasm.OpI32Add, wasm.OpI32Sub, wasm.OpI32Mul,
		wasm.OpI32DivS, wasm.OpI32DivU, wasm.OpI32RemS, wasm.OpI32RemU,
		wasm.OpI32And, wasm.OpI32Or, wasm.OpI32Xor,
		wasm.OpI32Shl, wasm.OpI32ShrS, wasm.OpI32ShrU,
		wasm.OpI32Rotl, wasm.OpI32Rotr:
		rhs := rt.popValue()
		lhs := rt.popValue()
		rt.pushValue(number.I32Val(arithI32(ins.Op, lhs.I32(), rhs.I32())))
		return sigNone, nil
	default:
		panic(ErrUnknownOpcode)
	}
}

func boolNumber(b bool) number.Number {
	if b {
		return number.I32Val(1)
	}
	return number.I32Val(0)
}

func compareI32(op wasm.Op, lhs, rhs int32, ulhs, urhs uint32) bool {
	switch op {
	case wasm.OpI32Eq:
		return lhs == rhs
	case wasm.OpI32Ne:
		return lhs != rhs
	case wasm.OpI32LtS:
		return lhs < rhs
	case wasm.OpI32LtU:
		return ulhs < urhs
	case wasm.OpI32GtS:
		return lhs > rhs
	case wasm.OpI32GtU:
		return ulhs > urhs
	case wasm.OpI32LeS:
		return lhs <= rhs
	case wasm.OpI32LeU:
		return ulhs <= urhs
	case wasm.OpI32GeS:
		return lhs >= rhs
	case wasm.OpI32GeU:
		return ulhs >= urhs
	}
	panic(ErrUnknownOpcode)
}

func arithI32(op wasm.Op, lhs, rhs int32) int32 {
	switch op {
	case wasm.OpI32Add:
		return lhs + rhs
	case wasm.OpI32Sub:
		return lhs - rhs
	case wasm.OpI32Mul:
		return lhs * rhs
	case wasm.OpI32DivS:
		if rhs == 0 {
			panic(ErrIntegerDivisionByZero)
		}
		if lhs == -1<<31 && rhs == -1 {
			panic(ErrIntegerOverflow)
		}
		return lhs / rhs
	case wasm.OpI32DivU:
		if rhs == 0 {
			panic(ErrIntegerDivisionByZero)
		}
		return int32(uint32(lhs) / uint32(rhs))
	case wasm.OpI32RemS:
		if rhs == 0 {
			panic(ErrIntegerDivisionByZero)
		}
		return lhs % rhs
	case wasm.OpI32RemU:
		if rhs == 0 {
			panic(ErrIntegerDivisionByZero)
		}
		return int32(uint32(lhs) % uint32(rhs))
	case wasm.OpI32And:
		return lhs & rhs
	case wasm.OpI32Or:
		return lhs | rhs
	case wasm.OpI32Xor:
		return lhs ^ rhs
	case wasm.OpI32Shl:
		return lhs << (uint32(rhs) % 32)
	case wasm.OpI32ShrS:
		return lhs >> (uint32(rhs) % 32)
	case wasm.OpI32ShrU:
		return int32(uint32(lhs) >> (uint32(rhs) % 32))
	case wasm.OpI32Rotl:
		return int32(bits.RotateLeft32(uint32(lhs), int(rhs)))
	case wasm.OpI32Rotr:
		return int32(bits.RotateLeft32(uint32(lhs), -int(rhs)))
	}
	panic(ErrUnknownOpcode)
}
