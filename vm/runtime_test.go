package vm

import (
	"testing"

	"github.com/vertexdlt/wasmkit/number"
	"github.com/vertexdlt/wasmkit/wasm"
)

// buildModule assembles a minimal single-function module: one Type
// entry, one Function/Code entry, and one Export naming it.
func buildModule(params, results []wasm.ValueType, locals []wasm.LocalEntry, body []wasm.Instruction, exportName string) *wasm.Module {
	m := &wasm.Module{}

	typeSec := &wasm.TypeSec{FuncTypes: []wasm.FuncType{{Params: params, Results: results}}}
	funcSec := &wasm.FunctionSec{TypeIndices: []uint32{0}}
	codeSec := &wasm.CodeSec{Codes: []wasm.Code{{Locals: locals, Body: body}}}
	exportSec := &wasm.ExportSec{Exports: []wasm.Export{{Name: exportName, Kind: wasm.ExportKindFunction, Index: 0}}}

	m.Type = typeSec
	m.Function = funcSec
	m.Code = codeSec
	m.Export = exportSec
	m.Sections = []wasm.Section{typeSec, funcSec, exportSec, codeSec}
	return m
}

func constI32(v int32) wasm.Instruction { return wasm.Instruction{Op: wasm.OpI32Const, I32: v} }
func localGet(i uint32) wasm.Instruction {
	return wasm.Instruction{Op: wasm.OpLocalGet, Index: i}
}

// instantiate round-trips m through Encode/Decode before building an
// Instance, the same path a real .wasm file on disk would take.
func instantiate(t *testing.T, m *wasm.Module) *Instance {
	t.Helper()
	decoded, err := wasm.Decode(m.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	inst, err := NewInstance(decoded, nil)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	return inst
}

func TestEndToEndScenarios(t *testing.T) {
	i32 := []wasm.ValueType{wasm.ValueTypeI32}

	t.Run("const_i32", func(t *testing.T) {
		m := buildModule(nil, i32, nil, []wasm.Instruction{constI32(42)}, "const_i32")
		inst := instantiate(t, m)
		result, err := inst.Invoke("const_i32")
		if err != nil {
			t.Fatal(err)
		}
		if result.I32() != 42 {
			t.Fatalf("got %d, want 42", result.I32())
		}
	})

	t.Run("local_i32_var", func(t *testing.T) {
		body := []wasm.Instruction{
			constI32(55),
			{Op: wasm.OpLocalSet, Index: 0},
			localGet(0),
		}
		m := buildModule(nil, i32, []wasm.LocalEntry{{Count: 1, Type: wasm.ValueTypeI32}}, body, "local_i32_var")
		inst := instantiate(t, m)
		result, err := inst.Invoke("local_i32_var")
		if err != nil {
			t.Fatal(err)
		}
		if result.I32() != 55 {
			t.Fatalf("got %d, want 55", result.I32())
		}
	})

	t.Run("i32_add", func(t *testing.T) {
		body := []wasm.Instruction{localGet(0), localGet(1), {Op: wasm.OpI32Add}}
		m := buildModule([]wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}, i32, nil, body, "i32_add")
		inst := instantiate(t, m)
		result, err := inst.Invoke("i32_add", number.I32Val(1), number.I32Val(2))
		if err != nil {
			t.Fatal(err)
		}
		if result.I32() != 3 {
			t.Fatalf("got %d, want 3", result.I32())
		}
	})

	t.Run("i32_sub", func(t *testing.T) {
		body := []wasm.Instruction{localGet(0), localGet(1), {Op: wasm.OpI32Sub}}
		m := buildModule([]wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}, i32, nil, body, "i32_sub")
		inst := instantiate(t, m)
		result, err := inst.Invoke("i32_sub", number.I32Val(1), number.I32Val(2))
		if err != nil {
			t.Fatal(err)
		}
		if result.I32() != -1 {
			t.Fatalf("got %d, want -1", result.I32())
		}
	})

	t.Run("if_i32_ge_s", func(t *testing.T) {
		body := []wasm.Instruction{
			localGet(0),
			constI32(50),
			{Op: wasm.OpI32GeS},
			{
				Op:        wasm.OpIf,
				BlockType: wasm.BlockType{Value: wasm.ValueTypeI32},
				Then:      []wasm.Instruction{constI32(1)},
				Else:      []wasm.Instruction{constI32(0)},
				HasElse:   true,
			},
		}
		m := buildModule([]wasm.ValueType{wasm.ValueTypeI32}, i32, nil, body, "if_i32_ge_s")
		inst := instantiate(t, m)

		result, err := inst.Invoke("if_i32_ge_s", number.I32Val(100))
		if err != nil {
			t.Fatal(err)
		}
		if result.I32() != 1 {
			t.Fatalf("args=100: got %d, want 1", result.I32())
		}

		result, err = inst.Invoke("if_i32_ge_s", number.I32Val(0))
		if err != nil {
			t.Fatal(err)
		}
		if result.I32() != 0 {
			t.Fatalf("args=0: got %d, want 0", result.I32())
		}
	})

	t.Run("block", func(t *testing.T) {
		body := []wasm.Instruction{
			{
				Op:        wasm.OpBlock,
				BlockType: wasm.BlockType{Value: wasm.ValueTypeI32},
				Then:      []wasm.Instruction{constI32(5), constI32(9), {Op: wasm.OpI32Add}},
			},
		}
		m := buildModule(nil, i32, nil, body, "block")
		inst := instantiate(t, m)
		result, err := inst.Invoke("block")
		if err != nil {
			t.Fatal(err)
		}
		if result.I32() != 14 {
			t.Fatalf("got %d, want 14", result.I32())
		}
	})

	t.Run("block_no_result", func(t *testing.T) {
		body := []wasm.Instruction{
			{
				Op:        wasm.OpBlock,
				BlockType: wasm.BlockType{Empty: true},
				Then:      []wasm.Instruction{constI32(1), {Op: wasm.OpDrop}},
			},
		}
		m := buildModule(nil, nil, nil, body, "block_no_result")
		inst := instantiate(t, m)
		result, err := inst.Invoke("block_no_result")
		if err != nil {
			t.Fatal(err)
		}
		if result != nil {
			t.Fatalf("got %v, want none", result)
		}
	})
}

func TestBranchOutOfLoop(t *testing.T) {
	// Increments local 0 from 0 up to 5 in a loop that breaks out with
	// br_if once it reaches 5, exercising br targeting an enclosing
	// Block from inside a Loop.
	body := []wasm.Instruction{
		{
			Op:        wasm.OpBlock,
			BlockType: wasm.BlockType{Empty: true},
			Then: []wasm.Instruction{
				{
					Op:        wasm.OpLoop,
					BlockType: wasm.BlockType{Empty: true},
					Then: []wasm.Instruction{
						localGet(0),
						constI32(1),
						{Op: wasm.OpI32Add},
						{Op: wasm.OpLocalSet, Index: 0},
						localGet(0),
						constI32(5),
						{Op: wasm.OpI32GeS},
						{Op: wasm.OpBrIf, Index: 1},
						{Op: wasm.OpBr, Index: 0},
					},
				},
			},
		},
		localGet(0),
	}
	m := buildModule(nil, []wasm.ValueType{wasm.ValueTypeI32}, []wasm.LocalEntry{{Count: 1, Type: wasm.ValueTypeI32}}, body, "count_to_five")
	inst := instantiate(t, m)
	result, err := inst.Invoke("count_to_five")
	if err != nil {
		t.Fatal(err)
	}
	if result.I32() != 5 {
		t.Fatalf("got %d, want 5", result.I32())
	}
}

func TestTrapsOnDivisionByZero(t *testing.T) {
	body := []wasm.Instruction{localGet(0), constI32(0), {Op: wasm.OpI32DivS}}
	m := buildModule([]wasm.ValueType{wasm.ValueTypeI32}, []wasm.ValueType{wasm.ValueTypeI32}, nil, body, "div")
	inst := instantiate(t, m)
	if _, err := inst.Invoke("div", number.I32Val(10)); err != ErrIntegerDivisionByZero {
		t.Fatalf("got %v, want ErrIntegerDivisionByZero", err)
	}
}

func TestMissingExportFails(t *testing.T) {
	m := buildModule(nil, []wasm.ValueType{wasm.ValueTypeI32}, nil, []wasm.Instruction{constI32(1)}, "present")
	inst := instantiate(t, m)
	if _, err := inst.Invoke("absent"); err == nil {
		t.Fatal("expected error for missing export")
	}
}

func TestGasMetering(t *testing.T) {
	body := []wasm.Instruction{constI32(1), constI32(2), {Op: wasm.OpI32Add}}
	m := buildModule(nil, []wasm.ValueType{wasm.ValueTypeI32}, nil, body, "add_consts")
	inst := instantiate(t, m)
	inst.GasPolicy = &SimpleGasPolicy{}

	if _, err := Execute(inst, "add_consts", nil, 1); err != ErrOutOfGas {
		t.Fatalf("got %v, want ErrOutOfGas", err)
	}
	if _, err := Execute(inst, "add_consts", nil, 3); err != nil {
		t.Fatalf("unexpected error with sufficient gas: %v", err)
	}
}
