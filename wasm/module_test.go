package wasm

import (
	"bytes"
	"testing"
)

// buildModule assembles a minimal single-function module: one Type
// entry, one Function/Code entry, and one Export naming it.
func buildModule(params, results []ValueType, locals []LocalEntry, body []Instruction, exportName string) *Module {
	m := &Module{}

	typeSec := &TypeSec{FuncTypes: []FuncType{{Params: params, Results: results}}}
	funcSec := &FunctionSec{TypeIndices: []uint32{0}}
	codeSec := &CodeSec{Codes: []Code{{Locals: locals, Body: body}}}
	exportSec := &ExportSec{Exports: []Export{{Name: exportName, Kind: ExportKindFunction, Index: 0}}}

	m.Type = typeSec
	m.Function = funcSec
	m.Code = codeSec
	m.Export = exportSec
	m.Sections = []Section{typeSec, funcSec, exportSec, codeSec}
	return m
}

func constI32(v int32) Instruction { return Instruction{Op: OpI32Const, I32: v} }

func TestRoundTripIdentity(t *testing.T) {
	cases := []*Module{
		buildModule(nil, []ValueType{ValueTypeI32}, nil, []Instruction{constI32(42)}, "const_i32"),
		buildModule(
			[]ValueType{ValueTypeI32, ValueTypeI32}, []ValueType{ValueTypeI32}, nil,
			[]Instruction{{Op: OpLocalGet, Index: 0}, {Op: OpLocalGet, Index: 1}, {Op: OpI32Add}},
			"i32_add",
		),
		buildModule(nil, nil, []LocalEntry{{Count: 1, Type: ValueTypeI32}},
			[]Instruction{
				{Op: OpBlock, BlockType: BlockType{Empty: true}, Then: []Instruction{constI32(1), {Op: OpDrop}}},
			}, "block_no_result"),
	}

	for _, m := range cases {
		encoded := m.Encode()
		decoded, err := Decode(encoded)
		if err != nil {
			t.Fatalf("Decode(Encode(m)) failed: %v", err)
		}
		reencoded := decoded.Encode()
		if !bytes.Equal(encoded, reencoded) {
			t.Fatalf("round trip mismatch:\n first:  % x\n second: % x", encoded, reencoded)
		}
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	_, err := Decode([]byte{0, 0, 0, 0, 1, 0, 0, 0})
	if err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestDecodeRejectsUnsupportedVersion(t *testing.T) {
	data := append([]byte{}, magic[:]...)
	data = append(data, 2, 0, 0, 0)
	if _, err := Decode(data); err == nil {
		t.Fatal("expected error for unsupported version")
	}
}

func TestDecodeRejectsDuplicateExportName(t *testing.T) {
	m := buildModule(nil, []ValueType{ValueTypeI32}, nil, []Instruction{constI32(1)}, "dup")
	m.Export.Exports = append(m.Export.Exports, Export{Name: "dup", Kind: ExportKindFunction, Index: 0})
	encoded := m.Encode()
	if _, err := Decode(encoded); err == nil {
		t.Fatal("expected error for duplicate export name")
	}
}

func TestDecodeRejectsOutOfRangeTypeIndex(t *testing.T) {
	m := buildModule(nil, []ValueType{ValueTypeI32}, nil, []Instruction{constI32(1)}, "f")
	m.Function.TypeIndices[0] = 7
	encoded := m.Encode()
	if _, err := Decode(encoded); err == nil {
		t.Fatal("expected error for out-of-range type index")
	}
}

func TestDecodeRejectsFunctionCodeLengthMismatch(t *testing.T) {
	m := buildModule(nil, []ValueType{ValueTypeI32}, nil, []Instruction{constI32(1)}, "f")
	m.Function.TypeIndices = append(m.Function.TypeIndices, 0)
	encoded := m.Encode()
	if _, err := Decode(encoded); err == nil {
		t.Fatal("expected error for function/code length mismatch")
	}
}

func TestMutationPreservesRoundTrip(t *testing.T) {
	addModule := buildModule(
		[]ValueType{ValueTypeI32, ValueTypeI32}, []ValueType{ValueTypeI32}, nil,
		[]Instruction{{Op: OpLocalGet, Index: 0}, {Op: OpLocalGet, Index: 1}, {Op: OpI32Add}},
		"i32_add",
	)

	subModule := buildModule(
		[]ValueType{ValueTypeI32, ValueTypeI32}, []ValueType{ValueTypeI32}, nil,
		[]Instruction{{Op: OpLocalGet, Index: 0}, {Op: OpLocalGet, Index: 1}, {Op: OpI32Sub}},
		"i32_sub",
	)

	addModule.Export.Exports[0].Name = "i32_sub"
	addModule.Code.Codes[0].Body[2] = Instruction{Op: OpI32Sub}

	got := addModule.Encode()
	want := subModule.Encode()
	if !bytes.Equal(got, want) {
		t.Fatalf("mutated encoding mismatch:\n got:  % x\n want: % x", got, want)
	}
}

func TestBlockTypeArity(t *testing.T) {
	if (BlockType{Empty: true}).Arity() != 0 {
		t.Fatal("empty block type should have arity 0")
	}
	if (BlockType{Value: ValueTypeI32}).Arity() != 1 {
		t.Fatal("value block type should have arity 1")
	}
}

func TestFuncTypeEqual(t *testing.T) {
	a := FuncType{Params: []ValueType{ValueTypeI32}, Results: []ValueType{ValueTypeI32}}
	b := FuncType{Params: []ValueType{ValueTypeI32}, Results: []ValueType{ValueTypeI32}}
	c := FuncType{Params: []ValueType{ValueTypeI64}, Results: []ValueType{ValueTypeI32}}
	if !a.Equal(b) {
		t.Fatal("expected a.Equal(b)")
	}
	if a.Equal(c) {
		t.Fatal("expected !a.Equal(c)")
	}
}
