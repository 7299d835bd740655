// Package vm builds an executable Instance from a decoded wasm.Module
// and interprets it: a stack machine over values, labels, and call
// frames that walks the module's instruction trees directly rather
// than scanning a flattened byte stream.
package vm

import (
	"fmt"

	"github.com/vertexdlt/wasmkit/number"
	"github.com/vertexdlt/wasmkit/wasm"
)

// HostFunction is a Go callback standing in for an imported function.
// It receives the arguments in declared parameter order and returns
// at most one result, matching this toolkit's single-return-value
// convention.
type HostFunction func(args []number.Number) (*number.Number, error)

// Resolver resolves a module/field import pair to a HostFunction.
// Instances built from modules with no Import section never consult
// a Resolver.
type Resolver interface {
	ResolveFunc(module, field string) (HostFunction, bool)
}

// Function is one entry in the instance's function index space: it
// is either a locally defined function with a body, or an imported
// one bound to a host callback.
type Function struct {
	Type Type

	IsImport bool
	Host     HostFunction
	Import   wasm.Import

	// Locals holds one ValueType per declared local, in declared
	// order, *not* including parameters. Params come from Type.
	Locals []wasm.ValueType
	Body   []wasm.Instruction
}

// Type is a function signature expressed in number.Type terms, used
// so the interpreter never has to re-translate wasm.ValueType at
// call time.
type Type struct {
	Params  []number.Type
	Results []number.Type
}

func newType(ft wasm.FuncType) Type {
	t := Type{
		Params:  make([]number.Type, len(ft.Params)),
		Results: make([]number.Type, len(ft.Results)),
	}
	for i, p := range ft.Params {
		t.Params[i] = p.NumberType()
	}
	for i, r := range ft.Results {
		t.Results[i] = r.NumberType()
	}
	return t
}

// ExportRef is a tagged reference into one of a module's index
// spaces, as recorded in an Instance's export map.
type ExportRef struct {
	Kind  byte
	Index uint32
}

// Instance is a module bound to concrete imports and ready to run.
// Functions is aligned with the module's function index space
// (imports first, then locally defined functions, matching
// wasm.Module's numbering).
type Instance struct {
	Module    *wasm.Module
	Functions []*Function
	Globals   []number.Number
	Exports   map[string]ExportRef

	GasPolicy GasPolicy
}

// NewInstance builds an Instance from a decoded module. resolver may
// be nil; it is only consulted if the module declares function
// imports.
func NewInstance(m *wasm.Module, resolver Resolver) (*Instance, error) {
	inst := &Instance{
		Module:  m,
		Exports: make(map[string]ExportRef),
	}

	if err := inst.buildGlobals(); err != nil {
		return nil, err
	}
	if err := inst.buildFunctions(resolver); err != nil {
		return nil, err
	}
	inst.buildExports()
	return inst, nil
}

func (inst *Instance) buildGlobals() error {
	m := inst.Module
	if m.Global == nil {
		return nil
	}
	inst.Globals = make([]number.Number, len(m.Global.Globals))
	for i, g := range m.Global.Globals {
		v, err := evalConstExpr(g.Init, g.Type.Value.NumberType())
		if err != nil {
			return fmt.Errorf("vm: global %d initializer: %w", i, err)
		}
		inst.Globals[i] = v
	}
	return nil
}

// evalConstExpr evaluates the restricted constant-expression form
// used by Global/Element/Data initializers: a single const
// instruction, or a global.get of an already-initialized import
// (not supported by this subset's fixtures, so only consts are
// handled).
func evalConstExpr(expr []wasm.Instruction, t number.Type) (number.Number, error) {
	if len(expr) != 1 {
		return number.Number{}, fmt.Errorf("vm: unsupported constant expression of length %d", len(expr))
	}
	ins := expr[0]
	switch ins.Op {
	case wasm.OpI32Const:
		return number.I32Val(ins.I32), nil
	case wasm.OpI64Const:
		return number.I64Val(ins.I64), nil
	case wasm.OpF32Const:
		return number.Number{Type: number.F32, Bits: uint64(ins.F32Bits)}, nil
	case wasm.OpF64Const:
		return number.Number{Type: number.F64, Bits: ins.F64Bits}, nil
	default:
		return number.Number{}, fmt.Errorf("vm: unsupported constant expression opcode %s", ins.Op)
	}
}

func (inst *Instance) buildFunctions(resolver Resolver) error {
	m := inst.Module
	n := m.NumFunctions()
	inst.Functions = make([]*Function, n)

	for i := 0; i < n; i++ {
		idx := uint32(i)
		ft, err := m.FuncType(idx)
		if err != nil {
			return err
		}
		fn := &Function{Type: newType(ft)}

		if m.IsImportedFunc(idx) {
			im := m.ImportRef(idx)
			fn.IsImport = true
			fn.Import = im
			if resolver != nil {
				if host, ok := resolver.ResolveFunc(im.Module, im.Field); ok {
					fn.Host = host
				}
			}
		} else {
			code := m.Code.Codes[m.LocalCodeIndex(idx)]
			for _, le := range code.Locals {
				for c := uint32(0); c < le.Count; c++ {
					fn.Locals = append(fn.Locals, le.Type)
				}
			}
			fn.Body = code.Body
		}
		inst.Functions[i] = fn
	}
	return nil
}

func (inst *Instance) buildExports() {
	m := inst.Module
	if m.Export == nil {
		return
	}
	for _, e := range m.Export.Exports {
		inst.Exports[e.Name] = ExportRef{Kind: e.Kind, Index: e.Index}
	}
}

// LookupFunction resolves an exported name to its Function, failing
// if the export is missing or names something other than a function.
func (inst *Instance) LookupFunction(name string) (*Function, uint32, error) {
	ref, ok := inst.Exports[name]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %q", ErrExportNotFound, name)
	}
	if ref.Kind != wasm.ExportKindFunction {
		return nil, 0, fmt.Errorf("%w: %q", ErrNotAFunction, name)
	}
	if int(ref.Index) >= len(inst.Functions) {
		return nil, 0, fmt.Errorf("%w: %d", ErrFuncNotFound, ref.Index)
	}
	return inst.Functions[ref.Index], ref.Index, nil
}
