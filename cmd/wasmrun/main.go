// Command wasmrun decodes a Wasm binary, builds an Instance, and
// invokes its first exported function with the given arguments.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/vertexdlt/wasmkit/number"
	"github.com/vertexdlt/wasmkit/vm"
	"github.com/vertexdlt/wasmkit/wasm"
)

// resolver answers no function imports; fixtures never declare any,
// and a module that does simply fails at call time with
// ErrImportNotResolved rather than at instantiation time.
type resolver struct{}

func (resolver) ResolveFunc(module, field string) (vm.HostFunction, bool) {
	return nil, false
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <wasm-path> [<arg>...]\n", os.Args[0])
		os.Exit(1)
	}

	if err := run(os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(path string, rawArgs []string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	m, err := wasm.Decode(data)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}

	inst, err := vm.NewInstance(m, resolver{})
	if err != nil {
		return fmt.Errorf("instantiating %s: %w", path, err)
	}

	name, ok := firstFunctionExport(m)
	if !ok {
		return fmt.Errorf("%s exports no function", path)
	}

	fn, _, err := inst.LookupFunction(name)
	if err != nil {
		return err
	}
	args, err := parseArgs(rawArgs, fn.Type.Params)
	if err != nil {
		return err
	}

	result, err := inst.Invoke(name, args...)
	if err != nil {
		return fmt.Errorf("invoking %s: %w", name, err)
	}
	if result != nil {
		fmt.Println(formatResult(*result))
	}
	return nil
}

func firstFunctionExport(m *wasm.Module) (string, bool) {
	if m.Export == nil {
		return "", false
	}
	for _, e := range m.Export.Exports {
		if e.Kind == wasm.ExportKindFunction {
			return e.Name, true
		}
	}
	return "", false
}

func parseArgs(raw []string, params []number.Type) ([]number.Number, error) {
	if len(raw) != len(params) {
		return nil, fmt.Errorf("expected %d argument(s), got %d", len(params), len(raw))
	}
	args := make([]number.Number, len(raw))
	for i, s := range raw {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		switch params[i] {
		case number.I32:
			args[i] = number.I32Val(int32(v))
		case number.I64:
			args[i] = number.I64Val(v)
		case number.F32:
			args[i] = number.F32Val(float32(v))
		case number.F64:
			args[i] = number.F64Val(float64(v))
		}
	}
	return args, nil
}

func formatResult(n number.Number) string {
	switch n.Type {
	case number.I32:
		return strconv.FormatInt(int64(n.I32()), 10)
	case number.I64:
		return strconv.FormatInt(n.I64(), 10)
	case number.F32:
		return strconv.FormatFloat(float64(n.F32()), 'g', -1, 32)
	case number.F64:
		return strconv.FormatFloat(n.F64(), 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", n)
	}
}
