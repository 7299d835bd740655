package vm

import "github.com/vertexdlt/wasmkit/wasm"

// Gas tracks accounting for a single Execute call.
type Gas struct {
	Used  uint64
	Limit uint64
}

// GasPolicy prices instruction execution. A nil GasPolicy on an
// Instance means unmetered execution.
type GasPolicy interface {
	GetCostForOp(op wasm.Op) uint64
}

// FreeGasPolicy prices every instruction at zero.
type FreeGasPolicy struct{}

// GetCostForOp always returns 0.
func (p *FreeGasPolicy) GetCostForOp(op wasm.Op) uint64 {
	return 0
}

// SimpleGasPolicy prices every instruction at 1 unit.
type SimpleGasPolicy struct{}

// GetCostForOp always returns 1.
func (p *SimpleGasPolicy) GetCostForOp(op wasm.Op) uint64 {
	return 1
}

// charge debits cost from g, returning ErrOutOfGas (and debiting
// nothing) if that would exceed the limit. A nil g is always free.
func (g *Gas) charge(cost uint64) error {
	if g == nil {
		return nil
	}
	if g.Used+cost > g.Limit {
		return ErrOutOfGas
	}
	g.Used += cost
	return nil
}
