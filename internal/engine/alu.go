package engine

import (
	"context"

	"github.com/roach88/dpusim/internal/isa"
	"github.com/roach88/dpusim/internal/kernel"
	"github.com/roach88/dpusim/internal/op"
)

// ALU operations selected by alu_type.
const (
	AluDepthwise = 0
	AluMaxPool   = 1
	AluAvgPool   = 2
	AluElewAdd   = 3
	AluElewMul   = 4
)

// aluPools maps pooling alu_types onto the pool reducers.
var aluPools = map[int]int{
	AluMaxPool: op.PoolMax,
	AluAvgPool: op.PoolAvg,
}

var aluElews = map[int]kernel.ElewType{
	AluElewAdd: kernel.ElewAdd,
	AluElewMul: kernel.ElewMul,
}

// alu runs ALU and ALUADDR under the current ALUINIT.
//
// Depthwise reads weights and bias from their roles. Pooling reads the
// input only. The elementwise ops take the input and the weights operand
// as their two sources, each src_h*src_w*channel bytes.
func (e *Engine) alu(_ context.Context, step Step, in isa.Instruction) error {
	cfg, err := e.config(step, in.Kind)
	if err != nil {
		return err
	}
	ops := e.operandsOf(in)
	typ := cfg.Int(isa.FAluType)

	if typ == AluDepthwise {
		return e.runDepthwise(cfg, cfg.Int(isa.FChannel), ops, aluActs)
	}
	if pt, ok := aluPools[typ]; ok {
		return e.runPool(cfg, pt, ops)
	}
	et, ok := aluElews[typ]
	if !ok {
		return unsupported("alu_type %d", typ)
	}
	n := cfg.Int(isa.FSrcH) * cfg.Int(isa.FSrcW) * cfg.Int(isa.FChannel)
	if n <= 0 {
		return invalidOperand("ALUINIT src %dx%dx%d must be positive",
			cfg.Int(isa.FSrcH), cfg.Int(isa.FSrcW), cfg.Int(isa.FChannel))
	}
	a, err := ops(isa.RoleInput, n)
	if err != nil {
		return err
	}
	b, err := ops(isa.RoleWeights, n)
	if err != nil {
		return err
	}
	shifts := []int{cfg.Int(isa.FShiftRead(0)), cfg.Int(isa.FShiftRead(1))}
	out, err := e.runElew(cfg, et, shifts, cfg.Int(isa.FShiftCut), [][]int8{a, b}, basicActs)
	if err != nil {
		return err
	}
	return store(ops, out)
}
