package op

import (
	"fmt"

	"github.com/roach88/dpusim/internal/fix"
	"github.com/roach88/dpusim/internal/kernel"
	"github.com/roach88/dpusim/internal/tensor"
)

// Pool types as encoded by the type attribute.
const (
	PoolMax = 0
	PoolAvg = 1
)

// reducers selects a pooling strategy by type.
var reducers = map[int]kernel.Reducer{
	PoolMax: kernel.MaxReducer{},
	PoolAvg: kernel.AvgReducer{},
}

// Reducer returns the pooling strategy of a pool type.
func Reducer(poolType int) (kernel.Reducer, bool) {
	r, ok := reducers[poolType]
	return r, ok
}

func newPool(s Spec, env Env) (Operator, error) {
	const name = "pool-fix"
	ins := s.inputs(RoleInput)
	if len(ins) != 1 || len(s.Inputs) != 1 {
		return nil, invalid(name, "inputs", ErrBadShape, "want exactly 1 input, got %d", len(s.Inputs))
	}
	in, err := mapOf(name, RoleInput, ins[0])
	if err != nil {
		return nil, err
	}
	out, err := mapOf(name, "output", s.Output)
	if err != nil {
		return nil, err
	}
	dtype, err := commonDType(name, s)
	if err != nil {
		return nil, err
	}
	rng, err := elemRange(name, dtype)
	if err != nil {
		return nil, err
	}

	typ, err := s.Attrs.Int(AttrPoolType)
	if err != nil {
		return nil, attrErr(name, AttrPoolType, err)
	}
	r, ok := Reducer(typ)
	if !ok {
		return nil, invalid(name, AttrPoolType, ErrUnsupported, "pool type %d", typ)
	}

	var p kernel.PoolParams
	if p.Kernel, err = window(name, s.Attrs, AttrKernel, kernel.Window{}); err != nil {
		return nil, err
	}
	if p.Stride, err = window(name, s.Attrs, AttrStride, p.Kernel); err != nil {
		return nil, err
	}
	if p.Pad, err = padSpec(name, s.Attrs); err != nil {
		return nil, err
	}
	mode, err := roundMode(name, s.Attrs, env)
	if err != nil {
		return nil, err
	}
	q := fix.Quant{
		ShiftCut: ins[0].FixPoint - s.Output.FixPoint,
		FPOut:    s.Output.FixPoint,
		Mode:     mode,
		Range:    rng,
	}

	switch dtype {
	case tensor.Int16:
		return newPoolOp[int16](name, p, r, in, out, q, env)
	default:
		return newPoolOp[int8](name, p, r, in, out, q, env)
	}
}

type poolOp[T tensor.Elem] struct {
	name string
	k    *kernel.Pooling[T]
}

func newPoolOp[T tensor.Elem](name string, p kernel.PoolParams, r kernel.Reducer, in, out tensor.FMap, q fix.Quant, env Env) (Operator, error) {
	k, err := kernel.NewPooling[T](p, r, in, out, q, env.Options...)
	if err != nil {
		return nil, kernelErr(name, err)
	}
	return &poolOp[T]{name: name, k: k}, nil
}

func (o *poolOp[T]) Type() string { return o.name }

func (o *poolOp[T]) Output() tensor.FMap { return o.k.Output() }

func (o *poolOp[T]) Run(inputs []tensor.Tensor, out tensor.Tensor) error {
	if len(inputs) != 1 {
		return fmt.Errorf("%s: got %d inputs, want 1", o.name, len(inputs))
	}
	bufs, err := typed[T](o.name, inputs)
	if err != nil {
		return err
	}
	y, err := tensor.Data[T](out)
	if err != nil {
		return fmt.Errorf("%s: output: %w", o.name, err)
	}
	return o.k.Run(bufs[0], y)
}
