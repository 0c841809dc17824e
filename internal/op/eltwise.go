package op

import (
	"fmt"
	"slices"

	"github.com/roach88/dpusim/internal/fix"
	"github.com/roach88/dpusim/internal/kernel"
	"github.com/roach88/dpusim/internal/tensor"
)

// newEltwise builds eltwise-fix. ADD aligns every input to the largest
// input fix point before summing; MUL multiplies raw values and shifts by
// the summed fix points.
func newEltwise(s Spec, env Env) (Operator, error) {
	const name = "eltwise-fix"
	ins := s.inputs(RoleInput)
	if len(ins) != len(s.Inputs) || len(ins) < 2 || len(ins) > kernel.MaxElewInputs {
		return nil, invalid(name, "inputs", ErrBadShape, "want 2 to %d inputs, got %d", kernel.MaxElewInputs, len(s.Inputs))
	}
	out, err := mapOf(name, "output", s.Output)
	if err != nil {
		return nil, err
	}
	for i, in := range ins {
		m, err := mapOf(name, RoleInput, in)
		if err != nil {
			return nil, err
		}
		if m != out {
			return nil, invalid(name, RoleInput, ErrOutputMismatch, "input %d %v does not match output %v", i, m, out)
		}
	}
	dtype, err := commonDType(name, s)
	if err != nil {
		return nil, err
	}
	rng, err := elemRange(name, dtype)
	if err != nil {
		return nil, err
	}

	typName, err := s.Attrs.StringOr(AttrEltwiseType, "ADD")
	if err != nil {
		return nil, attrErr(name, AttrEltwiseType, err)
	}
	typ, err := kernel.ParseElewType(typName)
	if err != nil {
		return nil, invalid(name, AttrEltwiseType, ErrUnsupported, "%v", err)
	}

	fps := make([]int, len(ins))
	for i, in := range ins {
		fps[i] = in.FixPoint
	}
	inShifts := make([]int, len(ins))
	var sh shifts
	switch typ {
	case kernel.ElewMul:
		for _, fp := range fps {
			sh.cut += fp
		}
		sh.cut -= s.Output.FixPoint
	default:
		top := slices.Max(fps)
		for i, fp := range fps {
			inShifts[i] = top - fp
		}
		sh.cut = top - s.Output.FixPoint
	}

	act, err := nonlinear(name, s.Attrs, &sh, fix.None, fix.Relu)
	if err != nil {
		return nil, err
	}
	mode, err := roundMode(name, s.Attrs, env)
	if err != nil {
		return nil, err
	}
	q := fix.Quant{
		ShiftCut: sh.cut,
		FPOut:    s.Output.FixPoint,
		Mode:     mode,
		Range:    rng,
		Act:      act,
	}

	switch dtype {
	case tensor.Int16:
		return newEltwiseOp[int16](name, typ, inShifts, q, out, env)
	default:
		return newEltwiseOp[int8](name, typ, inShifts, q, out, env)
	}
}

type eltwiseOp[T tensor.Elem] struct {
	name string
	k    *kernel.Elew[T]
	out  tensor.FMap
}

func newEltwiseOp[T tensor.Elem](name string, typ kernel.ElewType, shifts []int, q fix.Quant, out tensor.FMap, env Env) (Operator, error) {
	k, err := kernel.NewElew[T](typ, shifts, q, env.Options...)
	if err != nil {
		return nil, kernelErr(name, err)
	}
	return &eltwiseOp[T]{name: name, k: k, out: out}, nil
}

func (o *eltwiseOp[T]) Type() string { return o.name }

func (o *eltwiseOp[T]) Output() tensor.FMap { return o.out }

func (o *eltwiseOp[T]) Run(inputs []tensor.Tensor, out tensor.Tensor) error {
	if len(inputs) != o.k.Inputs() {
		return fmt.Errorf("%s: got %d inputs, want %d", o.name, len(inputs), o.k.Inputs())
	}
	bufs, err := typed[T](o.name, inputs)
	if err != nil {
		return err
	}
	y, err := tensor.Data[T](out)
	if err != nil {
		return fmt.Errorf("%s: output: %w", o.name, err)
	}
	n := o.out.Num()
	for _, x := range bufs {
		if err := kernel.CheckLen("input", len(x), n); err != nil {
			return err
		}
	}
	if err := kernel.CheckLen("output", len(y), n); err != nil {
		return err
	}
	return o.k.Run(bufs, y[:n])
}
