package op

import (
	"fmt"

	"github.com/roach88/dpusim/internal/fix"
	"github.com/roach88/dpusim/internal/kernel"
	"github.com/roach88/dpusim/internal/tensor"
)

// newDownsample builds downsample-fix: nearest-neighbour subsampling by
// scale, then a rescale by 2^(fp_out - fp_in).
func newDownsample(s Spec, env Env) (Operator, error) {
	const name = "downsample-fix"
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
	scale, err := window(name, s.Attrs, AttrScale, kernel.Window{})
	if err != nil {
		return nil, err
	}
	if in.N != out.N || in.C != out.C {
		return nil, invalid(name, "output", ErrOutputMismatch, "%v does not match input %v", out, in)
	}
	wantH := (in.H + scale.H - 1) / scale.H
	wantW := (in.W + scale.W - 1) / scale.W
	if out.H != wantH || out.W != wantW {
		return nil, invalid(name, "output", ErrOutputMismatch, "declared %v, derived %dx%d", out, wantH, wantW)
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
		return &downsampleOp[int16]{in: in, out: out, scale: scale, q: q}, nil
	default:
		return &downsampleOp[int8]{in: in, out: out, scale: scale, q: q}, nil
	}
}

type downsampleOp[T tensor.Elem] struct {
	in, out tensor.FMap
	scale   kernel.Window
	q       fix.Quant
}

func (o *downsampleOp[T]) Type() string { return "downsample-fix" }

func (o *downsampleOp[T]) Output() tensor.FMap { return o.out }

func (o *downsampleOp[T]) Run(inputs []tensor.Tensor, out tensor.Tensor) error {
	if len(inputs) != 1 {
		return fmt.Errorf("downsample-fix: got %d inputs, want 1", len(inputs))
	}
	x, err := tensor.Data[T](inputs[0])
	if err != nil {
		return fmt.Errorf("downsample-fix: input: %w", err)
	}
	y, err := tensor.Data[T](out)
	if err != nil {
		return fmt.Errorf("downsample-fix: output: %w", err)
	}
	if err := kernel.CheckLen("input", len(x), o.in.Num()); err != nil {
		return err
	}
	if err := kernel.CheckLen("output", len(y), o.out.Num()); err != nil {
		return err
	}
	return kernel.Downsample(tensor.NewView(x, o.in), tensor.NewView(y, o.out), o.scale, o.q)
}
