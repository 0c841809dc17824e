package op

import (
	"fmt"

	"github.com/roach88/dpusim/internal/fix"
	"github.com/roach88/dpusim/internal/kernel"
	"github.com/roach88/dpusim/internal/tensor"
)

// convVariant distinguishes the four convolution operators.
type convVariant struct {
	name       string
	depthwise  bool
	transposed bool
	grouped    bool
	acts       []fix.Kind
}

var (
	conv2dVariant = convVariant{
		name:    "conv2d-fix",
		grouped: true,
		acts:    allKinds,
	}
	depthwiseVariant = convVariant{
		name:      "depthwise-conv2d-fix",
		depthwise: true,
		acts:      allKinds,
	}
	transposedVariant = convVariant{
		name:       "transposed-conv2d-fix",
		transposed: true,
		acts:       []fix.Kind{fix.None, fix.Relu, fix.Prelu, fix.LeakyRelu, fix.Relu6},
	}
	transposedDepthwiseVariant = convVariant{
		name:       "transposed-depthwise-conv2d-fix",
		depthwise:  true,
		transposed: true,
		acts:       []fix.Kind{fix.None, fix.Relu, fix.LeakyRelu, fix.Relu6},
	}
)

func newConv2d(s Spec, env Env) (Operator, error) { return buildConv(conv2dVariant, s, env) }

func newDepthwise(s Spec, env Env) (Operator, error) { return buildConv(depthwiseVariant, s, env) }

func newTransposed(s Spec, env Env) (Operator, error) { return buildConv(transposedVariant, s, env) }

func newTransposedDepthwise(s Spec, env Env) (Operator, error) {
	return buildConv(transposedDepthwiseVariant, s, env)
}

// convPlan is everything a convolution needs besides its element type.
type convPlan struct {
	params     kernel.ConvParams
	in, w, out tensor.FMap
	quant      fix.Quant
	hasBias    bool
	dtype      tensor.DType
}

func buildConv(v convVariant, s Spec, env Env) (Operator, error) {
	p, err := planConv(v, s, env)
	if err != nil {
		return nil, err
	}
	switch p.dtype {
	case tensor.Int16:
		return newConvOp[int16](v.name, p, env)
	default:
		return newConvOp[int8](v.name, p, env)
	}
}

func planConv(v convVariant, s Spec, env Env) (convPlan, error) {
	name := v.name
	ins, ws, bs := s.inputs(RoleInput), s.inputs(RoleWeights), s.inputs(RoleBias)
	if len(ins) != 1 || len(ws) != 1 || len(bs) > 1 {
		return convPlan{}, invalid(name, "inputs", ErrBadShape,
			"want 1 input, 1 weights and at most 1 bias, got %d/%d/%d", len(ins), len(ws), len(bs))
	}

	var p convPlan
	var err error
	if p.in, err = mapOf(name, RoleInput, ins[0]); err != nil {
		return p, err
	}
	if p.w, err = mapOf(name, RoleWeights, ws[0]); err != nil {
		return p, err
	}
	if p.out, err = mapOf(name, "output", s.Output); err != nil {
		return p, err
	}
	if p.dtype, err = commonDType(name, s); err != nil {
		return p, err
	}
	rng, err := elemRange(name, p.dtype)
	if err != nil {
		return p, err
	}

	k, err := window(name, s.Attrs, AttrKernel, kernel.Window{})
	if err != nil {
		return p, err
	}
	if k.H != p.w.H || k.W != p.w.W {
		return p, invalid(name, AttrKernel, ErrBadShape, "%dx%d does not match weights %v", k.H, k.W, p.w)
	}
	if p.params.Stride, err = window(name, s.Attrs, AttrStride, kernel.Window{H: 1, W: 1}); err != nil {
		return p, err
	}
	if p.params.Dilation, err = window(name, s.Attrs, AttrDilation, kernel.Window{H: 1, W: 1}); err != nil {
		return p, err
	}
	if p.params.Pad, err = padSpec(name, s.Attrs); err != nil {
		return p, err
	}
	p.params.Depthwise = v.depthwise
	p.params.Transposed = v.transposed
	p.params.Group = 1
	if v.grouped {
		if p.params.Group, err = s.Attrs.IntOr(AttrGroup, 1); err != nil {
			return p, attrErr(name, AttrGroup, err)
		}
	}
	if p.params.ICIter, err = s.Attrs.IntOr(AttrICIter, 1); err != nil {
		return p, attrErr(name, AttrICIter, err)
	}
	if s.Attrs.Has(AttrShiftPsum) {
		if p.params.ShiftPsum, err = s.Attrs.Int(AttrShiftPsum); err != nil {
			return p, attrErr(name, AttrShiftPsum, err)
		}
		p.params.HasShiftPsum = true
	}

	fpBias := 0
	if len(bs) == 1 {
		p.hasBias = true
		bm, err := mapOf(name, RoleBias, bs[0])
		if err != nil {
			return p, err
		}
		if bm.Num() != p.out.C {
			return p, invalid(name, RoleBias, ErrBiasChannels, "%d channels, output has %d", bm.Num(), p.out.C)
		}
		fpBias = bs[0].FixPoint
	}

	var sh shifts
	sh.cut, sh.bias = fix.ConvShifts(ins[0].FixPoint, ws[0].FixPoint, fpBias, s.Output.FixPoint)
	act, err := nonlinear(name, s.Attrs, &sh, v.acts...)
	if err != nil {
		return p, err
	}
	mode, err := roundMode(name, s.Attrs, env)
	if err != nil {
		return p, err
	}
	p.quant = fix.Quant{
		ShiftCut:  sh.cut,
		ShiftBias: sh.bias,
		FPOut:     s.Output.FixPoint,
		Mode:      mode,
		Range:     rng,
		Act:       act,
	}
	return p, nil
}

type convOp[T tensor.Elem] struct {
	name    string
	k       *kernel.Conv[T]
	hasBias bool
}

func newConvOp[T tensor.Elem](name string, p convPlan, env Env) (Operator, error) {
	k, err := kernel.NewConv[T](p.params, p.in, p.w, p.out, p.quant, p.hasBias, env.Options...)
	if err != nil {
		return nil, kernelErr(name, err)
	}
	return &convOp[T]{name: name, k: k, hasBias: p.hasBias}, nil
}

func (o *convOp[T]) Type() string { return o.name }

func (o *convOp[T]) Output() tensor.FMap { return o.k.Output() }

func (o *convOp[T]) Run(inputs []tensor.Tensor, out tensor.Tensor) error {
	want := 2
	if o.hasBias {
		want = 3
	}
	if len(inputs) != want {
		return fmt.Errorf("%s: got %d inputs, want %d", o.name, len(inputs), want)
	}
	bufs, err := typed[T](o.name, inputs)
	if err != nil {
		return err
	}
	y, err := tensor.Data[T](out)
	if err != nil {
		return fmt.Errorf("%s: output: %w", o.name, err)
	}
	var bias []T
	if o.hasBias {
		bias = bufs[2]
	}
	return o.k.Run(bufs[0], bufs[1], bias, y)
}

// typed unwraps every input as []T.
func typed[T tensor.Elem](name string, inputs []tensor.Tensor) ([][]T, error) {
	out := make([][]T, len(inputs))
	for i, in := range inputs {
		d, err := tensor.Data[T](in)
		if err != nil {
			return nil, fmt.Errorf("%s: input %d: %w", name, i, err)
		}
		out[i] = d
	}
	return out, nil
}
