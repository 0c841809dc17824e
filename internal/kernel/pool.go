package kernel

import (
	"math"

	"github.com/roach88/dpusim/internal/fix"
	"github.com/roach88/dpusim/internal/pad"
	"github.com/roach88/dpusim/internal/tensor"
)

// Reducer is a pooling strategy.
type Reducer interface {
	Name() string
	Start() float64
	Add(acc, x float64) float64
	Finish(acc float64, k Window) float64
	// PadValue is the value padded positions take; it must never change
	// the reduction result on its own.
	PadValue(r fix.Range) float64
}

// MaxReducer keeps the window maximum.
type MaxReducer struct{}

func (MaxReducer) Name() string {
	return "max"
}

func (MaxReducer) Start() float64 {
	return math.Inf(-1)
}

func (MaxReducer) Add(acc, x float64) float64 {
	return math.Max(acc, x)
}

func (MaxReducer) Finish(acc float64, _ Window) float64 {
	return acc
}

func (MaxReducer) PadValue(r fix.Range) float64 {
	return r.Min
}

// AvgReducer sums the window and multiplies by the hardware reciprocal of
// the kernel area. Padded positions count toward the area.
type AvgReducer struct{}

func (AvgReducer) Name() string {
	return "avg"
}

func (AvgReducer) Start() float64 {
	return 0
}

func (AvgReducer) Add(acc, x float64) float64 {
	return acc + x
}

func (AvgReducer) Finish(acc float64, k Window) float64 {
	return acc * AvgFactor(k.H, k.W)
}

func (AvgReducer) PadValue(fix.Range) float64 {
	return 0
}

// avgTable holds the reciprocals the hardware uses for non power-of-two
// square kernels.
var avgTable = map[Window]float64{
	{H: 3, W: 3}:   7.0 / 64.0,
	{H: 5, W: 5}:   10.0 / 256.0,
	{H: 6, W: 6}:   7.0 / 256.0,
	{H: 7, W: 7}:   21.0 / 1024.0,
	{H: 14, W: 14}: 21.0 / 4096.0,
}

// AvgFactor returns the multiplier that stands in for 1/(kh*kw).
//
// Tabled kernels use the hardware constants; power-of-two areas are exact;
// anything else is 1/area rounded to k fraction bits, k = ceil(log2(area)) + 8.
func AvgFactor(kh, kw int) float64 {
	if f, ok := avgTable[Window{H: kh, W: kw}]; ok {
		return f
	}
	area := kh * kw
	if area&(area-1) == 0 {
		return 1 / float64(area)
	}
	bits := int(math.Ceil(math.Log2(float64(area)))) + 8
	return math.Ldexp(math.Round(math.Ldexp(1, bits)/float64(area)), -bits)
}

// PoolParams configures a pooling kernel.
type PoolParams struct {
	Kernel Window
	Stride Window
	Pad    pad.Spec
}

// Pooling is a validated pooling kernel using one Reducer.
type Pooling[T tensor.Elem] struct {
	params PoolParams
	reduce Reducer
	in     tensor.FMap
	out    tensor.FMap
	padded tensor.FMap
	xform  *pad.Transform
	quant  fix.Quant
	opts   options
}

// NewPooling validates shapes against the pad mode's output size.
func NewPooling[T tensor.Elem](p PoolParams, r Reducer, in, out tensor.FMap, q fix.Quant, opts ...Option) (*Pooling[T], error) {
	if !in.Valid() || !out.Valid() {
		return nil, configErr("shape", "input %v, output %v must be positive", in, out)
	}
	if in.D != 1 || out.D != 1 {
		return nil, configErr("shape", "depth must be 1 for 2-D pooling")
	}
	if !p.Kernel.valid() || !p.Stride.valid() {
		return nil, configErr("kernel", "kernel %+v and stride %+v must be positive", p.Kernel, p.Stride)
	}
	if in.N != out.N || in.C != out.C {
		return nil, configErr("output", "%v does not match input %v batch and channels", out, in)
	}
	padded := pad.ExpectedDst(in, p.Pad, pad.NoDilation)
	if !padded.Valid() {
		return nil, configErr("pad", "padded input %v is empty", padded)
	}
	want := tensor.NHWC(in.N,
		pad.OutputSize(p.Pad.Mode, padded.H, in.H, p.Kernel.H, p.Stride.H),
		pad.OutputSize(p.Pad.Mode, padded.W, in.W, p.Kernel.W, p.Stride.W),
		in.C)
	if want != out {
		return nil, configErr("output", "declared %v, derived %v", out, want)
	}
	return &Pooling[T]{
		params: p,
		reduce: r,
		in:     in,
		out:    out,
		padded: padded,
		xform:  pad.NewTransform(in, padded, p.Pad, pad.NoDilation),
		quant:  q,
		opts:   buildOptions(opts),
	}, nil
}

// Reducer returns the pooling strategy.
func (pl *Pooling[T]) Reducer() Reducer { return pl.reduce }

// Output returns the output shape.
func (pl *Pooling[T]) Output() tensor.FMap { return pl.out }

// Run pools x into out.
//
// Windows that run past the padded input (CEIL and SAME modes) are
// clipped; the average still divides by the full kernel area.
func (pl *Pooling[T]) Run(x, out []T) error {
	if err := CheckLen("input", len(x), pl.in.Num()); err != nil {
		return err
	}
	if err := CheckLen("output", len(out), pl.out.Num()); err != nil {
		return err
	}
	padded := x
	if !pl.xform.Identity() {
		padded = make([]T, pl.padded.Num())
		pad.Apply(pl.xform, x, padded, T(pl.reduce.PadValue(pl.quant.Range)))
	}

	m := pl.padded
	pl.opts.each(pl.out.Num(), func(pos int) {
		n, oh, ow, _, c := pl.out.Coord(pos)
		acc := pl.reduce.Start()
		seen := 0
		for ky := 0; ky < pl.params.Kernel.H; ky++ {
			ih := oh*pl.params.Stride.H + ky
			if ih >= m.H {
				break
			}
			for kx := 0; kx < pl.params.Kernel.W; kx++ {
				iw := ow*pl.params.Stride.W + kx
				if iw >= m.W {
					break
				}
				acc = pl.reduce.Add(acc, float64(padded[m.Offset(n, ih, iw, 0, c)]))
				seen++
			}
		}
		if seen == 0 {
			acc = pl.reduce.Add(acc, pl.reduce.PadValue(pl.quant.Range))
		}
		out[pos] = T(pl.quant.Apply(pl.reduce.Finish(acc, pl.params.Kernel)))
	})
	return nil
}
