package kernel

import (
	"fmt"
	"math"

	"github.com/roach88/dpusim/internal/fix"
	"github.com/roach88/dpusim/internal/pad"
	"github.com/roach88/dpusim/internal/tensor"
)

// ConvParams configures a convolution.
//
// Weights are laid out [oc][kh][kw][ic/group] for standard and grouped
// convolution and [mult][kh][kw][ic] for depthwise, where output channel
// c*mult + j reads input channel c.
type ConvParams struct {
	Stride   Window
	Dilation Window
	Pad      pad.Spec
	Group    int

	Depthwise  bool
	Transposed bool

	// ICIter splits each group's input channels into that many chunks.
	// With HasShiftPsum, every chunk's partial sum is floored to a
	// multiple of 2^ShiftPsum before it joins the accumulator.
	ICIter       int
	ShiftPsum    int
	HasShiftPsum bool
}

// Conv is a validated convolution kernel.
type Conv[T tensor.Elem] struct {
	params  ConvParams
	in      tensor.FMap
	weights tensor.FMap
	out     tensor.FMap
	padded  tensor.FMap
	xform   *pad.Transform
	quant   fix.Quant
	hasBias bool
	opts    options

	kernel   Window
	stride   Window // stride applied to the padded input
	dilation Window
	groups   int
	icg, ocg int
	mult     int
	chunks   [][2]int
}

// NewConv validates shapes and derives the padded input shape.
//
// The declared output shape must match the size derived from the pad mode
// (transposed convolution always uses the exact enlarged size).
func NewConv[T tensor.Elem](p ConvParams, in, weights, out tensor.FMap, q fix.Quant, hasBias bool, opts ...Option) (*Conv[T], error) {
	c := &Conv[T]{
		params:  p,
		in:      in,
		weights: weights,
		out:     out,
		quant:   q,
		hasBias: hasBias,
		opts:    buildOptions(opts),
		kernel:  Window{H: weights.H, W: weights.W},
	}
	if err := c.init(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Conv[T]) init() error {
	p := &c.params
	if !c.in.Valid() || !c.weights.Valid() || !c.out.Valid() {
		return configErr("shape", "input %v, weights %v, output %v must be positive", c.in, c.weights, c.out)
	}
	if c.in.D != 1 || c.out.D != 1 || c.weights.D != 1 {
		return configErr("shape", "depth must be 1 for 2-D convolution")
	}
	if !p.Stride.valid() {
		return configErr("stride", "%+v must be positive", p.Stride)
	}
	if p.Dilation == (Window{}) {
		p.Dilation = Window{H: 1, W: 1}
	}
	if !p.Dilation.valid() {
		return configErr("dilation", "%+v must be positive", p.Dilation)
	}
	if p.Group == 0 {
		p.Group = 1
	}
	if p.ICIter == 0 {
		p.ICIter = 1
	}
	if c.out.N != c.in.N {
		return configErr("output", "batch %d, input batch %d", c.out.N, c.in.N)
	}

	if p.Depthwise {
		c.mult = c.weights.N
		if c.weights.C != c.in.C {
			return configErr("weights", "depthwise weight channels %d, input channels %d", c.weights.C, c.in.C)
		}
		if c.out.C != c.in.C*c.mult {
			return configErr("output", "channels %d, want %d", c.out.C, c.in.C*c.mult)
		}
		c.groups, c.icg, c.ocg = c.in.C, 1, c.mult
	} else {
		if p.Group < 1 || c.in.C%p.Group != 0 || c.out.C%p.Group != 0 {
			return configErr("group", "%d does not divide input %d and output %d channels", p.Group, c.in.C, c.out.C)
		}
		if c.weights.N != c.out.C {
			return configErr("weights", "output channels %d, want %d", c.weights.N, c.out.C)
		}
		if c.weights.C != c.in.C/p.Group {
			return configErr("weights", "input channels %d, want %d", c.weights.C, c.in.C/p.Group)
		}
		c.groups, c.icg, c.ocg = p.Group, c.in.C/p.Group, c.out.C/p.Group
	}
	if p.ICIter < 1 || p.ICIter > c.icg {
		return configErr("ic_iter", "%d must be in [1, %d]", p.ICIter, c.icg)
	}

	kh := pad.Dilated(c.kernel.H, p.Dilation.H)
	kw := pad.Dilated(c.kernel.W, p.Dilation.W)

	var padSpec pad.Spec
	var inDil pad.Dilation
	var want tensor.FMap
	if p.Transposed {
		// The input is dilated by the stride, padded by (k-1) - pad and
		// convolved with stride 1 and the flipped kernel.
		padSpec = pad.Spec{
			Mode:   pad.Floor,
			Top:    kh - 1 - p.Pad.Top,
			Bottom: kh - 1 - p.Pad.Bottom,
			Left:   kw - 1 - p.Pad.Left,
			Right:  kw - 1 - p.Pad.Right,
		}
		inDil = pad.Dilation{H: p.Stride.H, W: p.Stride.W, D: 1}
		c.stride = Window{H: 1, W: 1}
		c.padded = pad.ExpectedDst(c.in, padSpec, inDil)
		want = tensor.NHWC(c.in.N, c.padded.H-kh+1, c.padded.W-kw+1, c.out.C)
	} else {
		padSpec = p.Pad
		inDil = pad.NoDilation
		c.stride = p.Stride
		c.padded = pad.ExpectedDst(c.in, padSpec, inDil)
		want = tensor.NHWC(c.in.N,
			pad.OutputSize(p.Pad.Mode, c.padded.H, c.in.H, kh, p.Stride.H),
			pad.OutputSize(p.Pad.Mode, c.padded.W, c.in.W, kw, p.Stride.W),
			c.out.C)
	}
	if !c.padded.Valid() {
		return configErr("pad", "padded input %v is empty", c.padded)
	}
	if want != c.out {
		return configErr("output", "declared %v, derived %v", c.out, want)
	}
	// Every window must stay inside the padded input.
	if (c.out.H-1)*c.stride.H+kh > c.padded.H || (c.out.W-1)*c.stride.W+kw > c.padded.W {
		return configErr("output", "%v windows overrun padded input %v", c.out, c.padded)
	}
	c.dilation = p.Dilation
	c.chunks = splitChunks(c.icg, p.ICIter)
	c.xform = pad.NewTransform(c.in, c.padded, padSpec, inDil)
	return nil
}

// Path returns the strategy Run uses.
func (c *Conv[T]) Path() Path { return c.opts.path() }

// Output returns the output shape.
func (c *Conv[T]) Output() tensor.FMap { return c.out }

// Run computes out from x, w and bias. bias may be nil when the kernel
// was built without one.
func (c *Conv[T]) Run(x, w, bias, out []T) error {
	if err := c.checkBuffers(x, w, bias, out); err != nil {
		return err
	}
	padded := x
	if !c.xform.Identity() {
		padded = make([]T, c.padded.Num())
		pad.Apply(c.xform, x, padded, 0)
	}

	var acc []float64
	switch c.opts.path() {
	case PathGEMM, PathGEMMSharded:
		acc = c.gemm(padded, w)
	default:
		acc = make([]float64, c.out.Num())
		c.opts.each(len(acc), func(pos int) {
			acc[pos] = c.accumulate(padded, w, pos)
		})
	}

	c.opts.each(len(acc), func(pos int) {
		oc := pos % c.out.C
		var v float64
		if c.hasBias {
			v = c.quant.ApplyBias(acc[pos], float64(bias[oc]))
		} else {
			v = c.quant.Apply(acc[pos])
		}
		out[pos] = T(v)
	})
	return nil
}

func (c *Conv[T]) checkBuffers(x, w, bias, out []T) error {
	if err := CheckLen("input", len(x), c.in.Num()); err != nil {
		return err
	}
	if err := CheckLen("weights", len(w), c.weights.Num()); err != nil {
		return err
	}
	if c.hasBias {
		if err := CheckLen("bias", len(bias), c.out.C); err != nil {
			return err
		}
	}
	return CheckLen("output", len(out), c.out.Num())
}

// splitChunks splits [0, n) into iter contiguous chunks of ceil(n/iter).
func splitChunks(n, iter int) [][2]int {
	size := (n + iter - 1) / iter
	var out [][2]int
	for b := 0; b < n; b += size {
		out = append(out, [2]int{b, min(b+size, n)})
	}
	return out
}

func (c *Conv[T]) psum(p float64) float64 {
	if !c.params.HasShiftPsum {
		return p
	}
	return math.Ldexp(math.Floor(math.Ldexp(p, -c.params.ShiftPsum)), c.params.ShiftPsum)
}

// groupOf maps an output channel to (group, local output channel).
func (c *Conv[T]) groupOf(oc int) (g, o int) {
	return oc / c.ocg, oc % c.ocg
}

// weightOffset returns the offset of weight (g, o, ky, kx, i) where i is
// the channel index inside the group. Transposed kernels are flipped.
func (c *Conv[T]) weightOffset(g, o, ky, kx, i int) int {
	if c.params.Transposed {
		ky = c.kernel.H - 1 - ky
		kx = c.kernel.W - 1 - kx
	}
	wm := c.weights
	if c.params.Depthwise {
		return o*wm.NCode() + ky*wm.HCode() + kx*wm.WCode() + g
	}
	return (g*c.ocg+o)*wm.NCode() + ky*wm.HCode() + kx*wm.WCode() + i
}

// inputOffset returns the padded-input offset of channel i of group g
// under kernel tap (ky, kx) for output position (n, oh, ow).
func (c *Conv[T]) inputOffset(n, oh, ow, ky, kx, g, i int) int {
	ih := oh*c.stride.H + ky*c.dilation.H
	iw := ow*c.stride.W + kx*c.dilation.W
	m := c.padded
	return n*m.NCode() + ih*m.HCode() + iw*m.WCode() + g*c.icg + i
}

// accumulate is the reference inner product for one output element.
func (c *Conv[T]) accumulate(x, w []T, pos int) float64 {
	n, oh, ow, _, oc := c.out.Coord(pos)
	g, o := c.groupOf(oc)
	var acc float64
	for _, ch := range c.chunks {
		var p float64
		for ky := 0; ky < c.kernel.H; ky++ {
			for kx := 0; kx < c.kernel.W; kx++ {
				xo := c.inputOffset(n, oh, ow, ky, kx, g, 0)
				for i := ch[0]; i < ch[1]; i++ {
					p += float64(x[xo+i]) * float64(w[c.weightOffset(g, o, ky, kx, i)])
				}
			}
		}
		acc += c.psum(p)
	}
	return acc
}

func (c *Conv[T]) String() string {
	kind := "conv"
	switch {
	case c.params.Depthwise && c.params.Transposed:
		kind = "transposed-depthwise-conv"
	case c.params.Depthwise:
		kind = "depthwise-conv"
	case c.params.Transposed:
		kind = "transposed-conv"
	}
	return fmt.Sprintf("%s %v*%v->%v (%s)", kind, c.in, c.weights, c.out, c.opts.path())
}
