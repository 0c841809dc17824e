package kernel

import (
	"fmt"
	"math"

	"github.com/roach88/dpusim/internal/fix"
	"github.com/roach88/dpusim/internal/tensor"
)

// ElewType selects the elementwise operation.
type ElewType int

const (
	ElewAdd ElewType = iota
	ElewMul
)

func (t ElewType) String() string {
	switch t {
	case ElewAdd:
		return "ADD"
	case ElewMul:
		return "MUL"
	}
	return fmt.Sprintf("ElewType(%d)", int(t))
}

// ParseElewType accepts ADD or MUL.
func ParseElewType(s string) (ElewType, error) {
	switch s {
	case "ADD", "add":
		return ElewAdd, nil
	case "MUL", "mul":
		return ElewMul, nil
	}
	return 0, fmt.Errorf("unknown elementwise type %q", s)
}

// MaxElewInputs is the widest elementwise operation the hardware supports.
const MaxElewInputs = 4

// Elew combines 2 to 4 equally sized inputs.
//
// Each input i is first scaled by 2^Shifts[i] to a common fix point. ADD
// sums the scaled inputs, MUL multiplies them. The result goes through the
// requantizer.
type Elew[T tensor.Elem] struct {
	typ    ElewType
	shifts []int
	quant  fix.Quant
	opts   options
}

// NewElew validates the input count.
func NewElew[T tensor.Elem](typ ElewType, shifts []int, q fix.Quant, opts ...Option) (*Elew[T], error) {
	if len(shifts) < 2 || len(shifts) > MaxElewInputs {
		return nil, configErr("inputs", "%d inputs, want 2 to %d", len(shifts), MaxElewInputs)
	}
	if typ != ElewAdd && typ != ElewMul {
		return nil, configErr("type", "%v", typ)
	}
	return &Elew[T]{
		typ:    typ,
		shifts: append([]int(nil), shifts...),
		quant:  q,
		opts:   buildOptions(opts),
	}, nil
}

// Inputs returns the number of inputs.
func (e *Elew[T]) Inputs() int { return len(e.shifts) }

// Run combines inputs into out over len(out) elements.
func (e *Elew[T]) Run(inputs [][]T, out []T) error {
	if len(inputs) != len(e.shifts) {
		return configErr("inputs", "got %d buffers, want %d", len(inputs), len(e.shifts))
	}
	for i, in := range inputs {
		if len(in) < len(out) {
			return configErr("inputs", "input %d has %d elements, want %d", i, len(in), len(out))
		}
	}
	e.opts.each(len(out), func(pos int) {
		acc := math.Ldexp(float64(inputs[0][pos]), e.shifts[0])
		for i := 1; i < len(inputs); i++ {
			v := math.Ldexp(float64(inputs[i][pos]), e.shifts[i])
			if e.typ == ElewMul {
				acc *= v
			} else {
				acc += v
			}
		}
		out[pos] = T(e.quant.Apply(acc))
	})
	return nil
}

// Downsample keeps every scale-th row and column (nearest neighbour) and
// requantizes each kept sample.
func Downsample[T tensor.Elem](in, out tensor.View[T], scale Window, q fix.Quant) error {
	im, om := in.Map(), out.Map()
	if !scale.valid() {
		return configErr("scale", "%+v must be positive", scale)
	}
	if im.N != om.N || im.C != om.C || im.D != om.D {
		return configErr("output", "%v does not match input %v", om, im)
	}
	if (om.H-1)*scale.H >= im.H || (om.W-1)*scale.W >= im.W {
		return configErr("output", "%v with scale %+v overruns input %v", om, scale, im)
	}
	for n := 0; n < om.N; n++ {
		for h := 0; h < om.H; h++ {
			for w := 0; w < om.W; w++ {
				for d := 0; d < om.D; d++ {
					for c := 0; c < om.C; c++ {
						v := in.At(n, h*scale.H, w*scale.W, d, c)
						out.Set(n, h, w, d, c, T(q.Apply(float64(v))))
					}
				}
			}
		}
	}
	return nil
}

// Threshold maps each x to the number of thresholds it reaches
// (x >= t). thresholds must be sorted ascending.
func Threshold[T tensor.Elem](x, thresholds, out []T) error {
	if len(out) < len(x) {
		return configErr("output", "buffer has %d elements, want %d", len(out), len(x))
	}
	for i := 1; i < len(thresholds); i++ {
		if thresholds[i] < thresholds[i-1] {
			return configErr("thresholds", "not sorted at index %d", i)
		}
	}
	for i, v := range x {
		n := 0
		for _, t := range thresholds {
			if v < t {
				break
			}
			n++
		}
		out[i] = T(n)
	}
	return nil
}
