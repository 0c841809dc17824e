package op

import (
	"errors"
	"slices"

	"github.com/roach88/dpusim/internal/attr"
	"github.com/roach88/dpusim/internal/fix"
	"github.com/roach88/dpusim/internal/kernel"
	"github.com/roach88/dpusim/internal/pad"
	"github.com/roach88/dpusim/internal/tensor"
)

// Attribute names.
const (
	AttrKernel      = "kernel"
	AttrStride      = "stride"
	AttrDilation    = "dilation"
	AttrPad         = "pad"
	AttrPadMode     = "pad_mode"
	AttrGroup       = "group"
	AttrNonlinear   = "nonlinear"
	AttrPreluIn     = "prelu_in"
	AttrPreluShift  = "prelu_shift"
	AttrLeakyAlpha  = "LEAKYRELU_alpha"
	AttrShiftCut    = "shift_cut"
	AttrShiftBias   = "shift_bias"
	AttrHSigmoidIn  = "hsigmoid_in"
	AttrShiftHSig   = "shift_hsigmoid"
	AttrShiftHSwish = "shift_hswish"
	AttrRoundMode   = "round_mode"
	AttrICIter      = "ic_iter"
	AttrShiftPsum   = "shift_psum"
	AttrPoolType    = "type"
	AttrEltwiseType = "type"
	AttrScale       = "scale"
)

// attrErr converts an attribute store failure into a validation error.
func attrErr(op, key string, err error) error {
	var te *attr.TypeError
	if errors.As(err, &te) {
		return invalid(op, key, ErrMissingAttr, "%s", te.Error())
	}
	return invalid(op, key, ErrMissingAttr, "%v", err)
}

// window reads a [w, h] pair. A missing key yields def when def is
// non-zero and an error otherwise.
func window(op string, s attr.Store, key string, def kernel.Window) (kernel.Window, error) {
	if !s.Has(key) && def != (kernel.Window{}) {
		return def, nil
	}
	v, err := s.IntsN(key, 2)
	if err != nil {
		return kernel.Window{}, attrErr(op, key, err)
	}
	w := kernel.Window{W: v[0], H: v[1]}
	if w.W <= 0 || w.H <= 0 {
		return kernel.Window{}, invalid(op, key, ErrBadShape, "%v must be positive", v)
	}
	return w, nil
}

// padSpec reads pad = [left, right, top, bottom] and pad_mode.
func padSpec(op string, s attr.Store) (pad.Spec, error) {
	name, err := s.StringOr(AttrPadMode, "FLOOR")
	if err != nil {
		return pad.Spec{}, attrErr(op, AttrPadMode, err)
	}
	mode, err := pad.ParseMode(name)
	if err != nil {
		return pad.Spec{}, invalid(op, AttrPadMode, ErrUnsupported, "%v", err)
	}
	p := pad.Spec{Mode: mode}
	if !s.Has(AttrPad) {
		return p, nil
	}
	v, err := s.IntsN(AttrPad, 4)
	if err != nil {
		return pad.Spec{}, attrErr(op, AttrPad, err)
	}
	p.Left, p.Right, p.Top, p.Bottom = v[0], v[1], v[2], v[3]
	return p, nil
}

// roundMode reads round_mode, falling back to the environment default.
func roundMode(op string, s attr.Store, env Env) (fix.RoundMode, error) {
	if !s.Has(AttrRoundMode) {
		return env.Round, nil
	}
	name, err := s.String(AttrRoundMode)
	if err != nil {
		return 0, attrErr(op, AttrRoundMode, err)
	}
	m, err := fix.ParseRoundMode(name)
	if err != nil {
		return 0, invalid(op, AttrRoundMode, ErrUnsupported, "%v", err)
	}
	return m, nil
}

// shifts holds the requantizer shifts an operator ends up with.
type shifts struct {
	cut, bias int
}

// nonlinear reads the activation. HSIGMOID and HSWISH carry their own
// shift_cut and shift_bias, which replace the fix point derived ones.
func nonlinear(op string, s attr.Store, sh *shifts, allowed ...fix.Kind) (fix.Nonlinear, error) {
	name, err := s.StringOr(AttrNonlinear, "")
	if err != nil {
		return fix.Nonlinear{}, attrErr(op, AttrNonlinear, err)
	}
	k, err := fix.ParseKind(name)
	if err != nil {
		return fix.Nonlinear{}, invalid(op, AttrNonlinear, ErrUnsupported, "%v", err)
	}
	if !slices.Contains(allowed, k) {
		return fix.Nonlinear{}, invalid(op, AttrNonlinear, ErrUnsupported, "%v is not supported", k)
	}

	n := fix.Nonlinear{Kind: k}
	ints := func(keys ...string) ([]int, error) {
		out := make([]int, len(keys))
		for i, key := range keys {
			v, err := s.Int(key)
			if err != nil {
				return nil, attrErr(op, key, err)
			}
			out[i] = v
		}
		return out, nil
	}

	switch k {
	case fix.Prelu:
		v, err := ints(AttrPreluIn, AttrPreluShift)
		if err != nil {
			return fix.Nonlinear{}, err
		}
		n.Alpha = fix.PreluAlpha(v[0], v[1])
	case fix.LeakyRelu:
		n.Alpha = fix.DefaultLeakyAlpha
		if s.Has(AttrLeakyAlpha) {
			a, err := s.Float(AttrLeakyAlpha)
			if err != nil {
				return fix.Nonlinear{}, attrErr(op, AttrLeakyAlpha, err)
			}
			n.Alpha = a
		}
	case fix.HSigmoid, fix.HSwish:
		keys := []string{AttrShiftCut, AttrShiftBias, AttrHSigmoidIn, AttrShiftHSig}
		if k == fix.HSwish {
			keys = append(keys, AttrShiftHSwish)
		}
		v, err := ints(keys...)
		if err != nil {
			return fix.Nonlinear{}, err
		}
		sh.cut, sh.bias = v[0], v[1]
		n.HSigmoidIn, n.ShiftHSigmoid = v[2], v[3]
		if k == fix.HSwish {
			n.ShiftHSwish = v[4]
		}
	}
	return n, nil
}

var allKinds = []fix.Kind{fix.None, fix.Relu, fix.Prelu, fix.LeakyRelu, fix.Relu6, fix.HSigmoid, fix.HSwish}

// elemRange returns the clamp range of a fixed-point element type.
func elemRange(op string, t tensor.DType) (fix.Range, error) {
	switch t {
	case tensor.Int8, tensor.Int16:
		return fix.RangeFor(t.Bits(), true), nil
	}
	return fix.Range{}, invalid(op, "dtype", ErrUnsupported, "fixed-point operator on %q", t)
}

// commonDType checks every operand shares the output's element type.
func commonDType(op string, s Spec) (tensor.DType, error) {
	t := s.Output.DType
	if t == "" {
		t = tensor.Int8
	}
	for i, in := range s.Inputs {
		if in.DType != "" && in.DType != t {
			return "", invalid(op, "dtype", ErrBadShape, "input %d is %q, output is %q", i, in.DType, t)
		}
	}
	return t, nil
}

// kernelErr classifies a kernel construction failure.
func kernelErr(op string, err error) error {
	var ce *kernel.ConfigError
	if errors.As(err, &ce) {
		code := ErrBadShape
		if ce.Field == "output" {
			code = ErrOutputMismatch
		}
		return invalid(op, ce.Field, code, "%s", ce.Reason)
	}
	return err
}

// mapOf converts a tensor spec to its feature map.
func mapOf(op, field string, t TensorSpec) (tensor.FMap, error) {
	m, err := t.Map()
	if err != nil {
		return tensor.FMap{}, invalid(op, field, ErrBadShape, "%v", err)
	}
	return m, nil
}
