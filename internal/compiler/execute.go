package compiler

import (
	"fmt"

	"github.com/roach88/dpusim/internal/op"
	"github.com/roach88/dpusim/internal/tensor"
)

// Mismatch is one output element that differs from Expect.
type Mismatch struct {
	Index int
	Got   int64
	Want  int64
}

// Result is the outcome of executing an OpSpec.
type Result struct {
	Name       string
	Output     []int64
	Mismatches []Mismatch
}

// Passed reports whether the output matched Expect. Specs without Expect
// always pass.
func (r Result) Passed() bool { return len(r.Mismatches) == 0 }

// Execute builds the operator, feeds it the inline data and compares the
// output with Expect.
func Execute(s OpSpec, reg *op.Registry, env op.Env) (Result, error) {
	res := Result{Name: s.Name}
	o, err := reg.Build(s.Spec, env)
	if err != nil {
		return res, err
	}

	inputs := make([]tensor.Tensor, len(s.Spec.Inputs))
	for i, in := range s.Spec.Inputs {
		m, err := in.Map()
		if err != nil {
			return res, fmt.Errorf("inputs[%d]: %w", i, err)
		}
		var data []int64
		if i < len(s.Data) {
			data = s.Data[i]
		}
		t, err := fill(in.DType, m, data)
		if err != nil {
			return res, fmt.Errorf("inputs[%d]: %w", i, err)
		}
		inputs[i] = t
	}

	out := tensor.New(s.Spec.Output.DType, o.Output())
	if err := o.Run(inputs, out); err != nil {
		return res, err
	}
	res.Output, err = widen(out)
	if err != nil {
		return res, err
	}

	if s.Expect != nil {
		if len(s.Expect) != len(res.Output) {
			return res, fmt.Errorf("expect has %d values, output has %d", len(s.Expect), len(res.Output))
		}
		for i, want := range s.Expect {
			if got := res.Output[i]; got != want {
				res.Mismatches = append(res.Mismatches, Mismatch{Index: i, Got: got, Want: want})
			}
		}
	}
	return res, nil
}

func isInteger(t tensor.DType) bool {
	return t == tensor.Int8 || t == tensor.Int16 || t == tensor.Int32
}

// fill allocates a tensor and copies data into it. A nil data leaves the
// tensor zeroed.
func fill(t tensor.DType, m tensor.FMap, data []int64) (tensor.Tensor, error) {
	out := tensor.New(t, m)
	if data == nil {
		return out, nil
	}
	if len(data) != m.Num() {
		return out, fmt.Errorf("%d values for %d elements", len(data), m.Num())
	}
	switch buf := out.Data.(type) {
	case []int8:
		narrow(buf, data)
	case []int16:
		narrow(buf, data)
	case []int32:
		narrow(buf, data)
	default:
		return out, fmt.Errorf("inline data needs an integer dtype, got %s", t)
	}
	return out, nil
}

func narrow[T int8 | int16 | int32](dst []T, src []int64) {
	for i, v := range src {
		dst[i] = T(v)
	}
}

func widen(t tensor.Tensor) ([]int64, error) {
	switch buf := t.Data.(type) {
	case []int8:
		return widenSlice(buf), nil
	case []int16:
		return widenSlice(buf), nil
	case []int32:
		return widenSlice(buf), nil
	}
	return nil, fmt.Errorf("cannot read %s output as integers", t.DType)
}

func widenSlice[T int8 | int16 | int32](src []T) []int64 {
	out := make([]int64, len(src))
	for i, v := range src {
		out[i] = int64(v)
	}
	return out
}
