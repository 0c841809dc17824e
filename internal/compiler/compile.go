// Package compiler turns CUE operator files into op.Spec values.
//
// An operator file declares instances under the top-level op struct:
//
//	op: conv1: {
//		type: "conv2d-fix"
//		attrs: {kernel: [3, 3], stride: [1, 1]}
//		inputs: [
//			{role: "input", shape: [1, 3, 3, 1], dtype: "XINT8", fix_point: 0, data: [1, 2, 3, 4, 5, 6, 7, 8, 9]},
//			{role: "weights", shape: [1, 3, 3, 1], dtype: "XINT8", fix_point: 0},
//		]
//		output: {shape: [1, 1, 1, 1], dtype: "XINT8", fix_point: 0}
//		expect: [45]
//	}
//
// data and expect are optional. Inputs are reordered by role (input,
// weights, bias) so operand order matches op.Operator.Run.
package compiler

import (
	"fmt"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/dpusim/internal/attr"
	"github.com/roach88/dpusim/internal/op"
	"github.com/roach88/dpusim/internal/tensor"
)

// OpSpec is one compiled operator instance.
type OpSpec struct {
	Name string
	Spec op.Spec
	// Data holds inline operand values, one entry per Spec.Inputs element.
	// A nil entry means the operand has no inline data and runs on zeros.
	Data [][]int64
	// Expect is the expected output, or nil.
	Expect []int64
	// Pos is where the instance was declared.
	Pos token.Pos
}

// CompileOp parses a CUE value into an OpSpec.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the op struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`op: conv1: { ... }`)
//	spec, err := CompileOp(v.LookupPath(cue.ParsePath("op.conv1")))
func CompileOp(v cue.Value) (*OpSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &OpSpec{Pos: v.Pos()}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = labels[len(labels)-1].String()
	}

	typeVal := v.LookupPath(cue.ParsePath("type"))
	if !typeVal.Exists() {
		return nil, &CompileError{Field: "type", Message: "type is required", Pos: v.Pos()}
	}
	typ, err := typeVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	spec.Spec.Type = typ

	spec.Spec.Attrs, err = parseAttrs(v)
	if err != nil {
		return nil, err
	}

	inputs, data, err := parseInputs(v)
	if err != nil {
		return nil, err
	}
	spec.Spec.Inputs = inputs
	spec.Data = data

	outVal := v.LookupPath(cue.ParsePath("output"))
	if !outVal.Exists() {
		return nil, &CompileError{Field: "output", Message: "output is required", Pos: v.Pos()}
	}
	spec.Spec.Output, _, err = parseTensor(outVal, "output")
	if err != nil {
		return nil, err
	}

	expVal := v.LookupPath(cue.ParsePath("expect"))
	if expVal.Exists() {
		spec.Expect, err = parseInts(expVal, "expect")
		if err != nil {
			return nil, err
		}
	}

	return spec, nil
}

// parseAttrs converts the attrs struct. Integer lists become attr.Ints,
// lists with any fractional element become attr.Floats.
func parseAttrs(v cue.Value) (attr.Store, error) {
	store := attr.Store{}
	attrsVal := v.LookupPath(cue.ParsePath("attrs"))
	if !attrsVal.Exists() {
		return store, nil // attrs are optional
	}

	iter, err := attrsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		key := iter.Label()
		raw, err := scalarOrList(iter.Value(), "attrs."+key)
		if err != nil {
			return nil, err
		}
		val, err := attr.FromAny(raw)
		if err != nil {
			return nil, &CompileError{Field: "attrs." + key, Message: err.Error(), Pos: iter.Value().Pos()}
		}
		store[key] = val
	}
	return store, nil
}

// scalarOrList decodes a concrete CUE value into the Go types attr.FromAny
// accepts.
func scalarOrList(v cue.Value, field string) (any, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return s, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return b, nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return n, nil
	case cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return f, nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		var out []any
		for i := 0; iter.Next(); i++ {
			e, err := scalarOrList(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
		if out == nil {
			out = []any{}
		}
		return out, nil
	default:
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("unsupported value kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// roleRank orders operands the way op.Operator.Run reads them.
func roleRank(role string) int {
	switch role {
	case op.RoleWeights:
		return 1
	case op.RoleBias:
		return 2
	}
	return 0
}

// parseInputs reads the inputs list and sorts it stably by role.
func parseInputs(v cue.Value) ([]op.TensorSpec, [][]int64, error) {
	inVal := v.LookupPath(cue.ParsePath("inputs"))
	if !inVal.Exists() {
		return nil, nil, &CompileError{Field: "inputs", Message: "inputs are required", Pos: v.Pos()}
	}
	iter, err := inVal.List()
	if err != nil {
		return nil, nil, formatCUEError(err)
	}

	type operand struct {
		spec op.TensorSpec
		data []int64
	}
	var ops []operand
	for i := 0; iter.Next(); i++ {
		t, data, err := parseTensor(iter.Value(), fmt.Sprintf("inputs[%d]", i))
		if err != nil {
			return nil, nil, err
		}
		ops = append(ops, operand{t, data})
	}
	slices.SortStableFunc(ops, func(a, b operand) int {
		return roleRank(a.spec.Role) - roleRank(b.spec.Role)
	})

	specs := make([]op.TensorSpec, len(ops))
	data := make([][]int64, len(ops))
	for i, o := range ops {
		specs[i], data[i] = o.spec, o.data
	}
	return specs, data, nil
}

// parseTensor reads {role?, shape, dtype, fix_point?, data?}.
func parseTensor(v cue.Value, field string) (op.TensorSpec, []int64, error) {
	var t op.TensorSpec

	if roleVal := v.LookupPath(cue.ParsePath("role")); roleVal.Exists() {
		role, err := roleVal.String()
		if err != nil {
			return t, nil, formatCUEError(err)
		}
		t.Role = role
	}

	shapeVal := v.LookupPath(cue.ParsePath("shape"))
	if !shapeVal.Exists() {
		return t, nil, &CompileError{Field: field + ".shape", Message: "shape is required", Pos: v.Pos()}
	}
	shape, err := parseInts(shapeVal, field+".shape")
	if err != nil {
		return t, nil, err
	}
	for _, d := range shape {
		t.Shape = append(t.Shape, int(d))
	}

	t.DType = tensor.Int8
	if dtVal := v.LookupPath(cue.ParsePath("dtype")); dtVal.Exists() {
		name, err := dtVal.String()
		if err != nil {
			return t, nil, formatCUEError(err)
		}
		dt, err := tensor.ParseDType(name)
		if err != nil {
			return t, nil, &CompileError{Field: field + ".dtype", Message: err.Error(), Pos: dtVal.Pos()}
		}
		t.DType = dt
	}

	if fpVal := v.LookupPath(cue.ParsePath("fix_point")); fpVal.Exists() {
		fp, err := fpVal.Int64()
		if err != nil {
			return t, nil, formatCUEError(err)
		}
		t.FixPoint = int(fp)
	}

	var data []int64
	if dataVal := v.LookupPath(cue.ParsePath("data")); dataVal.Exists() {
		data, err = parseInts(dataVal, field+".data")
		if err != nil {
			return t, nil, err
		}
	}
	return t, data, nil
}

// parseInts reads a list of integers. Floats are rejected.
func parseInts(v cue.Value, field string) ([]int64, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	out := []int64{}
	for iter.Next() {
		e := iter.Value()
		if e.IncompleteKind() != cue.IntKind {
			return nil, &CompileError{
				Field:   field,
				Message: fmt.Sprintf("want integers, got %v", e.IncompleteKind()),
				Pos:     e.Pos(),
			}
		}
		n, err := e.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, n)
	}
	return out, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
