package compiler

import (
	"errors"
	"fmt"

	"github.com/roach88/dpusim/internal/op"
)

// Compile-level validation codes (E200-E299). Operator construction
// failures keep the op package codes (E101-E106).
const (
	ErrUnknownRole    = "E201" // operand role is not input, weights or bias
	ErrDataLength     = "E202" // inline data does not match the operand shape
	ErrExpectLength   = "E203" // expect does not match the output shape
	ErrDataRange      = "E204" // inline value does not fit the operand dtype
	ErrUnsupportedOut = "E205" // output dtype cannot be compared
)

// ValidationError represents a schema or construction error.
type ValidationError struct {
	Op      string `json:"op"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s.%s: %s", e.Code, e.Line, e.Op, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s.%s: %s", e.Code, e.Op, e.Field, e.Message)
}

// Validate checks s and builds its operator against reg.
// Returns all errors found (does not fail-fast).
func Validate(s OpSpec, reg *op.Registry, env op.Env) []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{
			Op:      s.Name,
			Field:   field,
			Code:    code,
			Message: fmt.Sprintf(format, args...),
			Line:    s.Pos.Line(),
		})
	}

	for i, in := range s.Spec.Inputs {
		field := fmt.Sprintf("inputs[%d]", i)
		switch in.Role {
		case "", op.RoleInput, op.RoleWeights, op.RoleBias:
		default:
			add(field+".role", ErrUnknownRole, "unknown role %q", in.Role)
		}
		if i >= len(s.Data) || s.Data[i] == nil {
			continue
		}
		m, err := in.Map()
		if err != nil {
			continue // reported by the operator build below
		}
		if len(s.Data[i]) != m.Num() {
			add(field+".data", ErrDataLength, "%d values for shape %v (%d elements)", len(s.Data[i]), in.Shape, m.Num())
		}
		if !isInteger(in.DType) {
			add(field+".data", ErrDataRange, "inline data needs an integer dtype, got %s", in.DType)
		} else if err := checkRange(s.Data[i], in.DType.Bits()); err != nil {
			add(field+".data", ErrDataRange, "%v", err)
		}
	}

	if s.Expect != nil {
		if m, err := s.Spec.Output.Map(); err == nil && len(s.Expect) != m.Num() {
			add("expect", ErrExpectLength, "%d values for shape %v (%d elements)", len(s.Expect), s.Spec.Output.Shape, m.Num())
		}
		if !isInteger(s.Spec.Output.DType) {
			add("expect", ErrUnsupportedOut, "cannot compare %s output", s.Spec.Output.DType)
		}
	}

	if _, err := reg.Build(s.Spec, env); err != nil {
		var ve *op.ValidationError
		if errors.As(err, &ve) {
			add(ve.Field, ve.Code, "%s", ve.Message)
		} else {
			add("type", op.ErrUnknownOperator, "%v", err)
		}
	}
	return errs
}

func checkRange(vals []int64, bits int) error {
	if bits == 0 || bits > 32 {
		return nil
	}
	lo, hi := int64(-1)<<(bits-1), int64(1)<<(bits-1)-1
	for i, v := range vals {
		if v < lo || v > hi {
			return fmt.Errorf("value %d at %d outside [%d, %d]", v, i, lo, hi)
		}
	}
	return nil
}
