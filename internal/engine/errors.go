package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/dpusim/internal/isa"
)

// RuntimeError is an error detected while executing an instruction stream.
//
// Runtime errors include:
//   - Address overflow: an operand falls outside its bank or DDR region
//   - Missing init: a compute instruction ran before its family's INIT
//   - Missing end: the stream ran out before END
//   - Unsupported feature: a field value the model does not implement
//
// Every runtime error aborts the run. Index and Kind locate the failing
// instruction; Index is -1 for errors that belong to the stream as a whole.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Index is the position of the instruction in the stream.
	Index int

	// Kind is the failing instruction's kind.
	Kind isa.Kind

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeAddressOverflow indicates a bank or DDR access out of bounds.
	ErrCodeAddressOverflow RuntimeErrorCode = "E_ADDRESS_OVERFLOW"

	// ErrCodeMissingInit indicates a compute instruction without a
	// preceding INIT of its family.
	ErrCodeMissingInit RuntimeErrorCode = "E_MISSING_INIT"

	// ErrCodeMissingEnd indicates a stream without END.
	ErrCodeMissingEnd RuntimeErrorCode = "E_MISSING_END"

	// ErrCodeUnsupported indicates a field combination the model does not
	// implement (unknown act_type, pool_type, round_mode and so on).
	ErrCodeUnsupported RuntimeErrorCode = "E_UNSUPPORTED_FEATURE"

	// ErrCodeInvalidOperand indicates operands the compute core rejects:
	// inconsistent shapes, unsorted thresholds, an absent address entry.
	ErrCodeInvalidOperand RuntimeErrorCode = "E_INVALID_OPERAND"

	// ErrCodeInstructionLimit indicates the run exceeded MaxInstructions.
	ErrCodeInstructionLimit RuntimeErrorCode = "E_INSTRUCTION_LIMIT"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Index >= 0 && e.Kind != 0 {
		return fmt.Sprintf("%s: %s (instruction %d %v)", e.Code, e.Message, e.Index, e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CodeOf returns the code of a RuntimeError in err's chain, or "".
func CodeOf(err error) RuntimeErrorCode {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// IsAddressError returns true if the error is an address overflow.
// Uses errors.As to handle wrapped errors.
func IsAddressError(err error) bool {
	return CodeOf(err) == ErrCodeAddressOverflow
}

// IsMissingInitError returns true if a compute instruction ran without
// its INIT.
func IsMissingInitError(err error) bool {
	return CodeOf(err) == ErrCodeMissingInit
}

// IsMissingEndError returns true if the stream had no END.
func IsMissingEndError(err error) bool {
	return CodeOf(err) == ErrCodeMissingEnd
}

// IsUnsupportedError returns true for unsupported field combinations.
func IsUnsupportedError(err error) bool {
	return CodeOf(err) == ErrCodeUnsupported
}

// IsLimitError returns true if the instruction budget ran out.
// Matches both RuntimeError with ErrCodeInstructionLimit and
// LimitExceededError.
func IsLimitError(err error) bool {
	if CodeOf(err) == ErrCodeInstructionLimit {
		return true
	}
	var le *LimitExceededError
	return errors.As(err, &le)
}

// NewAddressError creates a RuntimeError for an out-of-bounds access.
// Index and Kind are filled in by the run loop.
func NewAddressError(space string, id, addr, n, size int) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeAddressOverflow,
		Message: fmt.Sprintf("%s %d: [0x%X, 0x%X) exceeds size 0x%X", space, id, addr, addr+n, size),
		Index:   -1,
		Details: map[string]string{
			"space": space,
			"id":    fmt.Sprintf("%d", id),
			"addr":  fmt.Sprintf("%d", addr),
			"len":   fmt.Sprintf("%d", n),
			"size":  fmt.Sprintf("%d", size),
		},
	}
}

// NewMissingInitError creates a RuntimeError for a compute instruction
// whose family has no recorded configuration.
func NewMissingInitError(index int, k isa.Kind) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeMissingInit,
		Message: fmt.Sprintf("no %s INIT precedes %v", k.Family(), k),
		Index:   index,
		Kind:    k,
	}
}

// NewMissingEndError creates a RuntimeError for a stream of n instructions
// without END.
func NewMissingEndError(n int) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeMissingEnd,
		Message: fmt.Sprintf("stream of %d instructions has no END", n),
		Index:   -1,
	}
}

func unsupported(format string, args ...any) *RuntimeError {
	return &RuntimeError{Code: ErrCodeUnsupported, Message: fmt.Sprintf(format, args...), Index: -1}
}

func invalidOperand(format string, args ...any) *RuntimeError {
	return &RuntimeError{Code: ErrCodeInvalidOperand, Message: fmt.Sprintf(format, args...), Index: -1}
}

// locate stamps err with the failing instruction if it is a RuntimeError
// that does not know its position yet.
func locate(err error, index int, k isa.Kind) error {
	var re *RuntimeError
	if errors.As(err, &re) && re.Index < 0 {
		re.Index = index
		re.Kind = k
	}
	return err
}
