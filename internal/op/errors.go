package op

import (
	"errors"
	"fmt"
)

// Validation error codes.
const (
	ErrMissingAttr     = "E101"
	ErrBadShape        = "E102"
	ErrOutputMismatch  = "E103"
	ErrBiasChannels    = "E104"
	ErrUnsupported     = "E105"
	ErrUnknownOperator = "E106"
)

// ValidationError reports an operator that cannot be built. It is raised
// at construction, never during Run.
type ValidationError struct {
	Op      string
	Field   string
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %s.%s: %s", e.Code, e.Op, e.Field, e.Message)
}

// IsValidationError reports whether err is a ValidationError with code.
// An empty code matches any ValidationError.
func IsValidationError(err error, code string) bool {
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return false
	}
	return code == "" || ve.Code == code
}

func invalid(op, field, code, format string, args ...any) error {
	return &ValidationError{Op: op, Field: field, Code: code, Message: fmt.Sprintf(format, args...)}
}
