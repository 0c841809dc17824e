package isa

import (
	"errors"
	"fmt"
)

// ErrorCode classifies dispatch failures.
type ErrorCode string

const (
	ErrUnsupportedVersion ErrorCode = "E_UNSUPPORTED_VERSION"
	ErrUnknownOpcode      ErrorCode = "E_UNKNOWN_OPCODE"
	ErrKindNotInVersion   ErrorCode = "E_KIND_NOT_IN_VERSION"
	ErrMalformed          ErrorCode = "E_MALFORMED_INSTRUCTION"
)

// DispatchError is a configuration error raised while resolving or
// decoding an instruction. It is never recovered from.
type DispatchError struct {
	Code    ErrorCode
	Version Version
	Opcode  uint32
	Message string
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsDispatchError reports whether err is a DispatchError with code.
func IsDispatchError(err error, code ErrorCode) bool {
	var de *DispatchError
	return errors.As(err, &de) && de.Code == code
}

func unsupportedVersion(v Version) error {
	return &DispatchError{
		Code:    ErrUnsupportedVersion,
		Version: v,
		Message: fmt.Sprintf("ISA version %v is not supported", v),
	}
}

func unknownOpcode(v Version, op uint32) error {
	return &DispatchError{
		Code:    ErrUnknownOpcode,
		Version: v,
		Opcode:  op,
		Message: fmt.Sprintf("opcode 0x%02X is not defined for %v", op, v),
	}
}

func kindNotInVersion(v Version, k Kind) error {
	return &DispatchError{
		Code:    ErrKindNotInVersion,
		Version: v,
		Message: fmt.Sprintf("%v has no %v instruction", v, k),
	}
}

func malformed(v Version, op uint32, format string, args ...any) error {
	return &DispatchError{
		Code:    ErrMalformed,
		Version: v,
		Opcode:  op,
		Message: fmt.Sprintf(format, args...),
	}
}
