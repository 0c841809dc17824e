package engine

import (
	"errors"
	"fmt"
)

// Budget counts executed instructions and enforces a maximum.
//
// Each run gets its own Budget. A zero limit disables the check. The
// budget only matters for streams built without a reachable END, where it
// turns a runaway stream into an error instead of a hang.
type Budget struct {
	limit   int
	current int
}

// NewBudget creates a budget of limit instructions.
func NewBudget(limit int) *Budget {
	return &Budget{limit: limit}
}

// Check counts one instruction and validates against the limit.
func (b *Budget) Check(runID string) error {
	b.current++
	if b.limit > 0 && b.current > b.limit {
		return &LimitExceededError{
			RunID:        runID,
			Instructions: b.current,
			Limit:        b.limit,
		}
	}
	return nil
}

// Current returns the number of instructions counted so far.
func (b *Budget) Current() int {
	return b.current
}

// Limit returns the configured maximum.
func (b *Budget) Limit() int {
	return b.limit
}

// LimitExceededError is returned when a run exceeds MaxInstructions.
type LimitExceededError struct {
	RunID        string
	Instructions int
	Limit        int
}

// Error implements the error interface.
func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("%s: run %s exceeded instruction limit: %d > %d",
		ErrCodeInstructionLimit, e.RunID, e.Instructions, e.Limit)
}

// IsLimitExceededError returns true if the error is a LimitExceededError.
func IsLimitExceededError(err error) bool {
	var le *LimitExceededError
	return errors.As(err, &le)
}
