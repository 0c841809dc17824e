package harness

import (
	"github.com/roach88/dpusim/internal/trace"
)

// TraceEvent is one executed instruction as seen by assertions and golden
// files.
type TraceEvent struct {
	Seq    int64  `json:"seq"`
	Index  int    `json:"index"`
	Kind   string `json:"kind"`
	Opcode uint32 `json:"opcode"`
	Text   string `json:"text"`
}

// DumpEvent is one memory segment captured by a DUMP instruction.
type DumpEvent struct {
	Seq  int64  `json:"seq"`
	Name string `json:"name"`
	Data []int8 `json:"data"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if the run ended as expected and every assertion held.
	Pass bool `json:"pass"`

	RunID    string `json:"run_id"`
	Executed int    `json:"executed"`
	Ignored  int    `json:"ignored"`

	// ErrorCode is the code the run stopped with, or empty.
	ErrorCode string `json:"error_code,omitempty"`

	// Digest is trace.RunDigest over the executed steps.
	Digest string `json:"digest"`

	// Trace contains every executed instruction in step order.
	Trace []TraceEvent `json:"trace"`

	// Dumps contains the segments captured by DUMP instructions.
	Dumps []DumpEvent `json:"dumps"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Dumps:  []DumpEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a recorded step.
func (r *Result) AddTrace(rec trace.Record) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:    rec.Seq,
		Index:  rec.Index,
		Kind:   rec.Kind,
		Opcode: rec.Opcode,
		Text:   rec.Text,
	})
}
