package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/dpusim/internal/isa"
)

// Scenario defines a conformance test scenario.
// A scenario seeds memory, runs one instruction stream on a fresh engine
// and asserts on the resulting trace and final memory.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Version is the ISA the program is decoded against.
	Version isa.Version `yaml:"version"`

	// Config overrides the harness defaults.
	Config Overrides `yaml:"config,omitempty"`

	// DDR and Banks seed memory before the run.
	DDR   []Region `yaml:"ddr,omitempty"`
	Banks []Region `yaml:"banks,omitempty"`

	// Program is the instruction stream in text syntax.
	Program string `yaml:"program,omitempty"`

	// ProgramFile names a text stream file instead of Program.
	// Relative paths are resolved against the scenario file location.
	ProgramFile string `yaml:"program_file,omitempty"`

	// Expect describes how the run must end.
	Expect Expect `yaml:"expect,omitempty"`

	// Assertions validate the trace, the store and final memory.
	// Supported types: trace_contains, trace_order, trace_count,
	// final_state, memory
	Assertions []Assertion `yaml:"assertions"`

	// RunID is an optional fixed run ID for deterministic tests.
	// If empty, defaults to "test-run-default" so golden files stay stable.
	RunID string `yaml:"run_id,omitempty"`
}

// Overrides replaces individual config values. Nil fields keep the
// harness default.
type Overrides struct {
	Threads         *int        `yaml:"threads,omitempty"`
	Banks           *int        `yaml:"banks,omitempty"`
	BankDepth       *int        `yaml:"bank_depth,omitempty"`
	GEMM            *bool       `yaml:"gemm,omitempty"`
	DDR             []DDRSizing `yaml:"ddr,omitempty"`
	MaxInstructions *int        `yaml:"max_instructions,omitempty"`
}

// DDRSizing declares one DDR region.
type DDRSizing struct {
	RegID int `yaml:"reg_id"`
	Size  int `yaml:"size"`
}

// Region is a run of bytes at an address. ID is a reg_id for DDR and a
// bank id for banks.
type Region struct {
	ID   int    `yaml:"id"`
	Addr int    `yaml:"addr"`
	Data []int8 `yaml:"data"`
}

// Expect describes how the run ends.
type Expect struct {
	// Error is the expected error code. Empty means the run must succeed.
	Error string `yaml:"error,omitempty"`

	// Executed and Ignored are checked when set.
	Executed *int `yaml:"executed,omitempty"`
	Ignored  *int `yaml:"ignored,omitempty"`
}

// Assertion validates trace, store or memory state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": a step of Kind whose fields include Fields
	// - "trace_order": Kinds first appear in this order
	// - "trace_count": Kind appears exactly Count times
	// - "final_state": a store table row matching Where has Expect values
	// - "memory": Space/ID/Addr holds Data after the run
	Type string `yaml:"type"`

	// Kind is the instruction kind (trace_contains, trace_count).
	Kind string `yaml:"kind,omitempty"`

	// Fields are expected decoded fields (trace_contains).
	// Subset match - only specified fields are validated.
	Fields map[string]int64 `yaml:"fields,omitempty"`

	// Kinds is the expected kind order (trace_order).
	Kinds []string `yaml:"kinds,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Table, Where and Expect query the run store (final_state).
	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`

	// Space is "ddr" or "bank" (memory).
	Space string `yaml:"space,omitempty"`
	ID    int    `yaml:"id,omitempty"`
	Addr  int    `yaml:"addr,omitempty"`
	Data  []int8 `yaml:"data,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertMemory        = "memory"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if s.ProgramFile != "" {
		p := s.ProgramFile
		if !filepath.IsAbs(p) {
			p = filepath.Join(filepath.Dir(path), p)
		}
		src, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid scenario: program_file: %w", err)
		}
		s.Program = string(src)
	}

	if err := validateScenario(s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return s, nil
}

// ParseScenario decodes scenario YAML without validating it.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &s, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Version == 0 {
		return fmt.Errorf("version is required")
	}

	if strings.TrimSpace(s.Program) == "" {
		return fmt.Errorf("program or program_file is required")
	}

	if len(s.Assertions) == 0 && s.Expect.Error == "" {
		return fmt.Errorf("assertions list is required unless expect.error is set")
	}

	for i, r := range s.DDR {
		if len(r.Data) == 0 {
			return fmt.Errorf("ddr[%d]: data is required", i)
		}
	}
	for i, r := range s.Banks {
		if len(r.Data) == 0 {
			return fmt.Errorf("banks[%d]: data is required", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: kinds list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertMemory:
		if a.Space != "ddr" && a.Space != "bank" {
			return fmt.Errorf("assertions[%d]: space must be ddr or bank, got %q", index, a.Space)
		}
		if len(a.Data) == 0 {
			return fmt.Errorf("assertions[%d]: data is required for memory", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
