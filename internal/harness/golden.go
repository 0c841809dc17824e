package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/dpusim/internal/trace"
)

// TraceSnapshot captures the observable outcome of a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	RunID        string       `json:"run_id"`
	Version      string       `json:"version"`
	Executed     int          `json:"executed"`
	Ignored      int          `json:"ignored"`
	ErrorCode    string       `json:"error_code,omitempty"`
	Trace        []TraceEvent `json:"trace"`
	Dumps        []DumpEvent  `json:"dumps"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical
// JSON serialization. trace.MarshalCanonical only handles plain values.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		traceList[i] = map[string]any{
			"seq":    event.Seq,
			"index":  event.Index,
			"kind":   event.Kind,
			"opcode": event.Opcode,
			"text":   event.Text,
		}
	}

	dumpList := make([]any, len(s.Dumps))
	for i, d := range s.Dumps {
		dumpList[i] = map[string]any{
			"seq":  d.Seq,
			"name": d.Name,
			"data": d.Data,
		}
	}

	result := map[string]any{
		"scenario_name": s.ScenarioName,
		"run_id":        s.RunID,
		"version":       s.Version,
		"executed":      s.Executed,
		"ignored":       s.Ignored,
		"trace":         traceList,
		"dumps":         dumpList,
	}
	if s.ErrorCode != "" {
		result["error_code"] = s.ErrorCode
	}
	return result
}

func snapshotOf(name, version string, result *Result) TraceSnapshot {
	return TraceSnapshot{
		ScenarioName: name,
		RunID:        result.RunID,
		Version:      version,
		Executed:     result.Executed,
		Ignored:      result.Ignored,
		ErrorCode:    result.ErrorCode,
		Trace:        result.Trace,
		Dumps:        result.Dumps,
	}
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	snapshot := snapshotOf(scenario.Name, scenario.Version.String(), result)
	if err := assertSnapshot(t, scenario.Name, snapshot); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName, version string, result *Result) error {
	t.Helper()
	return assertSnapshot(t, scenarioName, snapshotOf(scenarioName, version, result))
}

// Snapshot returns the canonical golden bytes for a result. The CLI uses
// it to write and compare golden files outside of go test.
func Snapshot(scenarioName, version string, result *Result) ([]byte, error) {
	snapshot := snapshotOf(scenarioName, version, result)
	return trace.MarshalCanonical(snapshot.toCanonicalMap())
}

func assertSnapshot(t *testing.T, name string, snapshot TraceSnapshot) error {
	t.Helper()

	data, err := trace.MarshalCanonical(snapshot.toCanonicalMap())
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
