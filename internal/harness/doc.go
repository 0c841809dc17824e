// Package harness provides conformance testing for instruction streams.
//
// The harness seeds simulated memory, runs one stream on a fresh engine
// and validates the trace, the run store and final memory.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	version: V3E
//	config: { threads: 1, banks: 4, bank_depth: 256 }
//	ddr:
//	  - { id: 0, addr: 0, data: [1, 2, 3, 4] }
//	program: |
//	  LOAD bank_id=0 reg_id=0 ddr_addr=0 length=4
//	  END
//	expect: { executed: 2 }
//	assertions:
//	  - type: trace_contains
//	    kind: LOAD
//	    fields: { length: 4 }
//	  - type: memory
//	    space: bank
//	    id: 0
//	    data: [1, 2, 3, 4]
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - trace_contains: Verifies a step of a kind appears with matching fields
//   - trace_order: Verifies kinds first appear in specified order
//   - trace_count: Verifies a kind appears exactly N times
//   - final_state: Queries a store table (runs, steps, dumps) and verifies values
//   - memory: Verifies a DDR or bank span after the run
//
// # Deterministic Testing
//
// Every scenario runs with a fixed run ID (scenario.run_id or
// "test-run-default"), a fresh step clock and an in-memory SQLite store,
// so traces are identical across runs for golden file comparison.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/conv_1x1.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
