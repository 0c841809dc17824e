package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/dpusim/internal/config"
	"github.com/roach88/dpusim/internal/engine"
	"github.com/roach88/dpusim/internal/isa"
	"github.com/roach88/dpusim/internal/store"
	"github.com/roach88/dpusim/internal/testutil"
	"github.com/roach88/dpusim/internal/trace"
)

// Harness is the test execution engine.
// It runs one scenario against a fresh engine, an in-memory store and a
// fixed run ID.
type Harness struct {
	store     *store.Store
	engine    *engine.Engine
	collector *trace.Collector
	logger    *slog.Logger
}

// Config returns the configuration a scenario runs under: the defaults
// shrunk to test size, then the scenario's overrides.
func Config(s *Scenario) (config.Config, error) {
	cfg := config.Default()
	cfg.Version = s.Version
	cfg.Threads = 1
	cfg.Banks = 4
	cfg.BankDepth = 256
	cfg.DDR = []config.DDRRegion{
		{RegID: 0, Size: 256},
		{RegID: 1, Size: 256},
	}

	o := s.Config
	if o.Threads != nil {
		cfg.Threads = *o.Threads
	}
	if o.Banks != nil {
		cfg.Banks = *o.Banks
	}
	if o.BankDepth != nil {
		cfg.BankDepth = *o.BankDepth
	}
	if o.GEMM != nil {
		cfg.GEMM = *o.GEMM
	}
	if o.MaxInstructions != nil {
		cfg.MaxInstructions = *o.MaxInstructions
	}
	if len(o.DDR) > 0 {
		cfg.DDR = make([]config.DDRRegion, len(o.DDR))
		for i, r := range o.DDR {
			cfg.DDR[i] = config.DDRRegion{RegID: r.RegID, Size: r.Size}
		}
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	return cfg, nil
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Parse the program and build the configuration
// 2. Create a fresh in-memory store and engine
// 3. Seed DDR and bank memory
// 4. Run the stream, then persist the run summary
// 5. Check expect and assertions against trace, store and memory
//
// A returned error means the scenario itself is broken. A run that fails
// differently than expected yields a Result with Pass false.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	cfg, err := Config(scenario)
	if err != nil {
		return nil, err
	}
	stream, err := isa.ParseText(scenario.Version, strings.NewReader(scenario.Program))
	if err != nil {
		return nil, fmt.Errorf("failed to parse program: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:     st,
		collector: trace.NewCollector(st),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	h.engine = engine.New(&cfg,
		engine.WithLogger(h.logger),
		engine.WithRunIDs(testutil.NewFixedRunIDGenerator(scenario.RunID)),
		engine.WithRecorder(h.collector),
		engine.WithDumper(st),
	)

	if err := h.seed(scenario); err != nil {
		return nil, fmt.Errorf("failed to seed memory: %w", err)
	}

	result := NewResult()
	res, runErr := h.engine.Run(ctx, stream)
	result.RunID = res.RunID
	result.Executed = res.Executed
	result.Ignored = res.Ignored
	result.ErrorCode = ErrorCode(runErr)

	if err := h.collect(ctx, scenario, result); err != nil {
		return nil, err
	}

	h.checkExpect(scenario.Expect, runErr, result)

	actx := &AssertionContext{
		Store:  st,
		Memory: h.engine.Memory(),
		Ctx:    ctx,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// seed writes the scenario's initial memory.
func (h *Harness) seed(s *Scenario) error {
	mem := h.engine.Memory()
	for i, r := range s.DDR {
		if err := mem.WriteDDR(r.ID, r.Addr, r.Data); err != nil {
			return fmt.Errorf("ddr[%d]: %w", i, err)
		}
	}
	for i, r := range s.Banks {
		dst, err := mem.Bank(r.ID, r.Addr, len(r.Data))
		if err != nil {
			return fmt.Errorf("banks[%d]: %w", i, err)
		}
		copy(dst, r.Data)
	}
	return nil
}

// collect fills the trace and dumps, then writes the run summary so
// final_state assertions can see it.
func (h *Harness) collect(ctx context.Context, s *Scenario, result *Result) error {
	records := h.collector.Records()
	for _, r := range records {
		result.AddTrace(r)
	}

	digest, err := trace.RunDigest(records)
	if err != nil {
		return fmt.Errorf("failed to digest run: %w", err)
	}
	result.Digest = digest

	err = h.store.WriteRun(ctx, store.Run{
		ID:        result.RunID,
		Version:   s.Version.String(),
		Stream:    s.Program,
		Executed:  result.Executed,
		Ignored:   result.Ignored,
		Digest:    digest,
		ErrorCode: result.ErrorCode,
		Seq:       h.engine.Clock().Current(),
	})
	if err != nil {
		return fmt.Errorf("failed to write run: %w", err)
	}

	dumps, err := h.store.ReadDumps(ctx, result.RunID)
	if err != nil {
		return fmt.Errorf("failed to read dumps: %w", err)
	}
	for _, d := range dumps {
		result.Dumps = append(result.Dumps, DumpEvent{Seq: d.Seq, Name: d.Name, Data: d.Data})
	}

	h.logger.Info("scenario run collected",
		"scenario", s.Name,
		"run_id", result.RunID,
		"steps", len(records),
		"dumps", len(dumps),
	)
	return nil
}

// checkExpect compares how the run ended with the scenario's expect block.
func (h *Harness) checkExpect(want Expect, runErr error, result *Result) {
	switch {
	case want.Error == "" && runErr != nil:
		result.AddError(fmt.Sprintf("run failed: %v", runErr))
	case want.Error != "" && runErr == nil:
		result.AddError(fmt.Sprintf("expected error %s, run succeeded", want.Error))
	case want.Error != "" && result.ErrorCode != want.Error:
		result.AddError(fmt.Sprintf("expected error %s, got %v", want.Error, runErr))
	}
	if want.Executed != nil && *want.Executed != result.Executed {
		result.AddError(fmt.Sprintf("expected %d executed instructions, got %d", *want.Executed, result.Executed))
	}
	if want.Ignored != nil && *want.Ignored != result.Ignored {
		result.AddError(fmt.Sprintf("expected %d ignored instructions, got %d", *want.Ignored, result.Ignored))
	}
}

// ErrorCode extracts the runtime or dispatch error code from err, or ""
// for nil and for errors that carry no code.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	if code := engine.CodeOf(err); code != "" {
		return string(code)
	}
	var de *isa.DispatchError
	if errors.As(err, &de) {
		return string(de.Code)
	}
	if engine.IsLimitError(err) {
		return string(engine.ErrCodeInstructionLimit)
	}
	return ""
}
