package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/dpusim/internal/config"
	"github.com/roach88/dpusim/internal/isa"
	"github.com/roach88/dpusim/internal/kernel"
	"github.com/roach88/dpusim/internal/op"
)

// Step is the trace record of one executed instruction.
type Step struct {
	RunID  string
	Seq    int64
	Index  int
	Kind   isa.Kind
	Opcode uint32
	// Text is the instruction in the text stream syntax.
	Text string
}

// Recorder receives every executed step in order. A failing Recorder
// aborts the run.
type Recorder interface {
	RecordStep(ctx context.Context, s Step) error
}

// Result summarizes a finished run.
type Result struct {
	RunID    string
	Version  isa.Version
	Executed int
	// Ignored counts instructions after END.
	Ignored int
}

// Engine executes instruction streams against a simulated memory.
//
// Thread-safety model:
//   - Run must not be called concurrently on one Engine
//   - Memory may be read or written between runs
//   - kernels shard their own work internally; the engine itself is
//     single-goroutine
//
// Memory persists across runs so a caller can stage inputs, run, and read
// outputs. INIT state does not: every run starts with empty slots.
type Engine struct {
	cfg      *config.Config
	mem      *Memory
	clock    *Clock
	runIDs   RunIDGenerator
	logger   *slog.Logger
	recorder Recorder
	dumper   Dumper
	kopts    []kernel.Option

	// per-run state, reset by Run
	runID string
	inits *initState
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithRecorder receives a Step for every executed instruction.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithDumper receives DUMP snapshots. Without one, DUMP instructions are
// logged and skipped.
func WithDumper(d Dumper) Option {
	return func(e *Engine) {
		e.dumper = d
	}
}

// WithRunIDs sets the run ID source. Default: UUIDv7Generator.
func WithRunIDs(g RunIDGenerator) Option {
	return func(e *Engine) {
		e.runIDs = g
	}
}

// WithClock sets the step clock. Used to continue a stored run's
// numbering.
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// New creates an Engine with fresh memory sized by cfg. cfg must already
// be validated; the engine never modifies it.
func New(cfg *config.Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:    cfg,
		mem:    NewMemory(cfg),
		clock:  NewClock(),
		runIDs: UUIDv7Generator{},
		logger: slog.Default(),
		kopts:  op.NewEnv(cfg).Options,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Memory returns the simulated memory.
func (e *Engine) Memory() *Memory { return e.mem }

// Clock returns the step clock.
func (e *Engine) Clock() *Clock { return e.clock }

// Run executes s in order until END.
//
// Any error aborts the run: dispatch errors for kinds outside s.Version,
// runtime errors (address overflow, missing init, missing end,
// unsupported feature), recorder and dumper failures, and ctx
// cancellation, which is checked between instructions.
func (e *Engine) Run(ctx context.Context, s isa.Stream) (Result, error) {
	e.runID = e.runIDs.Generate()
	e.inits = newInitState()
	res := Result{RunID: e.runID, Version: s.Version}
	budget := NewBudget(e.cfg.MaxInstructions)

	log := e.logger.With("run_id", e.runID, "version", s.Version.String())
	log.Info("run starting", "instructions", len(s.Instructions))

	for i, in := range s.Instructions {
		if err := ctx.Err(); err != nil {
			log.Info("run stopping: context cancelled", "index", i)
			return res, fmt.Errorf("run %s cancelled at instruction %d: %w", e.runID, i, err)
		}
		if err := budget.Check(e.runID); err != nil {
			log.Error("instruction limit exceeded",
				"index", i,
				"limit", budget.Limit(),
			)
			return res, err
		}
		if _, err := isa.OpcodeOf(s.Version, in.Kind); err != nil {
			return res, fmt.Errorf("instruction %d: %w", i, err)
		}

		step := Step{
			RunID:  e.runID,
			Seq:    e.clock.Next(),
			Index:  i,
			Kind:   in.Kind,
			Opcode: in.Opcode,
			Text:   in.String(),
		}
		log.Debug("executing instruction",
			"index", i,
			"kind", in.Kind.String(),
			"opcode", in.Opcode,
			"seq", step.Seq,
		)

		if err := e.execute(ctx, step, in); err != nil {
			err = locate(err, i, in.Kind)
			log.Error("instruction failed",
				"index", i,
				"kind", in.Kind.String(),
				"error", err,
			)
			return res, err
		}
		res.Executed++

		if e.recorder != nil {
			if err := e.recorder.RecordStep(ctx, step); err != nil {
				return res, fmt.Errorf("record step %d: %w", i, err)
			}
		}

		if in.Kind == isa.End {
			res.Ignored = len(s.Instructions) - i - 1
			if res.Ignored > 0 {
				log.Warn("instructions after END ignored", "count", res.Ignored)
			}
			log.Info("run finished", "executed", res.Executed)
			return res, nil
		}
	}

	err := NewMissingEndError(len(s.Instructions))
	log.Error("run failed", "error", err)
	return res, err
}

// handler executes one instruction kind.
type handler func(e *Engine, ctx context.Context, step Step, in isa.Instruction) error

// handlers is the kind -> behaviour table. INIT kinds share one handler.
var handlers map[isa.Kind]handler

func init() {
	handlers = map[isa.Kind]handler{
		isa.Load:         (*Engine).load,
		isa.Save:         (*Engine).save,
		isa.CBLoad:       (*Engine).cbLoad,
		isa.ConvInit:     (*Engine).recordInit,
		isa.DWInit:       (*Engine).recordInit,
		isa.PoolInit:     (*Engine).recordInit,
		isa.ElewInit:     (*Engine).recordInit,
		isa.AluInit:      (*Engine).recordInit,
		isa.Conv:         (*Engine).conv,
		isa.ConvAddr:     (*Engine).conv,
		isa.DptWise:      (*Engine).depthwise,
		isa.Pool:         (*Engine).pool,
		isa.Elew:         (*Engine).elew,
		isa.Alu:          (*Engine).alu,
		isa.AluAddr:      (*Engine).alu,
		isa.Thd:          (*Engine).threshold,
		isa.DumpBank:     (*Engine).dump,
		isa.DumpDDR:      (*Engine).dump,
		isa.DumpDDRSlice: (*Engine).dump,
		isa.End:          func(*Engine, context.Context, Step, isa.Instruction) error { return nil },
	}
}

func (e *Engine) execute(ctx context.Context, step Step, in isa.Instruction) error {
	h, ok := handlers[in.Kind]
	if !ok {
		return unsupported("no behaviour for %v", in.Kind)
	}
	return h(e, ctx, step, in)
}

func (e *Engine) recordInit(_ context.Context, step Step, in isa.Instruction) error {
	if stale := e.inits.set(step.Index, in); stale != nil {
		e.logger.Warn("INIT replaced before use",
			"run_id", e.runID,
			"family", in.Kind.Family().String(),
			"index", step.Index,
			"replaced_index", stale.index,
		)
	}
	return nil
}

// config returns the INIT configuration a compute instruction runs under.
func (e *Engine) config(step Step, k isa.Kind) (isa.Instruction, error) {
	in, ok := e.inits.get(k)
	if !ok {
		return isa.Instruction{}, NewMissingInitError(step.Index, k)
	}
	return in, nil
}

func (e *Engine) dump(ctx context.Context, step Step, in isa.Instruction) error {
	segs, err := e.snapshot(in)
	if err != nil {
		return err
	}
	if e.dumper == nil {
		e.logger.Debug("dump skipped: no dumper",
			"run_id", e.runID,
			"index", step.Index,
			"kind", in.Kind.String(),
		)
		return nil
	}
	snap := Snapshot{
		RunID:    e.runID,
		Index:    step.Index,
		Step:     step.Seq,
		Kind:     in.Kind,
		Segments: segs,
	}
	if err := e.dumper.Dump(ctx, snap); err != nil {
		return fmt.Errorf("dump: %w", err)
	}
	return nil
}
