package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/dpusim/internal/config"
	"github.com/roach88/dpusim/internal/dump"
	"github.com/roach88/dpusim/internal/engine"
	"github.com/roach88/dpusim/internal/harness"
	"github.com/roach88/dpusim/internal/store"
	"github.com/roach88/dpusim/internal/testutil"
	"github.com/roach88/dpusim/internal/trace"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Version         string
	Binary          bool
	Database        string
	Threads         int
	MaxInstructions int
	DumpDir         string
	DumpFormat      string
	Seeds           []string

	// RunID fixes the run ID. If empty, the engine generates a UUIDv7.
	RunID string
}

// RunSummary is the result of one stream execution.
type RunSummary struct {
	RunID     string `json:"run_id"`
	Version   string `json:"version"`
	Executed  int    `json:"executed"`
	Ignored   int    `json:"ignored"`
	Digest    string `json:"digest"`
	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <stream>",
		Short: "Execute an instruction stream",
		Long: `Execute an instruction stream on a fresh simulated accelerator.

The stream is decoded for the configured ISA version, DDR is seeded from
hex files, and every instruction runs in order until END. With --db the
run, its steps and any dumps are recorded for later trace and replay.

Exit codes:
  0 - The stream ran to END
  1 - The run stopped on a runtime or dispatch error
  2 - Command error (missing stream, bad config, etc.)

Examples:
  dpusim run --version V3E prog.txt
  dpusim run --version XVDPU --binary prog.bin --ddr 0@input.hex
  dpusim run --db ./runs.db --dump-format db prog.txt`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStream(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Version, "version", "", "ISA version (overrides config)")
	cmd.Flags().BoolVar(&opts.Binary, "binary", false, "stream is in binary form")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database for recording the run")
	cmd.Flags().IntVar(&opts.Threads, "threads", 0, "worker threads (overrides config)")
	cmd.Flags().IntVar(&opts.MaxInstructions, "max-instructions", 0, "instruction limit (overrides config)")
	cmd.Flags().StringVar(&opts.DumpDir, "dump-dir", "", "root directory for hex dumps, one subdirectory per run (overrides config)")
	cmd.Flags().StringVar(&opts.DumpFormat, "dump-format", "", "dump format none|hex|db (overrides config)")
	cmd.Flags().StringArrayVar(&opts.Seeds, "ddr", nil, "seed DDR from a hex file, REG@FILE (repeatable)")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "fixed run ID (default: generated UUIDv7)")

	return cmd
}

// runConfig applies the run flags over the loaded config.
func runConfig(opts *RunOptions) (config.Config, error) {
	cfg, err := opts.LoadConfig()
	if err != nil {
		return config.Config{}, err
	}
	if cfg.Version, err = parseVersion(opts.Version, cfg.Version); err != nil {
		return config.Config{}, err
	}
	if opts.Threads > 0 {
		cfg.Threads = opts.Threads
	}
	if opts.MaxInstructions > 0 {
		cfg.MaxInstructions = opts.MaxInstructions
	}
	if opts.DumpDir != "" {
		cfg.DumpDir = opts.DumpDir
	}
	if opts.DumpFormat != "" {
		cfg.DumpFormat = opts.DumpFormat
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func runStream(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	// Configure logging based on verbose flag
	logLevel := slog.LevelWarn
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))

	cfg, err := runConfig(opts)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "invalid config", err)
	}

	stream, err := loadStream(path, cfg.Version, opts.Binary)
	if err != nil {
		return formatter.Fail(ExitCommandError, loadCode(err), "failed to load stream", err)
	}
	formatter.VerboseLog("Decoded %d instruction(s) for %s", len(stream.Instructions), cfg.Version)

	// The store is both recorder and, with --dump-format db, dumper.
	var (
		st       *store.Store
		recorder engine.Recorder
		dbDumper engine.Dumper
	)
	if opts.Database != "" {
		st, err = store.Open(opts.Database)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		recorder = st
		dbDumper = st
	}

	dumper, err := dump.New(&cfg, dbDumper, logger)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "invalid dump settings", err)
	}

	collector := trace.NewCollector(recorder)
	engOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithRecorder(collector),
	}
	if dumper != nil {
		engOpts = append(engOpts, engine.WithDumper(dumper))
	}
	if opts.RunID != "" {
		engOpts = append(engOpts, engine.WithRunIDs(testutil.NewFixedRunIDGenerator(opts.RunID)))
	}
	eng := engine.New(&cfg, engOpts...)

	if err := seedDDR(eng.Memory(), opts.Seeds); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to seed memory", err)
	}

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping run", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	res, runErr := eng.Run(ctx, stream)

	digest, err := trace.RunDigest(collector.Records())
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeGeneric, "failed to digest run", err)
	}
	summary := RunSummary{
		RunID:     res.RunID,
		Version:   cfg.Version.String(),
		Executed:  res.Executed,
		Ignored:   res.Ignored,
		Digest:    digest,
		ErrorCode: harness.ErrorCode(runErr),
	}
	if runErr != nil {
		summary.Error = runErr.Error()
	}

	if st != nil {
		text, err := streamText(stream)
		if err != nil {
			return formatter.Fail(ExitFailure, ErrCodeWriteFailed, "failed to render stream", err)
		}
		// A cancelled run is still recorded.
		err = st.WriteRun(context.WithoutCancel(ctx), store.Run{
			ID:        res.RunID,
			Version:   summary.Version,
			Stream:    text,
			Executed:  res.Executed,
			Ignored:   res.Ignored,
			Digest:    digest,
			ErrorCode: summary.ErrorCode,
			Seq:       eng.Clock().Current(),
		})
		if err != nil {
			return formatter.Fail(ExitFailure, ErrCodeWriteFailed, "failed to record run", err)
		}
	}

	if err := outputRunSummary(formatter, summary); err != nil {
		return err
	}
	if runErr != nil {
		return WrapExitError(ExitFailure, "run failed", runErr)
	}
	return nil
}

func outputRunSummary(f *OutputFormatter, s RunSummary) error {
	if f.JSON() {
		resp := CLIResponse{Status: "ok", Data: s, RunID: s.RunID}
		if s.Error != "" {
			resp.Status = "error"
			code := s.ErrorCode
			if code == "" {
				code = ErrCodeGeneric
			}
			resp.Error = &CLIError{Code: code, Message: s.Error}
		}
		return f.Encode(resp)
	}

	w := f.Writer
	fmt.Fprintf(w, "Run:      %s\n", s.RunID)
	fmt.Fprintf(w, "Version:  %s\n", s.Version)
	fmt.Fprintf(w, "Executed: %d\n", s.Executed)
	if s.Ignored > 0 {
		fmt.Fprintf(w, "Ignored:  %d\n", s.Ignored)
	}
	fmt.Fprintf(w, "Digest:   %s\n", s.Digest)
	if s.Error != "" {
		fmt.Fprintf(w, "✗ %s\n", s.Error)
		return nil
	}
	fmt.Fprintln(w, "✓ Run completed")
	return nil
}
