package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/dpusim/internal/config"
	"github.com/roach88/dpusim/internal/engine"
	"github.com/roach88/dpusim/internal/harness"
	"github.com/roach88/dpusim/internal/isa"
	"github.com/roach88/dpusim/internal/store"
	"github.com/roach88/dpusim/internal/testutil"
	"github.com/roach88/dpusim/internal/trace"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - specific run only
}

// ReplayRunResult holds the replay result for a single run.
type ReplayRunResult struct {
	RunID         string `json:"run_id"`
	Version       string `json:"version"`
	Executed      int    `json:"executed"`
	Digest        string `json:"digest"`
	ReplayDigest  string `json:"replay_digest"`
	ErrorCode     string `json:"error_code,omitempty"`
	ReplayError   string `json:"replay_error_code,omitempty"`
	Deterministic bool   `json:"deterministic"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Runs             []ReplayRunResult `json:"runs"`
	TotalRuns        int               `json:"total_runs"`
	AllDeterministic bool              `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-execute recorded runs and verify determinism",
		Long: `Re-execute recorded runs and verify determinism.

Every run recorded with "dpusim run --db" stores its stream in text form.
Replay decodes it again, runs it on a fresh engine under the current
config and compares the step digest, instruction count and error code
with what was recorded. Step digests cover instruction text, not memory
contents, so DDR seeds are not needed.

Exit codes:
  0 - All runs are deterministic
  1 - Determinism verification failed (differences detected)
  2 - Command error (database not found, etc.)

Examples:
  dpusim replay --db ./runs.db
  dpusim replay --db ./runs.db --run 0190a5c2-...
  dpusim replay --db ./runs.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "replay specific run only")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := opts.LoadConfig()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "invalid config", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to open database", err)
	}
	defer st.Close()

	var runs []store.Run
	if opts.RunID != "" {
		r, err := st.ReadRun(ctx, opts.RunID)
		if errors.Is(err, sql.ErrNoRows) {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("run not found: %s", opts.RunID), nil)
		}
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to read run", err)
		}
		runs = []store.Run{r}
	} else {
		runs, err = st.ListRuns(ctx)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to list runs", err)
		}
	}

	result := ReplayResult{
		Runs:             make([]ReplayRunResult, 0, len(runs)),
		TotalRuns:        len(runs),
		AllDeterministic: true,
	}
	for _, r := range runs {
		formatter.VerboseLog("Replaying run %s (%s)", r.ID, r.Version)
		runResult, err := replayRun(ctx, cfg, r)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeDecodeFailed, fmt.Sprintf("failed to replay run %s", r.ID), err)
		}
		result.Runs = append(result.Runs, runResult)
		if !runResult.Deterministic {
			result.AllDeterministic = false
		}
	}

	if formatter.JSON() {
		return outputReplayJSON(formatter, result)
	}
	return outputReplayText(formatter.Writer, result, opts.Verbose)
}

// replayRun executes a recorded stream again and compares the outcome
// with the recorded one.
func replayRun(ctx context.Context, cfg config.Config, r store.Run) (ReplayRunResult, error) {
	v, err := isa.ParseVersion(r.Version)
	if err != nil {
		return ReplayRunResult{}, err
	}
	stream, err := isa.ParseText(v, strings.NewReader(r.Stream))
	if err != nil {
		return ReplayRunResult{}, err
	}

	cfg.Version = v
	collector := trace.NewCollector(nil)
	eng := engine.New(&cfg,
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithRunIDs(testutil.NewFixedRunIDGenerator(r.ID)),
		engine.WithRecorder(collector),
	)
	res, runErr := eng.Run(ctx, stream)

	digest, err := trace.RunDigest(collector.Records())
	if err != nil {
		return ReplayRunResult{}, err
	}
	code := harness.ErrorCode(runErr)
	same := digest == r.Digest &&
		res.Executed == r.Executed &&
		res.Ignored == r.Ignored &&
		code == r.ErrorCode

	return ReplayRunResult{
		RunID:         r.ID,
		Version:       r.Version,
		Executed:      r.Executed,
		Digest:        r.Digest,
		ReplayDigest:  digest,
		ErrorCode:     r.ErrorCode,
		ReplayError:   code,
		Deterministic: same,
	}, nil
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(f *OutputFormatter, result ReplayResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if !result.AllDeterministic {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_DETERMINISM",
			Message: "determinism verification failed",
		}
	}
	if err := f.Encode(response); err != nil {
		return err
	}

	if !result.AllDeterministic {
		// Determinism failure = exit code 1
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(w io.Writer, result ReplayResult, verbose bool) error {
	if result.TotalRuns == 0 {
		fmt.Fprintln(w, "No runs found in database.")
		return nil
	}

	fmt.Fprintf(w, "Replay Summary: %d run(s)\n", result.TotalRuns)
	fmt.Fprintln(w)

	for _, run := range result.Runs {
		status := "✓"
		if !run.Deterministic {
			status = "✗"
		}
		fmt.Fprintf(w, "%s Run: %s (%s)\n", status, run.RunID, run.Version)

		if verbose || !run.Deterministic {
			fmt.Fprintf(w, "  Recorded: %s %s\n", run.Digest, runStatus(run.ErrorCode))
			fmt.Fprintf(w, "  Replayed: %s %s\n", run.ReplayDigest, runStatus(run.ReplayError))
		} else {
			fmt.Fprintf(w, "  Steps: %d executed\n", run.Executed)
		}

		if !run.Deterministic {
			fmt.Fprintln(w, "  Warning: Non-deterministic replay detected!")
		}
		fmt.Fprintln(w)
	}

	if result.AllDeterministic {
		fmt.Fprintln(w, "✓ All runs verified deterministic")
		return nil
	}

	fmt.Fprintln(w, "✗ Determinism verification failed")
	// Determinism failure = exit code 1
	return NewExitError(ExitFailure, "determinism verification failed")
}
