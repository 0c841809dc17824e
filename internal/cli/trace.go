package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/dpusim/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string
	Kind     string // optional - filter to one instruction kind
}

// TraceStep is one executed instruction in the timeline.
type TraceStep struct {
	Seq    int64  `json:"seq"`
	Index  int    `json:"index"`
	Kind   string `json:"kind"`
	Opcode uint32 `json:"opcode"`
	Text   string `json:"text"`
}

// TraceDump is one recorded dump segment.
type TraceDump struct {
	Seq    int64  `json:"seq"`
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Bytes  int    `json:"bytes"`
	Digest string `json:"digest"`
}

// RunInfo summarizes a recorded run.
type RunInfo struct {
	RunID     string `json:"run_id"`
	Version   string `json:"version"`
	Executed  int    `json:"executed"`
	Ignored   int    `json:"ignored"`
	Digest    string `json:"digest"`
	ErrorCode string `json:"error_code,omitempty"`
}

// TraceResult holds the complete trace output for one run.
type TraceResult struct {
	Run      RunInfo     `json:"run"`
	Timeline []TraceStep `json:"timeline"`
	Dumps    []TraceDump `json:"dumps"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show recorded runs and their steps",
		Long: `Show runs recorded with "dpusim run --db".

Without --run, lists every recorded run in finishing order. With --run,
shows the run's timeline of executed instructions and the segments its
DUMP instructions captured.

Examples:
  dpusim trace --db ./runs.db
  dpusim trace --db ./runs.db --run 0190a5c2-...
  dpusim trace --db ./runs.db --run 0190a5c2-... --kind CONV --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run ID to trace")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter timeline to one instruction kind")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	st, err := store.Open(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to open database", err)
	}
	defer st.Close()

	if opts.RunID == "" {
		runs, err := st.ListRuns(ctx)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to list runs", err)
		}
		infos := make([]RunInfo, len(runs))
		for i, r := range runs {
			infos[i] = runInfo(r)
		}
		if formatter.JSON() {
			return formatter.Encode(CLIResponse{Status: "ok", Data: infos})
		}
		outputRunList(formatter.Writer, infos)
		return nil
	}

	result, err := buildTrace(ctx, st, opts.RunID, opts.Kind)
	if errors.Is(err, sql.ErrNoRows) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("run not found: %s", opts.RunID), nil)
	}
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to read run", err)
	}

	if formatter.JSON() {
		return formatter.Encode(CLIResponse{Status: "ok", Data: result, RunID: opts.RunID})
	}
	outputTraceText(formatter.Writer, result, opts.Verbose)
	return nil
}

// buildTrace reads a run with its steps and dumps. kind filters the
// timeline only.
func buildTrace(ctx context.Context, st *store.Store, runID, kind string) (TraceResult, error) {
	run, err := st.ReadRun(ctx, runID)
	if err != nil {
		return TraceResult{}, err
	}
	steps, err := st.ReadSteps(ctx, runID)
	if err != nil {
		return TraceResult{}, err
	}
	dumps, err := st.ReadDumps(ctx, runID)
	if err != nil {
		return TraceResult{}, err
	}

	result := TraceResult{
		Run:      runInfo(run),
		Timeline: []TraceStep{},
		Dumps:    make([]TraceDump, len(dumps)),
	}
	for _, s := range steps {
		if kind != "" && s.Kind != kind {
			continue
		}
		result.Timeline = append(result.Timeline, TraceStep{
			Seq:    s.Seq,
			Index:  s.Index,
			Kind:   s.Kind,
			Opcode: s.Opcode,
			Text:   s.Text,
		})
	}
	for i, d := range dumps {
		result.Dumps[i] = TraceDump{
			Seq:    d.Seq,
			Index:  d.Index,
			Name:   d.Name,
			Bytes:  len(d.Data),
			Digest: d.Digest,
		}
	}
	return result, nil
}

func runInfo(r store.Run) RunInfo {
	return RunInfo{
		RunID:     r.ID,
		Version:   r.Version,
		Executed:  r.Executed,
		Ignored:   r.Ignored,
		Digest:    r.Digest,
		ErrorCode: r.ErrorCode,
	}
}

func runStatus(code string) string {
	if code == "" {
		return "completed"
	}
	return "failed (" + code + ")"
}

func outputRunList(w io.Writer, runs []RunInfo) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found in database.")
		return
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %-6s  %4d executed  %s\n", r.RunID, r.Version, r.Executed, runStatus(r.ErrorCode))
	}
}

func outputTraceText(w io.Writer, result TraceResult, verbose bool) {
	fmt.Fprintf(w, "Trace for Run: %s\n", result.Run.RunID)
	fmt.Fprintf(w, "Version: %s\n", result.Run.Version)
	fmt.Fprintf(w, "Status: %s\n", runStatus(result.Run.ErrorCode))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no steps)")
	}
	for _, s := range result.Timeline {
		if verbose {
			fmt.Fprintf(w, "  [%d] #%d %s\n", s.Seq, s.Index, s.Text)
			continue
		}
		fmt.Fprintf(w, "  [%d] #%d %s\n", s.Seq, s.Index, s.Kind)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Dumps ===")
	if len(result.Dumps) == 0 {
		fmt.Fprintln(w, "  (no dumps)")
	}
	for _, d := range result.Dumps {
		fmt.Fprintf(w, "  [%d] %s %d bytes %s\n", d.Seq, d.Name, d.Bytes, d.Digest)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Executed: %d  Ignored: %d\n", result.Run.Executed, result.Run.Ignored)
	fmt.Fprintf(w, "Digest: %s\n", result.Run.Digest)
}
