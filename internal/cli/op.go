package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/dpusim/internal/compiler"
	"github.com/roach88/dpusim/internal/op"
)

// OpOptions holds flags for the op command.
type OpOptions struct {
	*RootOptions
	Filter string // operator name glob
}

// OpResult holds the outcome of one operator check.
type OpResult struct {
	Name       string              `json:"name"`
	Type       string              `json:"type"`
	Pass       bool                `json:"pass"`
	Output     []int64             `json:"output,omitempty"`
	Mismatches []compiler.Mismatch `json:"mismatches,omitempty"`
	Errors     []string            `json:"errors,omitempty"`
}

// OpSummary holds the outcome of every operator check.
type OpSummary struct {
	Ops    []OpResult `json:"ops"`
	Passed int        `json:"passed"`
	Failed int        `json:"failed"`
	Total  int        `json:"total"`
}

// NewOpCommand creates the op command.
func NewOpCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OpOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "op <specs-dir>",
		Short: "Execute operator specs and compare against expected output",
		Long: `Compile every op.<name> in the CUE package at specs-dir, run it on its
inline operands and compare the output with its expect list.

Operators run with the configured thread count, GEMM switch and rounding
mode, so the same specs check both the direct and sharded paths.

Exit codes:
  0 - Every operator matched
  1 - One or more operators failed or mismatched
  2 - Command error (directory not found, no CUE files, etc.)

Examples:
  dpusim op ./ops
  dpusim op ./ops --run "conv*"
  dpusim op ./ops --config sharded.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOps(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "run", "", "only run operators whose name matches this glob")

	return cmd
}

func runOps(opts *OpOptions, specsDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := opts.LoadConfig()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "invalid config", err)
	}

	loadResult, loadErrors := loadSpecs(specsDir, compiler.LoadModeCollectAll)
	if loadResult == nil {
		return formatter.Fail(ExitCommandError, loadCode(loadErrors[0]), "failed to load specs", loadErrors[0])
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, specsDir)

	reg := op.NewRegistry()
	env := op.NewEnv(&cfg)

	var summary OpSummary
	for _, spec := range loadResult.Ops {
		if opts.Filter != "" {
			if ok, err := filepath.Match(opts.Filter, spec.Name); err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeGeneric, "invalid --run pattern", err)
			} else if !ok {
				continue
			}
		}
		formatter.VerboseLog("Running op: %s (%s)", spec.Name, spec.Spec.Type)
		summary.add(checkOp(spec, reg, env))
	}
	for _, err := range loadErrors {
		summary.add(OpResult{Name: "load", Errors: []string{err.Error()}})
	}

	if formatter.JSON() {
		resp := CLIResponse{Status: "ok", Data: summary}
		if summary.Failed > 0 {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    ErrCodeMismatch,
				Message: fmt.Sprintf("%d of %d operator(s) failed", summary.Failed, summary.Total),
			}
		}
		if err := formatter.Encode(resp); err != nil {
			return err
		}
	} else {
		outputOpText(formatter, summary)
	}

	if summary.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d operator(s) failed", summary.Failed))
	}
	return nil
}

// checkOp validates then executes one operator.
func checkOp(spec compiler.OpSpec, reg *op.Registry, env op.Env) OpResult {
	res := OpResult{Name: spec.Name, Type: spec.Spec.Type}

	if verrs := compiler.Validate(spec, reg, env); len(verrs) > 0 {
		for _, e := range verrs {
			res.Errors = append(res.Errors, e.Error())
		}
		return res
	}

	out, err := compiler.Execute(spec, reg, env)
	res.Output = out.Output
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res
	}
	res.Mismatches = out.Mismatches
	res.Pass = out.Passed()
	return res
}

func (s *OpSummary) add(r OpResult) {
	s.Ops = append(s.Ops, r)
	s.Total++
	if r.Pass {
		s.Passed++
	} else {
		s.Failed++
	}
}

func outputOpText(f *OutputFormatter, s OpSummary) {
	w := f.Writer
	for _, r := range s.Ops {
		if r.Pass {
			fmt.Fprintf(w, "✓ %s\n", r.Name)
			if f.Verbose {
				fmt.Fprintf(w, "  output: %v\n", r.Output)
			}
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", r.Name)
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  - %s\n", e)
		}
		for _, m := range r.Mismatches {
			fmt.Fprintf(w, "  - output[%d] = %d, want %d\n", m.Index, m.Got, m.Want)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Op Summary: %d passed, %d failed, %d total\n", s.Passed, s.Failed, s.Total)
}
