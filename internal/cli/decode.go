package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/dpusim/internal/isa"
)

// DecodeOptions holds flags for the decode command.
type DecodeOptions struct {
	*RootOptions
	Version string
	Encode  bool
	Output  string
}

// DecodedInstruction is one instruction in JSON output.
type DecodedInstruction struct {
	Index  int    `json:"index"`
	Kind   string `json:"kind"`
	Opcode uint32 `json:"opcode"`
	Text   string `json:"text"`
}

// NewDecodeCommand creates the decode command.
func NewDecodeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DecodeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "decode <stream>",
		Short: "Convert instruction streams between binary and text",
		Long: `Decode a binary instruction stream into the text syntax, or with
--encode assemble a text stream into binary.

Decoding checks every record against the opcode table of the version, so
it doubles as a validator for streams produced elsewhere.

Examples:
  dpusim decode --version V3E prog.bin
  dpusim decode --version V3E --format json prog.bin
  dpusim decode --version XV2DPU --encode -o prog.bin prog.txt`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Version, "version", "", "ISA version (overrides config)")
	cmd.Flags().BoolVar(&opts.Encode, "encode", false, "assemble text into binary")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file (default stdout)")

	return cmd
}

func runDecode(opts *DecodeOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := opts.LoadConfig()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "invalid config", err)
	}
	v, err := parseVersion(opts.Version, cfg.Version)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "invalid version", err)
	}

	// Input is binary unless we are encoding.
	stream, err := loadStream(path, v, !opts.Encode)
	if err != nil {
		return formatter.Fail(ExitCommandError, loadCode(err), "failed to decode stream", err)
	}
	formatter.VerboseLog("Decoded %d instruction(s) for %s", len(stream.Instructions), v)

	if opts.Encode {
		raws := make([]isa.Raw, len(stream.Instructions))
		for i, in := range stream.Instructions {
			raws[i] = in.Raw()
		}
		var buf bytes.Buffer
		if err := isa.WriteBinary(&buf, raws); err != nil {
			return formatter.Fail(ExitFailure, ErrCodeWriteFailed, "failed to encode stream", err)
		}
		if err := writeOutput(opts.Output, cmd.OutOrStdout(), buf.Bytes()); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "failed to write output", err)
		}
		return nil
	}

	if formatter.JSON() {
		out := make([]DecodedInstruction, len(stream.Instructions))
		for i, in := range stream.Instructions {
			out[i] = DecodedInstruction{
				Index:  i,
				Kind:   in.Kind.String(),
				Opcode: in.Opcode,
				Text:   in.String(),
			}
		}
		return formatter.Encode(CLIResponse{Status: "ok", Data: out})
	}

	var buf bytes.Buffer
	if err := isa.WriteText(&buf, stream); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeWriteFailed, "failed to render stream", err)
	}
	if err := writeOutput(opts.Output, cmd.OutOrStdout(), buf.Bytes()); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "failed to write output", err)
	}
	return nil
}

// writeOutput writes data to path, or to w when path is empty.
func writeOutput(path string, w io.Writer, data []byte) error {
	if path == "" {
		_, err := w.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
