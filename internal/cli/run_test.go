package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dpusim/internal/dump"
	"github.com/roach88/dpusim/internal/store"
)

var (
	smallConfig  = filepath.Join("testdata", "small.yaml")
	copyStream   = filepath.Join("testdata", "streams", "copy_v3e.txt")
	noEndStream  = filepath.Join("testdata", "streams", "no_end_v3e.txt")
	seedHex      = filepath.Join("testdata", "streams", "seed.hex")
	goodOpsDir   = filepath.Join("testdata", "ops", "good")
	harnessCases = filepath.Join("..", "harness", "testdata", "scenarios")
)

// execute runs the root command with args and returns what it wrote to
// stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// decodeResponse parses JSON output into a response whose Data is a
// generic map.
func decodeResponse(t *testing.T, out string) (CLIResponse, map[string]any) {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	data, _ := resp.Data.(map[string]any)
	return resp, data
}

// recordRun runs a stream into db under a fixed run ID.
func recordRun(t *testing.T, db, runID, stream string, extra ...string) {
	t.Helper()
	args := []string{"run", "--config", smallConfig, "--db", db, "--run-id", runID, "--ddr", "0@" + seedHex}
	args = append(args, extra...)
	_, _ = execute(t, append(args, stream)...)
}

func TestRun_CopyStream(t *testing.T) {
	out, err := execute(t, "run", "--config", smallConfig, "--ddr", "0@"+seedHex, copyStream)
	require.NoError(t, err)

	assert.Contains(t, out, "Version:  V3E")
	assert.Contains(t, out, "Executed: 4")
	assert.Contains(t, out, "✓ Run completed")
	assert.NotContains(t, out, "Ignored:")
}

func TestRun_JSONSummary(t *testing.T) {
	out, err := execute(t, "run", "--format", "json", "--config", smallConfig, "--run-id", "cli-run", copyStream)
	require.NoError(t, err)

	resp, data := decodeResponse(t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "cli-run", resp.RunID)
	assert.Nil(t, resp.Error)
	assert.Equal(t, "cli-run", data["run_id"])
	assert.Equal(t, "V3E", data["version"])
	assert.Equal(t, float64(4), data["executed"])
	assert.NotEmpty(t, data["digest"])
	assert.NotContains(t, data, "error_code")
}

func TestRun_DigestIndependentOfRunID(t *testing.T) {
	outA, err := execute(t, "run", "--format", "json", "--config", smallConfig, "--run-id", "a", copyStream)
	require.NoError(t, err)
	outB, err := execute(t, "run", "--format", "json", "--config", smallConfig, "--run-id", "b", copyStream)
	require.NoError(t, err)

	_, a := decodeResponse(t, outA)
	_, b := decodeResponse(t, outB)
	assert.Equal(t, a["digest"], b["digest"])
}

func TestRun_HexDumps(t *testing.T) {
	dumpDir := t.TempDir()
	_, err := execute(t, "run", "--config", smallConfig,
		"--ddr", "0@"+seedHex,
		"--dump-format", "hex", "--dump-dir", dumpDir, "--run-id", "hex-1",
		copyStream)
	require.NoError(t, err)

	entries, err := os.ReadDir(dumpDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "hex-1", entries[0].Name())
	assert.True(t, entries[0].IsDir())

	// DUMPDDR is the third step
	f, err := os.Open(filepath.Join(dumpDir, "hex-1", "000003_dumpddr_ddr1_0x8.hex"))
	require.NoError(t, err)
	defer f.Close()

	base, data, err := dump.ReadHex(f)
	require.NoError(t, err)
	assert.Equal(t, 8, base)
	assert.Equal(t, []int8{1, 2, 3, 4}, data)
}

func TestRun_RecordsToDatabase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	_, err := execute(t, "run", "--config", smallConfig, "--db", db, "--run-id", "rec-1",
		"--ddr", "0@"+seedHex, "--dump-format", "db", copyStream)
	require.NoError(t, err)

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	run, err := st.ReadRun(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, "V3E", run.Version)
	assert.Equal(t, 4, run.Executed)
	assert.Empty(t, run.ErrorCode)
	assert.Equal(t, int64(4), run.Seq)
	assert.Contains(t, run.Stream, "LOAD")
	assert.Contains(t, run.Stream, "END")

	steps, err := st.ReadSteps(ctx, "rec-1")
	require.NoError(t, err)
	require.Len(t, steps, 4)
	assert.Equal(t, "SAVE", steps[1].Kind)

	dumps, err := st.ReadDumps(ctx, "rec-1")
	require.NoError(t, err)
	require.Len(t, dumps, 1)
	assert.Equal(t, "ddr1@0x8", dumps[0].Name)
	assert.Equal(t, []int8{1, 2, 3, 4}, dumps[0].Data)
}

func TestRun_MissingEnd(t *testing.T) {
	out, err := execute(t, "run", "--format", "json", "--config", smallConfig, noEndStream)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp, data := decodeResponse(t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_MISSING_END", resp.Error.Code)
	assert.Equal(t, float64(1), data["executed"])
}

func TestRun_InstructionLimit(t *testing.T) {
	out, err := execute(t, "run", "--config", smallConfig, "--max-instructions", "2", copyStream)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Executed: 2")
	assert.Contains(t, out, "✗")
}

func TestRun_BinaryStream(t *testing.T) {
	bin := filepath.Join(t.TempDir(), "copy.bin")
	_, err := execute(t, "decode", "--version", "V3E", "--encode", "-o", bin, copyStream)
	require.NoError(t, err)

	out, err := execute(t, "run", "--config", smallConfig, "--binary", bin)
	require.NoError(t, err)
	assert.Contains(t, out, "Executed: 4")
}

func TestRun_CommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing_stream", []string{"run", "--config", smallConfig, "nope.txt"}, ErrCodeNotFound},
		{"bad_version", []string{"run", "--config", smallConfig, "--version", "V9", copyStream}, ErrCodeGeneric},
		{"bad_seed", []string{"run", "--config", smallConfig, "--ddr", "zero", copyStream}, ErrCodeGeneric},
		{"hex_without_dir", []string{"run", "--config", smallConfig, "--dump-format", "hex", copyStream}, ErrCodeGeneric},
		{"missing_config", []string{"run", "--config", "missing.yaml", copyStream}, ErrCodeGeneric},
		{"wrong_version_for_stream", []string{"run", "--config", smallConfig, "--binary", copyStream}, ErrCodeDecodeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, "Error ["+tt.want+"]")
		})
	}
}

func TestRun_SeedChecksDDRRegions(t *testing.T) {
	oversized := filepath.Join(t.TempDir(), "tail.hex")
	require.NoError(t, os.WriteFile(oversized, []byte("000000fe: 01 02 03 04\n"), 0644))

	tests := []struct {
		name string
		seed string
		want string
	}{
		{"unknown_region", "7@" + seedHex, "no DDR region 7 (configured: [0 1])"},
		{"past_region_end", "0@" + oversized, "4 bytes at 0xfe exceed DDR region 0 of 256 bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, "run", "--config", smallConfig, "--ddr", tt.seed, copyStream)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, "failed to seed memory")
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestRun_RequiresStreamArg(t *testing.T) {
	_, err := execute(t, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}
