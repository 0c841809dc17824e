package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dpusim/internal/fix"
	"github.com/roach88/dpusim/internal/isa"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, fix.RoundDPU, cfg.Round())
	assert.Equal(t, 1<<20, cfg.DDRSize(3))
	assert.Equal(t, 0, cfg.DDRSize(9))
}

func TestParse_OverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
threads: 3
version: XV2DPU
bank_depth: 4096
round_mode: PY3_ROUND
ddr:
  - reg_id: 5
    size: 256
`))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Threads)
	assert.Equal(t, isa.XV2DPU, cfg.Version)
	assert.Equal(t, 4096, cfg.BankDepth)
	assert.Equal(t, 16, cfg.Banks)
	assert.Equal(t, fix.RoundPy3, cfg.Round())
	assert.Equal(t, []DDRRegion{{RegID: 5, Size: 256}}, cfg.DDR)
}

func TestParse_EmptyKeepsDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("thread: 4\n"))
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestParse_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"threads", "threads: 0", "threads must be positive"},
		{"bank depth", "bank_depth: 70000", "bank_depth"},
		{"round mode", "round_mode: NEAREST", "unknown round mode"},
		{"version", "version: V9", "E_UNSUPPORTED_VERSION"},
		{"dup region", "ddr: [{reg_id: 1, size: 4}, {reg_id: 1, size: 4}]", "declared twice"},
		{"region size", "ddr: [{reg_id: 1, size: 0}]", "size must be positive"},
		{"dump dir", "dump_format: hex", "needs dump_dir"},
		{"dump format", "dump_format: png", "unknown dump_format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dpusim.yaml")
	require.NoError(t, os.WriteFile(path, []byte("threads: 2\ngemm: true\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Threads)
	assert.True(t, cfg.GEMM)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}
