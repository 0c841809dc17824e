// Package config holds the simulator configuration.
//
// A Config is built once, before the first operator or instruction runs,
// and passed by pointer to every component that needs it. Nothing mutates
// it after Validate succeeds.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/roach88/dpusim/internal/fix"
	"github.com/roach88/dpusim/internal/isa"
)

// Dump formats.
const (
	DumpNone = "none"
	DumpHex  = "hex"
	DumpDB   = "db"
)

// DDRRegion declares one backing-store region addressed by reg_id.
type DDRRegion struct {
	RegID int `yaml:"reg_id"`
	Size  int `yaml:"size"`
}

// Config is the immutable simulator configuration.
type Config struct {
	// Threads sizes the worker pool of sharded kernels. 1 runs every
	// kernel on its direct path.
	Threads int `yaml:"threads"`

	// GEMM selects the matrix-multiply convolution path.
	GEMM bool `yaml:"gemm"`

	// Version is the ISA the instruction stream targets.
	Version isa.Version `yaml:"version"`

	// Banks and BankDepth size on-chip memory: Banks banks of BankDepth
	// bytes each.
	Banks     int `yaml:"banks"`
	BankDepth int `yaml:"bank_depth"`

	// DDR lists the backing-store regions.
	DDR []DDRRegion `yaml:"ddr"`

	// RoundMode is the rounder used when an operator does not name one.
	RoundMode string `yaml:"round_mode"`

	// MaxInstructions aborts runaway streams. 0 disables the limit.
	MaxInstructions int `yaml:"max_instructions"`

	// DumpDir and DumpFormat control debug snapshots.
	DumpDir    string `yaml:"dump_dir"`
	DumpFormat string `yaml:"dump_format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Threads:   runtime.NumCPU(),
		Version:   isa.V2,
		Banks:     16,
		BankDepth: 1 << 16,
		DDR: []DDRRegion{
			{RegID: 0, Size: 1 << 20},
			{RegID: 1, Size: 1 << 20},
			{RegID: 2, Size: 1 << 20},
			{RegID: 3, Size: 1 << 20},
		},
		RoundMode:  fix.RoundDPU.String(),
		DumpFormat: DumpNone,
	}
}

// Load reads a YAML file over the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	if c.Threads < 1 {
		return fmt.Errorf("threads must be positive, got %d", c.Threads)
	}
	if c.Banks < 1 || c.Banks > 256 {
		return fmt.Errorf("banks must be in [1, 256], got %d", c.Banks)
	}
	if c.BankDepth < 1 || c.BankDepth > 1<<16 {
		return fmt.Errorf("bank_depth must be in [1, 65536], got %d", c.BankDepth)
	}
	if _, err := fix.ParseRoundMode(c.RoundMode); err != nil {
		return err
	}
	if c.MaxInstructions < 0 {
		return fmt.Errorf("max_instructions must not be negative, got %d", c.MaxInstructions)
	}
	seen := make(map[int]bool, len(c.DDR))
	for i, r := range c.DDR {
		if r.RegID < 0 || r.RegID > 15 {
			return fmt.Errorf("ddr[%d]: reg_id %d out of range [0, 15]", i, r.RegID)
		}
		if r.Size < 1 {
			return fmt.Errorf("ddr[%d]: size must be positive, got %d", i, r.Size)
		}
		if seen[r.RegID] {
			return fmt.Errorf("ddr[%d]: reg_id %d declared twice", i, r.RegID)
		}
		seen[r.RegID] = true
	}
	switch c.DumpFormat {
	case DumpNone, DumpHex, DumpDB:
	default:
		return fmt.Errorf("unknown dump_format %q", c.DumpFormat)
	}
	if c.DumpFormat == DumpHex && c.DumpDir == "" {
		return fmt.Errorf("dump_format %q needs dump_dir", c.DumpFormat)
	}
	return nil
}

// Round returns the parsed default round mode. Validate has already
// checked it.
func (c *Config) Round() fix.RoundMode {
	m, _ := fix.ParseRoundMode(c.RoundMode)
	return m
}

// DDRSize returns the declared size of region regID, or 0.
func (c *Config) DDRSize(regID int) int {
	for _, r := range c.DDR {
		if r.RegID == regID {
			return r.Size
		}
	}
	return 0
}
