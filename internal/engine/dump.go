package engine

import (
	"context"
	"fmt"

	"github.com/roach88/dpusim/internal/isa"
)

// Segment is one contiguous piece of memory captured by a DUMP
// instruction.
type Segment struct {
	// Space is "bank" or "ddr".
	Space string
	// ID is the bank id or DDR reg_id.
	ID   int
	Addr int
	Data []int8
}

// Name labels the segment for file names and store keys, e.g. "bank3" or
// "ddr0@0x100".
func (s Segment) Name() string {
	if s.Addr == 0 {
		return fmt.Sprintf("%s%d", s.Space, s.ID)
	}
	return fmt.Sprintf("%s%d@0x%X", s.Space, s.ID, s.Addr)
}

// Snapshot is the memory captured by one DUMP instruction. Segment data is
// a private copy.
type Snapshot struct {
	RunID    string
	Index    int
	Step     int64
	Kind     isa.Kind
	Segments []Segment
}

// Dumper receives snapshots. A failing Dumper aborts the run.
type Dumper interface {
	Dump(ctx context.Context, s Snapshot) error
}

// DumperFunc adapts a function to Dumper.
type DumperFunc func(ctx context.Context, s Snapshot) error

// Dump calls f.
func (f DumperFunc) Dump(ctx context.Context, s Snapshot) error { return f(ctx, s) }

// snapshot copies the memory a DUMP instruction names.
func (e *Engine) snapshot(in isa.Instruction) ([]Segment, error) {
	var segs []Segment
	switch in.Kind {
	case isa.DumpBank:
		start, n := in.Int(isa.FBankStart), in.Int(isa.FBankNum)
		for id := start; id < start+max(n, 1); id++ {
			data, err := e.mem.ReadBank(id, 0, e.cfg.BankDepth)
			if err != nil {
				return nil, err
			}
			segs = append(segs, Segment{Space: "bank", ID: id, Data: data})
		}
	case isa.DumpDDR:
		reg, addr := in.Int(isa.FRegID), in.Int(isa.FDDRAddr)
		data, err := e.mem.ReadDDR(reg, addr, in.Int(isa.FSize))
		if err != nil {
			return nil, err
		}
		segs = append(segs, Segment{Space: "ddr", ID: reg, Addr: addr, Data: data})
	case isa.DumpDDRSlice:
		reg, addr := in.Int(isa.FRegID), in.Int(isa.FDDRAddr)
		rowLen, stride := in.Int(isa.FRowLen), in.Int(isa.FStride)
		if stride == 0 {
			stride = rowLen
		}
		for r := 0; r < max(in.Int(isa.FRows), 1); r++ {
			a := addr + r*stride
			data, err := e.mem.ReadDDR(reg, a, rowLen)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", r, err)
			}
			segs = append(segs, Segment{Space: "ddr", ID: reg, Addr: a, Data: data})
		}
	}
	return segs, nil
}
