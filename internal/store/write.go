package store

import (
	"context"
	"fmt"

	"github.com/roach88/dpusim/internal/engine"
	"github.com/roach88/dpusim/internal/trace"
)

// Run is the stored summary of one executed stream.
type Run struct {
	ID      string
	Version string
	// Stream is the instruction stream in text syntax, so a run can be
	// executed again from the store alone.
	Stream   string
	Executed int
	Ignored  int
	// Digest is trace.RunDigest over the run's steps.
	Digest string
	// ErrorCode is the runtime error code the run stopped with, or empty.
	ErrorCode string
	// Seq is the step counter when the run finished.
	Seq int64
}

// Dump is one stored memory segment.
type Dump struct {
	ID     string
	RunID  string
	Seq    int64
	Index  int
	Kind   string
	Name   string
	Space  string
	SegID  int
	Addr   int
	Data   []int8
	Digest string
}

// WriteRun inserts a run summary.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - a run ID is written once.
func (s *Store) WriteRun(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, version, stream, executed, ignored, digest, error_code, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		r.ID,
		r.Version,
		r.Stream,
		r.Executed,
		r.Ignored,
		r.Digest,
		r.ErrorCode,
		r.Seq,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// WriteStep inserts a step record. Duplicate IDs are silently ignored.
func (s *Store) WriteStep(ctx context.Context, r trace.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO steps
		(id, run_id, seq, idx, kind, opcode, text)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		r.ID,
		r.RunID,
		r.Seq,
		r.Index,
		r.Kind,
		r.Opcode,
		r.Text,
	)
	if err != nil {
		return fmt.Errorf("write step %d: %w", r.Index, err)
	}
	return nil
}

// RecordStep implements engine.Recorder.
func (s *Store) RecordStep(ctx context.Context, step engine.Step) error {
	r, err := trace.FromStep(step)
	if err != nil {
		return fmt.Errorf("record step: %w", err)
	}
	return s.WriteStep(ctx, r)
}

// WriteDump inserts every segment of a snapshot in one transaction.
func (s *Store) WriteDump(ctx context.Context, snap engine.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write dump: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, seg := range snap.Segments {
		d, err := dumpOf(snap, seg)
		if err != nil {
			return fmt.Errorf("write dump: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO dumps
			(id, run_id, seq, idx, kind, name, space, seg_id, addr, data, digest)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`,
			d.ID,
			d.RunID,
			d.Seq,
			d.Index,
			d.Kind,
			d.Name,
			d.Space,
			d.SegID,
			d.Addr,
			marshalData(d.Data),
			d.Digest,
		)
		if err != nil {
			return fmt.Errorf("write dump %s: %w", d.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write dump: commit: %w", err)
	}
	return nil
}

// Dump implements engine.Dumper.
func (s *Store) Dump(ctx context.Context, snap engine.Snapshot) error {
	return s.WriteDump(ctx, snap)
}

func dumpOf(snap engine.Snapshot, seg engine.Segment) (Dump, error) {
	d := Dump{
		RunID:  snap.RunID,
		Seq:    snap.Step,
		Index:  snap.Index,
		Kind:   snap.Kind.String(),
		Name:   seg.Name(),
		Space:  seg.Space,
		SegID:  seg.ID,
		Addr:   seg.Addr,
		Data:   seg.Data,
		Digest: trace.RegionDigest(seg.Data),
	}
	id, err := trace.Digest(trace.DomainRegion, trace.Object{
		"run_id": d.RunID,
		"seq":    d.Seq,
		"name":   d.Name,
		"digest": d.Digest,
	})
	if err != nil {
		return Dump{}, err
	}
	d.ID = id
	return d, nil
}
