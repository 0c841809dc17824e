package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/dpusim/internal/trace"
)

// ReadRun retrieves a single run by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, version, stream, executed, ignored, digest, error_code, seq
		FROM runs
		WHERE id = ?
	`, id)
	return scanRun(row)
}

// ListRuns returns every run ordered by finishing step.
//
// Returns an empty slice (not nil) if the store holds no runs.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, version, stream, executed, ignored, digest, error_code, seq
		FROM runs
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadSteps returns the steps of a run in execution order.
//
// Returns an empty slice (not nil) if the run recorded no steps.
func (s *Store) ReadSteps(ctx context.Context, runID string) ([]trace.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, seq, idx, kind, opcode, text
		FROM steps
		WHERE run_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	steps := []trace.Record{}
	for rows.Next() {
		var r trace.Record
		if err := rows.Scan(&r.ID, &r.RunID, &r.Seq, &r.Index, &r.Kind, &r.Opcode, &r.Text); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		steps = append(steps, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}
	return steps, nil
}

// ReadDumps returns the dumped segments of a run ordered by step, then
// segment name.
func (s *Store) ReadDumps(ctx context.Context, runID string) ([]Dump, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, seq, idx, kind, name, space, seg_id, addr, data, digest
		FROM dumps
		WHERE run_id = ?
		ORDER BY seq ASC, name COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query dumps: %w", err)
	}
	defer rows.Close()

	dumps := []Dump{}
	for rows.Next() {
		var d Dump
		var blob []byte
		if err := rows.Scan(&d.ID, &d.RunID, &d.Seq, &d.Index, &d.Kind, &d.Name,
			&d.Space, &d.SegID, &d.Addr, &blob, &d.Digest); err != nil {
			return nil, fmt.Errorf("scan dump: %w", err)
		}
		d.Data = unmarshalData(blob)
		dumps = append(dumps, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dumps: %w", err)
	}
	return dumps, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var r Run
	err := sc.Scan(&r.ID, &r.Version, &r.Stream, &r.Executed, &r.Ignored, &r.Digest, &r.ErrorCode, &r.Seq)
	if err == sql.ErrNoRows {
		return Run{}, err
	}
	if err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	return r, nil
}
