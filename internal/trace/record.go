package trace

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/dpusim/internal/engine"
)

// Record is the persisted form of one executed instruction.
type Record struct {
	ID     string `json:"id"`
	RunID  string `json:"run_id"`
	Seq    int64  `json:"seq"`
	Index  int    `json:"index"`
	Kind   string `json:"kind"`
	Opcode uint32 `json:"opcode"`
	Text   string `json:"text"`
}

// FromStep converts an engine step and computes its content address.
func FromStep(s engine.Step) (Record, error) {
	r := Record{
		RunID:  s.RunID,
		Seq:    s.Seq,
		Index:  s.Index,
		Kind:   s.Kind.String(),
		Opcode: s.Opcode,
		Text:   s.Text,
	}
	id, err := Digest(DomainStep, r.object(true))
	if err != nil {
		return Record{}, fmt.Errorf("step %d: %w", s.Index, err)
	}
	r.ID = id
	return r, nil
}

// object is the hashed view of r. The run ID is left out of run digests
// so two runs of one stream compare equal.
func (r Record) object(withRun bool) Object {
	o := Object{
		"seq":    r.Seq,
		"index":  r.Index,
		"kind":   r.Kind,
		"opcode": r.Opcode,
		"text":   r.Text,
	}
	if withRun {
		o["run_id"] = r.RunID
	}
	return o
}

// RunDigest hashes the ordered step list. It changes if any instruction,
// its position or its step number changes.
func RunDigest(records []Record) (string, error) {
	steps := make([]any, len(records))
	for i, r := range records {
		o := r.object(false)
		o["seq"] = r.Seq - records[0].Seq + 1
		steps[i] = o
	}
	return Digest(DomainRun, steps)
}

// Collector is an engine.Recorder that keeps records in memory.
type Collector struct {
	mu      sync.Mutex
	records []Record
	next    engine.Recorder
}

// NewCollector returns a Collector that forwards every step to next when
// next is non-nil.
func NewCollector(next engine.Recorder) *Collector {
	return &Collector{next: next}
}

// RecordStep implements engine.Recorder.
func (c *Collector) RecordStep(ctx context.Context, s engine.Step) error {
	r, err := FromStep(s)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.records = append(c.records, r)
	c.mu.Unlock()
	if c.next != nil {
		return c.next.RecordStep(ctx, s)
	}
	return nil
}

// Records returns a copy of the collected records.
func (c *Collector) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Record(nil), c.records...)
}

// Reset drops collected records.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = nil
}
