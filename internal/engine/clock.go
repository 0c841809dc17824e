package engine

import "sync/atomic"

// Clock is the monotonic step counter that stamps every executed
// instruction.
//
// Step numbers never come from wall-clock time, so a replayed stream
// produces the same trace. The engine is single-goroutine; the atomic
// only lets observers read Current while a run is in progress.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at start. Used to continue the step
// numbering of a stored run.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next step number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last step number handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
