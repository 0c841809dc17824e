// Package engine executes decoded DPU instruction streams.
//
// The engine is the simulator-mode state machine. It owns the simulated
// memory (on-chip banks and DDR regions), the per-family INIT slots and
// the run loop. Compute instructions are carried out by the kernel
// package, so simulator mode and library mode share one numeric path.
//
// Run loop:
//  1. Every instruction's kind is checked against the stream's version.
//  2. INIT kinds replace their family's slot (last INIT wins).
//  3. Compute kinds read their family's slot; an empty slot is
//     E_MISSING_INIT.
//  4. LOAD, SAVE and CBLOAD move bytes; DUMP kinds copy memory out to a
//     Dumper and never write.
//  5. END stops the run. Running out of instructions is E_MISSING_END.
//
// The loop is single-goroutine and stamps every instruction with a step
// number from Clock, so two runs of one stream produce identical traces.
// Any error aborts the run; nothing is retried.
package engine
