// Package store provides SQLite-backed durable storage for simulator runs.
//
// The store is an append-only log of:
//   - Runs: one row per executed stream, with its text form and digest
//   - Steps: one row per executed instruction
//   - Dumps: memory segments captured by DUMP instructions
//
// # Ordering
//
// Every query orders by the logical step counter (seq) and breaks ties with
// ORDER BY id COLLATE BINARY, never by wall time, so reads are identical
// across processes.
//
// # Idempotency
//
// Step and dump IDs are content addressed (see internal/trace). Writes use
// ON CONFLICT DO NOTHING, so recording the same step twice is harmless.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// A Store implements engine.Recorder and engine.Dumper, so it can be passed
// straight to engine.WithRecorder and engine.WithDumper.
package store
