// Package store provides SQLite-backed durable storage for recorded runs.
//
// The store is an append-only trace log with:
//   - Runs: one row per recorded engine run, keyed by a UUIDv7 run ID
//   - Frames: per-frame time, statistics and digest
//   - Inputs: the external inputs applied in each frame, in order
//   - Deliveries: every route delivery of each frame, in order
//
// A Recorder plugs into the engine as its Tracer and writes one transaction
// per frame. Inputs and frame times read back with ReplayFrames are enough
// to re-evaluate the run and compare digests.
//
// # Critical Patterns
//
// Logical Identity and Time
//   - All ordering uses (frame, seq), NEVER wall-clock timestamps
//   - Enables deterministic replay regardless of wall time
//
// Deterministic Query Results
//   - All multi-row queries include ORDER BY on the logical key
//   - Ensures identical results across replays
//
// Filtered Queries
//   - QueryDeliveries and QueryFrames accept queryir filter expressions
//   - Filters compile to parameterized SQL through querysql; no user text
//     is ever spliced into a statement
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Delivered values are stored as canonical JSON (see ir.MarshalCanonical).
package store
