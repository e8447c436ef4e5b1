// Package store provides SQL-backed durable storage for the knowledge graph
// and its ingestion ledger.
//
// The store holds:
//   - Integration runs: one ledger row per sync attempt
//   - Records, links and media: the graph itself
//   - Merge snapshots: serialized pre-merge state for exact undo
//   - Staging tables: one per source adapter, each row tagged with the
//     integration run that wrote it
//
// # Critical Patterns
//
// Idempotent writes:
//   - Every ingest write is INSERT ... ON CONFLICT (natural key) DO UPDATE
//     or DO NOTHING, so replaying a batch never duplicates rows
//   - WriteBatch commits one transaction per batch; a failed batch leaves
//     earlier batches committed
//
// Derived cursors:
//   - MaxMarker recomputes the incremental boundary from staged rows joined
//     to integration_runs; no separate cursor table exists
//
// Soft deletes:
//   - Merged records keep their row with merged_into pointing at the survivor
//   - List queries exclude them; Get by ID still returns them
//
// # Dialects
//
// Open picks the driver from the DSN: postgres:// and postgresql:// use
// lib/pq, anything else is treated as a SQLite path (mattn/go-sqlite3).
// Queries are written with ? placeholders and rebound for Postgres.
// Timestamps are stored as BIGINT Unix microseconds in both dialects.
//
// SQLite connections are configured with:
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
