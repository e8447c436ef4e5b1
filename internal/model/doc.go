// Package model provides the domain types shared by the ledger, ingest,
// graph and merge packages.
//
// This package contains type definitions only. All other internal packages
// import model; model imports nothing internal.
//
// Key design constraints:
//   - Graph nodes are addressed by int64 ID; no in-memory back-pointers
//   - Only canonical predicate slugs are ever stored on a Link
//   - All JSON tags use snake_case
//   - Timestamps are persisted at microsecond precision
package model
