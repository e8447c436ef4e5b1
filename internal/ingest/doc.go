// Package ingest implements the sync machinery shared by every source.
//
// A sync run flows through four pieces:
//
//   - Runner wraps the run in the ledger and derives the incremental cursor
//     (the largest marker already staged for the source).
//   - Paginate walks a remote listing newest-first until it reaches the cursor.
//   - Collapse folds adjacent events that describe one logical visit.
//   - Writer upserts rows in fixed-size batches, one transaction per batch,
//     so a failed run leaves earlier batches committed and a re-run is safe.
//
// Orchestrator runs a list of sources back to back (or with bounded
// parallelism) and reports each outcome without stopping at the first failure.
package ingest
