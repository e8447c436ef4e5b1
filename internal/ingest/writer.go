package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/tributary/internal/store"
)

// DefaultBatchSize is the number of rows written per transaction.
const DefaultBatchSize = 100

// BatchHook runs inside a batch's transaction after its rows are staged.
// Adapters use it to upsert the graph records derived from the batch.
type BatchHook func(ctx context.Context, q *store.Queries, rows [][]any) error

// Writer writes rows in fixed-size batches. Each batch commits on its own;
// a failed batch leaves earlier batches in place.
type Writer struct {
	store     *store.Store
	batchSize int
	logger    *slog.Logger
}

// NewWriter creates a Writer. batchSize <= 0 means DefaultBatchSize.
func NewWriter(s *store.Store, batchSize int, logger *slog.Logger) *Writer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{store: s, batchSize: batchSize, logger: logger}
}

// BatchSize returns the configured batch size.
func (w *Writer) BatchSize() int {
	return w.batchSize
}

// Write stages rows into table and returns the number of rows inserted or
// updated. hook may be nil.
//
// Rows repeating a key inside one batch are folded first: under Overwrite the
// last row wins, under Ignore the first. Writing the same input twice leaves
// the table as one write would.
func (w *Writer) Write(ctx context.Context, table store.Table, rows [][]any, hook BatchHook) (int, error) {
	if err := table.Validate(); err != nil {
		return 0, err
	}

	total := 0
	for start, batch := 0, 0; start < len(rows); start, batch = start+w.batchSize, batch+1 {
		end := min(start+w.batchSize, len(rows))
		chunk := dedupeByKey(table, rows[start:end])

		var written int64
		err := w.store.InTx(ctx, func(q *store.Queries) error {
			n, err := q.WriteBatch(ctx, table, chunk)
			if err != nil {
				return err
			}
			written = n
			if hook != nil {
				return hook(ctx, q, chunk)
			}
			return nil
		})
		if err != nil {
			if store.IsConstraintViolation(err) {
				return total, &ConflictResolutionError{Table: table.Name, Batch: batch, Err: err}
			}
			return total, fmt.Errorf("write %s batch %d: %w", table.Name, batch, err)
		}

		total += int(written)
		w.logger.Debug("batch written",
			"table", table.Name,
			"batch", batch,
			"rows", len(chunk),
			"written", written,
			"policy", table.Policy)
	}
	return total, nil
}

func dedupeByKey(table store.Table, rows [][]any) [][]any {
	keyIdx := table.KeyIndexes()
	pos := make(map[string]int, len(rows))
	out := make([][]any, 0, len(rows))
	for _, row := range rows {
		k := rowKey(row, keyIdx)
		if i, seen := pos[k]; seen {
			if table.Policy == store.Overwrite {
				out[i] = row
			}
			continue
		}
		pos[k] = len(out)
		out = append(out, row)
	}
	return out
}

func rowKey(row []any, keyIdx []int) string {
	parts := make([]string, len(keyIdx))
	for i, idx := range keyIdx {
		if idx < len(row) {
			parts[i] = fmt.Sprintf("%T:%v", row[idx], row[idx])
		}
	}
	return strings.Join(parts, "\x00")
}
