package alteration

import (
	"context"
	"fmt"
	"slices"
)

// Buffer accumulates rows for a deferred bulk load.
// It is not safe for concurrent use; Store serializes access to it.
type Buffer struct {
	rows  []Row
	index map[rowKey]int
}

// NewBuffer creates an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{index: make(map[rowKey]int)}
}

// Enqueue appends a copy of row. A row whose (profile, gene) pair is already
// pending is rejected with ErrDuplicateKey.
func (b *Buffer) Enqueue(row Row) error {
	k := row.key()
	if _, ok := b.index[k]; ok {
		return fmt.Errorf("profile %d gene %d already pending: %w", row.ProfileID, row.EntrezGeneID, ErrDuplicateKey)
	}
	row.Values = slices.Clone(row.Values)
	b.index[k] = len(b.rows)
	b.rows = append(b.rows, row)
	return nil
}

// Contains reports whether a row for (profileID, entrezID) is pending.
func (b *Buffer) Contains(profileID, entrezID int64) bool {
	_, ok := b.index[rowKey{profileID, entrezID}]
	return ok
}

// Len returns the number of pending rows.
func (b *Buffer) Len() int {
	return len(b.rows)
}

// reset discards all pending rows.
func (b *Buffer) reset() {
	b.rows = nil
	b.index = make(map[rowKey]int)
}

// Flush hands every pending row to loader in one call and clears the buffer
// on success. When the load fails the buffer is left untouched.
func (b *Buffer) Flush(ctx context.Context, loader BulkLoader) (int, error) {
	if len(b.rows) == 0 {
		return 0, nil
	}
	if err := loader.LoadAlterations(ctx, b.rows); err != nil {
		return 0, err
	}
	n := len(b.rows)
	b.reset()
	return n, nil
}
