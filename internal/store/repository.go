package store

import (
	"context"
	"time"
)

// Reader exposes read-only access to progress records.
type Reader interface {
	// Get loads one record or returns ErrNotFound.
	Get(ctx context.Context, id Identity, nodeID string) (Record, error)
	// GetMany loads every existing record among nodeIDs in a single read.
	// Missing records are simply absent from the result.
	GetMany(ctx context.Context, id Identity, nodeIDs []string) (map[string]Record, error)
}

// Writer exposes the mutating primitives. Each call is atomic on its own.
type Writer interface {
	// GetOrCreate returns the existing record or inserts an empty one.
	// Concurrent callers never produce duplicate rows. An existing record of
	// another kind is rejected with ErrInvalidInput.
	GetOrCreate(ctx context.Context, id Identity, nodeID string, kind Kind) (Record, error)
	// AddTime increments total_time_spent_s and returns the new total.
	// Negative deltas are rejected with ErrInvalidInput.
	AddTime(ctx context.Context, id Identity, nodeID string, deltaSeconds int64) (int64, error)
	// MarkComplete sets completed_at=at and time_to_complete_s=total_time_spent_s
	// only if completed_at is currently null. won is false when another caller
	// completed the record first; the returned record is the stored state.
	MarkComplete(ctx context.Context, id Identity, nodeID string, at time.Time) (rec Record, won bool, err error)
}

// Tx is the transactional view handed to WithinTx callbacks.
type Tx interface {
	Reader
	Writer
}

// ProgressRepository persists progress records.
type ProgressRepository interface {
	Tx
	// WithinTx runs fn in one transaction. Any error returned by fn, or a
	// panic, rolls back every write made through tx.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}

// ValidateKey checks the common (identity, node) arguments.
func ValidateKey(id Identity, nodeID string) error {
	if id.IsZero() {
		return Invalid("identity is required")
	}
	if nodeID == "" {
		return Invalid("node id is required")
	}
	return nil
}
