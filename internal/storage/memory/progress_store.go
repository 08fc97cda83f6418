// Package memory provides in-process store implementations for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/learner-progress/internal/store"
)

// FaultFunc lets tests inject a storage failure before a write. Returning a
// non-nil error aborts the operation as if the database had failed.
type FaultFunc func(op, nodeID string) error

// Option customizes a ProgressStore.
type Option func(*ProgressStore)

// WithClock overrides the timestamp source used for created/updated times.
func WithClock(now func() time.Time) Option {
	return func(s *ProgressStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithFault installs a fault injector.
func WithFault(f FaultFunc) Option {
	return func(s *ProgressStore) {
		s.fault = f
	}
}

type recordKey struct {
	identity string
	nodeID   string
}

// ProgressStore is an in-memory store.ProgressRepository. Transactions are
// serialized by a single mutex and stage their writes until commit.
type ProgressStore struct {
	mu      sync.Mutex
	records map[recordKey]store.Record
	now     func() time.Time
	fault   FaultFunc
}

var _ store.ProgressRepository = (*ProgressStore)(nil)

// NewProgressStore constructs an empty ProgressStore.
func NewProgressStore(opts ...Option) *ProgressStore {
	s := &ProgressStore{
		records: make(map[recordKey]store.Record),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithinTx runs fn while holding the store lock. Staged writes are applied
// only when fn returns nil.
func (s *ProgressStore) WithinTx(ctx context.Context, fn func(context.Context, store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memTx{store: s, staged: make(map[recordKey]store.Record)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	for k, rec := range tx.staged {
		s.records[k] = rec
	}
	return nil
}

// Ping always succeeds.
func (s *ProgressStore) Ping(context.Context) error {
	return nil
}

// Get loads a single record.
func (s *ProgressStore) Get(ctx context.Context, id store.Identity, nodeID string) (store.Record, error) {
	var out store.Record
	err := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		rec, err := tx.Get(ctx, id, nodeID)
		out = rec
		return err
	})
	return out, err
}

// GetMany loads the existing records among nodeIDs.
func (s *ProgressStore) GetMany(ctx context.Context, id store.Identity, nodeIDs []string) (map[string]store.Record, error) {
	var out map[string]store.Record
	err := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		recs, err := tx.GetMany(ctx, id, nodeIDs)
		out = recs
		return err
	})
	return out, err
}

// GetOrCreate returns or inserts the record for (id, nodeID).
func (s *ProgressStore) GetOrCreate(ctx context.Context, id store.Identity, nodeID string, kind store.Kind) (store.Record, error) {
	var out store.Record
	err := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		rec, err := tx.GetOrCreate(ctx, id, nodeID, kind)
		out = rec
		return err
	})
	return out, err
}

// AddTime increments the accumulator for (id, nodeID).
func (s *ProgressStore) AddTime(ctx context.Context, id store.Identity, nodeID string, delta int64) (int64, error) {
	var total int64
	err := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		t, err := tx.AddTime(ctx, id, nodeID, delta)
		total = t
		return err
	})
	return total, err
}

// MarkComplete conditionally snapshots the record.
func (s *ProgressStore) MarkComplete(
	ctx context.Context,
	id store.Identity,
	nodeID string,
	at time.Time,
) (store.Record, bool, error) {
	var (
		out store.Record
		won bool
	)
	err := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		rec, ok, err := tx.MarkComplete(ctx, id, nodeID, at)
		out, won = rec, ok
		return err
	})
	return out, won, err
}

// Len returns the number of committed records.
func (s *ProgressStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type memTx struct {
	store  *ProgressStore
	staged map[recordKey]store.Record
}

func (t *memTx) lookup(k recordKey) (store.Record, bool) {
	if rec, ok := t.staged[k]; ok {
		return rec, true
	}
	rec, ok := t.store.records[k]
	return rec, ok
}

func (t *memTx) check(ctx context.Context, op, nodeID string) error {
	if err := ctx.Err(); err != nil {
		return store.NewStorageError(op, err)
	}
	if t.store.fault != nil {
		if err := t.store.fault(op, nodeID); err != nil {
			return store.NewStorageError(op, err)
		}
	}
	return nil
}

func (t *memTx) Get(ctx context.Context, id store.Identity, nodeID string) (store.Record, error) {
	if err := store.ValidateKey(id, nodeID); err != nil {
		return store.Record{}, err
	}
	if err := ctx.Err(); err != nil {
		return store.Record{}, store.NewStorageError("get progress", err)
	}
	rec, ok := t.lookup(recordKey{identity: id.Key(), nodeID: nodeID})
	if !ok {
		return store.Record{}, store.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (t *memTx) GetMany(ctx context.Context, id store.Identity, nodeIDs []string) (map[string]store.Record, error) {
	if id.IsZero() {
		return nil, store.Invalid("identity is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, store.NewStorageError("get many progress", err)
	}
	out := make(map[string]store.Record, len(nodeIDs))
	for _, nodeID := range nodeIDs {
		if rec, ok := t.lookup(recordKey{identity: id.Key(), nodeID: nodeID}); ok {
			out[nodeID] = cloneRecord(rec)
		}
	}
	return out, nil
}

func (t *memTx) GetOrCreate(ctx context.Context, id store.Identity, nodeID string, kind store.Kind) (store.Record, error) {
	if err := store.ValidateKey(id, nodeID); err != nil {
		return store.Record{}, err
	}
	if !kind.Valid() {
		return store.Record{}, store.Invalid("invalid node kind %d", uint8(kind))
	}
	if err := t.check(ctx, "get or create progress", nodeID); err != nil {
		return store.Record{}, err
	}
	k := recordKey{identity: id.Key(), nodeID: nodeID}
	if rec, ok := t.lookup(k); ok {
		if err := store.CheckKind(rec, kind); err != nil {
			return store.Record{}, err
		}
		return cloneRecord(rec), nil
	}
	recID, err := uuid.NewV7()
	if err != nil {
		return store.Record{}, fmt.Errorf("generate record id: %w", err)
	}
	now := t.store.now()
	rec := store.Record{
		ID:          recID,
		IdentityKey: k.identity,
		NodeID:      nodeID,
		Kind:        kind,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	t.staged[k] = rec
	return cloneRecord(rec), nil
}

func (t *memTx) AddTime(ctx context.Context, id store.Identity, nodeID string, delta int64) (int64, error) {
	if err := store.ValidateKey(id, nodeID); err != nil {
		return 0, err
	}
	if delta < 0 {
		return 0, store.Invalid("negative time delta %d", delta)
	}
	if err := t.check(ctx, "add time", nodeID); err != nil {
		return 0, err
	}
	k := recordKey{identity: id.Key(), nodeID: nodeID}
	rec, ok := t.lookup(k)
	if !ok {
		return 0, store.ErrNotFound
	}
	rec.TotalTimeSpentS += delta
	rec.UpdatedAt = t.store.now()
	t.staged[k] = rec
	return rec.TotalTimeSpentS, nil
}

func (t *memTx) MarkComplete(ctx context.Context, id store.Identity, nodeID string, at time.Time) (store.Record, bool, error) {
	if err := store.ValidateKey(id, nodeID); err != nil {
		return store.Record{}, false, err
	}
	if err := t.check(ctx, "mark complete", nodeID); err != nil {
		return store.Record{}, false, err
	}
	k := recordKey{identity: id.Key(), nodeID: nodeID}
	rec, ok := t.lookup(k)
	if !ok {
		return store.Record{}, false, store.ErrNotFound
	}
	if rec.Completed() {
		return cloneRecord(rec), false, nil
	}
	completedAt := at.UTC()
	snapshot := rec.TotalTimeSpentS
	rec.CompletedAt = &completedAt
	rec.TimeToCompleteS = &snapshot
	rec.UpdatedAt = completedAt
	t.staged[k] = rec
	return cloneRecord(rec), true, nil
}

func cloneRecord(rec store.Record) store.Record {
	out := rec
	if rec.CompletedAt != nil {
		ts := *rec.CompletedAt
		out.CompletedAt = &ts
	}
	if rec.TimeToCompleteS != nil {
		v := *rec.TimeToCompleteS
		out.TimeToCompleteS = &v
	}
	return out
}
