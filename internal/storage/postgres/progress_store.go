// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/learner-progress/internal/store"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "user_content_progress"

// Config controls the Postgres connection pool used for progress rows.
type Config struct {
	DSN               string
	Table             string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	HealthCheckPeriod time.Duration
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pool interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// ProgressStore implements store.ProgressRepository on top of pgx.
type ProgressStore struct {
	pool  pool
	table string
	now   func() time.Time
}

var _ store.ProgressRepository = (*ProgressStore)(nil)

// NewProgressStore connects to Postgres using cfg and verifies the connection.
func NewProgressStore(ctx context.Context, cfg Config) (*ProgressStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.HealthCheckPeriod > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s, err := NewProgressStoreWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewProgressStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewProgressStoreWithPool(p pool, table string) (*ProgressStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ProgressStore{
		pool:  p,
		table: table,
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close releases the underlying pool resources.
func (s *ProgressStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks database connectivity.
func (s *ProgressStore) Ping(ctx context.Context) error {
	return store.NewStorageError("ping", s.pool.Ping(ctx))
}

// WithinTx runs fn inside a single database transaction.
func (s *ProgressStore) WithinTx(ctx context.Context, fn func(context.Context, store.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return store.NewStorageError("begin tx", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()
	if err := fn(ctx, s.bind(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return store.NewStorageError("commit tx", err)
	}
	committed = true
	return nil
}

// Get loads one record outside any transaction.
func (s *ProgressStore) Get(ctx context.Context, id store.Identity, nodeID string) (store.Record, error) {
	return s.bind(s.pool).Get(ctx, id, nodeID)
}

// GetMany loads existing records among nodeIDs in one query.
func (s *ProgressStore) GetMany(ctx context.Context, id store.Identity, nodeIDs []string) (map[string]store.Record, error) {
	return s.bind(s.pool).GetMany(ctx, id, nodeIDs)
}

// GetOrCreate returns or inserts the record in a single statement.
func (s *ProgressStore) GetOrCreate(ctx context.Context, id store.Identity, nodeID string, kind store.Kind) (store.Record, error) {
	return s.bind(s.pool).GetOrCreate(ctx, id, nodeID, kind)
}

// AddTime atomically increments the accumulator.
func (s *ProgressStore) AddTime(ctx context.Context, id store.Identity, nodeID string, delta int64) (int64, error) {
	return s.bind(s.pool).AddTime(ctx, id, nodeID, delta)
}

// MarkComplete conditionally snapshots the record.
func (s *ProgressStore) MarkComplete(
	ctx context.Context,
	id store.Identity,
	nodeID string,
	at time.Time,
) (store.Record, bool, error) {
	return s.bind(s.pool).MarkComplete(ctx, id, nodeID, at)
}

func (s *ProgressStore) bind(q querier) *session {
	return &session{q: q, table: s.table, now: s.now}
}

// session executes statements against either the pool or an open transaction.
type session struct {
	q     querier
	table string
	now   func() time.Time
}

const recordColumns = `id, identity_key, content_id, content_type, content_title,
	total_time_spent_s, completed_at, time_to_complete_s, created_at, updated_at`

func (s *session) Get(ctx context.Context, id store.Identity, nodeID string) (store.Record, error) {
	if err := store.ValidateKey(id, nodeID); err != nil {
		return store.Record{}, err
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE identity_key = $1 AND content_id = $2`, recordColumns, s.table)
	rec, err := scanRecord(s.q.QueryRow(ctx, query, id.Key(), nodeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Record{}, store.ErrNotFound
		}
		return store.Record{}, store.NewStorageError("get progress", err)
	}
	return rec, nil
}

func (s *session) GetMany(ctx context.Context, id store.Identity, nodeIDs []string) (map[string]store.Record, error) {
	if id.IsZero() {
		return nil, store.Invalid("identity is required")
	}
	out := make(map[string]store.Record, len(nodeIDs))
	if len(nodeIDs) == 0 {
		return out, nil
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE identity_key = $1 AND content_id = ANY($2)`, recordColumns, s.table)
	rows, err := s.q.Query(ctx, query, id.Key(), nodeIDs)
	if err != nil {
		return nil, store.NewStorageError("get many progress", err)
	}
	defer rows.Close()
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, store.NewStorageError("scan progress row", err)
		}
		out[rec.NodeID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStorageError("get many progress", err)
	}
	return out, nil
}

func (s *session) GetOrCreate(ctx context.Context, id store.Identity, nodeID string, kind store.Kind) (store.Record, error) {
	if err := store.ValidateKey(id, nodeID); err != nil {
		return store.Record{}, err
	}
	if !kind.Valid() {
		return store.Record{}, store.Invalid("invalid node kind %d", uint8(kind))
	}
	recID, err := uuid.NewV7()
	if err != nil {
		return store.Record{}, fmt.Errorf("generate record id: %w", err)
	}
	var (
		userID    *string
		anonToken *uuid.UUID
	)
	if uid, ok := id.UserID(); ok {
		userID = &uid
	}
	if tok, ok := id.AnonymousToken(); ok {
		anonToken = &tok
	}
	// The no-op DO UPDATE makes the statement return the existing row on
	// conflict, so creation and lookup happen in one round trip.
	query := fmt.Sprintf(`
INSERT INTO %[1]s (id, identity_key, user_id, anonymous_token, content_id, content_type, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
ON CONFLICT (identity_key, content_id)
DO UPDATE SET identity_key = EXCLUDED.identity_key
RETURNING %[2]s`, s.table, recordColumns)
	rec, err := scanRecord(s.q.QueryRow(ctx, query,
		recID, id.Key(), userID, anonToken, nodeID, kind.String(), s.now(),
	))
	if err != nil {
		return store.Record{}, store.NewStorageError("get or create progress", err)
	}
	if err := store.CheckKind(rec, kind); err != nil {
		return store.Record{}, err
	}
	return rec, nil
}

func (s *session) AddTime(ctx context.Context, id store.Identity, nodeID string, delta int64) (int64, error) {
	if err := store.ValidateKey(id, nodeID); err != nil {
		return 0, err
	}
	if delta < 0 {
		return 0, store.Invalid("negative time delta %d", delta)
	}
	query := fmt.Sprintf(`
UPDATE %s
SET total_time_spent_s = total_time_spent_s + $1, updated_at = $2
WHERE identity_key = $3 AND content_id = $4
RETURNING total_time_spent_s`, s.table)
	var total int64
	err := s.q.QueryRow(ctx, query, delta, s.now(), id.Key(), nodeID).Scan(&total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, store.ErrNotFound
		}
		return 0, store.NewStorageError("add time", err)
	}
	return total, nil
}

func (s *session) MarkComplete(ctx context.Context, id store.Identity, nodeID string, at time.Time) (store.Record, bool, error) {
	if err := store.ValidateKey(id, nodeID); err != nil {
		return store.Record{}, false, err
	}
	query := fmt.Sprintf(`
UPDATE %s
SET completed_at = $1, time_to_complete_s = total_time_spent_s, updated_at = $1
WHERE identity_key = $2 AND content_id = $3 AND completed_at IS NULL
RETURNING %s`, s.table, recordColumns)
	rec, err := scanRecord(s.q.QueryRow(ctx, query, at.UTC(), id.Key(), nodeID))
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return store.Record{}, false, store.NewStorageError("mark complete", err)
	}
	// Either someone else completed it first or the row does not exist.
	current, err := s.Get(ctx, id, nodeID)
	if err != nil {
		return store.Record{}, false, err
	}
	return current, false, nil
}

func scanRecord(row pgx.Row) (store.Record, error) {
	var (
		rec  store.Record
		kind string
	)
	err := row.Scan(
		&rec.ID,
		&rec.IdentityKey,
		&rec.NodeID,
		&kind,
		&rec.Title,
		&rec.TotalTimeSpentS,
		&rec.CompletedAt,
		&rec.TimeToCompleteS,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return store.Record{}, err
	}
	parsed, err := store.ParseKind(kind)
	if err != nil {
		return store.Record{}, fmt.Errorf("stored row %s: %w", rec.NodeID, err)
	}
	rec.Kind = parsed
	return rec, nil
}
