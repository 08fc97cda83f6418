// Package breaker guards a progress repository with a circuit breaker so a
// failing database degrades into fast ErrUnavailable responses.
package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/JakeFAU/learner-progress/internal/store"
)

// Config tunes the breaker.
type Config struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultConfig returns conservative settings for the progress database.
func DefaultConfig() Config {
	return Config{
		Name:             "progress-store",
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          15 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      10,
	}
}

// Repository decorates a store.ProgressRepository.
type Repository struct {
	next store.ProgressRepository
	cb   *gobreaker.CircuitBreaker
}

var _ store.ProgressRepository = (*Repository)(nil)

// New wraps next. Only storage failures count against the breaker;
// validation errors and missing rows pass through untouched.
func New(next store.ProgressRepository, cfg Config, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = def.MinRequests
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: isSuccessful,
	})
	return &Repository{next: next, cb: cb}
}

func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	return !errors.Is(err, store.ErrUnavailable)
}

// State exposes the current breaker state for readiness reporting.
func (r *Repository) State() gobreaker.State {
	return r.cb.State()
}

func (r *Repository) execute(op string, fn func() error) error {
	_, err := r.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return store.NewStorageError(op, err)
	}
	return err
}

// WithinTx runs the whole transaction as one breaker request.
func (r *Repository) WithinTx(ctx context.Context, fn func(context.Context, store.Tx) error) error {
	return r.execute("transaction", func() error {
		return r.next.WithinTx(ctx, fn)
	})
}

// Ping bypasses the breaker so readiness reflects the database itself.
func (r *Repository) Ping(ctx context.Context) error {
	return r.next.Ping(ctx)
}

// Get delegates through the breaker.
func (r *Repository) Get(ctx context.Context, id store.Identity, nodeID string) (store.Record, error) {
	var rec store.Record
	err := r.execute("get progress", func() error {
		var err error
		rec, err = r.next.Get(ctx, id, nodeID)
		return err
	})
	return rec, err
}

// GetMany delegates through the breaker.
func (r *Repository) GetMany(ctx context.Context, id store.Identity, nodeIDs []string) (map[string]store.Record, error) {
	var recs map[string]store.Record
	err := r.execute("get many progress", func() error {
		var err error
		recs, err = r.next.GetMany(ctx, id, nodeIDs)
		return err
	})
	return recs, err
}

// GetOrCreate delegates through the breaker.
func (r *Repository) GetOrCreate(ctx context.Context, id store.Identity, nodeID string, kind store.Kind) (store.Record, error) {
	var rec store.Record
	err := r.execute("get or create progress", func() error {
		var err error
		rec, err = r.next.GetOrCreate(ctx, id, nodeID, kind)
		return err
	})
	return rec, err
}

// AddTime delegates through the breaker.
func (r *Repository) AddTime(ctx context.Context, id store.Identity, nodeID string, delta int64) (int64, error) {
	var total int64
	err := r.execute("add time", func() error {
		var err error
		total, err = r.next.AddTime(ctx, id, nodeID, delta)
		return err
	})
	return total, err
}

// MarkComplete delegates through the breaker.
func (r *Repository) MarkComplete(ctx context.Context, id store.Identity, nodeID string, at time.Time) (store.Record, bool, error) {
	var (
		rec store.Record
		won bool
	)
	err := r.execute("mark complete", func() error {
		var err error
		rec, won, err = r.next.MarkComplete(ctx, id, nodeID, at)
		return err
	})
	return rec, won, err
}
