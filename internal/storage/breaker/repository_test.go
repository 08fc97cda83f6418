package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/learner-progress/internal/storage/memory"
	"github.com/JakeFAU/learner-progress/internal/store"
)

func TestBreakerOpensOnStorageFailures(t *testing.T) {
	t.Parallel()

	failing := true
	mem := memory.NewProgressStore(memory.WithFault(func(string, string) error {
		if failing {
			return errors.New("db down")
		}
		return nil
	}))
	repo := New(mem, Config{MinRequests: 3, FailureThreshold: 0.5, Timeout: time.Hour}, nil)
	id, err := store.UserIdentity("learner-1")
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := repo.GetOrCreate(ctx, id, "leaf-a", store.KindLeaf)
		require.ErrorIs(t, err, store.ErrUnavailable)
	}
	require.Equal(t, gobreaker.StateOpen, repo.State())

	failing = false
	_, err = repo.GetOrCreate(ctx, id, "leaf-a", store.KindLeaf)
	require.ErrorIs(t, err, store.ErrUnavailable)
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	require.Equal(t, 0, mem.Len())
}

func TestBreakerIgnoresValidationErrors(t *testing.T) {
	t.Parallel()

	repo := New(memory.NewProgressStore(), Config{MinRequests: 2, FailureThreshold: 0.1}, nil)
	id, err := store.UserIdentity("learner-1")
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := repo.AddTime(ctx, id, "leaf-a", -1)
		require.ErrorIs(t, err, store.ErrInvalidInput)
		_, err = repo.Get(ctx, id, "leaf-a")
		require.ErrorIs(t, err, store.ErrNotFound)
	}
	require.Equal(t, gobreaker.StateClosed, repo.State())

	err = repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetOrCreate(ctx, id, "leaf-a", store.KindLeaf); err != nil {
			return err
		}
		_, err := tx.AddTime(ctx, id, "leaf-a", 4)
		return err
	})
	require.NoError(t, err)
	rec, err := repo.Get(ctx, id, "leaf-a")
	require.NoError(t, err)
	require.Equal(t, int64(4), rec.TotalTimeSpentS)
}
