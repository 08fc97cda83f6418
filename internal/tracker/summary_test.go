package tracker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/learner-progress/internal/store"
	"github.com/JakeFAU/learner-progress/internal/topology"
)

func TestContainerSummaryStatuses(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	sum, err := f.svc.ContainerSummary(ctx, f.id, "M")
	require.NoError(t, err)
	assert.Equal(t, StatusNotStarted, sum.Status)
	assert.Equal(t, 2, sum.TotalRequired)
	assert.Equal(t, "v1", sum.TopologyVersion)
	require.Len(t, sum.Leaves, 2)

	f.beat(t, "A", 45)
	f.complete(t, "A")
	sum, err = f.svc.ContainerSummary(ctx, f.id, "M")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, sum.Status)
	assert.Equal(t, 1, sum.CompletedRequired)
	assert.Equal(t, int64(45), sum.TimeSpentS)
	assert.True(t, sum.Leaves[0].Completed)
	assert.Equal(t, int64(45), sum.Leaves[0].TimeSpentS)
	assert.False(t, sum.Leaves[1].Completed)

	f.complete(t, "B")
	sum, err = f.svc.ContainerSummary(ctx, f.id, "M")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, sum.Status)
	require.NotNil(t, sum.TimeToCompleteS)
	assert.Equal(t, int64(45), *sum.TimeToCompleteS)

	// New required leaf: counts drop but the frozen container stays completed.
	f.topo.Put(mustSnapshot(t, "v2",
		topology.Child{LeafID: "A", GroupingID: "G", Required: true},
		topology.Child{LeafID: "B", GroupingID: "G", Required: true},
		topology.Child{LeafID: "C", GroupingID: "G", Required: true},
	))
	sum, err = f.svc.ContainerSummary(ctx, f.id, "M")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, sum.Status)
	assert.Equal(t, 2, sum.CompletedRequired)
	assert.Equal(t, 3, sum.TotalRequired)
}

func TestContainerSummaryUnknownContainer(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.svc.ContainerSummary(context.Background(), f.id, "nope")
	require.ErrorIs(t, err, topology.ErrUnknownContainer)
	_, err = f.svc.ContainerSummary(context.Background(), store.Identity{}, "M")
	require.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestRecordContainerProgressDerivesHierarchy(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	sum, err := f.svc.RecordContainerProgress(ctx, ContainerProgress{
		Identity: f.id, ContainerID: "M", LeafID: "A", ElapsedSeconds: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusNotStarted, sum.Status)
	assert.Equal(t, int64(20), sum.TimeSpentS)
	assert.Equal(t, int64(20), f.record(t, "G").TotalTimeSpentS)

	_, err = f.svc.RecordContainerProgress(ctx, ContainerProgress{
		Identity: f.id, ContainerID: "M", LeafID: "A", ElapsedSeconds: 10, Completed: true,
	})
	require.NoError(t, err)
	sum, err = f.svc.RecordContainerProgress(ctx, ContainerProgress{
		Identity: f.id, ContainerID: "M", LeafID: "B", ElapsedSeconds: 5, Completed: true,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, sum.Status)
	assert.Equal(t, int64(35), *sum.TimeToCompleteS)
	assert.Equal(t, int64(35), *f.record(t, "G").TimeToCompleteS)
	assert.Equal(t, int64(30), *f.record(t, "A").TimeToCompleteS)
}

func TestRecordContainerProgressRejectsForeignLeaf(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.svc.RecordContainerProgress(context.Background(), ContainerProgress{
		Identity: f.id, ContainerID: "M", LeafID: "elsewhere", ElapsedSeconds: 5,
	})
	require.ErrorIs(t, err, store.ErrInvalidInput)
	assert.Equal(t, 0, f.repo.Len())

	_, err = f.svc.RecordContainerProgress(context.Background(), ContainerProgress{
		Identity: f.id, ContainerID: "missing", LeafID: "A", ElapsedSeconds: 5,
	})
	require.ErrorIs(t, err, topology.ErrUnknownContainer)
}
