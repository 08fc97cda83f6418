package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/learner-progress/internal/events"
	"github.com/JakeFAU/learner-progress/internal/store"
	"github.com/JakeFAU/learner-progress/internal/topology"
)

// Deps wires a Service.
type Deps struct {
	Repo     store.ProgressRepository
	Topology topology.Provider
	Clock    Clock
	Emitter  events.Emitter
	Observer Observer
	Logger   *zap.Logger
}

// Service is the caller-facing entry point.
type Service struct {
	repo        store.ProgressRepository
	topology    topology.Provider
	accumulator *Accumulator
	snapshotter *Snapshotter
	propagator  *Propagator
	observer    Observer
	logger      *zap.Logger
}

// NewService assembles the engine from deps.
func NewService(deps Deps) (*Service, error) {
	if deps.Repo == nil {
		return nil, errors.New("tracker: repository is required")
	}
	if deps.Topology == nil {
		return nil, errors.New("tracker: topology provider is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("tracker")
	observer := deps.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	snap := NewSnapshotter(deps.Repo, deps.Clock, deps.Emitter, logger)
	return &Service{
		repo:        deps.Repo,
		topology:    deps.Topology,
		accumulator: NewAccumulator(deps.Repo, observer, logger),
		snapshotter: snap,
		propagator:  NewPropagator(deps.Repo, snap, observer, logger),
		observer:    observer,
		logger:      logger,
	}, nil
}

// Heartbeat credits elapsed time.
func (s *Service) Heartbeat(ctx context.Context, hb Heartbeat) error {
	return s.accumulator.Heartbeat(ctx, hb)
}

// Completion asks for a node to be marked complete.
type Completion struct {
	Identity store.Identity
	NodeID   string
	Kind     store.Kind
	// ContainerID, when set for a leaf, triggers propagation against that
	// container's current topology.
	ContainerID string
}

// CompletionResult reports the node and any ancestors propagation touched.
type CompletionResult struct {
	Record          store.Record
	Newly           bool
	AncestorUpdates []AncestorUpdate
}

// Complete marks c.NodeID complete, then propagates for leaves. Propagation
// runs even when the leaf was already complete so an earlier failed
// propagation can catch up; ancestor completion is itself idempotent.
func (s *Service) Complete(ctx context.Context, c Completion) (CompletionResult, error) {
	out, err := s.snapshotter.Complete(ctx, c.Identity, c.NodeID, c.Kind)
	if err != nil {
		return CompletionResult{}, err
	}
	res := CompletionResult{Record: out.Record, Newly: out.Newly}
	if c.Kind != store.KindLeaf || c.ContainerID == "" {
		return res, nil
	}
	snap, err := s.topology.Snapshot(ctx, c.ContainerID)
	if err != nil {
		s.observer.ObservePropagationSkip(SkipTopologyUnavailable)
		s.logger.Warn("propagation skipped: topology unavailable",
			zap.String("container_id", c.ContainerID),
			zap.String("leaf_id", c.NodeID),
			zap.Error(err),
		)
		return res, nil
	}
	res.AncestorUpdates = s.propagator.Propagate(ctx, c.Identity, c.NodeID, snap)
	return res, nil
}

// Get returns the stored record for one node.
func (s *Service) Get(ctx context.Context, id store.Identity, nodeID string) (store.Record, error) {
	if err := store.ValidateKey(id, nodeID); err != nil {
		return store.Record{}, err
	}
	return s.repo.Get(ctx, id, nodeID)
}

// Status is the coarse state of a container for one learner.
type Status string

// Container statuses.
const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// LeafProgress is one row of a container summary.
type LeafProgress struct {
	LeafID      string
	GroupingID  string
	Title       string
	Required    bool
	Completed   bool
	CompletedAt *time.Time
	TimeSpentS  int64
}

// ContainerSummary aggregates a learner's progress through one container.
type ContainerSummary struct {
	ContainerID       string
	Title             string
	TopologyVersion   string
	Status            Status
	CompletedRequired int
	TotalRequired     int
	TimeSpentS        int64
	CompletedAt       *time.Time
	TimeToCompleteS   *int64
	Leaves            []LeafProgress
}

// ContainerSummary reads every leaf of the container, and the container's
// own record, in one read. A container record that is already complete
// reports completed even if leaves were added afterwards.
func (s *Service) ContainerSummary(ctx context.Context, id store.Identity, containerID string) (ContainerSummary, error) {
	if err := store.ValidateKey(id, containerID); err != nil {
		return ContainerSummary{}, err
	}
	snap, err := s.topology.Snapshot(ctx, containerID)
	if err != nil {
		return ContainerSummary{}, fmt.Errorf("load topology %s: %w", containerID, err)
	}
	return s.summarize(ctx, id, snap)
}

func (s *Service) summarize(ctx context.Context, id store.Identity, snap topology.Snapshot) (ContainerSummary, error) {
	children := snap.Children()
	ids := make([]string, 0, len(children)+1)
	for _, c := range children {
		ids = append(ids, c.LeafID)
	}
	ids = append(ids, snap.ContainerID())
	recs, err := s.repo.GetMany(ctx, id, ids)
	if err != nil {
		return ContainerSummary{}, err
	}

	sum := ContainerSummary{
		ContainerID:     snap.ContainerID(),
		Title:           snap.Title(),
		TopologyVersion: snap.Version(),
		Leaves:          make([]LeafProgress, 0, len(children)),
	}
	for _, c := range children {
		lp := LeafProgress{LeafID: c.LeafID, GroupingID: c.GroupingID, Title: c.Title, Required: c.Required}
		if rec, ok := recs[c.LeafID]; ok {
			lp.Completed = rec.Completed()
			lp.CompletedAt = rec.CompletedAt
			lp.TimeSpentS = rec.TotalTimeSpentS
		}
		if c.Required {
			sum.TotalRequired++
			if lp.Completed {
				sum.CompletedRequired++
			}
		}
		sum.Leaves = append(sum.Leaves, lp)
	}

	container, hasContainer := recs[snap.ContainerID()]
	if hasContainer {
		sum.TimeSpentS = container.TotalTimeSpentS
		sum.CompletedAt = container.CompletedAt
		sum.TimeToCompleteS = container.TimeToCompleteS
	}
	switch {
	case hasContainer && container.Completed():
		sum.Status = StatusCompleted
	case sum.CompletedRequired == 0:
		sum.Status = StatusNotStarted
	case sum.CompletedRequired >= sum.TotalRequired:
		sum.Status = StatusCompleted
	default:
		sum.Status = StatusInProgress
	}
	return sum, nil
}

// ContainerProgress is a combined heartbeat-and-completion report for a
// leaf addressed through its container.
type ContainerProgress struct {
	Identity       store.Identity
	ContainerID    string
	LeafID         string
	ElapsedSeconds int64
	Completed      bool
}

// RecordContainerProgress resolves the leaf's grouping from the container
// topology, credits time at every level and, when requested, completes the
// leaf and propagates against the same snapshot. It returns the refreshed
// container summary.
func (s *Service) RecordContainerProgress(ctx context.Context, p ContainerProgress) (ContainerSummary, error) {
	if err := store.ValidateKey(p.Identity, p.ContainerID); err != nil {
		return ContainerSummary{}, err
	}
	snap, err := s.topology.Snapshot(ctx, p.ContainerID)
	if err != nil {
		return ContainerSummary{}, fmt.Errorf("load topology %s: %w", p.ContainerID, err)
	}
	child, ok := snap.Leaf(p.LeafID)
	if !ok {
		return ContainerSummary{}, store.Invalid("leaf %q is not part of container %s", p.LeafID, p.ContainerID)
	}

	err = s.accumulator.Heartbeat(ctx, Heartbeat{
		Identity:       p.Identity,
		LeafID:         child.LeafID,
		ElapsedSeconds: p.ElapsedSeconds,
		GroupingID:     child.GroupingID,
		ContainerID:    snap.ContainerID(),
	})
	if err != nil {
		return ContainerSummary{}, err
	}
	if p.Completed {
		if _, err := s.snapshotter.Complete(ctx, p.Identity, child.LeafID, store.KindLeaf); err != nil {
			return ContainerSummary{}, err
		}
		s.propagator.Propagate(ctx, p.Identity, child.LeafID, snap)
	}
	return s.summarize(ctx, p.Identity, snap)
}
