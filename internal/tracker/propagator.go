package tracker

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/learner-progress/internal/events"
	"github.com/JakeFAU/learner-progress/internal/store"
	"github.com/JakeFAU/learner-progress/internal/topology"
)

// AncestorUpdate reports an ancestor that propagation found complete.
type AncestorUpdate struct {
	NodeID string
	Kind   store.Kind
	Record store.Record
	// Newly is false when the ancestor had already been completed earlier.
	Newly bool
}

// Propagator completes groupings and containers whose required leaves are
// all complete. It never raises: anything it cannot do is logged and skipped.
type Propagator struct {
	repo        store.Reader
	snapshotter *Snapshotter
	observer    Observer
	logger      *zap.Logger
}

// NewPropagator builds a Propagator.
func NewPropagator(repo store.Reader, snapshotter *Snapshotter, observer Observer, logger *zap.Logger) *Propagator {
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Propagator{repo: repo, snapshotter: snapshotter, observer: observer, logger: logger}
}

// Propagate evaluates the leaf's grouping and container against snap.
// Completion is judged only against the leaves snap currently lists; an
// ancestor that is already complete stays frozen whatever snap says.
func (p *Propagator) Propagate(
	ctx context.Context,
	id store.Identity,
	leafID string,
	snap topology.Snapshot,
) []AncestorUpdate {
	logger := p.logger.With(
		zap.Stringer("identity", id),
		zap.String("leaf_id", leafID),
		zap.String("container_id", snap.ContainerID()),
		zap.String("topology_version", snap.Version()),
	)

	child, ok := snap.Leaf(leafID)
	if !ok {
		p.observer.ObservePropagationSkip(SkipLeafNotInTopology)
		logger.Warn("propagation skipped: leaf not in topology")
		return nil
	}

	inGrouping := snap.RequiredInGrouping(child.GroupingID)
	inContainer := snap.RequiredInContainer()

	recs, err := p.repo.GetMany(ctx, id, union(inGrouping, inContainer))
	if err != nil {
		p.observer.ObservePropagationSkip(SkipStorage)
		logger.Warn("propagation skipped: load leaf progress", zap.Error(err))
		return nil
	}

	meta := eventMeta{
		cause:           events.CausePropagated,
		containerID:     snap.ContainerID(),
		topologyVersion: snap.Version(),
	}
	var updates []AncestorUpdate

	// A grouping with no required leaves is never completed by propagation.
	if len(inGrouping) > 0 && allComplete(inGrouping, recs) {
		if u, ok := p.completeAncestor(ctx, logger, id, child.GroupingID, store.KindGrouping, meta); ok {
			updates = append(updates, u)
		}
	}
	if allComplete(inContainer, recs) {
		if u, ok := p.completeAncestor(ctx, logger, id, snap.ContainerID(), store.KindContainer, meta); ok {
			updates = append(updates, u)
		}
	}
	return updates
}

func (p *Propagator) completeAncestor(
	ctx context.Context,
	logger *zap.Logger,
	id store.Identity,
	nodeID string,
	kind store.Kind,
	meta eventMeta,
) (AncestorUpdate, bool) {
	out, err := p.snapshotter.complete(ctx, id, nodeID, kind, meta)
	if err != nil {
		p.observer.ObservePropagationSkip(SkipStorage)
		logger.Warn("propagation skipped: complete ancestor",
			zap.String("ancestor_id", nodeID),
			zap.Stringer("kind", kind),
			zap.Error(err),
		)
		return AncestorUpdate{}, false
	}
	return AncestorUpdate{NodeID: nodeID, Kind: kind, Record: out.Record, Newly: out.Newly}, true
}

func allComplete(leafIDs []string, recs map[string]store.Record) bool {
	for _, id := range leafIDs {
		rec, ok := recs[id]
		if !ok || !rec.Completed() {
			return false
		}
	}
	return true
}

func union(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
