package tracker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/learner-progress/internal/store"
)

// Heartbeat is one elapsed-time report from a client.
type Heartbeat struct {
	Identity       store.Identity
	LeafID         string
	ElapsedSeconds int64
	// GroupingID and ContainerID are optional; when set, the same delta is
	// credited to them too.
	GroupingID  string
	ContainerID string
}

type level struct {
	nodeID string
	kind   store.Kind
}

// levels returns the records a heartbeat touches, leaf first.
func (h Heartbeat) levels() []level {
	out := []level{{nodeID: h.LeafID, kind: store.KindLeaf}}
	if h.GroupingID != "" {
		out = append(out, level{nodeID: h.GroupingID, kind: store.KindGrouping})
	}
	if h.ContainerID != "" {
		out = append(out, level{nodeID: h.ContainerID, kind: store.KindContainer})
	}
	return out
}

// Validate rejects a heartbeat before anything is written.
func (h Heartbeat) Validate() error {
	if h.Identity.IsZero() {
		return store.Invalid("identity is required")
	}
	if h.LeafID == "" {
		return store.Invalid("leaf id is required")
	}
	if h.ElapsedSeconds < 0 {
		return store.Invalid("elapsed seconds must be >= 0, got %d", h.ElapsedSeconds)
	}
	if h.GroupingID != "" && (h.GroupingID == h.LeafID || h.GroupingID == h.ContainerID) {
		return store.Invalid("grouping id %q collides with another level", h.GroupingID)
	}
	if h.ContainerID != "" && h.ContainerID == h.LeafID {
		return store.Invalid("container id %q collides with the leaf", h.ContainerID)
	}
	return nil
}

// Accumulator credits elapsed time. Heartbeats are additive and never
// deduplicated.
type Accumulator struct {
	repo     store.ProgressRepository
	observer Observer
	logger   *zap.Logger
}

// NewAccumulator builds an Accumulator over repo.
func NewAccumulator(repo store.ProgressRepository, observer Observer, logger *zap.Logger) *Accumulator {
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Accumulator{repo: repo, observer: observer, logger: logger}
}

// Heartbeat adds hb.ElapsedSeconds to the leaf and any supplied ancestors in
// one transaction, in leaf, grouping, container order. A zero delta writes
// nothing.
func (a *Accumulator) Heartbeat(ctx context.Context, hb Heartbeat) error {
	if err := hb.Validate(); err != nil {
		return err
	}
	if hb.ElapsedSeconds == 0 {
		return nil
	}
	levels := hb.levels()
	err := a.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		for _, l := range levels {
			if _, err := tx.GetOrCreate(ctx, hb.Identity, l.nodeID, l.kind); err != nil {
				return fmt.Errorf("heartbeat %s %s: %w", l.kind, l.nodeID, err)
			}
			if _, err := tx.AddTime(ctx, hb.Identity, l.nodeID, hb.ElapsedSeconds); err != nil {
				return fmt.Errorf("heartbeat %s %s: %w", l.kind, l.nodeID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	a.observer.ObserveHeartbeat(len(levels), hb.ElapsedSeconds)
	a.logger.Debug("heartbeat recorded",
		zap.Stringer("identity", hb.Identity),
		zap.String("leaf_id", hb.LeafID),
		zap.Int64("elapsed_s", hb.ElapsedSeconds),
		zap.Int("levels", len(levels)),
	)
	return nil
}
