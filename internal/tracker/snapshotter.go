package tracker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/learner-progress/internal/events"
	"github.com/JakeFAU/learner-progress/internal/store"
)

// Outcome is the result of a completion attempt.
type Outcome struct {
	Record store.Record
	// Newly is true only for the call that actually completed the record.
	Newly bool
}

type eventMeta struct {
	cause           events.Cause
	containerID     string
	topologyVersion string
}

// Snapshotter freezes a record's accumulator when it is first completed.
type Snapshotter struct {
	repo    store.ProgressRepository
	clock   Clock
	emitter events.Emitter
	logger  *zap.Logger
}

// NewSnapshotter builds a Snapshotter.
func NewSnapshotter(repo store.ProgressRepository, clock Clock, emitter events.Emitter, logger *zap.Logger) *Snapshotter {
	if clock == nil {
		clock = utcClock{}
	}
	if emitter == nil {
		emitter = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Snapshotter{repo: repo, clock: clock, emitter: emitter, logger: logger}
}

// Complete marks (id, nodeID) complete unless it already is. The snapshot is
// the stored accumulator at the moment the conditional update wins.
func (s *Snapshotter) Complete(ctx context.Context, id store.Identity, nodeID string, kind store.Kind) (Outcome, error) {
	return s.complete(ctx, id, nodeID, kind, eventMeta{cause: events.CauseDirect})
}

func (s *Snapshotter) complete(
	ctx context.Context,
	id store.Identity,
	nodeID string,
	kind store.Kind,
	meta eventMeta,
) (Outcome, error) {
	if !kind.Valid() {
		return Outcome{}, store.Invalid("invalid node kind %d", uint8(kind))
	}
	if err := store.ValidateKey(id, nodeID); err != nil {
		return Outcome{}, err
	}

	existing, err := s.repo.Get(ctx, id, nodeID)
	switch {
	case err == nil && existing.Kind != kind:
		return Outcome{}, store.CheckKind(existing, kind)
	case err == nil && existing.Completed():
		return Outcome{Record: existing}, nil
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return Outcome{}, err
	}

	var out Outcome
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetOrCreate(ctx, id, nodeID, kind); err != nil {
			return err
		}
		rec, won, err := tx.MarkComplete(ctx, id, nodeID, s.clock.Now())
		if err != nil {
			return err
		}
		out = Outcome{Record: rec, Newly: won}
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}
	if out.Newly {
		s.announce(ctx, out.Record, meta)
	}
	return out, nil
}

func (s *Snapshotter) announce(ctx context.Context, rec store.Record, meta eventMeta) {
	evt, err := events.FromRecord(rec, meta.cause)
	if err != nil {
		s.logger.Warn("build completion event", zap.String("node_id", rec.NodeID), zap.Error(err))
		return
	}
	evt.ContainerID = meta.containerID
	evt.TopologyVersion = meta.topologyVersion
	s.emitter.Emit(ctx, evt)
}
