package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/learner-progress/internal/store"
)

// Cause records how a node came to be complete.
type Cause string

// Supported causes.
const (
	CauseDirect     Cause = "direct"
	CausePropagated Cause = "propagated"
)

// Event describes a node that has just been completed.
type Event struct {
	// ID is unique per event.
	ID uuid.UUID
	// IdentityKey is the canonical learner key ("user:<id>" or "anon:<uuid>").
	IdentityKey string
	NodeID      string
	Kind        store.Kind
	CompletedAt time.Time
	// TimeToCompleteS is the frozen accumulator.
	TimeToCompleteS int64
	Cause           Cause
	// ContainerID and TopologyVersion are set for propagated completions.
	ContainerID     string
	TopologyVersion string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.ID == uuid.Nil {
		return errors.New("event id is required")
	}
	if e.IdentityKey == "" || e.NodeID == "" {
		return errors.New("identity and node are required")
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("invalid kind %d", uint8(e.Kind))
	}
	if e.CompletedAt.IsZero() {
		return errors.New("completion time is required")
	}
	if e.TimeToCompleteS < 0 {
		return errors.New("time to complete must be >= 0")
	}
	switch e.Cause {
	case CauseDirect, CausePropagated:
	default:
		return fmt.Errorf("unknown cause %q", e.Cause)
	}
	return nil
}

// FromRecord builds an event for a freshly completed record.
func FromRecord(rec store.Record, cause Cause) (Event, error) {
	if rec.CompletedAt == nil || rec.TimeToCompleteS == nil {
		return Event{}, errors.New("record is not complete")
	}
	id, err := uuid.NewV7()
	if err != nil {
		return Event{}, fmt.Errorf("generate event id: %w", err)
	}
	return Event{
		ID:              id,
		IdentityKey:     rec.IdentityKey,
		NodeID:          rec.NodeID,
		Kind:            rec.Kind,
		CompletedAt:     *rec.CompletedAt,
		TimeToCompleteS: *rec.TimeToCompleteS,
		Cause:           cause,
	}, nil
}
