package store

import (
	"time"

	"github.com/google/uuid"
)

// Record models one row of user_content_progress.
type Record struct {
	// ID is the surrogate primary key (UUIDv7).
	ID uuid.UUID
	// IdentityKey is Identity.Key() of the owner.
	IdentityKey string
	// NodeID is the opaque content id supplied by the topology provider.
	NodeID string
	// Kind is the node's level in the hierarchy.
	Kind Kind
	// Title is an optional display label captured on creation.
	Title string
	// TotalTimeSpentS accumulates heartbeat deltas and never decreases.
	TotalTimeSpentS int64
	// CompletedAt is nil until the node is completed, then frozen.
	CompletedAt *time.Time
	// TimeToCompleteS is the accumulator value at the instant of completion.
	TimeToCompleteS *int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Completed reports whether the record has been snapshotted.
func (r Record) Completed() bool {
	return r.CompletedAt != nil
}

// CheckKind rejects a record stored under a different kind than want.
func CheckKind(rec Record, want Kind) error {
	if rec.Kind != want {
		return Invalid("node %s is a %s, not a %s", rec.NodeID, rec.Kind, want)
	}
	return nil
}
