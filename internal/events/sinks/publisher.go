package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/learner-progress/internal/events"
)

// Publisher sends a payload to a named topic and returns the message id.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// CompletionMessage is the wire shape of a published completion.
type CompletionMessage struct {
	EventID         string    `json:"event_id"`
	Identity        string    `json:"identity"`
	NodeID          string    `json:"node_id"`
	Kind            string    `json:"kind"`
	Cause           string    `json:"cause"`
	CompletedAt     time.Time `json:"completed_at"`
	TimeToCompleteS int64     `json:"time_to_complete_s"`
	ContainerID     string    `json:"container_id,omitempty"`
	TopologyVersion string    `json:"topology_version,omitempty"`
}

// PublisherSink forwards completions to a message bus.
type PublisherSink struct {
	publisher Publisher
	topic     string
}

// NewPublisherSink builds a sink bound to one topic.
func NewPublisherSink(publisher Publisher, topic string) *PublisherSink {
	return &PublisherSink{publisher: publisher, topic: topic}
}

// Consume publishes the event as a CompletionMessage.
func (s *PublisherSink) Consume(ctx context.Context, evt events.Event) error {
	msg := CompletionMessage{
		EventID:         evt.ID.String(),
		Identity:        evt.IdentityKey,
		NodeID:          evt.NodeID,
		Kind:            evt.Kind.String(),
		Cause:           string(evt.Cause),
		CompletedAt:     evt.CompletedAt.UTC(),
		TimeToCompleteS: evt.TimeToCompleteS,
		ContainerID:     evt.ContainerID,
		TopologyVersion: evt.TopologyVersion,
	}
	if _, err := s.publisher.Publish(ctx, s.topic, msg); err != nil {
		return fmt.Errorf("publish completion %s: %w", evt.NodeID, err)
	}
	return nil
}
