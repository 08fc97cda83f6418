package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/learner-progress/internal/events"
)

// LogSink emits one structured log line per completion.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs the event using structured fields.
func (s *LogSink) Consume(_ context.Context, evt events.Event) error {
	s.logger.Info("node completed",
		zap.String("event_id", evt.ID.String()),
		zap.String("identity", evt.IdentityKey),
		zap.String("node_id", evt.NodeID),
		zap.Stringer("kind", evt.Kind),
		zap.String("cause", string(evt.Cause)),
		zap.Int64("time_to_complete_s", evt.TimeToCompleteS),
		zap.Time("completed_at", evt.CompletedAt),
		zap.String("container_id", evt.ContainerID),
		zap.String("topology_version", evt.TopologyVersion),
	)
	return nil
}
