package events

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const defaultSinkTimeout = 5 * time.Second

// Config controls delivery.
//   - SinkTimeout: per-sink timeout (default 5s).
//   - Logger: optional structured logger used for delivery failures.
type Config struct {
	SinkTimeout time.Duration
	Logger      *zap.Logger
}

// Fanout delivers each event to every sink in registration order. Delivery
// is synchronous and a failing sink never affects the others or the caller.
type Fanout struct {
	sinks   []Sink
	timeout time.Duration
	logger  *zap.Logger
}

var _ Emitter = (*Fanout)(nil)

// NewFanout builds a Fanout over sinks.
func NewFanout(cfg Config, sinks ...Sink) *Fanout {
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fanout{
		sinks:   append([]Sink(nil), sinks...),
		timeout: cfg.SinkTimeout,
		logger:  logger,
	}
}

// Emit validates evt and hands it to each sink. The caller's cancellation is
// detached so a completion that already committed is still announced.
func (f *Fanout) Emit(ctx context.Context, evt Event) {
	if f == nil {
		return
	}
	if err := evt.Validate(); err != nil {
		f.logger.Warn("discarding invalid completion event", zap.Error(err))
		return
	}
	base := context.WithoutCancel(ctx)
	for i, sink := range f.sinks {
		sinkCtx, cancel := context.WithTimeout(base, f.timeout)
		err := sink.Consume(sinkCtx, evt)
		cancel()
		if err != nil {
			f.logger.Warn("completion sink failed",
				zap.Int("sink_index", i),
				zap.String("node_id", evt.NodeID),
				zap.Error(err),
			)
		}
	}
}
