package events

import "context"

// Sink consumes completion events. Implementations must honor ctx deadlines
// and may be invoked concurrently.
type Sink interface {
	Consume(ctx context.Context, evt Event) error
}

// Emitter publishes individual events; Fanout satisfies it so the tracker
// stays agnostic about delivery.
type Emitter interface {
	Emit(ctx context.Context, evt Event)
}

// Nop discards every event.
type Nop struct{}

// Emit implements Emitter.
func (Nop) Emit(context.Context, Event) {}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, evt Event) error

// Consume implements Sink.
func (f SinkFunc) Consume(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}
