package sinks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/learner-progress/internal/events"
	"github.com/JakeFAU/learner-progress/internal/publisher/memory"
	"github.com/JakeFAU/learner-progress/internal/store"
)

func sampleEvent(kind store.Kind, cause events.Cause) events.Event {
	return events.Event{
		ID:              uuid.New(),
		IdentityKey:     "anon:0b9e6f5c-9d2b-4c59-9a5b-3f3c1e7e8a10",
		NodeID:          "lesson-a",
		Kind:            kind,
		CompletedAt:     time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		TimeToCompleteS: 60,
		Cause:           cause,
	}
}

func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sink.Consume(ctx, sampleEvent(store.KindLeaf, events.CauseDirect)))
	require.NoError(t, sink.Consume(ctx, sampleEvent(store.KindGrouping, events.CausePropagated)))
	require.NoError(t, sink.Consume(ctx, sampleEvent(store.KindLeaf, events.CauseDirect)))

	require.Equal(t, 2.0, testutil.ToFloat64(sink.completions.WithLabelValues("leaf", "direct")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.completions.WithLabelValues("grouping", "propagated")))
	require.Equal(t, 2, testutil.CollectAndCount(sink.timeToComplete, "progress_time_to_complete_seconds"))

	_, err = NewPrometheusSink(reg)
	require.Error(t, err, "duplicate registration must fail")
}

func TestLogSinkWritesStructuredLine(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))
	require.NoError(t, sink.Consume(context.Background(), sampleEvent(store.KindContainer, events.CausePropagated)))

	entries := logs.FilterMessage("node completed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "container", fields["kind"])
	require.Equal(t, int64(60), fields["time_to_complete_s"])
}

func TestPublisherSinkPublishesMessage(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	sink := NewPublisherSink(pub, "completions")
	evt := sampleEvent(store.KindLeaf, events.CauseDirect)
	require.NoError(t, sink.Consume(context.Background(), evt))

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "completions", msgs[0].Topic)
	msg, ok := msgs[0].Payload.(CompletionMessage)
	require.True(t, ok)
	require.Equal(t, evt.ID.String(), msg.EventID)
	require.Equal(t, "leaf", msg.Kind)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	args := m.Called(ctx, topic, payload)
	return args.String(0), args.Error(1)
}

func TestPublisherSinkWrapsErrors(t *testing.T) {
	t.Parallel()

	pub := new(mockPublisher)
	pub.On("Publish", mock.Anything, "completions", mock.AnythingOfType("sinks.CompletionMessage")).
		Return("", errors.New("topic missing"))

	err := NewPublisherSink(pub, "completions").Consume(context.Background(), sampleEvent(store.KindLeaf, events.CauseDirect))
	require.ErrorContains(t, err, "topic missing")
	pub.AssertExpectations(t)
}
