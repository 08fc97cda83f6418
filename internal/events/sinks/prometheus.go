package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/learner-progress/internal/events"
)

// PrometheusSink exports completion counters and time-to-complete
// distributions partitioned by node kind.
type PrometheusSink struct {
	completions    *prometheus.CounterVec
	timeToComplete *prometheus.HistogramVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "progress_completions_total",
			Help: "Nodes completed, partitioned by kind and cause.",
		}, []string{"kind", "cause"}),
		timeToComplete: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "progress_time_to_complete_seconds",
			Help:    "Frozen engagement time at completion, partitioned by kind.",
			Buckets: []float64{30, 60, 300, 600, 1800, 3600, 7200, 14400, 43200},
		}, []string{"kind"}),
	}
	for _, collector := range []prometheus.Collector{s.completions, s.timeToComplete} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register completion collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors. It is safe for concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, evt events.Event) error {
	kind := evt.Kind.String()
	s.completions.WithLabelValues(kind, string(evt.Cause)).Inc()
	s.timeToComplete.WithLabelValues(kind).Observe(float64(evt.TimeToCompleteS))
	return nil
}
