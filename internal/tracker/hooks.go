package tracker

import "time"

// Clock supplies completion timestamps.
type Clock interface {
	Now() time.Time
}

// Observer receives engine counters. metrics.Observer implements it.
type Observer interface {
	ObserveHeartbeat(levels int, seconds int64)
	ObservePropagationSkip(reason string)
}

type nopObserver struct{}

func (nopObserver) ObserveHeartbeat(int, int64)   {}
func (nopObserver) ObservePropagationSkip(string) {}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }

// Reasons reported to Observer.ObservePropagationSkip.
const (
	SkipLeafNotInTopology   = "leaf_not_in_topology"
	SkipTopologyUnavailable = "topology_unavailable"
	SkipStorage             = "storage"
)
