// Package sinks provides concrete events.Sink implementations: structured
// logs, Prometheus counters, and a message publisher.
package sinks
