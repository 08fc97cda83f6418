// Package events carries completion notifications out of the tracker. A
// completion is announced once, by the caller that won it, and delivered
// synchronously to every registered sink.
package events
