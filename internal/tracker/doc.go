// Package tracker records learner engagement and decides completion across
// the leaf, grouping and container levels.
//
// The engine keeps no state between calls. Every write goes through a
// store.ProgressRepository: heartbeats add time to one to three records in a
// single transaction, completions freeze a record's accumulator exactly once,
// and propagation completes ancestors when the required leaves of a topology
// snapshot are all complete. Ancestors, once complete, are never recomputed.
package tracker
