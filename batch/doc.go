// Package batch runs many ingestion artifacts through a bounded worker pool.
//
// A Coordinator fans artifacts out to at most MaxWorkers goroutines, each of
// which runs the full ingestion pipeline with persistence deferred. The index
// is persisted exactly once after the pool drains. Jobs declared up front with
// Declare track progress across one or more RunJob calls in a JobStore.
package batch
