package engine

import "time"

// MetricsObserver defines the interface for observing engine events.
type MetricsObserver interface {
	// OnInsert is called after Insert or InsertBatch with the attempted and failed counts.
	OnInsert(attempted, failed int, duration time.Duration)

	// OnSearch is called after each search.
	OnSearch(k, results int, duration time.Duration, err error)

	// OnSnapshot is called after a snapshot save or load. op is "save" or "load".
	OnSnapshot(op string, bytes int64, duration time.Duration, err error)
}

// NoopMetricsObserver is a no-op implementation of MetricsObserver.
type NoopMetricsObserver struct{}

func (NoopMetricsObserver) OnInsert(int, int, time.Duration)               {}
func (NoopMetricsObserver) OnSearch(int, int, time.Duration, error)        {}
func (NoopMetricsObserver) OnSnapshot(string, int64, time.Duration, error) {}
