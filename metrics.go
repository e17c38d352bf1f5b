package facevault

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus;
// internal/telemetry ships such an implementation for the CLI.
type MetricsCollector interface {
	// RecordIngest is called after each single-artifact Ingest call.
	// reason is empty for accepted artifacts.
	RecordIngest(accepted bool, reason string, duration time.Duration)

	// RecordBatch is called after each batch run.
	RecordBatch(submitted, accepted, rejected int, duration time.Duration)

	// RecordMatch is called after each match query.
	RecordMatch(k, results int, duration time.Duration, err error)

	// RecordRebuild is called after each rebuild attempt.
	RecordRebuild(succeeded, failed, skipped int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordIngest(bool, string, time.Duration)          {}
func (NoopMetricsCollector) RecordBatch(int, int, int, time.Duration)          {}
func (NoopMetricsCollector) RecordMatch(int, int, time.Duration, error)        {}
func (NoopMetricsCollector) RecordRebuild(int, int, int, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	IngestCount      atomic.Int64
	IngestAccepted   atomic.Int64
	IngestTotalNanos atomic.Int64
	BatchCount       atomic.Int64
	BatchItems       atomic.Int64
	BatchRejected    atomic.Int64
	MatchCount       atomic.Int64
	MatchErrors      atomic.Int64
	MatchTotalNanos  atomic.Int64
	RebuildCount     atomic.Int64
	RebuildErrors    atomic.Int64
	RebuildIndexed   atomic.Int64
}

// RecordIngest implements MetricsCollector.
func (b *BasicMetricsCollector) RecordIngest(accepted bool, _ string, duration time.Duration) {
	b.IngestCount.Add(1)
	b.IngestTotalNanos.Add(duration.Nanoseconds())
	if accepted {
		b.IngestAccepted.Add(1)
	}
}

// RecordBatch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBatch(submitted, _, rejected int, _ time.Duration) {
	b.BatchCount.Add(1)
	b.BatchItems.Add(int64(submitted))
	b.BatchRejected.Add(int64(rejected))
}

// RecordMatch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMatch(_, _ int, duration time.Duration, err error) {
	b.MatchCount.Add(1)
	b.MatchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.MatchErrors.Add(1)
	}
}

// RecordRebuild implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRebuild(succeeded, _, _ int, _ time.Duration, err error) {
	b.RebuildCount.Add(1)
	if err != nil {
		b.RebuildErrors.Add(1)
		return
	}
	b.RebuildIndexed.Add(int64(succeeded))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		IngestCount:    b.IngestCount.Load(),
		IngestAccepted: b.IngestAccepted.Load(),
		IngestAvgNanos: avg(b.IngestTotalNanos.Load(), b.IngestCount.Load()),
		BatchCount:     b.BatchCount.Load(),
		BatchItems:     b.BatchItems.Load(),
		BatchRejected:  b.BatchRejected.Load(),
		MatchCount:     b.MatchCount.Load(),
		MatchErrors:    b.MatchErrors.Load(),
		MatchAvgNanos:  avg(b.MatchTotalNanos.Load(), b.MatchCount.Load()),
		RebuildCount:   b.RebuildCount.Load(),
		RebuildErrors:  b.RebuildErrors.Load(),
		RebuildIndexed: b.RebuildIndexed.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	IngestCount    int64
	IngestAccepted int64
	IngestAvgNanos int64
	BatchCount     int64
	BatchItems     int64
	BatchRejected  int64
	MatchCount     int64
	MatchErrors    int64
	MatchAvgNanos  int64
	RebuildCount   int64
	RebuildErrors  int64
	RebuildIndexed int64
}
