// Package telemetry exports facevault metrics to Prometheus.
//
// A Collector satisfies both the engine's MetricsObserver and the root
// package's MetricsCollector, so one instance covers index, ingestion,
// batch, match and rebuild activity.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "facevault"

// Collector records facevault metrics into a Prometheus registry.
type Collector struct {
	registry *prometheus.Registry

	IndexInserts        *prometheus.CounterVec
	IndexSearches       *prometheus.CounterVec
	IndexSearchDuration prometheus.Histogram
	SnapshotOps         *prometheus.CounterVec
	SnapshotBytes       *prometheus.GaugeVec
	SnapshotDuration    *prometheus.HistogramVec

	IngestOutcomes *prometheus.CounterVec
	IngestDuration prometheus.Histogram

	BatchRuns     prometheus.Counter
	BatchItems    *prometheus.CounterVec
	BatchDuration prometheus.Histogram

	Matches       *prometheus.CounterVec
	MatchDuration prometheus.Histogram

	RebuildRecords  *prometheus.CounterVec
	RebuildRuns     *prometheus.CounterVec
	RebuildDuration prometheus.Histogram
}

// New creates a Collector backed by a fresh registry that also carries the
// Go runtime and process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry creates a Collector registering its metrics on reg.
func NewWithRegistry(reg *prometheus.Registry) *Collector {
	f := promauto.With(reg)

	return &Collector{
		registry: reg,

		IndexInserts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "index_inserts_total",
			Help:      "Vectors inserted into the similarity index by result",
		}, []string{"result"}),
		IndexSearches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "index_searches_total",
			Help:      "Nearest-neighbour searches by result",
		}, []string{"result"}),
		IndexSearchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "index_search_duration_seconds",
			Help:      "Latency of nearest-neighbour searches",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		}),
		SnapshotOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "snapshot_operations_total",
			Help:      "Snapshot saves and loads by result",
		}, []string{"op", "result"}),
		SnapshotBytes: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "snapshot_bytes",
			Help:      "Size of the last snapshot saved or loaded",
		}, []string{"op"}),
		SnapshotDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "snapshot_duration_seconds",
			Help:      "Latency of snapshot saves and loads",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),

		IngestOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ingest_outcomes_total",
			Help:      "Ingested artifacts by outcome and rejection reason",
		}, []string{"outcome", "reason"}),
		IngestDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Latency of a single artifact ingestion",
			Buckets:   prometheus.DefBuckets,
		}),

		BatchRuns: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "batch_runs_total",
			Help:      "Completed batch runs",
		}),
		BatchItems: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "batch_items_total",
			Help:      "Artifacts processed by batch runs by outcome",
		}, []string{"outcome"}),
		BatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall-clock duration of batch runs",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
		}),

		Matches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "matches_total",
			Help:      "Match queries by result",
		}, []string{"result"}),
		MatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "match_duration_seconds",
			Help:      "Latency of match queries",
			Buckets:   prometheus.DefBuckets,
		}),

		RebuildRecords: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rebuild_records_total",
			Help:      "Records handled by index rebuilds by outcome",
		}, []string{"outcome"}),
		RebuildRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rebuild_runs_total",
			Help:      "Index rebuilds by result",
		}, []string{"result"}),
		RebuildDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "rebuild_duration_seconds",
			Help:      "Wall-clock duration of index rebuilds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 16),
		}),
	}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// OnInsert records index inserts.
func (c *Collector) OnInsert(attempted, failed int, _ time.Duration) {
	c.IndexInserts.WithLabelValues("ok").Add(float64(attempted - failed))
	if failed > 0 {
		c.IndexInserts.WithLabelValues("error").Add(float64(failed))
	}
}

// OnSearch records an index search.
func (c *Collector) OnSearch(_, _ int, duration time.Duration, err error) {
	c.IndexSearches.WithLabelValues(result(err)).Inc()
	c.IndexSearchDuration.Observe(duration.Seconds())
}

// OnSnapshot records a snapshot save or load.
func (c *Collector) OnSnapshot(op string, bytes int64, duration time.Duration, err error) {
	c.SnapshotOps.WithLabelValues(op, result(err)).Inc()
	c.SnapshotDuration.WithLabelValues(op).Observe(duration.Seconds())
	if err == nil {
		c.SnapshotBytes.WithLabelValues(op).Set(float64(bytes))
	}
}

// RecordIngest records a single ingestion outcome. reason is empty for
// accepted artifacts.
func (c *Collector) RecordIngest(accepted bool, reason string, duration time.Duration) {
	if accepted {
		c.IngestOutcomes.WithLabelValues("accepted", "").Inc()
	} else {
		c.IngestOutcomes.WithLabelValues("rejected", reason).Inc()
	}
	c.IngestDuration.Observe(duration.Seconds())
}

// RecordBatch records a finished batch run.
func (c *Collector) RecordBatch(submitted, accepted, rejected int, duration time.Duration) {
	c.BatchRuns.Inc()
	c.BatchItems.WithLabelValues("accepted").Add(float64(accepted))
	c.BatchItems.WithLabelValues("rejected").Add(float64(rejected))
	if skipped := submitted - accepted - rejected; skipped > 0 {
		c.BatchItems.WithLabelValues("skipped").Add(float64(skipped))
	}
	c.BatchDuration.Observe(duration.Seconds())
}

// RecordMatch records a match query.
func (c *Collector) RecordMatch(_, _ int, duration time.Duration, err error) {
	c.Matches.WithLabelValues(result(err)).Inc()
	c.MatchDuration.Observe(duration.Seconds())
}

// RecordRebuild records an index rebuild.
func (c *Collector) RecordRebuild(succeeded, failed, skipped int, duration time.Duration, err error) {
	c.RebuildRuns.WithLabelValues(result(err)).Inc()
	c.RebuildRecords.WithLabelValues("succeeded").Add(float64(succeeded))
	c.RebuildRecords.WithLabelValues("failed").Add(float64(failed))
	c.RebuildRecords.WithLabelValues("skipped").Add(float64(skipped))
	c.RebuildDuration.Observe(duration.Seconds())
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
