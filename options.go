package facevault

import (
	"time"

	"github.com/hupe1980/facevault/batch"
	"github.com/hupe1980/facevault/blobstore"
	"github.com/hupe1980/facevault/engine"
	"github.com/hupe1980/facevault/index"
	"github.com/hupe1980/facevault/index/graph"
	"github.com/hupe1980/facevault/index/ivf"
	"github.com/hupe1980/facevault/ingest"
	"github.com/hupe1980/facevault/logging"
	"github.com/hupe1980/facevault/match"
	"github.com/hupe1980/facevault/persistence"
)

// DefaultDimension is the embedding length produced by the reference model.
const DefaultDimension = 512

type options struct {
	dimension   int
	kind        index.Kind
	compression persistence.Compression
	ivfOptions  []func(*ivf.Options)
	graphOpts   []func(*graph.Options)

	origins    *ingest.OriginRegistry
	archiveDir string
	workers    int
	jobs       batch.JobStore
	thresholds match.Thresholds

	rebuildWorkers int
	rebuildRate    float64
	rebuildBurst   int

	backups       blobstore.BlobStore
	backupKeep    int
	restoreOnOpen bool

	metricsCollector MetricsCollector
	indexObserver    engine.MetricsObserver
	logger           *logging.Logger
	now              func() time.Time
}

func defaultOptions() options {
	return options{
		dimension:        DefaultDimension,
		kind:             index.KindFlat,
		compression:      persistence.CompressionZstd,
		workers:          4,
		thresholds:       match.DefaultThresholds(),
		metricsCollector: NoopMetricsCollector{},
		indexObserver:    engine.NoopMetricsObserver{},
		now:              time.Now,
	}
}

// Option configures Open.
type Option func(*options)

// WithDimension sets the embedding dimension. Defaults to DefaultDimension.
func WithDimension(dim int) Option {
	return func(o *options) {
		o.dimension = dim
	}
}

// WithKind selects the search structure. Defaults to index.KindFlat.
func WithKind(kind index.Kind) Option {
	return func(o *options) {
		o.kind = kind
	}
}

// WithCompression sets the snapshot compression. Defaults to zstd.
func WithCompression(c persistence.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithIVFOptions tunes the inverted-file structure.
func WithIVFOptions(fns ...func(*ivf.Options)) Option {
	return func(o *options) {
		o.ivfOptions = append(o.ivfOptions, fns...)
	}
}

// WithGraphOptions tunes the graph structure.
func WithGraphOptions(fns ...func(*graph.Options)) Option {
	return func(o *options) {
		o.graphOpts = append(o.graphOpts, fns...)
	}
}

// WithOrigins sets the origin code registry used to label ingested records.
func WithOrigins(r *ingest.OriginRegistry) Option {
	return func(o *options) {
		o.origins = r
	}
}

// WithArchiveDir keeps a copy of every accepted artifact in dir.
func WithArchiveDir(dir string) Option {
	return func(o *options) {
		o.archiveDir = dir
	}
}

// WithWorkers sets the default batch worker count used when a call passes a
// non-positive value.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithJobStore sets where declared batch jobs are tracked. Defaults to memory.
func WithJobStore(s batch.JobStore) Option {
	return func(o *options) {
		o.jobs = s
	}
}

// WithThresholds sets the match similarity thresholds.
func WithThresholds(t match.Thresholds) Option {
	return func(o *options) {
		o.thresholds = t
	}
}

// WithRebuildLimits bounds extraction during Rebuild. A non-positive rate
// disables rate limiting.
func WithRebuildLimits(workers int, rate float64, burst int) Option {
	return func(o *options) {
		o.rebuildWorkers = workers
		o.rebuildRate = rate
		o.rebuildBurst = burst
	}
}

// WithBackups enables Backup. keep > 0 prunes all but the newest keep backups
// after each successful backup.
func WithBackups(s blobstore.BlobStore, keep int) Option {
	return func(o *options) {
		o.backups = s
		o.backupKeep = keep
	}
}

// WithRestoreOnOpen restores the latest backup when the home directory holds
// no usable snapshot. Requires WithBackups.
func WithRestoreOnOpen() Option {
	return func(o *options) {
		o.restoreOnOpen = true
	}
}

// WithMetricsCollector configures pipeline-level metrics collection.
//
// If nil is passed, NoopMetricsCollector is used.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithIndexObserver configures index-level metrics (inserts, searches,
// snapshots).
func WithIndexObserver(m engine.MetricsObserver) Option {
	return func(o *options) {
		if m == nil {
			m = engine.NoopMetricsObserver{}
		}
		o.indexObserver = m
	}
}

// WithLogger sets the logger shared by every component. Nil disables logging.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithClock overrides the clock used for timestamps and backup names.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func (o options) engineOptions() []engine.Option {
	return []engine.Option{
		engine.WithCompression(o.compression),
		engine.WithIVFOptions(o.ivfOptions...),
		engine.WithGraphOptions(o.graphOpts...),
		engine.WithLogger(o.logger),
		engine.WithMetrics(o.indexObserver),
	}
}
