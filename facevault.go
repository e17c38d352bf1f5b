package facevault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/hupe1980/facevault/batch"
	"github.com/hupe1980/facevault/blobstore"
	"github.com/hupe1980/facevault/engine"
	"github.com/hupe1980/facevault/extractor"
	"github.com/hupe1980/facevault/ingest"
	"github.com/hupe1980/facevault/logging"
	"github.com/hupe1980/facevault/match"
	"github.com/hupe1980/facevault/persistence"
	"github.com/hupe1980/facevault/rebuild"
	"golang.org/x/sync/errgroup"
)

// SnapshotFiles are the files that make up a snapshot, in backup order.
var SnapshotFiles = []string{engine.IndexFile, engine.MetadataFile}

// Stats describes an open Engine.
type Stats struct {
	engine.Stats

	Home string `json:"home"`

	// Restored names the backup the snapshot was restored from at open, if any.
	Restored string `json:"restored,omitempty"`
}

// Engine is the single owner of a face index and its snapshot directory.
//
// Ingestion, batches and matches share the engine concurrently. Rebuild,
// Train, Backup and Close take it exclusively, so a rebuild never interleaves
// with ingestion.
type Engine struct {
	gate   sync.RWMutex
	closed bool

	home     string
	restored string
	lock     *persistence.DirLock

	idx      *engine.Index
	ext      extractor.Extractor
	pipeline *ingest.Pipeline
	coord    *batch.Coordinator
	matcher  *match.Service

	opts   options
	logger *logging.Logger
}

// Open takes the lock on home, loads the snapshot found there (or starts
// empty) and wires the ingestion, batch and match components around it.
//
// ext may be nil; operations that need embeddings then fail with
// ErrNoExtractor. A corrupt snapshot is not fatal: the engine starts empty and
// logs that a rebuild is recommended.
func Open(ctx context.Context, home string, ext extractor.Extractor, optFns ...Option) (*Engine, error) {
	o := defaultOptions()
	for _, fn := range optFns {
		fn(&o)
	}
	logger := logging.OrNoop(o.logger).WithComponent("facevault")
	o.logger = logging.OrNoop(o.logger)

	lock, err := persistence.LockDir(home)
	if err != nil {
		return nil, err
	}

	idx, restored, err := openIndex(ctx, home, o, logger)
	if err != nil {
		_ = lock.Unlock()
		return nil, translateError(err)
	}

	matcher, err := match.New(idx, func(mo *match.Options) {
		mo.Thresholds = o.thresholds
		mo.Extractor = ext
		mo.Logger = o.logger
	})
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	pipeline := ingest.NewPipeline(idx, ext, func(po *ingest.Options) {
		po.Origins = o.origins
		po.ArchiveDir = o.archiveDir
		po.Logger = o.logger
		po.Now = o.now
	})
	coord := batch.NewCoordinator(pipeline, func(bo *batch.Options) {
		bo.Jobs = o.jobs
		bo.Logger = o.logger
		bo.Now = o.now
	})

	logger.InfoContext(ctx, "engine opened",
		"home", home,
		"size", idx.Size(),
		"kind", idx.Kind().String(),
		"dimension", idx.Dimension(),
	)

	return &Engine{
		home:     home,
		restored: restored,
		lock:     lock,
		idx:      idx,
		ext:      ext,
		pipeline: pipeline,
		coord:    coord,
		matcher:  matcher,
		opts:     o,
		logger:   logger,
	}, nil
}

func openIndex(ctx context.Context, home string, o options, logger *logging.Logger) (*engine.Index, string, error) {
	idx, loaded, err := engine.Open(home, o.dimension, o.kind, o.engineOptions()...)
	if err != nil || loaded || !o.restoreOnOpen || o.backups == nil {
		return idx, "", err
	}

	name, err := blobstore.Restore(ctx, o.backups, home, "", SnapshotFiles)
	if errors.Is(err, blobstore.ErrNoBackup) {
		logger.InfoContext(ctx, "no backup to restore", "home", home)
		return idx, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("facevault: restore: %w", err)
	}

	logger.InfoContext(ctx, "restored snapshot from backup", "backup", name)
	idx, _, err = engine.Open(home, o.dimension, o.kind, o.engineOptions()...)
	return idx, name, err
}

// shared takes the gate for a concurrent operation.
func (e *Engine) shared() error {
	e.gate.RLock()
	if e.closed {
		e.gate.RUnlock()
		return ErrClosed
	}
	return nil
}

// exclusive takes the gate for an operation that must not overlap any other.
func (e *Engine) exclusive() error {
	e.gate.Lock()
	if e.closed {
		e.gate.Unlock()
		return ErrClosed
	}
	return nil
}

// Home returns the snapshot directory.
func (e *Engine) Home() string { return e.home }

// Index exposes the underlying index for read-only inspection.
//
// Home, Index, Size and Stats bypass the gate: they never block behind an
// exclusive operation and stay usable after Close, reporting the state the
// engine closed with.
func (e *Engine) Index() *engine.Index { return e.idx }

// Size returns the number of stored embeddings.
func (e *Engine) Size() int { return e.idx.Size() }

// Stats returns a snapshot of the engine state.
func (e *Engine) Stats() Stats {
	return Stats{Stats: e.idx.Stats(), Home: e.home, Restored: e.restored}
}

// Ingest runs one artifact through the pipeline and persists the snapshot on
// acceptance. The returned error is non-nil only when the engine is unusable;
// rejections are reported in the Outcome.
func (e *Engine) Ingest(ctx context.Context, a ingest.Artifact) (ingest.Outcome, error) {
	if e.ext == nil {
		return ingest.Outcome{}, ErrNoExtractor
	}
	if err := e.shared(); err != nil {
		return ingest.Outcome{}, err
	}
	defer e.gate.RUnlock()

	start := time.Now()
	out := e.pipeline.Ingest(ctx, a)
	e.opts.metricsCollector.RecordIngest(out.Accepted, out.Reason, time.Since(start))
	return out, nil
}

// RunBatch ingests artifacts with a bounded worker pool and persists once at
// the end. workers <= 0 uses the configured default.
func (e *Engine) RunBatch(ctx context.Context, artifacts []ingest.Artifact, workers int) (batch.Report, error) {
	if e.ext == nil {
		return batch.Report{}, ErrNoExtractor
	}
	if err := e.shared(); err != nil {
		return batch.Report{}, err
	}
	defer e.gate.RUnlock()

	rep, err := e.coord.Run(ctx, artifacts, e.workers(workers))
	e.opts.metricsCollector.RecordBatch(rep.Submitted, rep.Accepted, rep.Rejected, rep.Elapsed)
	return rep, err
}

// Declare registers a batch job expecting total artifacts.
func (e *Engine) Declare(ctx context.Context, total int) (batch.Job, error) {
	if err := e.shared(); err != nil {
		return batch.Job{}, err
	}
	defer e.gate.RUnlock()

	return e.coord.Declare(ctx, total)
}

// Job returns the current state of a declared job.
func (e *Engine) Job(ctx context.Context, id string) (batch.Job, error) {
	if err := e.shared(); err != nil {
		return batch.Job{}, err
	}
	defer e.gate.RUnlock()

	return e.coord.Job(ctx, id)
}

// RunJob runs artifacts as part of the declared job id.
func (e *Engine) RunJob(ctx context.Context, id string, artifacts []ingest.Artifact, workers int) (batch.Report, batch.Job, error) {
	if e.ext == nil {
		return batch.Report{}, batch.Job{}, ErrNoExtractor
	}
	if err := e.shared(); err != nil {
		return batch.Report{}, batch.Job{}, err
	}
	defer e.gate.RUnlock()

	rep, job, err := e.coord.RunJob(ctx, id, artifacts, e.workers(workers))
	e.opts.metricsCollector.RecordBatch(rep.Submitted, rep.Accepted, rep.Rejected, rep.Elapsed)
	return rep, job, err
}

// Watch ingests image files as they appear in dir until ctx is cancelled.
// Each debounced group of files runs as one batch.
func (e *Engine) Watch(ctx context.Context, dir string, optFns ...func(o *batch.WatchOptions)) error {
	if e.ext == nil {
		return ErrNoExtractor
	}
	fns := append([]func(o *batch.WatchOptions){func(o *batch.WatchOptions) {
		o.Workers = e.opts.workers
		o.Logger = e.opts.logger
	}}, optFns...)

	return batch.NewWatcher(engineRunner{e}, dir, fns...).Run(ctx)
}

type engineRunner struct{ e *Engine }

func (r engineRunner) Run(ctx context.Context, artifacts []ingest.Artifact, workers int) (batch.Report, error) {
	return r.e.RunBatch(ctx, artifacts, workers)
}

// Match returns up to k active records nearest to q.
func (e *Engine) Match(ctx context.Context, q []float32, k int) ([]match.Match, error) {
	if err := e.shared(); err != nil {
		return nil, err
	}
	defer e.gate.RUnlock()

	start := time.Now()
	matches, err := e.matcher.Match(ctx, q, k)
	e.opts.metricsCollector.RecordMatch(k, len(matches), time.Since(start), err)
	return matches, translateError(err)
}

// MatchImage extracts an embedding from image and matches it.
func (e *Engine) MatchImage(ctx context.Context, image []byte, k int) ([]match.Match, error) {
	if err := e.shared(); err != nil {
		return nil, err
	}
	defer e.gate.RUnlock()

	start := time.Now()
	matches, err := e.matcher.MatchImage(ctx, image, k)
	e.opts.metricsCollector.RecordMatch(k, len(matches), time.Since(start), err)
	return matches, translateError(err)
}

// Rebuild replaces the index contents with the eligible records of src and
// writes the new slot back-references to it.
func (e *Engine) Rebuild(ctx context.Context, src rebuild.Source) (rebuild.Result, error) {
	if e.ext == nil {
		return rebuild.Result{}, ErrNoExtractor
	}
	if err := e.exclusive(); err != nil {
		return rebuild.Result{}, err
	}
	defer e.gate.Unlock()

	r := rebuild.New(e.idx, e.ext, func(ro *rebuild.Options) {
		ro.Workers = e.opts.rebuildWorkers
		ro.RateLimit = e.opts.rebuildRate
		ro.Burst = e.opts.rebuildBurst
		ro.Logger = e.opts.logger
	})

	res, err := r.Rebuild(ctx, src)
	e.opts.metricsCollector.RecordRebuild(res.Succeeded, res.Failed, res.Skipped, res.Elapsed, err)
	return res, err
}

// Train fits the search structure on samples and persists. It is a no-op for
// structures that need no training.
func (e *Engine) Train(ctx context.Context, samples [][]float32) error {
	if err := e.exclusive(); err != nil {
		return err
	}
	defer e.gate.Unlock()

	return e.train(ctx, samples)
}

func (e *Engine) train(ctx context.Context, samples [][]float32) error {
	if err := e.idx.Train(ctx, samples); err != nil {
		return translateError(err)
	}
	return e.persist(ctx)
}

// TrainImages extracts an embedding from every artifact and trains on those
// that yield one. It returns the number of samples used.
func (e *Engine) TrainImages(ctx context.Context, artifacts []ingest.Artifact) (int, error) {
	if e.ext == nil {
		return 0, ErrNoExtractor
	}
	if err := e.exclusive(); err != nil {
		return 0, err
	}
	defer e.gate.Unlock()

	vecs := make([][]float32, len(artifacts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batch.EffectiveWorkers(e.opts.workers))
	for i, a := range artifacts {
		g.Go(func() error {
			data := a.Data
			if data == nil {
				var err error
				if data, err = os.ReadFile(a.Path); err != nil {
					return err
				}
			}
			vec, err := e.ext.Extract(gctx, data)
			if err != nil {
				return fmt.Errorf("facevault: extract %s: %w", a.Name, err)
			}
			vecs[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	samples := make([][]float32, 0, len(vecs))
	for _, v := range vecs {
		if v != nil {
			samples = append(samples, v)
		}
	}
	return len(samples), e.train(ctx, samples)
}

// Deactivate hides every slot of identityKey from matches and persists. It
// returns the number of slots affected.
func (e *Engine) Deactivate(ctx context.Context, identityKey string) (int, error) {
	if err := e.shared(); err != nil {
		return 0, err
	}
	defer e.gate.RUnlock()

	n := e.idx.Deactivate(identityKey)
	if n == 0 {
		return 0, nil
	}
	return n, e.persist(ctx)
}

// Backup persists the index and copies the snapshot to the backup store.
// It returns the backup name.
func (e *Engine) Backup(ctx context.Context) (string, error) {
	if e.opts.backups == nil {
		return "", ErrNoBackupStore
	}
	if err := e.exclusive(); err != nil {
		return "", err
	}
	defer e.gate.Unlock()

	if err := e.idx.Persist(ctx); err != nil {
		return "", err
	}

	name, err := blobstore.Backup(ctx, e.opts.backups, e.home, SnapshotFiles, e.opts.now())
	if err != nil {
		return "", err
	}
	e.logger.InfoContext(ctx, "snapshot backed up", "backup", name)

	if e.opts.backupKeep > 0 {
		pruned, err := blobstore.Prune(ctx, e.opts.backups, e.opts.backupKeep)
		if err != nil {
			return name, fmt.Errorf("facevault: prune backups: %w", err)
		}
		if len(pruned) > 0 {
			e.logger.InfoContext(ctx, "pruned backups", "count", len(pruned))
		}
	}
	return name, nil
}

func (e *Engine) persist(ctx context.Context) error {
	if err := e.idx.Persist(ctx); err != nil {
		return fmt.Errorf("facevault: persist: %w", err)
	}
	return nil
}

func (e *Engine) workers(n int) int {
	if n > 0 {
		return n
	}
	return e.opts.workers
}
