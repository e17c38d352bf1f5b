// Package rebuild reconstructs the index from the external system of record.
//
// A rebuild re-extracts the embedding of every eligible record in parallel,
// replaces the index contents in source order and writes the new slot ids
// back to the source. It must not run concurrently with ingestion.
package rebuild

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/hupe1980/facevault/core"
	"github.com/hupe1980/facevault/engine"
	"github.com/hupe1980/facevault/extractor"
	"github.com/hupe1980/facevault/logging"
	"github.com/hupe1980/facevault/metadata"
	"golang.org/x/sync/errgroup"
)

// ErrNoEmbedding marks a record whose artifact yielded no embedding.
var ErrNoEmbedding = errors.New("rebuild: no embedding")

// Result counts rebuild outcomes.
type Result struct {
	Succeeded int
	Failed    int
	Skipped   int
	Elapsed   time.Duration
}

// Options configures a Rebuilder.
type Options struct {
	// Workers bounds parallel extraction. Defaults to the number of CPUs.
	Workers int

	// RateLimit caps extractions per second when positive.
	RateLimit float64
	Burst     int

	// ReadFile loads an artifact. Defaults to os.ReadFile.
	ReadFile func(path string) ([]byte, error)

	Logger *logging.Logger
}

// Rebuilder rebuilds an index from a Source.
type Rebuilder struct {
	idx  *engine.Index
	ext  extractor.Extractor
	opts Options
}

// New creates a rebuilder for idx.
func New(idx *engine.Index, ext extractor.Extractor, optFns ...func(o *Options)) *Rebuilder {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.ReadFile == nil {
		opts.ReadFile = os.ReadFile
	}
	if opts.RateLimit > 0 {
		ext = extractor.Limit(ext, opts.RateLimit, opts.Burst)
	}
	opts.Logger = logging.OrNoop(opts.Logger).WithComponent("rebuild")

	return &Rebuilder{idx: idx, ext: ext, opts: opts}
}

type item struct {
	rec Record
	vec []float32
	err error
}

// Rebuild replaces the index contents with the eligible records of src.
//
// Records are read and their embeddings extracted before the index is
// touched; a read error or a cancelled ctx up to that point leaves the index
// unchanged. Accepted embeddings are inserted in source order so slot ids are
// deterministic. Failed and ineligible records get a nil slot. A SetSlot error
// aborts the rebuild before the index is persisted.
func (r *Rebuilder) Rebuild(ctx context.Context, src Source) (res Result, err error) {
	start := time.Now()
	defer func() {
		res.Elapsed = time.Since(start)
		r.opts.Logger.LogRebuild(ctx, res.Succeeded, res.Failed, res.Skipped, res.Elapsed, err)
	}()

	var items []item
	for rec, err := range src.Records(ctx) {
		if err != nil {
			return Result{}, fmt.Errorf("rebuild: read source: %w", err)
		}
		items = append(items, item{rec: rec})
	}

	if err := r.extract(ctx, items); err != nil {
		return Result{}, err
	}

	if err := r.idx.Clear(); err != nil {
		return Result{}, err
	}

	var (
		vecs    [][]float32
		recs    []metadata.Record
		owners  []int
		inserts = make([]*core.SlotID, len(items))
	)
	for i, it := range items {
		if it.vec == nil {
			continue
		}
		vecs = append(vecs, it.vec)
		recs = append(recs, it.rec.Record)
		owners = append(owners, i)
	}

	if len(vecs) > 0 && !r.idx.Trained() {
		if err := r.idx.Train(ctx, vecs); err != nil {
			return Result{}, fmt.Errorf("rebuild: train: %w", err)
		}
	}

	for j, ir := range r.idx.InsertBatch(ctx, vecs, recs) {
		i := owners[j]
		if ir.Err != nil {
			items[i].err = ir.Err
			continue
		}
		inserts[i] = core.SlotPtr(ir.Slot)
	}

	for i, it := range items {
		switch {
		case !it.rec.Eligible():
			res.Skipped++
		case inserts[i] != nil:
			res.Succeeded++
			if it.rec.Inactive {
				r.idx.Deactivate(it.rec.IdentityKey)
			}
		default:
			res.Failed++
			r.opts.Logger.WarnContext(ctx, "record not rebuilt", "identity", it.rec.IdentityKey, "path", it.rec.ArtifactPath, "error", it.err)
		}

		if err := src.SetSlot(ctx, it.rec.IdentityKey, inserts[i]); err != nil {
			return res, fmt.Errorf("rebuild: set slot for %s: %w", it.rec.IdentityKey, err)
		}
	}

	if r.idx.Home() != "" {
		if err := r.idx.Persist(ctx); err != nil {
			return res, err
		}
	}
	return res, nil
}

// extract fills in the embedding of every eligible item.
func (r *Rebuilder) extract(ctx context.Context, items []item) error {
	var g errgroup.Group
	g.SetLimit(r.opts.Workers)

	for i := range items {
		if !items[i].rec.Eligible() {
			continue
		}
		if err := ctx.Err(); err != nil {
			_ = g.Wait()
			return err
		}

		g.Go(func() error {
			it := &items[i]

			data, err := r.opts.ReadFile(it.rec.ArtifactPath)
			if err != nil {
				it.err = err
				return nil
			}

			vec, err := r.ext.Extract(ctx, data)
			switch {
			case err != nil:
				it.err = err
			case vec == nil:
				it.err = ErrNoEmbedding
			default:
				it.vec = vec
			}
			return nil
		})
	}
	_ = g.Wait()

	return ctx.Err()
}
