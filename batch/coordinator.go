package batch

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/facevault/ingest"
	"github.com/hupe1980/facevault/logging"
	"golang.org/x/sync/errgroup"
)

// MaxWorkers caps the worker pool size.
const MaxWorkers = 64

// EffectiveWorkers clamps a requested worker count: n <= 0 selects the number
// of CPUs and anything above MaxWorkers is capped.
func EffectiveWorkers(n int) int {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return min(n, MaxWorkers)
}

// Report summarizes one Run.
type Report struct {
	// Outcomes are in completion order.
	Outcomes  []ingest.Outcome
	Submitted int
	Accepted  int
	Rejected  int
	Workers   int
	Elapsed   time.Duration

	// PersistErr is set when the final persist failed. The in-memory commits
	// are kept.
	PersistErr error
}

// Options configures a Coordinator.
type Options struct {
	// Jobs stores declared jobs. Defaults to a MemoryJobStore.
	Jobs JobStore

	Logger *logging.Logger

	// Now is the clock used for job timestamps.
	Now func() time.Time
}

// Coordinator runs artifacts through a pipeline with a bounded worker pool.
type Coordinator struct {
	pipeline *ingest.Pipeline
	opts     Options
}

// NewCoordinator creates a coordinator over p.
func NewCoordinator(p *ingest.Pipeline, optFns ...func(o *Options)) *Coordinator {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Jobs == nil {
		opts.Jobs = NewMemoryJobStore()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.Logger = logging.OrNoop(opts.Logger).WithComponent("batch")

	return &Coordinator{pipeline: p, opts: opts}
}

// Jobs returns the job store.
func (c *Coordinator) Jobs() JobStore { return c.opts.Jobs }

// Run ingests artifacts with up to workers goroutines and persists the index
// once after all of them finish.
//
// Cancelling ctx stops the submission of further artifacts. Artifacts already
// handed to a worker run to completion, and the partial report is returned
// together with ctx's error.
func (c *Coordinator) Run(ctx context.Context, artifacts []ingest.Artifact, workers int) (Report, error) {
	return c.run(ctx, artifacts, workers, c.opts.Logger, nil)
}

func (c *Coordinator) run(ctx context.Context, artifacts []ingest.Artifact, workers int, log *logging.Logger, onOutcome func(ingest.Outcome)) (Report, error) {
	start := time.Now()
	rep := Report{Workers: EffectiveWorkers(workers)}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(rep.Workers)

	// Items already started finish even if the caller gives up.
	workCtx := context.WithoutCancel(ctx)

	for _, a := range artifacts {
		if ctx.Err() != nil {
			break
		}
		rep.Submitted++

		g.Go(func() error {
			out := c.ingestOne(workCtx, a)

			if onOutcome != nil {
				onOutcome(out)
			}

			mu.Lock()
			rep.Outcomes = append(rep.Outcomes, out)
			if out.Accepted {
				rep.Accepted++
			} else {
				rep.Rejected++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if idx := c.pipeline.Index(); idx.Home() != "" {
		rep.PersistErr = idx.Persist(workCtx)
	}
	rep.Elapsed = time.Since(start)

	err := ctx.Err()
	if err == nil && rep.PersistErr != nil {
		err = fmt.Errorf("batch: persist: %w", rep.PersistErr)
	}

	log.LogBatch(ctx, rep.Submitted, rep.Accepted, rep.Rejected, rep.Elapsed, err)
	return rep, err
}

func (c *Coordinator) ingestOne(ctx context.Context, a ingest.Artifact) (out ingest.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			name := a.Name
			if name == "" {
				name = a.Path
			}
			out = ingest.Rejected(name, ingest.InternalReason(r), fmt.Errorf("batch: worker panic: %v", r))
		}
	}()
	return c.pipeline.Ingest(ctx, a, ingest.WithoutPersist())
}

// Declare registers a job expecting total artifacts.
func (c *Coordinator) Declare(ctx context.Context, total int) (Job, error) {
	if total <= 0 {
		return Job{}, ErrInvalidTotal
	}

	now := c.opts.Now().UTC()
	job := Job{
		ID:        uuid.NewString(),
		Total:     total,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.opts.Jobs.Create(ctx, job); err != nil {
		return Job{}, err
	}
	return job, nil
}

// Job returns the current state of a declared job.
func (c *Coordinator) Job(ctx context.Context, id string) (Job, error) {
	return c.opts.Jobs.Get(ctx, id)
}

// RunJob runs artifacts as part of job id and advances its progress per item.
//
// The artifacts are reserved against the job total in one store update, so
// concurrent runs never exceed it. Submitting more artifacts than the job has
// remaining returns ErrJobOverflow without processing any of them. A
// cancelled run or a failed persist marks the job failed.
func (c *Coordinator) RunJob(ctx context.Context, id string, artifacts []ingest.Artifact, workers int) (Report, Job, error) {
	var current Job
	if _, err := c.opts.Jobs.Update(ctx, id, func(j *Job) error {
		current = *j
		return j.reserve(len(artifacts))
	}); err != nil {
		return Report{}, current, err
	}

	log := c.opts.Logger.WithJob(id)
	store := context.WithoutCancel(ctx)

	rep, runErr := c.run(ctx, artifacts, workers, log, func(out ingest.Outcome) {
		if _, err := c.opts.Jobs.Update(store, id, func(j *Job) error {
			j.record(out.Accepted, c.opts.Now().UTC())
			return nil
		}); err != nil {
			log.WarnContext(ctx, "job progress update failed", "error", err)
		}
	})

	if unused := len(artifacts) - rep.Submitted; unused > 0 {
		if _, err := c.opts.Jobs.Update(store, id, func(j *Job) error {
			j.release(unused)
			return nil
		}); err != nil {
			log.WarnContext(ctx, "job reservation release failed", "error", err)
		}
	}

	var (
		job Job
		err error
	)
	if runErr != nil {
		job, err = c.opts.Jobs.Update(store, id, func(j *Job) error {
			j.fail(runErr, c.opts.Now().UTC())
			return nil
		})
	} else {
		job, err = c.opts.Jobs.Get(store, id)
	}
	if err != nil && runErr == nil {
		runErr = err
	}
	return rep, job, runErr
}
