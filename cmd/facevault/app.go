package main

import (
	"context"
	"fmt"

	"github.com/hupe1980/facevault"
	"github.com/hupe1980/facevault/batch"
	"github.com/hupe1980/facevault/batch/redisjobs"
	"github.com/hupe1980/facevault/blobstore"
	"github.com/hupe1980/facevault/blobstore/minio"
	"github.com/hupe1980/facevault/blobstore/s3"
	"github.com/hupe1980/facevault/config"
	"github.com/hupe1980/facevault/extractor"
	"github.com/hupe1980/facevault/extractor/remote"
	"github.com/hupe1980/facevault/index/graph"
	"github.com/hupe1980/facevault/index/ivf"
	"github.com/hupe1980/facevault/ingest"
	"github.com/hupe1980/facevault/internal/telemetry"
	"github.com/hupe1980/facevault/logging"
	"github.com/hupe1980/facevault/match"
)

// app holds the engine and the resources opened for it.
type app struct {
	cfg    *config.Config
	logger *logging.Logger
	engine *facevault.Engine
	jobs   *redisjobs.Store
}

func newApp(ctx context.Context, cfg *config.Config, logger *logging.Logger, metrics *telemetry.Collector) (*app, error) {
	client, err := remote.New(cfg.ExtractorURL, func(o *remote.Options) {
		o.Timeout = cfg.ExtractorTimeout
	})
	if err != nil {
		return nil, err
	}
	var ext extractor.Extractor = client
	if cfg.ExtractorRPS > 0 {
		ext = extractor.Limit(ext, cfg.ExtractorRPS, cfg.ExtractorBurst)
	}

	opts := []facevault.Option{
		facevault.WithDimension(cfg.Dimension),
		facevault.WithKind(cfg.Kind()),
		facevault.WithCompression(cfg.CompressionCodec()),
		facevault.WithIVFOptions(func(o *ivf.Options) {
			o.Lists = cfg.IVFLists
			o.Probes = cfg.IVFProbes
		}),
		facevault.WithGraphOptions(func(o *graph.Options) {
			o.M = cfg.GraphM
			o.EfSearch = cfg.GraphEfSearch
		}),
		facevault.WithArchiveDir(cfg.ArchiveDir),
		facevault.WithWorkers(cfg.BatchWorkers),
		facevault.WithThresholds(match.Thresholds{Near: cfg.MatchNear, Far: cfg.MatchFar}),
		facevault.WithRebuildLimits(cfg.BatchWorkers, cfg.ExtractorRPS, cfg.ExtractorBurst),
		facevault.WithMetricsCollector(metrics),
		facevault.WithIndexObserver(metrics),
		facevault.WithLogger(logger),
	}

	if cfg.OriginsFile != "" {
		origins, err := ingest.LoadOriginFile(cfg.OriginsFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, facevault.WithOrigins(origins))
	}

	a := &app{cfg: cfg, logger: logger}

	if cfg.RedisURL != "" {
		jobs, err := redisjobs.NewFromURL(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.jobs = jobs
		opts = append(opts, facevault.WithJobStore(jobs))
	}

	backups, err := openBackups(ctx, cfg)
	if err != nil {
		a.closeJobs()
		return nil, err
	}
	if backups != nil {
		opts = append(opts, facevault.WithBackups(backups, cfg.BackupKeep))
		if cfg.RestoreOnOpen {
			opts = append(opts, facevault.WithRestoreOnOpen())
		}
	}

	eng, err := facevault.Open(ctx, cfg.DataDir, ext, opts...)
	if err != nil {
		a.closeJobs()
		return nil, err
	}
	a.engine = eng
	return a, nil
}

func openBackups(ctx context.Context, cfg *config.Config) (blobstore.BlobStore, error) {
	switch cfg.BackupTarget {
	case "local":
		return blobstore.NewLocalStore(cfg.BackupPath), nil
	case "s3":
		optFns := []func(*s3.Options){s3.WithPrefix(cfg.BackupPrefix), s3.WithRegion(cfg.S3Region)}
		if cfg.S3Endpoint != "" {
			optFns = append(optFns, s3.WithEndpoint(cfg.S3Endpoint))
		}
		store, err := s3.New(ctx, cfg.BackupBucket, optFns...)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "minio":
		store, err := minio.Connect(ctx, minio.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.BackupBucket,
			Prefix:    cfg.BackupPrefix,
			Secure:    cfg.MinioSecure,
			Region:    cfg.S3Region,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, nil
	}
}

func (a *app) closeJobs() {
	if a.jobs != nil {
		if err := a.jobs.Close(); err != nil {
			a.logger.Warn("closing job store", "error", err)
		}
	}
}

// Close closes the engine, persisting the index, and the job store.
func (a *app) Close() error {
	defer a.closeJobs()
	if err := a.engine.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

func printReport(rep batch.Report) {
	fmt.Printf("submitted=%d accepted=%d rejected=%d workers=%d elapsed=%s\n",
		rep.Submitted, rep.Accepted, rep.Rejected, rep.Workers, rep.Elapsed.Round(1e6))
	for _, out := range rep.Outcomes {
		if !out.Accepted {
			fmt.Printf("  rejected %s: %s\n", out.Artifact, out.Reason)
		}
	}
}
