package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/goccy/go-json"
	"github.com/hupe1980/facevault/batch"
	"github.com/hupe1980/facevault/ingest"
	"github.com/hupe1980/facevault/rebuild"
	"github.com/hupe1980/facevault/rebuild/ddbsource"
	"github.com/hupe1980/facevault/rebuild/sqlsource"

	_ "modernc.org/sqlite"
)

func runIngest(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	dsn := fs.String("sqlite", "", "SQLite DSN of the person table to mirror accepted images into")
	table := fs.String("table", "", "person table name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("ingest: no files given")
	}

	var mirror *sqlsource.Source
	if *dsn != "" {
		db, err := sql.Open("sqlite", *dsn)
		if err != nil {
			return err
		}
		defer db.Close()
		if mirror, err = openPersons(ctx, db, *table); err != nil {
			return err
		}
	}

	rejected := 0
	for _, p := range fs.Args() {
		out, err := a.engine.Ingest(ctx, ingest.Artifact{Name: filepath.Base(p), Path: p})
		if err != nil {
			return err
		}
		if !out.Accepted {
			rejected++
			fmt.Printf("rejected %s: %s\n", out.Artifact, out.Reason)
			continue
		}

		fmt.Printf("accepted %s slot=%d identity=%s\n", out.Artifact, out.Slot, out.IdentityKey)
		if mirror != nil {
			rec := out.Record
			if rec.ArtifactPath == "" {
				rec.ArtifactPath = p
			}
			if err := mirror.Upsert(ctx, rec, &out.Slot); err != nil {
				return err
			}
		}
	}
	if rejected > 0 {
		return fmt.Errorf("ingest: %d of %d rejected", rejected, fs.NArg())
	}
	return nil
}

// openPersons returns the person table, creating it when missing.
func openPersons(ctx context.Context, db *sql.DB, table string) (*sqlsource.Source, error) {
	if table == "" {
		table = sqlsource.DefaultTable
	}
	if _, err := db.ExecContext(ctx, sqlsource.SchemaDDL(table)); err != nil {
		return nil, fmt.Errorf("create %s: %w", table, err)
	}
	return sqlsource.New(db, func(o *sqlsource.Options) { o.Table = table }), nil
}

func runBatch(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	workers := fs.Int("workers", 0, "worker count (default FACEVAULT_BATCH_WORKERS)")
	asJob := fs.Bool("job", false, "track the run as a declared job")
	if err := fs.Parse(args); err != nil {
		return err
	}

	artifacts, err := batch.ScanDir(dirArg(fs))
	if err != nil {
		return err
	}

	if !*asJob {
		rep, err := a.engine.RunBatch(ctx, artifacts, *workers)
		printReport(rep)
		return err
	}

	job, err := a.engine.Declare(ctx, len(artifacts))
	if err != nil {
		return err
	}
	fmt.Println("job", job.ID)

	rep, job, err := a.engine.RunJob(ctx, job.ID, artifacts, *workers)
	printReport(rep)
	fmt.Printf("job %s status=%s processed=%d/%d\n", job.ID, job.Status, job.Processed, job.Total)
	return err
}

func runWatch(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	workers := fs.Int("workers", 0, "worker count (default FACEVAULT_BATCH_WORKERS)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return a.engine.Watch(ctx, dirArg(fs), func(o *batch.WatchOptions) {
		o.Debounce = a.cfg.WatchDebounce
		if *workers > 0 {
			o.Workers = *workers
		}
		o.OnReport = func(rep batch.Report, err error) {
			printReport(rep)
			if err != nil {
				a.logger.Error("watched batch failed", "error", err)
			}
		}
	})
}

func runMatch(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("match", flag.ContinueOnError)
	k := fs.Int("k", 5, "number of matches")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("match: exactly one image expected")
	}

	image, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	matches, err := a.engine.MatchImage(ctx, image, *k)
	if err != nil {
		return err
	}
	return printJSON(matches)
}

func runRebuild(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("rebuild", flag.ContinueOnError)
	dsn := fs.String("sqlite", "", "SQLite DSN of the person table")
	table := fs.String("table", "", "table name (default depends on the source)")
	ddbTable := fs.String("dynamodb", "", "DynamoDB table of person items")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var src rebuild.Source
	switch {
	case *dsn != "" && *ddbTable != "":
		return errors.New("rebuild: -sqlite and -dynamodb are exclusive")
	case *dsn != "":
		db, err := sql.Open("sqlite", *dsn)
		if err != nil {
			return err
		}
		defer db.Close()
		if src, err = openPersons(ctx, db, *table); err != nil {
			return err
		}
	case *ddbTable != "":
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return err
		}
		src = ddbsource.New(dynamodb.NewFromConfig(awsCfg), func(o *ddbsource.Options) {
			o.Table = *ddbTable
		})
	default:
		return errors.New("rebuild: one of -sqlite or -dynamodb is required")
	}

	res, err := a.engine.Rebuild(ctx, src)
	if err != nil {
		return err
	}
	fmt.Printf("succeeded=%d failed=%d skipped=%d elapsed=%s\n",
		res.Succeeded, res.Failed, res.Skipped, res.Elapsed.Round(1e6))
	return nil
}

func runDeactivate(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("deactivate: exactly one identity key expected")
	}
	n, err := a.engine.Deactivate(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("deactivated %d slots\n", n)
	return nil
}

func runSize(_ context.Context, a *app, _ []string) error {
	fmt.Println(a.engine.Size())
	return nil
}

func runStats(_ context.Context, a *app, _ []string) error {
	return printJSON(a.engine.Stats())
}

func runBackup(ctx context.Context, a *app, _ []string) error {
	name, err := a.engine.Backup(ctx)
	if err != nil {
		return err
	}
	fmt.Println(name)
	return nil
}

func runTrain(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("train: exactly one directory expected")
	}

	artifacts, err := batch.ScanDir(args[0])
	if err != nil {
		return err
	}
	n, err := a.engine.TrainImages(ctx, artifacts)
	if err != nil {
		return err
	}
	fmt.Printf("trained on %d samples\n", n)
	return nil
}

func dirArg(fs *flag.FlagSet) string {
	if fs.NArg() > 0 {
		return fs.Arg(0)
	}
	return "."
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
