// Command facevault enrolls and identifies faces against a local index.
//
// Usage:
//
//	facevault <command> [flags] [args]
//
// Commands:
//
//	ingest <file>...        enroll single images, persisting after each
//	batch [dir]             enroll every image under dir (default: .)
//	watch [dir]             enroll images as they appear in dir
//	match [-k N] <image>    identify the face in image
//	rebuild                 rebuild the index from the system of record
//	size                    print the number of enrolled embeddings
//	stats                   print index statistics as JSON
//	backup                  copy the snapshot to the backup store
//	train <dir>             train the index on the images under dir
//
// Settings come from FACEVAULT_* environment variables or a .env file.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hupe1980/facevault/config"
	"github.com/hupe1980/facevault/internal/telemetry"
	"github.com/hupe1980/facevault/logging"
)

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, app *app, args []string) error
}

var commands = []command{
	{"ingest", "ingest [-sqlite DSN] <file>...", runIngest},
	{"batch", "batch [-workers N] [-job] [dir]", runBatch},
	{"watch", "watch [-workers N] [dir]", runWatch},
	{"match", "match [-k N] <image>", runMatch},
	{"rebuild", "rebuild [-sqlite DSN | -dynamodb TABLE]", runRebuild},
	{"deactivate", "deactivate <identity>", runDeactivate},
	{"size", "size", runSize},
	{"stats", "stats", runStats},
	{"backup", "backup", runBackup},
	{"train", "train <dir>", runTrain},
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "facevault:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		usage()
		return errors.New("missing command")
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == args[0] {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	metrics := telemetry.New()
	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, metrics, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}

	cmdErr := cmd.run(ctx, a, args[1:])
	if err := a.Close(); err != nil && cmdErr == nil {
		cmdErr = err
	}
	return cmdErr
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: facevault <command> [flags] [args]")
	fmt.Fprintln(os.Stderr)
	for _, c := range commands {
		fmt.Fprintln(os.Stderr, "  "+c.usage)
	}
}

func newLogger(cfg *config.Config) *logging.Logger {
	level := logging.ParseLevel(cfg.LogLevel)
	if cfg.LogFormat == "json" {
		return logging.NewJSONLogger(os.Stderr, level)
	}
	return logging.NewTextLogger(os.Stderr, level)
}

func serveMetrics(addr string, metrics *telemetry.Collector, logger *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	logger.Info("starting metrics server", "address", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", "error", err)
	}
}
