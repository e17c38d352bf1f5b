package batch

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hupe1980/facevault/ingest"
	"github.com/hupe1980/facevault/logging"
)

// DefaultDebounce is the quiet period before a watched batch is flushed.
const DefaultDebounce = 2 * time.Second

// WatchOptions configures a Watcher.
type WatchOptions struct {
	Debounce time.Duration
	Workers  int

	// OnReport receives the result of every flushed batch.
	OnReport func(Report, error)

	Logger *logging.Logger
}

// Runner runs one batch of artifacts. *Coordinator implements it.
type Runner interface {
	Run(ctx context.Context, artifacts []ingest.Artifact, workers int) (Report, error)
}

// Watcher feeds image files created in a directory to a Runner. Events
// are collected until the directory has been quiet for the debounce period,
// then submitted as one batch. Subdirectories are not watched.
type Watcher struct {
	coord Runner
	dir   string
	opts  WatchOptions
	seen  map[string]struct{}
}

// NewWatcher creates a watcher for dir.
func NewWatcher(coord Runner, dir string, optFns ...func(o *WatchOptions)) *Watcher {
	opts := WatchOptions{Debounce: DefaultDebounce}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	opts.Logger = logging.OrNoop(opts.Logger).WithComponent("watcher")

	return &Watcher{coord: coord, dir: dir, opts: opts, seen: make(map[string]struct{})}
}

// Run watches until ctx is cancelled. Pending files are flushed before Run
// returns.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return err
	}
	w.opts.Logger.InfoContext(ctx, "watching directory", "dir", w.dir, "debounce", w.opts.Debounce)

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.opts.Debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.flush(context.WithoutCancel(ctx), pending)
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				w.flush(ctx, pending)
				return nil
			}
			if w.track(ev, pending) {
				timer.Reset(w.opts.Debounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				w.flush(ctx, pending)
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.opts.Logger.WarnContext(ctx, "watch event overflow", "dir", w.dir)
				continue
			}
			w.opts.Logger.ErrorContext(ctx, "watch error", "error", err)
		case <-timer.C:
			w.flush(ctx, pending)
		}
	}
}

// track records ev and reports whether the debounce timer should restart.
func (w *Watcher) track(ev fsnotify.Event, pending map[string]struct{}) bool {
	name := filepath.Clean(ev.Name)

	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		delete(pending, name)
		delete(w.seen, name)
		return false
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		if !IsImage(name) {
			return false
		}
		if _, done := w.seen[name]; done {
			return false
		}
		pending[name] = struct{}{}
		return true
	}
	return false
}

func (w *Watcher) flush(ctx context.Context, pending map[string]struct{}) {
	if len(pending) == 0 {
		return
	}

	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
		w.seen[p] = struct{}{}
		delete(pending, p)
	}
	slices.Sort(paths)

	artifacts := make([]ingest.Artifact, len(paths))
	for i, p := range paths {
		artifacts[i] = ingest.Artifact{Name: filepath.Base(p), Path: p}
	}

	rep, err := w.coord.Run(ctx, artifacts, w.opts.Workers)
	if w.opts.OnReport != nil {
		w.opts.OnReport(rep, err)
	}
}
