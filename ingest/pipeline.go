package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/facevault/core"
	"github.com/hupe1980/facevault/engine"
	"github.com/hupe1980/facevault/extractor"
	"github.com/hupe1980/facevault/index"
	"github.com/hupe1980/facevault/logging"
	"github.com/hupe1980/facevault/metadata"
)

// Rejection reasons.
const (
	ReasonMalformedName     = "malformed name"
	ReasonNoEmbedding       = "no embedding"
	ReasonDimensionMismatch = "dimension mismatch"
	ReasonNotTrained        = "index not trained"
	reasonInternalPrefix    = "internal error: "
)

// InternalReason formats the reason for an unexpected failure.
func InternalReason(err any) string {
	return fmt.Sprintf("%s%v", reasonInternalPrefix, err)
}

// IsInternalReason reports whether reason describes an unexpected failure.
func IsInternalReason(reason string) bool {
	return strings.HasPrefix(reason, reasonInternalPrefix)
}

// Artifact is one named image. Data takes precedence over Path.
type Artifact struct {
	Name string
	Data []byte
	Path string
}

// Outcome is the result of ingesting one artifact.
type Outcome struct {
	Artifact string
	Accepted bool

	// Set when accepted.
	Slot        core.SlotID
	IdentityKey string
	Record      metadata.Record

	// Set when rejected.
	Reason string

	// Err carries the underlying cause of an internal rejection, or a
	// persistence failure after an accepted commit.
	Err error
}

// Accepted builds an accepted outcome.
func Accepted(name string, slot core.SlotID, rec metadata.Record) Outcome {
	return Outcome{Artifact: name, Accepted: true, Slot: slot, IdentityKey: rec.IdentityKey, Record: rec}
}

// Rejected builds a rejected outcome.
func Rejected(name, reason string, err error) Outcome {
	return Outcome{Artifact: name, Reason: reason, Err: err}
}

// Options configures a Pipeline.
type Options struct {
	Origins *OriginRegistry

	// ArchiveDir, when set, receives a copy of every accepted artifact under
	// its unique filename.
	ArchiveDir string

	Logger *logging.Logger

	// Now is the clock used for timestamps.
	Now func() time.Time
}

// Pipeline ingests artifacts into an index.
type Pipeline struct {
	idx  *engine.Index
	ext  extractor.Extractor
	opts Options
}

// NewPipeline creates a pipeline over idx.
func NewPipeline(idx *engine.Index, ext extractor.Extractor, optFns ...func(o *Options)) *Pipeline {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Origins == nil {
		opts.Origins = DefaultOrigins()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.Logger = logging.OrNoop(opts.Logger).WithComponent("ingest")

	return &Pipeline{idx: idx, ext: ext, opts: opts}
}

// Index returns the target index.
func (p *Pipeline) Index() *engine.Index { return p.idx }

type ingestConfig struct {
	persist bool
}

// IngestOption tunes a single Ingest call.
type IngestOption func(*ingestConfig)

// WithoutPersist skips the per-item persist; the caller persists later.
func WithoutPersist() IngestOption {
	return func(c *ingestConfig) {
		c.persist = false
	}
}

// Ingest processes one artifact end to end.
//
// The index is persisted after the commit unless WithoutPersist is given or
// the index has no home directory.
func (p *Pipeline) Ingest(ctx context.Context, a Artifact, opts ...IngestOption) Outcome {
	cfg := ingestConfig{persist: true}
	for _, fn := range opts {
		fn(&cfg)
	}

	out := p.ingest(ctx, a, cfg)

	p.opts.Logger.LogIngest(ctx, out.Artifact, uint32(out.Slot), out.Accepted, out.Reason)
	if out.Accepted && out.Err != nil {
		p.opts.Logger.ErrorContext(ctx, "persist after commit failed", "artifact", out.Artifact, "error", out.Err)
	}
	return out
}

func (p *Pipeline) ingest(ctx context.Context, a Artifact, cfg ingestConfig) Outcome {
	name := a.Name
	if name == "" {
		name = filepath.Base(a.Path)
	}

	parsed, err := ParseFilename(name)
	if err != nil {
		return Rejected(name, ReasonMalformedName, err)
	}

	data := a.Data
	if data == nil {
		if a.Path == "" {
			return Rejected(name, InternalReason("artifact has neither data nor path"), nil)
		}
		data, err = os.ReadFile(a.Path)
		if err != nil {
			return Rejected(name, InternalReason(err), err)
		}
	}

	vec, err := p.ext.Extract(ctx, data)
	if err != nil {
		return Rejected(name, InternalReason(err), err)
	}
	if vec == nil {
		return Rejected(name, ReasonNoEmbedding, nil)
	}

	now := p.opts.Now()
	rec := metadata.Record{
		IdentityKey:      parsed.IdentityKey,
		TaxID:            parsed.TaxID,
		DisplayName:      parsed.DisplayName,
		OriginCode:       parsed.OriginCode,
		Origin:           p.opts.Origins.Label(parsed.OriginCode),
		Filename:         parsed.UniqueFilename(now),
		OriginalFilename: parsed.Original,
		IngestedAt:       now.UTC(),
	}

	if p.opts.ArchiveDir != "" {
		path, err := archive(p.opts.ArchiveDir, rec.Filename, data)
		if err != nil {
			return Rejected(name, InternalReason(err), err)
		}
		rec.Filename = filepath.Base(path)
		rec.ArtifactPath = path
	}

	slot, err := p.idx.Insert(ctx, vec, rec)
	if err != nil {
		if rec.ArtifactPath != "" {
			_ = os.Remove(rec.ArtifactPath)
		}
		return Rejected(name, insertReason(err), err)
	}

	out := Accepted(name, slot, rec)
	if cfg.persist && p.idx.Home() != "" {
		out.Err = p.idx.Persist(ctx)
	}
	return out
}

func insertReason(err error) string {
	var dm *index.ErrDimensionMismatch
	switch {
	case errors.As(err, &dm), errors.Is(err, index.ErrEmptyVector):
		return ReasonDimensionMismatch
	case errors.Is(err, index.ErrNotTrained):
		return ReasonNotTrained
	default:
		return InternalReason(err)
	}
}

// archive writes data into dir under filename. On a name collision a numeric
// suffix is added before the extension.
func archive(dir, filename string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)

	for i := 0; i < 1000; i++ {
		candidate := filename
		if i > 0 {
			candidate = stem + "-" + strconv.Itoa(i) + ext
		}
		path := filepath.Join(dir, candidate)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			_ = os.Remove(path)
			return "", err
		}
		if err := f.Close(); err != nil {
			_ = os.Remove(path)
			return "", err
		}
		return path, nil
	}
	return "", fmt.Errorf("ingest: could not find a free archive name for %s", filename)
}
