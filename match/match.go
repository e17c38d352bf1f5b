// Package match answers nearest-identity queries against the index and maps
// raw distances to a similarity score.
package match

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/facevault/core"
	"github.com/hupe1980/facevault/engine"
	"github.com/hupe1980/facevault/extractor"
	"github.com/hupe1980/facevault/index"
	"github.com/hupe1980/facevault/logging"
	"github.com/hupe1980/facevault/metadata"
)

var (
	// ErrNoEmbedding is returned by MatchImage when the query image yields no
	// embedding.
	ErrNoEmbedding = errors.New("match: no embedding in query image")

	// ErrNoExtractor is returned by MatchImage when the service has no
	// extractor.
	ErrNoExtractor = errors.New("match: no extractor configured")

	// ErrInvalidThresholds is returned for Far <= Near.
	ErrInvalidThresholds = errors.New("match: far threshold must exceed near threshold")
)

// Default thresholds on squared L2 distance.
const (
	DefaultNear = 500
	DefaultFar  = 1000
)

// Thresholds maps distances to similarity: Near and below is 1, Far and above
// is 0, linear in between.
type Thresholds struct {
	Near float32
	Far  float32
}

// DefaultThresholds returns the default Near and Far values.
func DefaultThresholds() Thresholds {
	return Thresholds{Near: DefaultNear, Far: DefaultFar}
}

// Validate checks that the range is non-empty.
func (t Thresholds) Validate() error {
	if t.Far <= t.Near {
		return fmt.Errorf("%w: near=%v far=%v", ErrInvalidThresholds, t.Near, t.Far)
	}
	return nil
}

// Similarity maps a distance into [0, 1].
func (t Thresholds) Similarity(distance float32) float32 {
	switch {
	case distance <= t.Near:
		return 1
	case distance >= t.Far:
		return 0
	default:
		return 1 - (distance-t.Near)/(t.Far-t.Near)
	}
}

// Match is one ranked result.
type Match struct {
	// Rank starts at 1.
	Rank       int
	Slot       core.SlotID
	Distance   float32
	Similarity float32
	Record     metadata.Record
}

// Options configures a Service.
type Options struct {
	Thresholds Thresholds

	// Extractor is required by MatchImage only.
	Extractor extractor.Extractor

	Logger *logging.Logger
}

// Service runs match queries.
type Service struct {
	idx  *engine.Index
	opts Options
}

// New creates a service over idx.
func New(idx *engine.Index, optFns ...func(o *Options)) (*Service, error) {
	opts := Options{Thresholds: DefaultThresholds()}
	for _, fn := range optFns {
		fn(&opts)
	}
	if err := opts.Thresholds.Validate(); err != nil {
		return nil, err
	}
	opts.Logger = logging.OrNoop(opts.Logger).WithComponent("match")

	return &Service{idx: idx, opts: opts}, nil
}

// Thresholds returns the configured thresholds.
func (s *Service) Thresholds() Thresholds { return s.opts.Thresholds }

// Match returns up to k active entries closest to q, ranked by ascending
// distance. Results are never filtered by similarity; slots of deactivated
// identities are skipped and replaced by the next closest entries.
func (s *Service) Match(ctx context.Context, q []float32, k int) ([]Match, error) {
	if err := index.ValidateK(k); err != nil {
		return nil, err
	}

	hits, err := s.idx.SearchActive(ctx, q, k)
	if err != nil {
		s.opts.Logger.LogSearch(ctx, k, 0, err)
		return nil, err
	}

	matches := make([]Match, len(hits))
	for i, h := range hits {
		matches[i] = Match{
			Rank:       i + 1,
			Slot:       h.Slot,
			Distance:   h.Distance,
			Similarity: s.opts.Thresholds.Similarity(h.Distance),
			Record:     h.Record,
		}
	}

	s.opts.Logger.LogSearch(ctx, k, len(matches), nil)
	return matches, nil
}

// MatchImage extracts an embedding from image and matches it.
func (s *Service) MatchImage(ctx context.Context, image []byte, k int) ([]Match, error) {
	if s.opts.Extractor == nil {
		return nil, ErrNoExtractor
	}

	vec, err := s.opts.Extractor.Extract(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("match: extract: %w", err)
	}
	if vec == nil {
		return nil, ErrNoEmbedding
	}
	return s.Match(ctx, vec, k)
}
