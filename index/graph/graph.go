// Package graph implements the approximate HNSW index kind on top of
// github.com/coder/hnsw.
package graph

import (
	"math/rand"

	"github.com/coder/hnsw"

	"github.com/hupe1980/facevault/core"
	"github.com/hupe1980/facevault/distance"
	"github.com/hupe1980/facevault/index"
	"github.com/hupe1980/facevault/internal/queue"
)

const (
	// DefaultM is the default maximum number of neighbours per node.
	DefaultM = 32
	// DefaultEfSearch is the default candidate list size during search.
	DefaultEfSearch = 256
	// DefaultExactThreshold is the size up to which Search scans every
	// stored vector instead of walking the graph.
	DefaultExactThreshold = 4096
	// DefaultSeed seeds level generation.
	DefaultSeed = 1
)

// Compile-time check to ensure Graph satisfies the index contract.
var _ index.Index = (*Graph)(nil)

// Options configures a graph index.
type Options struct {
	M        int
	EfSearch int
	// ExactThreshold bounds the exact scan path. Negative disables it.
	ExactThreshold int
	Seed           int64
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		M:              DefaultM,
		EfSearch:       DefaultEfSearch,
		ExactThreshold: DefaultExactThreshold,
		Seed:           DefaultSeed,
	}
}

// Graph is an HNSW proximity graph keyed by slot id.
type Graph struct {
	dim  int
	opts Options
	g    *hnsw.Graph[core.SlotID]
}

// New creates an empty graph index. Graphs need no training.
func New(dim int, optFns ...func(o *Options)) (*Graph, error) {
	if err := index.ValidateDimension(dim); err != nil {
		return nil, err
	}

	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.M <= 0 {
		opts.M = DefaultM
	}
	if opts.EfSearch <= 0 {
		opts.EfSearch = DefaultEfSearch
	}
	if opts.ExactThreshold == 0 {
		opts.ExactThreshold = DefaultExactThreshold
	}

	return &Graph{dim: dim, opts: opts, g: newHNSW(opts)}, nil
}

func newHNSW(opts Options) *hnsw.Graph[core.SlotID] {
	g := hnsw.NewGraph[core.SlotID]()
	g.Distance = hnsw.EuclideanDistance
	g.M = opts.M
	g.EfSearch = opts.EfSearch
	g.Rng = rand.New(rand.NewSource(opts.Seed)) //nolint:gosec // level generation only
	return g
}

func (*Graph) Kind() index.Kind { return index.KindGraph }

func (x *Graph) Dimension() int { return x.dim }

func (x *Graph) Len() int { return x.g.Len() }

// Trained always reports true.
func (*Graph) Trained() bool { return true }

// Add inserts a copy of v under the next slot id.
func (x *Graph) Add(v []float32) (core.SlotID, error) {
	if err := index.ValidateVector(v, x.dim); err != nil {
		return 0, err
	}
	if !distance.IsFinite(v) {
		return 0, index.ErrNonFiniteVector
	}
	n := x.Len()
	if uint64(n) >= uint64(core.MaxSlotID) {
		return 0, index.ErrCapacityExceeded
	}

	vec := make([]float32, len(v))
	copy(vec, v)

	slot := core.SlotID(n)
	x.g.Add(hnsw.MakeNode(slot, vec))
	return slot, nil
}

// Search re-ranks candidates by squared L2 with ties broken by the lower
// slot. Up to ExactThreshold entries every stored vector is a candidate;
// beyond that the graph is asked for a widened candidate set.
func (x *Graph) Search(q []float32, k int) ([]index.Result, error) {
	if err := index.ValidateK(k); err != nil {
		return nil, err
	}
	if err := index.ValidateVector(q, x.dim); err != nil {
		return nil, err
	}

	n := x.Len()
	if n == 0 {
		return nil, nil
	}

	top := queue.NewTopK(k)
	if n <= x.opts.ExactThreshold {
		for slot := core.SlotID(0); int(slot) < n; slot++ {
			if v, ok := x.g.Lookup(slot); ok {
				top.Push(queue.Item{Slot: slot, Distance: distance.SquaredL2(q, v)})
			}
		}
	} else {
		want := min(max(4*k, x.opts.EfSearch), n)
		for _, node := range x.g.Search(q, want) {
			top.Push(queue.Item{Slot: node.Key, Distance: distance.SquaredL2(q, node.Value)})
		}
	}

	items := top.Sorted()
	results := make([]index.Result, len(items))
	for i, it := range items {
		results[i] = index.Result{Slot: it.Slot, Distance: it.Distance}
	}
	return results, nil
}
