// Package ivf implements an inverted-file index: vectors are bucketed by their
// nearest k-means centroid and searches scan only the closest buckets.
package ivf

import (
	"context"
	"errors"

	"github.com/hupe1980/facevault/core"
	"github.com/hupe1980/facevault/distance"
	"github.com/hupe1980/facevault/index"
	"github.com/hupe1980/facevault/internal/kmeans"
	"github.com/hupe1980/facevault/internal/queue"
)

const (
	// DefaultLists is the default number of inverted lists.
	DefaultLists = 64
	// DefaultProbes is the default number of lists scanned per query.
	DefaultProbes = 8
	// DefaultMaxIterations bounds k-means training.
	DefaultMaxIterations = 25
)

// ErrAlreadyPopulated is returned when Train is called on a non-empty index.
var ErrAlreadyPopulated = errors.New("ivf: cannot train a populated index")

// Compile-time checks.
var (
	_ index.Index   = (*IVF)(nil)
	_ index.Trainer = (*IVF)(nil)
)

// Options configures an IVF index.
type Options struct {
	Lists         int
	Probes        int
	MaxIterations int
	Seed          int64
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Lists:         DefaultLists,
		Probes:        DefaultProbes,
		MaxIterations: DefaultMaxIterations,
		Seed:          42,
	}
}

// IVF is an approximate index which must be trained before the first Add.
type IVF struct {
	dim  int
	opts Options

	centroids []float32  // nlist*dim, empty until trained
	vectors   []float32  // slot-addressed arena
	assign    []uint32   // list id per slot
	lists     [][]uint32 // slots per list, ascending
}

// New creates an untrained IVF index.
func New(dim int, optFns ...func(o *Options)) (*IVF, error) {
	if err := index.ValidateDimension(dim); err != nil {
		return nil, err
	}

	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Lists <= 0 {
		opts.Lists = DefaultLists
	}
	if opts.Probes <= 0 {
		opts.Probes = DefaultProbes
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}

	return &IVF{dim: dim, opts: opts}, nil
}

func (*IVF) Kind() index.Kind { return index.KindIVF }

func (x *IVF) Dimension() int { return x.dim }

func (x *IVF) Len() int { return len(x.assign) }

// Trained reports whether centroids have been learned.
func (x *IVF) Trained() bool { return len(x.centroids) > 0 }

// Lists returns the number of learned lists, or 0 when untrained.
func (x *IVF) Lists() int { return len(x.centroids) / x.dim }

// Train learns the list centroids from samples.
func (x *IVF) Train(samples [][]float32) error {
	return x.TrainContext(context.Background(), samples)
}

// TrainContext is Train with cancellation.
func (x *IVF) TrainContext(ctx context.Context, samples [][]float32) error {
	if x.Len() > 0 {
		return ErrAlreadyPopulated
	}
	if len(samples) == 0 {
		return kmeans.ErrNoSamples
	}

	flat := make([]float32, 0, len(samples)*x.dim)
	for _, s := range samples {
		if err := index.ValidateVector(s, x.dim); err != nil {
			return err
		}
		if !distance.IsFinite(s) {
			return index.ErrNonFiniteVector
		}
		flat = append(flat, s...)
	}

	centroids, err := kmeans.Train(ctx, flat, x.dim, x.opts.Lists, x.opts.MaxIterations, x.opts.Seed)
	if err != nil {
		return err
	}

	x.centroids = centroids
	x.lists = make([][]uint32, len(centroids)/x.dim)
	return nil
}

// Add assigns v to its nearest list and appends it to the arena.
func (x *IVF) Add(v []float32) (core.SlotID, error) {
	if err := index.ValidateVector(v, x.dim); err != nil {
		return 0, err
	}
	if !x.Trained() {
		return 0, index.ErrNotTrained
	}
	if !distance.IsFinite(v) {
		return 0, index.ErrNonFiniteVector
	}
	n := x.Len()
	if uint64(n) >= uint64(core.MaxSlotID) {
		return 0, index.ErrCapacityExceeded
	}

	list := kmeans.Assign(v, x.centroids, x.dim)
	x.vectors = append(x.vectors, v...)
	x.assign = append(x.assign, uint32(list))
	x.lists[list] = append(x.lists[list], uint32(n))
	return core.SlotID(n), nil
}

// Search scans the Probes closest lists.
func (x *IVF) Search(q []float32, k int) ([]index.Result, error) {
	if err := index.ValidateK(k); err != nil {
		return nil, err
	}
	if err := index.ValidateVector(q, x.dim); err != nil {
		return nil, err
	}
	if !x.Trained() {
		return nil, index.ErrNotTrained
	}
	if x.Len() == 0 {
		return nil, nil
	}

	top := queue.NewTopK(k)
	for _, list := range kmeans.Closest(q, x.centroids, x.dim, x.opts.Probes) {
		for _, slot := range x.lists[list] {
			i := int(slot)
			d := distance.SquaredL2(q, x.vectors[i*x.dim:(i+1)*x.dim])
			top.Push(queue.Item{Slot: core.SlotID(slot), Distance: d})
		}
	}

	items := top.Sorted()
	results := make([]index.Result, len(items))
	for i, it := range items {
		results[i] = index.Result{Slot: it.Slot, Distance: it.Distance}
	}
	return results, nil
}
