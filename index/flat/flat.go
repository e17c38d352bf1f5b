// Package flat provides an exact, append-only index that scans every stored vector.
package flat

import (
	"github.com/hupe1980/facevault/core"
	"github.com/hupe1980/facevault/distance"
	"github.com/hupe1980/facevault/index"
	"github.com/hupe1980/facevault/internal/queue"
)

// Compile-time check to ensure Flat satisfies the index contract.
var _ index.Index = (*Flat)(nil)

// Flat stores vectors contiguously in an append-only arena.
// Slot i occupies vectors[i*dim : (i+1)*dim].
type Flat struct {
	dim     int
	vectors []float32
}

// New creates an empty flat index of the given dimension.
func New(dim int) (*Flat, error) {
	if err := index.ValidateDimension(dim); err != nil {
		return nil, err
	}
	return &Flat{dim: dim}, nil
}

func (*Flat) Kind() index.Kind { return index.KindFlat }

func (f *Flat) Dimension() int { return f.dim }

func (f *Flat) Len() int { return len(f.vectors) / f.dim }

// Trained always reports true; a flat index needs no fitting.
func (*Flat) Trained() bool { return true }

// Add appends v to the arena. O(1) amortized.
func (f *Flat) Add(v []float32) (core.SlotID, error) {
	if err := index.ValidateVector(v, f.dim); err != nil {
		return 0, err
	}
	if !distance.IsFinite(v) {
		return 0, index.ErrNonFiniteVector
	}
	n := f.Len()
	if uint64(n) >= uint64(core.MaxSlotID) {
		return 0, index.ErrCapacityExceeded
	}
	f.vectors = append(f.vectors, v...)
	return core.SlotID(n), nil
}

// Vector returns the stored vector for slot. The returned slice aliases the arena.
func (f *Flat) Vector(slot core.SlotID) ([]float32, bool) {
	i := int(slot)
	if i >= f.Len() {
		return nil, false
	}
	return f.vectors[i*f.dim : (i+1)*f.dim : (i+1)*f.dim], true
}

// Search performs a full scan and returns the k nearest entries.
func (f *Flat) Search(q []float32, k int) ([]index.Result, error) {
	if err := index.ValidateK(k); err != nil {
		return nil, err
	}
	if err := index.ValidateVector(q, f.dim); err != nil {
		return nil, err
	}

	n := f.Len()
	if n == 0 {
		return nil, nil
	}

	top := queue.NewTopK(k)
	for i := 0; i < n; i++ {
		d := distance.SquaredL2(q, f.vectors[i*f.dim:(i+1)*f.dim])
		top.Push(queue.Item{Slot: core.SlotID(i), Distance: d})
	}

	items := top.Sorted()
	results := make([]index.Result, len(items))
	for i, it := range items {
		results[i] = index.Result{Slot: it.Slot, Distance: it.Distance}
	}
	return results, nil
}
