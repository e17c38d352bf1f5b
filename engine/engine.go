package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/facevault/core"
	"github.com/hupe1980/facevault/index"
	"github.com/hupe1980/facevault/index/flat"
	"github.com/hupe1980/facevault/index/graph"
	"github.com/hupe1980/facevault/index/ivf"
	"github.com/hupe1980/facevault/metadata"
)

// contextTrainer is implemented by structures that support cancellable training.
type contextTrainer interface {
	TrainContext(ctx context.Context, samples [][]float32) error
}

// Index is the single-owner handle over a search structure and its metadata.
// It is safe for concurrent use.
type Index struct {
	mu sync.RWMutex
	// saveMu serializes snapshot writes so the newest encoding lands last.
	saveMu sync.Mutex

	dim  int
	kind index.Kind
	opts Options

	structure index.Index
	table     *metadata.Table
	inactive  *metadata.SlotSet
}

// InsertResult is the per-item outcome of InsertBatch.
type InsertResult struct {
	Slot core.SlotID
	Err  error
}

// Hit is an active search result with its record.
type Hit struct {
	index.Result
	Record metadata.Record
}

// Stats is a point-in-time summary of an Index.
type Stats struct {
	Size      int        `json:"size"`
	Dimension int        `json:"dimension"`
	Kind      index.Kind `json:"kind"`
	Trained   bool       `json:"trained"`
	Inactive  int        `json:"inactive"`
}

// New creates an empty index of the given dimension and structure kind.
func New(dim int, kind index.Kind, opts ...Option) (*Index, error) {
	o := applyOptions(opts)

	s, err := newStructure(kind, dim, o)
	if err != nil {
		return nil, err
	}

	return &Index{
		dim:       dim,
		kind:      kind,
		opts:      o,
		structure: s,
		table:     metadata.NewTable(0),
		inactive:  metadata.NewSlotSet(),
	}, nil
}

func newStructure(kind index.Kind, dim int, o Options) (index.Index, error) {
	switch kind {
	case index.KindFlat:
		return flat.New(dim)
	case index.KindIVF:
		return ivf.New(dim, o.IVF...)
	case index.KindGraph:
		return graph.New(dim, o.Graph...)
	default:
		return nil, fmt.Errorf("engine: unsupported structure kind %s", kind)
	}
}

// Dimension returns the fixed embedding dimension.
func (x *Index) Dimension() int { return x.dim }

// Kind returns the structure kind.
func (x *Index) Kind() index.Kind { return x.kind }

// Home returns the snapshot directory used by Persist, if any.
func (x *Index) Home() string { return x.opts.Home }

// Size returns the number of stored entries.
func (x *Index) Size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.structure.Len()
}

// Trained reports whether the structure accepts inserts.
func (x *Index) Trained() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.structure.Trained()
}

// Insert adds vec with its record and returns the assigned slot id.
// On error nothing is stored and no slot is consumed.
func (x *Index) Insert(_ context.Context, vec []float32, rec metadata.Record) (core.SlotID, error) {
	start := time.Now()

	slot, err := x.insert(vec, rec)

	failed := 0
	if err != nil {
		failed = 1
	}
	x.opts.Metrics.OnInsert(1, failed, time.Since(start))
	return slot, err
}

// InsertBatch inserts every pair under one acquisition of the write lock.
// Accepted items receive a contiguous slot range starting at the previous size.
func (x *Index) InsertBatch(_ context.Context, vecs [][]float32, recs []metadata.Record) []InsertResult {
	start := time.Now()
	results := make([]InsertResult, len(vecs))

	if len(vecs) != len(recs) {
		for i := range results {
			results[i].Err = ErrLengthMismatch
		}
		x.opts.Metrics.OnInsert(len(vecs), len(vecs), time.Since(start))
		return results
	}

	failed := x.insertAll(vecs, recs, results)

	x.opts.Metrics.OnInsert(len(vecs), failed, time.Since(start))
	return results
}

func (x *Index) insert(vec []float32, rec metadata.Record) (core.SlotID, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.insertLocked(vec, rec)
}

func (x *Index) insertAll(vecs [][]float32, recs []metadata.Record, results []InsertResult) int {
	x.mu.Lock()
	defer x.mu.Unlock()

	failed := 0
	for i := range vecs {
		results[i].Slot, results[i].Err = x.insertLocked(vecs[i], recs[i])
		if results[i].Err != nil {
			failed++
		}
	}
	return failed
}

func (x *Index) insertLocked(vec []float32, rec metadata.Record) (core.SlotID, error) {
	slot, err := x.structure.Add(vec)
	if err != nil {
		return 0, err
	}
	if err := x.table.Append(slot, rec); err != nil {
		return 0, fmt.Errorf("engine: structure and metadata out of step: %w", err)
	}
	return slot, nil
}

// Search returns up to k nearest entries ordered by ascending squared L2
// distance, ties broken by the lower slot id.
func (x *Index) Search(_ context.Context, q []float32, k int) ([]index.Result, error) {
	start := time.Now()

	res, err := x.search(q, k)

	x.opts.Metrics.OnSearch(k, len(res), time.Since(start), err)
	return res, err
}

// SearchActive returns up to k nearest entries that are not deactivated,
// together with their records. Search, filtering and record lookup observe
// one state of the index.
func (x *Index) SearchActive(_ context.Context, q []float32, k int) ([]Hit, error) {
	start := time.Now()

	hits, err := x.searchActive(q, k)

	x.opts.Metrics.OnSearch(k, len(hits), time.Since(start), err)
	return hits, err
}

func (x *Index) searchActive(q []float32, k int) ([]Hit, error) {
	if err := index.ValidateK(k); err != nil {
		return nil, err
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	res, err := x.structure.Search(q, k+x.inactive.Cardinality())
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, min(k, len(res)))
	for _, r := range res {
		if len(hits) == k {
			break
		}
		if x.inactive.Contains(r.Slot) {
			continue
		}
		rec, _ := x.table.Get(r.Slot)
		hits = append(hits, Hit{Result: r, Record: rec})
	}
	return hits, nil
}

func (x *Index) search(q []float32, k int) ([]index.Result, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.structure.Search(q, k)
}

// MetadataFor returns the record stored for slot.
func (x *Index) MetadataFor(slot core.SlotID) (metadata.Record, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.table.Get(slot)
}

// Train fits trainable structures on samples. It is a no-op for kinds that
// need no training.
func (x *Index) Train(ctx context.Context, samples [][]float32) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	switch t := x.structure.(type) {
	case contextTrainer:
		return t.TrainContext(ctx, samples)
	case index.Trainer:
		return t.Train(samples)
	default:
		return nil
	}
}

// Clear replaces the structure with an empty one of the same dimension and
// kind and drops all metadata. Slot numbering restarts at zero.
func (x *Index) Clear() error {
	s, err := newStructure(x.kind, x.dim, x.opts)
	if err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	x.structure = s
	x.table.Reset()
	x.inactive.Clear()
	return nil
}

// Deactivate marks every slot belonging to identityKey as inactive and
// returns how many slots were newly marked.
func (x *Index) Deactivate(identityKey string) int {
	x.mu.Lock()
	defer x.mu.Unlock()

	n := 0
	for _, slot := range x.table.SlotsFor(identityKey) {
		if !x.inactive.Contains(slot) {
			x.inactive.Add(slot)
			n++
		}
	}
	return n
}

// IsInactive reports whether slot was deactivated.
func (x *Index) IsInactive(slot core.SlotID) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.inactive.Contains(slot)
}

// InactiveCount returns the number of deactivated slots.
func (x *Index) InactiveCount() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.inactive.Cardinality()
}

// Stats returns a summary of the index.
func (x *Index) Stats() Stats {
	x.mu.RLock()
	defer x.mu.RUnlock()

	return Stats{
		Size:      x.structure.Len(),
		Dimension: x.dim,
		Kind:      x.kind,
		Trained:   x.structure.Trained(),
		Inactive:  x.inactive.Cardinality(),
	}
}
