package testutil

import (
	"cmp"
	"encoding/binary"
	"hash/fnv"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/hupe1980/facevault/core"
	"github.com/hupe1980/facevault/distance"
)

// SearchResult is a ground-truth hit.
type SearchResult struct {
	Slot     core.SlotID
	Distance float32
}

// RNG is a seeded, goroutine-safe source of test vectors.
type RNG struct {
	mu   sync.Mutex
	seed int64
	rand *rand.Rand
}

// NewRNG returns an RNG; equal seeds produce equal sequences.
func NewRNG(seed int64) *RNG {
	r := &RNG{seed: seed}
	r.rand = newRand(seed)
	return r
}

func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
}

// Reset rewinds the RNG to its seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	r.rand = newRand(r.seed)
	r.mu.Unlock()
}

// Seed returns the seed the RNG was created with.
func (r *RNG) Seed() int64 { return r.seed }

// Intn returns a value in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.IntN(n)
}

// UniformVector returns a vector with components in [0,1).
func (r *RNG) UniformVector(dim int) []float32 {
	return r.UniformVectors(1, dim)[0]
}

// UniformVectors returns num vectors with components in [0,1), sharing one
// backing array.
func (r *RNG) UniformVectors(num, dim int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return fill(num, dim, func(int, int) float32 { return r.rand.Float32() })
}

// UnitVector returns an L2-normalized vector.
func (r *RNG) UnitVector(dim int) []float32 {
	return r.UnitVectors(1, dim)[0]
}

// UnitVectors returns num L2-normalized vectors.
func (r *RNG) UnitVectors(num, dim int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	vecs := fill(num, dim, func(int, int) float32 { return float32(r.rand.NormFloat64()) })
	for _, v := range vecs {
		distance.NormalizeL2InPlace(v)
	}
	return vecs
}

// ClusteredVectors returns num vectors spread around clusters random unit
// centroids; vector i belongs to cluster i%clusters.
func (r *RNG) ClusteredVectors(num, dim, clusters int, spread float32) [][]float32 {
	centroids := r.UnitVectors(clusters, dim)

	r.mu.Lock()
	defer r.mu.Unlock()

	return fill(num, dim, func(i, j int) float32 {
		return centroids[i%clusters][j] + float32(r.rand.NormFloat64())*spread
	})
}

// Gallery is a synthetic set of face embeddings: several shots per identity,
// each shot a small perturbation of the identity's centre.
type Gallery struct {
	Vectors [][]float32
	// Identity[i] is the identity index of Vectors[i].
	Identity []int
}

// Gallery generates identities*shots embeddings ordered identity by identity.
func (r *RNG) Gallery(identities, shots, dim int, spread float32) Gallery {
	vecs := r.ClusteredVectors(identities*shots, dim, identities, spread)

	// ClusteredVectors interleaves clusters; regroup so shots are adjacent.
	g := Gallery{Vectors: make([][]float32, 0, len(vecs)), Identity: make([]int, 0, len(vecs))}
	for id := range identities {
		for s := range shots {
			g.Vectors = append(g.Vectors, vecs[s*identities+id])
			g.Identity = append(g.Identity, id)
		}
	}
	return g
}

func fill(num, dim int, gen func(i, j int) float32) [][]float32 {
	data := make([]float32, num*dim)
	vecs := make([][]float32, num)
	for i := range num {
		v := data[i*dim : (i+1)*dim : (i+1)*dim]
		for j := range v {
			v[j] = gen(i, j)
		}
		vecs[i] = v
	}
	return vecs
}

// HashEmbedding maps image bytes to a deterministic pseudo-embedding with
// components in [0,100). It stands in for a face model in pipeline tests:
// equal bytes give equal vectors.
func HashEmbedding(data []byte, dim int) []float32 {
	h := fnv.New64a()
	_, _ = h.Write(data)
	seed := binary.LittleEndian.Uint64(h.Sum(nil))

	rng := rand.New(rand.NewPCG(seed, ^seed))
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = rng.Float32() * 100
	}
	return vec
}

// ExactTopK returns the k nearest slots of dataset to query by squared L2,
// ties broken by lower slot.
func ExactTopK(query []float32, dataset [][]float32, k int) []SearchResult {
	results := make([]SearchResult, len(dataset))
	for i, v := range dataset {
		results[i] = SearchResult{Slot: core.SlotID(i), Distance: distance.SquaredL2(query, v)}
	}

	slices.SortFunc(results, func(a, b SearchResult) int {
		return cmp.Or(cmp.Compare(a.Distance, b.Distance), cmp.Compare(a.Slot, b.Slot))
	})
	return results[:min(k, len(results))]
}

// ComputeRecall returns the fraction of the top len(approximate) ground-truth
// slots present in approximate.
func ComputeRecall(groundTruth, approximate []SearchResult) float64 {
	switch {
	case len(groundTruth) == 0 && len(approximate) == 0:
		return 1
	case len(groundTruth) == 0 || len(approximate) == 0:
		return 0
	}

	k := min(len(approximate), len(groundTruth))
	truth := make(map[core.SlotID]struct{}, k)
	for _, r := range groundTruth[:k] {
		truth[r.Slot] = struct{}{}
	}

	hits := 0
	for _, r := range approximate {
		if _, ok := truth[r.Slot]; ok {
			hits++
		}
	}
	return float64(hits) / float64(k)
}
