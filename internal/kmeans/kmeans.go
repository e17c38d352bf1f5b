package kmeans

import (
	"cmp"
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/hupe1980/facevault/distance"
)

// ErrNoSamples is returned when training is attempted without any vectors.
var ErrNoSamples = errors.New("kmeans: no training samples")

// Train learns k centroids from the flattened vectors with Lloyd's algorithm
// after k-means++ seeding. It returns min(k, n) flattened centroids.
//
// All randomness comes from seed, so equal inputs give equal centroids.
func Train(ctx context.Context, vectors []float32, dim, k, maxIter int, seed int64) ([]float32, error) {
	if dim <= 0 {
		return nil, errors.New("kmeans: dimension must be positive")
	}
	n := len(vectors) / dim
	if n == 0 {
		return nil, ErrNoSamples
	}
	k = max(1, min(k, n))

	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>1|1))
	row := func(i int) []float32 { return vectors[i*dim : (i+1)*dim] }

	centroids := seedPlusPlus(rng, n, k, dim, row)

	assign := make([]int, n)
	for i := range assign {
		assign[i] = -1
	}
	counts := make([]int, k)
	sums := make([]float32, k*dim)

	for range maxIter {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		moved := false
		for i := range n {
			if c := Assign(row(i), centroids, dim); c != assign[i] {
				assign[i] = c
				moved = true
			}
		}
		if !moved {
			break
		}

		clear(sums)
		clear(counts)
		for i := range n {
			c := assign[i]
			counts[c]++
			for d, x := range row(i) {
				sums[c*dim+d] += x
			}
		}

		for c := range k {
			dst := centroids[c*dim : (c+1)*dim]
			if counts[c] == 0 {
				// An empty cluster restarts at a random sample.
				copy(dst, row(rng.IntN(n)))
				continue
			}
			inv := 1 / float32(counts[c])
			for d := range dst {
				dst[d] = sums[c*dim+d] * inv
			}
		}
	}

	return centroids, nil
}

// seedPlusPlus picks k initial centroids, each next one drawn with
// probability proportional to its squared distance from the nearest centroid
// chosen so far.
func seedPlusPlus(rng *rand.Rand, n, k, dim int, row func(int) []float32) []float32 {
	centroids := make([]float32, 0, k*dim)
	centroids = append(centroids, row(rng.IntN(n))...)

	nearest := make([]float64, n)
	for i := range n {
		nearest[i] = float64(distance.SquaredL2(row(i), centroids[:dim]))
	}

	for c := 1; c < k; c++ {
		var total float64
		for _, d := range nearest {
			total += d
		}

		pick := rng.IntN(n)
		if total > 0 {
			target := rng.Float64() * total
			for i, d := range nearest {
				if target -= d; target <= 0 {
					pick = i
					break
				}
			}
		}

		next := row(pick)
		centroids = append(centroids, next...)
		for i := range n {
			nearest[i] = math.Min(nearest[i], float64(distance.SquaredL2(row(i), next)))
		}
	}
	return centroids
}

// Assign returns the index of the centroid nearest to vec.
func Assign(vec, centroids []float32, dim int) int {
	k := len(centroids) / dim
	if k == 0 {
		return -1
	}
	// Centroid 0 wins when every distance overflows to +Inf.
	best, bestDist := 0, distance.SquaredL2(vec, centroids[:dim])
	for c := 1; c < k; c++ {
		if d := distance.SquaredL2(vec, centroids[c*dim:(c+1)*dim]); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// Closest returns the indices of the n centroids nearest to query, nearest
// first, ties broken by the lower index.
func Closest(query, centroids []float32, dim, n int) []int {
	k := len(centroids) / dim
	n = min(n, k)
	if n <= 0 {
		return nil
	}

	type ranked struct {
		id   int
		dist float32
	}
	all := make([]ranked, k)
	for c := range k {
		all[c] = ranked{id: c, dist: distance.SquaredL2(query, centroids[c*dim:(c+1)*dim])}
	}
	slices.SortFunc(all, func(a, b ranked) int {
		return cmp.Or(cmp.Compare(a.dist, b.dist), cmp.Compare(a.id, b.id))
	})

	ids := make([]int, n)
	for i := range ids {
		ids[i] = all[i].id
	}
	return ids
}
