package testutil

import (
	"testing"

	"github.com/hupe1980/facevault/core"
	"github.com/hupe1980/facevault/distance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRNG_Vectors(t *testing.T) {
	rng := NewRNG(4711)

	t.Run("Uniform", func(t *testing.T) {
		vecs := rng.UniformVectors(8, 32)
		require.Len(t, vecs, 8)
		for _, v := range vecs {
			require.Len(t, v, 32)
			for _, x := range v {
				assert.True(t, x >= 0 && x < 1)
			}
		}
	})

	t.Run("Unit", func(t *testing.T) {
		for _, v := range rng.UnitVectors(8, 32) {
			assert.InDelta(t, 1, distance.Norm(v), 1e-5)
		}
	})

	t.Run("Clustered", func(t *testing.T) {
		vecs := rng.ClusteredVectors(100, 32, 5, 0.001)
		require.Len(t, vecs, 100)
		// Members of one cluster sit far closer to each other than to others.
		assert.Less(t, distance.SquaredL2(vecs[0], vecs[5]), distance.SquaredL2(vecs[0], vecs[1]))
	})
}

func TestRNG_Reset(t *testing.T) {
	rng := NewRNG(4711)
	first := rng.UniformVectors(1, 10)

	rng.Reset()
	assert.Equal(t, first, rng.UniformVectors(1, 10))
	assert.Equal(t, int64(4711), rng.Seed())
	assert.Equal(t, first, NewRNG(4711).UniformVectors(1, 10))
}

func TestGallery(t *testing.T) {
	rng := NewRNG(7)

	g := rng.Gallery(4, 3, 16, 0.01)

	require.Len(t, g.Vectors, 12)
	assert.Equal(t, []int{0, 0, 0, 1, 1, 1, 2, 2, 2, 3, 3, 3}, g.Identity)

	// Shots of one identity sit closer together than shots of two identities.
	same := distance.SquaredL2(g.Vectors[0], g.Vectors[1])
	other := distance.SquaredL2(g.Vectors[0], g.Vectors[3])
	assert.Less(t, same, other)
}

func TestHashEmbedding(t *testing.T) {
	a := HashEmbedding([]byte("alpha"), 16)
	b := HashEmbedding([]byte("alpha"), 16)
	c := HashEmbedding([]byte("beta"), 16)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}

func TestExactTopK(t *testing.T) {
	data := [][]float32{{3}, {1}, {1}, {0}}

	res := ExactTopK([]float32{0}, data, 3)

	assert.Equal(t, []SearchResult{
		{Slot: 3, Distance: 0},
		{Slot: 1, Distance: 1},
		{Slot: 2, Distance: 1},
	}, res)
}

func TestComputeRecall(t *testing.T) {
	truth := []SearchResult{{Slot: 1}, {Slot: 2}, {Slot: 3}, {Slot: 4}}
	approx := []SearchResult{{Slot: 1}, {Slot: 3}, {Slot: core.SlotID(9)}, {Slot: 4}}

	assert.InDelta(t, 0.75, ComputeRecall(truth, approx), 1e-9)
	assert.Equal(t, 1.0, ComputeRecall(nil, nil))
	assert.Equal(t, 0.0, ComputeRecall(truth, nil))
}
