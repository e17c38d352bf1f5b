package graph

import (
	"bytes"
	"testing"

	"github.com/hupe1980/facevault/core"
	"github.com/hupe1980/facevault/index"
	"github.com/hupe1980/facevault/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraph_Add(t *testing.T) {
	g, err := New(4)
	require.NoError(t, err)
	assert.True(t, g.Trained())

	for i := 0; i < 10; i++ {
		id, err := g.Add([]float32{float32(i), 0, 0, 0})
		require.NoError(t, err)
		assert.Equal(t, core.SlotID(i), id)
	}
	assert.Equal(t, 10, g.Len())

	_, err = g.Add([]float32{1})
	assert.IsType(t, &index.ErrDimensionMismatch{}, err)
	assert.Equal(t, 10, g.Len())
}

func TestGraph_Search(t *testing.T) {
	g, _ := New(4)
	_, _ = g.Add([]float32{0, 0, 0, 0})
	_, _ = g.Add([]float32{1, 0, 0, 0})
	_, _ = g.Add([]float32{10, 10, 10, 10})

	res, err := g.Search([]float32{0, 0, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, index.Result{Slot: 0, Distance: 0}, res[0])
	assert.Equal(t, index.Result{Slot: 1, Distance: 1}, res[1])

	t.Run("Empty", func(t *testing.T) {
		e, _ := New(4)
		res, err := e.Search([]float32{0, 0, 0, 0}, 1)
		require.NoError(t, err)
		assert.Empty(t, res)
	})

	t.Run("InvalidK", func(t *testing.T) {
		_, err := g.Search([]float32{0, 0, 0, 0}, -1)
		assert.ErrorIs(t, err, index.ErrInvalidK)
	})
}

func TestGraph_Recall(t *testing.T) {
	rng := testutil.NewRNG(21)
	data := rng.UniformVectors(1000, 16)
	queries := rng.UniformVectors(20, 16)

	recall := func(t *testing.T, g *Graph) float64 {
		t.Helper()
		var total float64
		for _, q := range queries {
			want := testutil.ExactTopK(q, data, 10)
			res, err := g.Search(q, 10)
			require.NoError(t, err)

			got := make([]testutil.SearchResult, len(res))
			for j, r := range res {
				got[j] = testutil.SearchResult{Slot: r.Slot, Distance: r.Distance}
			}
			total += testutil.ComputeRecall(want, got)
		}
		return total / float64(len(queries))
	}

	build := func(t *testing.T, optFns ...func(o *Options)) *Graph {
		t.Helper()
		g, err := New(16, optFns...)
		require.NoError(t, err)
		for _, v := range data {
			_, err := g.Add(v)
			require.NoError(t, err)
		}
		return g
	}

	t.Run("Defaults", func(t *testing.T) {
		g := build(t)
		assert.InDelta(t, 1.0, recall(t, g), 0.001)
	})

	t.Run("GraphWalk", func(t *testing.T) {
		g := build(t, func(o *Options) {
			o.ExactThreshold = -1
			o.EfSearch = 1000
		})
		assert.Greater(t, recall(t, g), 0.9)
	})
}

func TestGraph_Seed(t *testing.T) {
	a, err := New(4, func(o *Options) { o.Seed = 42 })
	require.NoError(t, err)
	b, err := New(4, func(o *Options) { o.Seed = 42 })
	require.NoError(t, err)
	c, err := New(4)
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		assert.Equal(t, a.g.Rng.Float64(), b.g.Rng.Float64())
	}
	assert.Equal(t, int64(DefaultSeed), c.opts.Seed)
	assert.Equal(t, DefaultExactThreshold, c.opts.ExactThreshold)
}

func TestGraph_BinaryRoundTrip(t *testing.T) {
	rng := testutil.NewRNG(23)
	g, _ := New(8)
	for _, v := range rng.UniformVectors(50, 8) {
		_, err := g.Add(v)
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	n, err := g.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	loaded, err := index.LoadBinaryIndex(&buf)
	require.NoError(t, err)
	assert.Equal(t, index.KindGraph, loaded.Kind())
	assert.Equal(t, 50, loaded.Len())

	id, err := loaded.Add(rng.UniformVector(8))
	require.NoError(t, err)
	assert.Equal(t, core.SlotID(50), id)
}
