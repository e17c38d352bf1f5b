package distance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSquaredL2(t *testing.T) {
	cases := map[string]struct {
		a, b []float32
		want float32
	}{
		"empty":      {nil, nil, 0},
		"identical":  {[]float32{0.5, -2, 7}, []float32{0.5, -2, 7}, 0},
		"tail only":  {[]float32{1, 2, 3}, []float32{4, 6, 3}, 25},
		"one block":  {[]float32{0, 0, 0, 0}, []float32{1, 2, 2, 4}, 25},
		"block+tail": {[]float32{1, 1, 1, 1, 1, 1}, []float32{0, 0, 0, 0, 0, 3}, 9},
		"symmetric":  {[]float32{-1, 1}, []float32{1, -1}, 8},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.InDelta(t, tc.want, SquaredL2(tc.a, tc.b), 1e-5)
			assert.InDelta(t, tc.want, SquaredL2(tc.b, tc.a), 1e-5)
		})
	}
}

func TestSquaredL2_LongerB(t *testing.T) {
	assert.InDelta(t, 1, SquaredL2([]float32{1}, []float32{0, 99}), 1e-6)
}

func TestDot(t *testing.T) {
	assert.InDelta(t, 32, Dot([]float32{1, 2, 3}, []float32{4, 5, 6}), 1e-5)
	assert.InDelta(t, 10, Dot([]float32{1, 1, 1, 1, 1}, []float32{2, 2, 2, 2, 2}), 1e-5)
	assert.InDelta(t, -4, Dot([]float32{1, -1, 2}, []float32{1, 1, -2}), 1e-5)
	assert.Zero(t, Dot(nil, nil))
}

func TestNormalizeL2InPlace(t *testing.T) {
	v := []float32{3, 4}
	assert.True(t, NormalizeL2InPlace(v))
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
	assert.InDelta(t, 1, Norm(v), 1e-6)

	zero := []float32{0, 0}
	assert.False(t, NormalizeL2InPlace(zero))
	assert.Equal(t, []float32{0, 0}, zero)
	assert.False(t, NormalizeL2InPlace(nil))
}

func TestIsFinite(t *testing.T) {
	assert.True(t, IsFinite([]float32{1, -2, 3e30}))
	assert.True(t, IsFinite(nil))
	assert.False(t, IsFinite([]float32{1, float32(math.NaN())}))
	assert.False(t, IsFinite([]float32{float32(math.Inf(1))}))
	assert.False(t, IsFinite([]float32{float32(math.Inf(-1)), 0}))
}
