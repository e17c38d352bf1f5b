package distance

import "math"

// SquaredL2 returns the squared Euclidean distance between a and b, the
// score every index structure ranks by. b must be at least as long as a.
func SquaredL2(a, b []float32) float32 {
	b = b[:len(a)]

	var acc [4]float32
	for len(a) >= 4 {
		d0, d1, d2, d3 := a[0]-b[0], a[1]-b[1], a[2]-b[2], a[3]-b[3]
		acc[0] += d0 * d0
		acc[1] += d1 * d1
		acc[2] += d2 * d2
		acc[3] += d3 * d3
		a, b = a[4:], b[4:]
	}
	for i, x := range a {
		d := x - b[i]
		acc[0] += d * d
	}
	return (acc[0] + acc[1]) + (acc[2] + acc[3])
}

// Dot returns the inner product of a and b. b must be at least as long as a.
func Dot(a, b []float32) float32 {
	b = b[:len(a)]

	var acc [4]float32
	for len(a) >= 4 {
		acc[0] += a[0] * b[0]
		acc[1] += a[1] * b[1]
		acc[2] += a[2] * b[2]
		acc[3] += a[3] * b[3]
		a, b = a[4:], b[4:]
	}
	for i, x := range a {
		acc[0] += x * b[i]
	}
	return (acc[0] + acc[1]) + (acc[2] + acc[3])
}

// Norm returns the Euclidean length of v.
func Norm(v []float32) float32 {
	return float32(math.Sqrt(float64(Dot(v, v))))
}

// NormalizeL2InPlace scales v to unit length. It reports false and leaves v
// untouched when v is empty or all zeros.
func NormalizeL2InPlace(v []float32) bool {
	n := Norm(v)
	if n == 0 {
		return false
	}
	inv := 1 / n
	for i := range v {
		v[i] *= inv
	}
	return true
}

// IsFinite reports whether v holds neither NaN nor an infinity.
func IsFinite(v []float32) bool {
	for _, x := range v {
		// NaN and ±Inf both turn x-x into NaN.
		if x-x != 0 {
			return false
		}
	}
	return true
}
