// Package testutil generates deterministic vectors and face galleries for
// tests across facevault, together with brute-force ground truth.
//
//	rng := testutil.NewRNG(42)
//	g := rng.Gallery(10, 3, 64, 0.05) // 10 people, 3 shots each
//	truth := testutil.ExactTopK(query, g.Vectors, 5)
//
// HashEmbedding derives a stable embedding from image bytes; it stands in
// for a real extractor in pipeline tests.
package testutil
