// Package distance holds the float32 kernels shared by the index
// structures, the k-means trainer and the test helpers.
//
// Scores are squared Euclidean distances throughout: smaller is closer, and
// the match thresholds are expressed on the same scale.
package distance
