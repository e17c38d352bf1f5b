// Package index defines the search-structure contract shared by every structure kind.
//
// facevault supports three structure kinds:
//
//   - Flat: exact nearest neighbours by full scan (default)
//   - IVF: inverted file over k-means centroids, must be trained before use
//   - Graph: HNSW navigable small-world graph for large populations
//
// # Kind Selection
//
//   - Flat: small to medium populations, 100% recall required
//   - IVF: large populations, recall governed by the number of probed lists
//   - Graph: large populations, recall governed by the search beam width
//
// All kinds rank by squared Euclidean distance and break ties by the lower
// slot id, so results are deterministic for exact structures.
//
// # Subpackages
//
//   - flat: append-only exact scan
//   - ivf: inverted file with coarse k-means quantizer
//   - graph: HNSW graph backed by github.com/coder/hnsw
package index
