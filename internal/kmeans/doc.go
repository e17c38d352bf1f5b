// Package kmeans trains the coarse centroids of the inverted-file index.
package kmeans
