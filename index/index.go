package index

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hupe1980/facevault/core"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrEmptyVector is returned for zero-length vectors.
	ErrEmptyVector = errors.New("empty vector")

	// ErrNotTrained is returned when an approximate structure is used before it was trained.
	// It is a configuration error, not a transient failure.
	ErrNotTrained = errors.New("index not trained")

	// ErrNonFiniteVector is returned for vectors containing NaN or Inf components.
	ErrNonFiniteVector = errors.New("vector contains non-finite components")

	// ErrCapacityExceeded is returned when the slot id space is exhausted.
	ErrCapacityExceeded = errors.New("slot id space exhausted")
)

// ErrDimensionMismatch is a named error type for dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int // Expected dimensions
	Actual   int // Actual dimensions
}

// Error returns the error message for dimension mismatch.
func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrInvalidDimension indicates an invalid configured dimension.
type ErrInvalidDimension struct {
	Dimension int
}

func (e *ErrInvalidDimension) Error() string {
	return fmt.Sprintf("invalid dimension: %d", e.Dimension)
}

// Kind identifies a search structure implementation.
type Kind uint8

const (
	// KindFlat is the exact full-scan structure.
	KindFlat Kind = iota + 1
	// KindIVF is the inverted-file structure.
	KindIVF
	// KindGraph is the HNSW graph structure.
	KindGraph
)

// String returns the canonical name of the kind.
func (k Kind) String() string {
	switch k {
	case KindFlat:
		return "flat"
	case KindIVF:
		return "ivf"
	case KindGraph:
		return "graph"
	default:
		return "unknown"
	}
}

// Exact reports whether the kind always returns true nearest neighbours.
func (k Kind) Exact() bool { return k == KindFlat }

// ParseKind parses a kind name. The legacy names "L2", "IVF" and "HNSW" are accepted.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "flat", "l2", "exact":
		return KindFlat, nil
	case "ivf", "inverted-file":
		return KindIVF, nil
	case "graph", "hnsw":
		return KindGraph, nil
	default:
		return 0, fmt.Errorf("unknown index kind %q", s)
	}
}

// Result is a single (slot, distance) search hit.
type Result struct {
	// Slot is the slot id of the matched vector.
	Slot core.SlotID

	// Distance is the squared Euclidean distance between query and stored vector.
	Distance float32
}

// Index is a fixed-dimension, append-only nearest neighbour structure.
//
// Implementations are not safe for concurrent mutation; callers serialize
// Add and Train behind a single lock and may run Search concurrently with
// other searches.
type Index interface {
	// Kind returns the structure kind.
	Kind() Kind

	// Dimension returns the fixed vector dimension.
	Dimension() int

	// Len returns the number of stored vectors.
	Len() int

	// Add appends v and returns its slot id, which always equals the previous Len.
	Add(v []float32) (core.SlotID, error)

	// Search returns up to k nearest entries, ascending by distance with ties broken by lower slot.
	Search(q []float32, k int) ([]Result, error)

	// Trained reports whether the structure accepts inserts.
	Trained() bool

	// WriteTo serializes the structure including its binary header.
	WriteTo(w io.Writer) (int64, error)
}

// Trainer is implemented by structures that must be fitted before first insertion.
type Trainer interface {
	// Train fits the structure on samples. Training an empty structure is the
	// only supported case; training after inserts returns an error.
	Train(samples [][]float32) error
}

// ValidateDimension checks that a configured dimension is usable.
func ValidateDimension(dim int) error {
	if dim <= 0 {
		return &ErrInvalidDimension{Dimension: dim}
	}
	return nil
}

// ValidateVector checks v against the expected dimension.
func ValidateVector(v []float32, dim int) error {
	if len(v) == 0 {
		return ErrEmptyVector
	}
	if len(v) != dim {
		return &ErrDimensionMismatch{Expected: dim, Actual: len(v)}
	}
	return nil
}

// ValidateK checks that k is positive.
func ValidateK(k int) error {
	if k <= 0 {
		return ErrInvalidK
	}
	return nil
}
