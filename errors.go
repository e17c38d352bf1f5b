package facevault

import (
	"errors"
	"fmt"

	"github.com/hupe1980/facevault/batch"
	"github.com/hupe1980/facevault/engine"
	"github.com/hupe1980/facevault/index"
	"github.com/hupe1980/facevault/ingest"
	"github.com/hupe1980/facevault/match"
	"github.com/hupe1980/facevault/persistence"
)

var (
	// ErrClosed is returned by every operation on a closed Engine.
	ErrClosed = errors.New("facevault: engine is closed")

	// ErrNoBackupStore is returned by Backup when no backup store is configured.
	ErrNoBackupStore = errors.New("facevault: no backup store configured")

	// ErrNoExtractor is returned by operations that need an extractor when
	// none was configured.
	ErrNoExtractor = match.ErrNoExtractor

	// Re-exported sentinels callers commonly match on.
	ErrInvalidK         = index.ErrInvalidK
	ErrNotTrained       = index.ErrNotTrained
	ErrNoSnapshot       = engine.ErrNoSnapshot
	ErrCorruptSnapshot  = engine.ErrCorruptSnapshot
	ErrSnapshotMismatch = engine.ErrSnapshotMismatch
	ErrLocked           = persistence.ErrLocked
	ErrMalformedName    = ingest.ErrMalformedName
	ErrJobNotFound      = batch.ErrJobNotFound
	ErrJobOverflow      = batch.ErrJobOverflow
	ErrNoEmbedding      = match.ErrNoEmbedding
)

// ErrDimensionMismatch is returned when an embedding or query does not have
// the index dimension. It unwraps to the index error.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("facevault: embedding has %d components, index expects %d", e.Actual, e.Expected)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// ErrInvalidDimension is returned by Open for a non-positive dimension.
type ErrInvalidDimension struct {
	Dimension int
	cause     error
}

func (e *ErrInvalidDimension) Error() string {
	return fmt.Sprintf("facevault: invalid dimension %d", e.Dimension)
}

func (e *ErrInvalidDimension) Unwrap() error { return e.cause }

// translateError lifts index errors into the facade's typed errors.
func translateError(err error) error {
	var dm *index.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}
	var id *index.ErrInvalidDimension
	if errors.As(err, &id) {
		return &ErrInvalidDimension{Dimension: id.Dimension, cause: err}
	}

	return err
}
