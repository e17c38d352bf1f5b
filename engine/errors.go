package engine

import "errors"

var (
	// ErrNoSnapshot is returned by Load when either snapshot file is absent.
	// It means "no index yet", not corruption.
	ErrNoSnapshot = errors.New("engine: no snapshot")

	// ErrCorruptSnapshot is returned by Load when a snapshot exists but cannot
	// be decoded or its two files disagree.
	ErrCorruptSnapshot = errors.New("engine: corrupt snapshot")

	// ErrLengthMismatch is returned by InsertBatch when vectors and records differ in length.
	ErrLengthMismatch = errors.New("engine: vectors and records differ in length")

	// ErrNoHome is returned by Persist when the handle has no snapshot directory.
	ErrNoHome = errors.New("engine: no snapshot directory configured")

	// ErrSnapshotMismatch is returned by Open when a stored snapshot does not
	// match the configured dimension or structure kind.
	ErrSnapshotMismatch = errors.New("engine: snapshot does not match configuration")
)
