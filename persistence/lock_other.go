//go:build !unix

package persistence

import (
	"errors"
	"os"
)

// ErrLocked is returned when another process holds the directory lock.
var ErrLocked = errors.New("persistence: directory is locked by another process")

// LockFileName is the advisory lock file created inside a snapshot directory.
const LockFileName = ".lock"

// DirLock is a no-op on platforms without flock.
type DirLock struct{}

// LockDir only ensures dir exists.
func LockDir(dir string) (*DirLock, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &DirLock{}, nil
}

// Unlock is a no-op.
func (l *DirLock) Unlock() error { return nil }
