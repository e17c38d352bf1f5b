//go:build unix

package persistence

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned when another process holds the directory lock.
var ErrLocked = errors.New("persistence: directory is locked by another process")

// LockFileName is the advisory lock file created inside a snapshot directory.
const LockFileName = ".lock"

// DirLock is an exclusive advisory lock on a directory.
type DirLock struct {
	f *os.File
}

// LockDir takes a non-blocking exclusive flock on dir/.lock.
func LockDir(dir string) (*DirLock, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("persistence: failed to create directory %s: %w", dir, err)
	}

	f, err := os.OpenFile(filepath.Join(dir, LockFileName), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("persistence: flock: %w", err)
	}

	return &DirLock{f: f}, nil
}

// Unlock releases the lock. Safe to call on a nil lock.
func (l *DirLock) Unlock() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	cerr := l.f.Close()
	l.f = nil
	if err != nil {
		return err
	}
	return cerr
}
