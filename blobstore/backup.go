package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/hupe1980/facevault/persistence"
)

// LatestPointer is the blob naming the newest backup.
const LatestPointer = "LATEST"

// backupLayout is the timestamp part of backup names.
const backupLayout = "20060102_150405"

// ErrNoBackup is returned by Restore when the store holds no backup.
var ErrNoBackup = errors.New("blobstore: no backup found")

// BackupName returns the backup name for t.
func BackupName(t time.Time) string {
	return "backup_" + t.UTC().Format(backupLayout)
}

// Backup copies files from dir into s under BackupName(now) and points
// LATEST at it. The files are uploaded in order; LATEST is written last so a
// partial upload is never visible as the newest backup.
func Backup(ctx context.Context, s BlobStore, dir string, files []string, now time.Time) (string, error) {
	name := BackupName(now)

	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			return "", fmt.Errorf("blobstore: backup %s: %w", f, err)
		}
		if err := s.Put(ctx, path.Join(name, f), data); err != nil {
			return "", fmt.Errorf("blobstore: upload %s: %w", f, err)
		}
	}

	if err := s.Put(ctx, LatestPointer, []byte(name)); err != nil {
		return "", fmt.Errorf("blobstore: update %s: %w", LatestPointer, err)
	}
	return name, nil
}

// Latest returns the name of the newest backup.
func Latest(ctx context.Context, s BlobStore) (string, error) {
	data, err := ReadAll(ctx, s, LatestPointer)
	if IsNotFound(err) {
		return "", ErrNoBackup
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Backups lists backup names, oldest first.
func Backups(ctx context.Context, s BlobStore) ([]string, error) {
	names, err := s.List(ctx, "backup_")
	if err != nil {
		return nil, err
	}

	var out []string
	for _, n := range names {
		if b, _, ok := strings.Cut(n, "/"); ok {
			out = append(out, b)
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// Restore downloads files of backup name (the latest when empty) into dir.
// Files are written atomically in the given order.
func Restore(ctx context.Context, s BlobStore, dir, name string, files []string) (string, error) {
	if name == "" {
		var err error
		if name, err = Latest(ctx, s); err != nil {
			return "", err
		}
	}

	out := make([]persistence.File, 0, len(files))
	for _, f := range files {
		data, err := ReadAll(ctx, s, path.Join(name, f))
		if IsNotFound(err) {
			return "", fmt.Errorf("%w: %s/%s", ErrNoBackup, name, f)
		}
		if err != nil {
			return "", fmt.Errorf("blobstore: download %s/%s: %w", name, f, err)
		}
		out = append(out, persistence.File{Name: f, Write: func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		}})
	}

	if err := persistence.AtomicSaveToDir(dir, out); err != nil {
		return "", err
	}
	return name, nil
}

// Prune deletes all but the newest keep backups and returns the removed names.
func Prune(ctx context.Context, s BlobStore, keep int) ([]string, error) {
	all, err := Backups(ctx, s)
	if err != nil {
		return nil, err
	}
	if keep < 1 {
		keep = 1
	}
	if len(all) <= keep {
		return nil, nil
	}

	victims := all[:len(all)-keep]
	for _, b := range victims {
		names, err := s.List(ctx, b+"/")
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			if err := s.Delete(ctx, n); err != nil {
				return nil, err
			}
		}
	}
	return victims, nil
}
