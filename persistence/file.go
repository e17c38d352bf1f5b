package persistence

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// SaveToFile is a helper to save data to a file.
func SaveToFile(filename string, writeFunc func(io.Writer) error) error {
	dir := filepath.Dir(filename)
	base := filepath.Base(filename)

	// Write to a temp file in the same directory to ensure rename is atomic.
	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	_ = tmp.Chmod(0644)

	buf := bufio.NewWriterSize(tmp, 256*1024)
	if err := writeFunc(buf); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpName, filename); err != nil {
		return err
	}

	syncDir(dir)

	// Success: prevent deferred cleanup from removing the final file.
	tmpName = ""
	return nil
}

// LoadFromFile is a helper to load data from a file.
func LoadFromFile(filename string, readFunc func(io.Reader) error) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := bufio.NewReaderSize(f, 256*1024)
	return readFunc(buf)
}

// File names one member of a multi-file snapshot.
type File struct {
	Name  string
	Write func(io.Writer) error
}

// AtomicSaveToDir saves multiple files to a directory.
// All files are written to temp files first and only renamed once every write
// succeeded, in the order given. A crash between renames can leave a mixed
// pair; callers detect that with a cross-file checksum.
func AtomicSaveToDir(dir string, files []File) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("persistence: failed to create directory %s: %w", dir, err)
	}

	tempFiles := make([]string, 0, len(files))
	defer func() {
		for _, tmp := range tempFiles {
			_ = os.Remove(tmp)
		}
	}()

	type fileMapping struct {
		temp   string
		target string
	}
	mappings := make([]fileMapping, 0, len(files))

	for _, file := range files {
		target := filepath.Join(dir, file.Name)

		tmp, err := os.CreateTemp(dir, file.Name+".tmp-*")
		if err != nil {
			return fmt.Errorf("persistence: failed to create temp file for %s: %w", file.Name, err)
		}
		tempFiles = append(tempFiles, tmp.Name())

		buf := bufio.NewWriterSize(tmp, 256*1024)
		if err := file.Write(buf); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("persistence: failed to write %s: %w", file.Name, err)
		}
		if err := buf.Flush(); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("persistence: failed to write %s: %w", file.Name, err)
		}
		if err := tmp.Sync(); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("persistence: failed to sync %s: %w", file.Name, err)
		}
		if err := tmp.Close(); err != nil {
			return fmt.Errorf("persistence: failed to close %s: %w", file.Name, err)
		}

		mappings = append(mappings, fileMapping{temp: tmp.Name(), target: target})
	}

	for _, m := range mappings {
		if err := os.Rename(m.temp, m.target); err != nil {
			return fmt.Errorf("persistence: failed to rename %s: %w", m.target, err)
		}
	}

	tempFiles = nil
	syncDir(dir)
	return nil
}

// syncDir fsyncs a directory so renames are durable on POSIX. Best-effort.
func syncDir(dir string) {
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
}
