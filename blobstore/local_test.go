package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, store BlobStore) {
	ctx := context.Background()
	data := []byte("hello world, this is a test blob for facevault")

	_, err := store.Open(ctx, "missing")
	assert.True(t, IsNotFound(err))

	require.NoError(t, store.Put(ctx, "a/data-001.bin", data))
	require.NoError(t, store.Put(ctx, "a/data-002.bin", []byte("second")))
	require.NoError(t, store.Put(ctx, "b/other.bin", []byte("other")))

	blob, err := store.Open(ctx, "a/data-001.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), blob.Size())

	buf := make([]byte, 5)
	n, err := blob.ReadAt(ctx, buf, 6)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "world", string(buf))

	r, err := blob.ReadRange(ctx, 0, 5)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "hello", string(got))
	require.NoError(t, blob.Close())

	all, err := ReadAll(ctx, store, "a/data-001.bin")
	require.NoError(t, err)
	assert.Equal(t, data, all)

	names, err := store.List(ctx, "a/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/data-001.bin", "a/data-002.bin"}, names)

	require.NoError(t, store.Put(ctx, "a/data-002.bin", []byte("replaced")))
	all, err = ReadAll(ctx, store, "a/data-002.bin")
	require.NoError(t, err)
	assert.Equal(t, "replaced", string(all))

	require.NoError(t, store.Delete(ctx, "a/data-001.bin"))
	require.NoError(t, store.Delete(ctx, "a/data-001.bin"))
	names, err = store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/data-002.bin", "b/other.bin"}, names)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	testStore(t, store)
	assert.Equal(t, 2, store.Len())

	t.Run("PutCopies", func(t *testing.T) {
		ctx := context.Background()
		data := []byte("abc")
		require.NoError(t, store.Put(ctx, "copy", data))
		data[0] = 'x'

		got, err := ReadAll(ctx, store, "copy")
		require.NoError(t, err)
		assert.Equal(t, "abc", string(got))
	})
}

func TestLocalStore(t *testing.T) {
	root := t.TempDir()
	testStore(t, NewLocalStore(root))

	_, err := os.Stat(filepath.Join(root, "b", "other.bin"))
	assert.NoError(t, err)

	t.Run("MissingRoot", func(t *testing.T) {
		names, err := NewLocalStore(filepath.Join(root, "nope")).List(context.Background(), "")
		require.NoError(t, err)
		assert.Empty(t, names)
	})
}

func TestBackupRestore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	files := []string{"index.bin", "metadata.bin"}

	_, err := Restore(ctx, store, t.TempDir(), "", files)
	assert.ErrorIs(t, err, ErrNoBackup)

	src := t.TempDir()
	write := func(content string) {
		for _, f := range files {
			require.NoError(t, os.WriteFile(filepath.Join(src, f), []byte(content+f), 0644))
		}
	}

	t0 := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	write("v1-")
	first, err := Backup(ctx, store, src, files, t0)
	require.NoError(t, err)
	assert.Equal(t, "backup_20240309_140507", first)

	write("v2-")
	second, err := Backup(ctx, store, src, files, t0.Add(time.Hour))
	require.NoError(t, err)

	latest, err := Latest(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, second, latest)

	list, err := Backups(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, []string{first, second}, list)

	dst := t.TempDir()
	name, err := Restore(ctx, store, dst, "", files)
	require.NoError(t, err)
	assert.Equal(t, second, name)
	got, err := os.ReadFile(filepath.Join(dst, "index.bin"))
	require.NoError(t, err)
	assert.Equal(t, "v2-index.bin", string(got))

	_, err = Restore(ctx, store, dst, first, files)
	require.NoError(t, err)
	got, err = os.ReadFile(filepath.Join(dst, "metadata.bin"))
	require.NoError(t, err)
	assert.Equal(t, "v1-metadata.bin", string(got))

	_, err = Backup(ctx, store, src, []string{"absent.bin"}, t0)
	assert.Error(t, err)

	removed, err := Prune(ctx, store, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{first}, removed)

	list, err = Backups(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, []string{second}, list)
}
