package minio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hupe1980/facevault/blobstore"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Key(t *testing.T) {
	assert.Equal(t, "facevault/backup_1/index.bin", NewStore(nil, "b", "facevault/").key("backup_1/index.bin"))
	assert.Equal(t, "LATEST", NewStore(nil, "b", "").key("LATEST"))
}

func TestNotFound(t *testing.T) {
	assert.True(t, notFound(minio.ErrorResponse{Code: "NoSuchKey"}))
	assert.True(t, notFound(minio.ErrorResponse{Code: "NotFound"}))
	assert.False(t, notFound(minio.ErrorResponse{Code: "AccessDenied"}))
	assert.False(t, notFound(errors.New("boom")))
}

// TestMinioStore_Integration needs a MinIO server on localhost:9000.
func TestMinioStore_Integration(t *testing.T) {
	if os.Getenv("FACEVAULT_MINIO_TEST") != "1" {
		t.Skip("skipping MinIO integration test; set FACEVAULT_MINIO_TEST=1 to run")
	}

	ctx := context.Background()
	store, err := Connect(ctx, Config{
		Endpoint:  "localhost:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "test-facevault",
		Prefix:    "test-" + time.Now().Format("20060102150405") + "/",
	})
	require.NoError(t, err)

	data := []byte("hello minio world")
	require.NoError(t, store.Put(ctx, "test.txt", data))

	blob, err := store.Open(ctx, "test.txt")
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), blob.Size())

	buf := make([]byte, len(data))
	n, err := blob.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, data, buf)
	require.NoError(t, blob.Close())

	part, err := blobstore.ReadAll(ctx, store, "test.txt")
	require.NoError(t, err)
	assert.Equal(t, data, part)

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, names, "test.txt")

	require.NoError(t, store.Delete(ctx, "test.txt"))
	_, err = store.Open(ctx, "test.txt")
	assert.True(t, blobstore.IsNotFound(err))

	t.Run("Backup", func(t *testing.T) {
		src := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(src, "index.bin"), []byte("idx"), 0644))

		name, err := blobstore.Backup(ctx, store, src, []string{"index.bin"}, time.Now())
		require.NoError(t, err)

		dst := t.TempDir()
		got, err := blobstore.Restore(ctx, store, dst, "", []string{"index.bin"})
		require.NoError(t, err)
		assert.Equal(t, name, got)

		restored, err := os.ReadFile(filepath.Join(dst, "index.bin"))
		require.NoError(t, err)
		assert.Equal(t, "idx", string(restored))
	})
}
