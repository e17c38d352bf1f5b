package facevault_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/facevault"
	"github.com/hupe1980/facevault/batch"
	"github.com/hupe1980/facevault/blobstore"
	"github.com/hupe1980/facevault/engine"
	"github.com/hupe1980/facevault/extractor"
	"github.com/hupe1980/facevault/ingest"
	"github.com/hupe1980/facevault/metadata"
	"github.com/hupe1980/facevault/persistence"
	"github.com/hupe1980/facevault/rebuild"
	"github.com/hupe1980/facevault/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dim = 8

func hashExtractor() extractor.Extractor {
	return extractor.Func(func(_ context.Context, image []byte) ([]float32, error) {
		if string(image) == "blank" {
			return nil, nil
		}
		return testutil.HashEmbedding(image, dim), nil
	})
}

// artifactName builds a well-formed name whose identity key is i+1.
func artifactName(i int) string {
	return fmt.Sprintf("001%011d%011dPERSON_%d.jpg", i, i+1, i)
}

func artifact(i int) ingest.Artifact {
	return ingest.Artifact{Name: artifactName(i), Data: []byte(fmt.Sprintf("face-%d", i))}
}

func open(t *testing.T, home string, opts ...facevault.Option) *facevault.Engine {
	t.Helper()
	opts = append([]facevault.Option{
		facevault.WithDimension(dim),
		facevault.WithCompression(persistence.CompressionNone),
		facevault.WithClock(func() time.Time { return time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC) }),
	}, opts...)
	e, err := facevault.Open(context.Background(), home, hashExtractor(), opts...)
	require.NoError(t, err)
	return e
}

func TestEngine_IngestAndMatch(t *testing.T) {
	ctx := context.Background()
	e := open(t, t.TempDir())
	defer e.Close()

	for i := 1; i <= 3; i++ {
		out, err := e.Ingest(ctx, artifact(i))
		require.NoError(t, err)
		require.True(t, out.Accepted, out.Reason)
		assert.Equal(t, uint32(i-1), uint32(out.Slot))
	}
	assert.Equal(t, 3, e.Size())

	matches, err := e.MatchImage(ctx, []byte("face-2"), 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, 1, matches[0].Rank)
	assert.Equal(t, uint32(1), uint32(matches[0].Slot))
	assert.Equal(t, "3", matches[0].Record.IdentityKey)
	assert.InDelta(t, 0, matches[0].Distance, 1e-5)
	assert.Equal(t, float32(1), matches[0].Similarity)
}

func TestEngine_Rejections(t *testing.T) {
	ctx := context.Background()
	e := open(t, t.TempDir())
	defer e.Close()

	out, err := e.Ingest(ctx, ingest.Artifact{Name: "foo.jpg", Data: []byte("x")})
	require.NoError(t, err)
	assert.False(t, out.Accepted)
	assert.Equal(t, ingest.ReasonMalformedName, out.Reason)

	out, err = e.Ingest(ctx, ingest.Artifact{Name: artifactName(1), Data: []byte("blank")})
	require.NoError(t, err)
	assert.False(t, out.Accepted)
	assert.Equal(t, ingest.ReasonNoEmbedding, out.Reason)

	assert.Equal(t, 0, e.Size())
}

func TestEngine_ReopenLoadsSnapshot(t *testing.T) {
	ctx := context.Background()
	home := t.TempDir()

	e := open(t, home)
	for i := 1; i <= 3; i++ {
		_, err := e.Ingest(ctx, artifact(i))
		require.NoError(t, err)
	}
	require.NoError(t, e.Close())

	e = open(t, home)
	defer e.Close()
	assert.Equal(t, 3, e.Size())

	rec, ok := e.Index().MetadataFor(2)
	require.True(t, ok)
	assert.Equal(t, "4", rec.IdentityKey)
}

func TestEngine_Locked(t *testing.T) {
	home := t.TempDir()
	e := open(t, home)
	defer e.Close()

	_, err := facevault.Open(context.Background(), home, hashExtractor(), facevault.WithDimension(dim))
	assert.ErrorIs(t, err, facevault.ErrLocked)
}

func TestEngine_Closed(t *testing.T) {
	ctx := context.Background()
	e := open(t, t.TempDir())
	_, err := e.Ingest(ctx, artifact(1))
	require.NoError(t, err)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, err = e.Ingest(ctx, artifact(2))
	assert.ErrorIs(t, err, facevault.ErrClosed)

	_, err = e.Match(ctx, make([]float32, dim), 1)
	assert.ErrorIs(t, err, facevault.ErrClosed)

	_, err = e.Deactivate(ctx, "2")
	assert.ErrorIs(t, err, facevault.ErrClosed)

	_, err = e.Declare(ctx, 1)
	assert.ErrorIs(t, err, facevault.ErrClosed)

	assert.ErrorIs(t, e.Train(ctx, nil), facevault.ErrClosed)

	t.Run("ReadOnlyViewsKeepFinalState", func(t *testing.T) {
		assert.Equal(t, 1, e.Size())
		assert.Equal(t, 1, e.Stats().Size)
		assert.Equal(t, 1, e.Index().Size())
		assert.NotEmpty(t, e.Home())
	})
}

func TestEngine_ConcurrentIngestSnapshot(t *testing.T) {
	ctx := context.Background()
	home := t.TempDir()
	e := open(t, home)
	defer e.Close()

	const n = 32
	var wg sync.WaitGroup
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := e.Ingest(ctx, artifact(i))
			assert.NoError(t, err)
			assert.True(t, out.Accepted, out.Reason)
		}(i)
	}
	wg.Wait()

	// The snapshot on disk must hold every ingest before Close runs.
	loaded, err := engine.Load(home)
	require.NoError(t, err)
	assert.Equal(t, n, loaded.Size())
	assert.Equal(t, n, e.Size())
}

func TestEngine_NoExtractor(t *testing.T) {
	ctx := context.Background()
	e, err := facevault.Open(ctx, t.TempDir(), nil, facevault.WithDimension(dim))
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Ingest(ctx, artifact(1))
	assert.ErrorIs(t, err, facevault.ErrNoExtractor)

	_, err = e.MatchImage(ctx, []byte("face"), 1)
	assert.ErrorIs(t, err, facevault.ErrNoExtractor)

	matches, err := e.Match(ctx, make([]float32, dim), 1)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestEngine_DimensionMismatch(t *testing.T) {
	e := open(t, t.TempDir())
	defer e.Close()

	_, err := e.Match(context.Background(), []float32{1, 2, 3}, 1)
	var dm *facevault.ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, dim, dm.Expected)
	assert.Equal(t, 3, dm.Actual)
}

func TestEngine_RunBatch(t *testing.T) {
	ctx := context.Background()
	mc := &facevault.BasicMetricsCollector{}
	e := open(t, t.TempDir(), facevault.WithMetricsCollector(mc))
	defer e.Close()

	artifacts := make([]ingest.Artifact, 20)
	for i := range artifacts {
		artifacts[i] = artifact(i + 1)
	}

	rep, err := e.RunBatch(ctx, artifacts, 4)
	require.NoError(t, err)
	assert.Equal(t, 20, rep.Accepted)
	assert.Equal(t, 20, e.Size())

	stats := mc.GetStats()
	assert.Equal(t, int64(1), stats.BatchCount)
	assert.Equal(t, int64(20), stats.BatchItems)
}

func TestEngine_Jobs(t *testing.T) {
	ctx := context.Background()
	e := open(t, t.TempDir())
	defer e.Close()

	job, err := e.Declare(ctx, 2)
	require.NoError(t, err)

	_, job, err = e.RunJob(ctx, job.ID, []ingest.Artifact{artifact(1), artifact(2)}, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, job.Processed)
	assert.True(t, job.Status.Terminal())

	got, err := e.Job(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.Status, got.Status)

	_, err = e.Job(ctx, "missing")
	assert.ErrorIs(t, err, facevault.ErrJobNotFound)
}

func TestEngine_Deactivate(t *testing.T) {
	ctx := context.Background()
	e := open(t, t.TempDir())
	defer e.Close()

	for i := 1; i <= 2; i++ {
		_, err := e.Ingest(ctx, artifact(i))
		require.NoError(t, err)
	}

	n, err := e.Deactivate(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	matches, err := e.MatchImage(ctx, []byte("face-1"), 2)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "3", matches[0].Record.IdentityKey)
	assert.Equal(t, 1, e.Stats().Inactive)
}

func TestEngine_Rebuild(t *testing.T) {
	ctx := context.Background()
	mc := &facevault.BasicMetricsCollector{}
	e := open(t, t.TempDir(), facevault.WithMetricsCollector(mc))
	defer e.Close()

	// Stale content that the rebuild must replace.
	_, err := e.Ingest(ctx, artifact(99))
	require.NoError(t, err)

	dir := t.TempDir()
	var records []rebuild.Record
	for i := 1; i <= 4; i++ {
		p := filepath.Join(dir, fmt.Sprintf("%d.jpg", i))
		require.NoError(t, os.WriteFile(p, []byte(fmt.Sprintf("face-%d", i)), 0o600))
		records = append(records, rebuild.Record{
			Record:          metadata.Record{IdentityKey: fmt.Sprint(i), ArtifactPath: p},
			HasDetectedFace: true,
		})
	}
	records = append(records, rebuild.Record{Record: metadata.Record{IdentityKey: "no-face"}})
	src := rebuild.NewSliceSource(records...)

	res, err := e.Rebuild(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Succeeded)
	assert.Equal(t, 4, e.Size())

	slot, ok := src.Slot("3")
	require.True(t, ok)
	require.NotNil(t, slot)
	assert.Equal(t, uint32(2), uint32(*slot))

	slot, ok = src.Slot("no-face")
	require.True(t, ok)
	assert.Nil(t, slot)

	assert.Equal(t, int64(4), mc.GetStats().RebuildIndexed)
}

func TestEngine_TrainImages(t *testing.T) {
	ctx := context.Background()
	e := open(t, t.TempDir())
	defer e.Close()

	n, err := e.TrainImages(ctx, []ingest.Artifact{artifact(1), artifact(2), {Name: "x", Data: []byte("blank")}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, e.Stats().Trained)
}

func TestEngine_BackupAndRestore(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	e := open(t, t.TempDir(), facevault.WithBackups(store, 3))
	for i := 1; i <= 2; i++ {
		_, err := e.Ingest(ctx, artifact(i))
		require.NoError(t, err)
	}
	name, err := e.Backup(ctx)
	require.NoError(t, err)
	assert.Equal(t, "backup_20240309_140507", name)
	require.NoError(t, e.Close())

	restored := open(t, t.TempDir(), facevault.WithBackups(store, 3), facevault.WithRestoreOnOpen())
	defer restored.Close()
	assert.Equal(t, 2, restored.Size())
	assert.Equal(t, name, restored.Stats().Restored)
}

func TestEngine_RestoreWithoutBackup(t *testing.T) {
	e := open(t, t.TempDir(), facevault.WithBackups(blobstore.NewMemoryStore(), 0), facevault.WithRestoreOnOpen())
	defer e.Close()

	assert.Equal(t, 0, e.Size())
	assert.Empty(t, e.Stats().Restored)
}

func TestEngine_BackupWithoutStore(t *testing.T) {
	e := open(t, t.TempDir())
	defer e.Close()

	_, err := e.Backup(context.Background())
	assert.ErrorIs(t, err, facevault.ErrNoBackupStore)
}

func TestEngine_Watch(t *testing.T) {
	dir := t.TempDir()
	e := open(t, t.TempDir())
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- e.Watch(ctx, dir, func(o *batch.WatchOptions) { o.Debounce = 50 * time.Millisecond })
	}()

	require.Eventually(t, func() bool {
		_ = os.WriteFile(filepath.Join(dir, artifactName(1)), []byte("face-1"), 0o600)
		return e.Size() == 1
	}, 5*time.Second, 100*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
