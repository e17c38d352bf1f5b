package engine

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hupe1980/facevault/codec"
	"github.com/hupe1980/facevault/core"
	"github.com/hupe1980/facevault/index"
	"github.com/hupe1980/facevault/index/ivf"
	"github.com/hupe1980/facevault/logging"
	"github.com/hupe1980/facevault/persistence"
	"github.com/hupe1980/facevault/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func populated(t *testing.T, kind index.Kind, n int, opts ...Option) (*Index, [][]float32) {
	t.Helper()
	ctx := context.Background()

	opts = append(opts, WithIVFOptions(func(o *ivf.Options) { o.Lists = 4 }))
	x, err := New(8, kind, opts...)
	require.NoError(t, err)

	rng := testutil.NewRNG(42)
	vecs := rng.ClusteredVectors(n, 8, 4, 0.2)
	require.NoError(t, x.Train(ctx, vecs))
	for i, v := range vecs {
		_, err := x.Insert(ctx, v, rec(fmt.Sprint(i)))
		require.NoError(t, err)
	}
	return x, vecs
}

func TestSnapshot_RoundTrip(t *testing.T) {
	ctx := context.Background()

	kinds := []index.Kind{index.KindFlat, index.KindIVF, index.KindGraph}
	compressions := []persistence.Compression{persistence.CompressionNone, persistence.CompressionLZ4, persistence.CompressionZstd}

	for _, kind := range kinds {
		for _, c := range compressions {
			t.Run(kind.String()+"/"+c.String(), func(t *testing.T) {
				dir := t.TempDir()
				x, vecs := populated(t, kind, 60, WithCompression(c))
				x.Deactivate("3")

				require.NoError(t, x.SaveTo(ctx, dir))

				y, err := Load(dir)
				require.NoError(t, err)
				assert.Equal(t, x.Size(), y.Size())
				assert.Equal(t, kind, y.Kind())
				assert.Equal(t, 8, y.Dimension())
				assert.Equal(t, dir, y.Home())
				assert.True(t, y.IsInactive(3))

				for slot := 0; slot < x.Size(); slot++ {
					a, _ := x.MetadataFor(core.SlotID(slot))
					b, ok := y.MetadataFor(core.SlotID(slot))
					require.True(t, ok)
					assert.Equal(t, a.IdentityKey, b.IdentityKey)
					assert.True(t, a.IngestedAt.Equal(b.IngestedAt))
				}

				for _, q := range [][]float32{vecs[7], vecs[31]} {
					want, err := x.Search(ctx, q, 5)
					require.NoError(t, err)
					got, err := y.Search(ctx, q, 5)
					require.NoError(t, err)
					assert.Equal(t, want, got)
				}
			})
		}
	}
}

func TestSnapshot_JSONCodecReadable(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	x, _ := populated(t, index.KindFlat, 5, WithCodec(codec.JSON))
	require.NoError(t, x.SaveTo(ctx, dir))

	y, err := Load(dir, WithCodec(codec.GoJSON))
	require.NoError(t, err)
	assert.Equal(t, 5, y.Size())
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.ErrorIs(t, err, ErrNoSnapshot)

	t.Run("OnlyMetadata", func(t *testing.T) {
		dir := t.TempDir()
		x, _ := populated(t, index.KindFlat, 3)
		require.NoError(t, x.SaveTo(context.Background(), dir))
		require.NoError(t, os.Remove(filepath.Join(dir, IndexFile)))

		_, err := Load(dir)
		assert.ErrorIs(t, err, ErrNoSnapshot)
	})
}

func TestLoad_Corrupt(t *testing.T) {
	ctx := context.Background()

	t.Run("Garbage", func(t *testing.T) {
		dir := t.TempDir()
		x, _ := populated(t, index.KindFlat, 3)
		require.NoError(t, x.SaveTo(ctx, dir))
		require.NoError(t, os.WriteFile(filepath.Join(dir, MetadataFile), []byte("not a snapshot"), 0644))

		_, err := Load(dir)
		assert.ErrorIs(t, err, ErrCorruptSnapshot)
	})

	t.Run("FlippedIndexByte", func(t *testing.T) {
		dir := t.TempDir()
		x, _ := populated(t, index.KindFlat, 3)
		require.NoError(t, x.SaveTo(ctx, dir))

		path := filepath.Join(dir, IndexFile)
		b, err := os.ReadFile(path)
		require.NoError(t, err)
		b[len(b)-1] ^= 0xff
		require.NoError(t, os.WriteFile(path, b, 0644))

		_, err = Load(dir)
		assert.ErrorIs(t, err, ErrCorruptSnapshot)
	})

	t.Run("TornPair", func(t *testing.T) {
		a, b := t.TempDir(), t.TempDir()
		x, _ := populated(t, index.KindFlat, 3)
		require.NoError(t, x.SaveTo(ctx, a))
		_, _ = x.Insert(ctx, make([]float32, 8), rec("late"))
		require.NoError(t, x.SaveTo(ctx, b))

		newer, err := os.ReadFile(filepath.Join(b, IndexFile))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(a, IndexFile), newer, 0644))

		_, err = Load(a)
		assert.ErrorIs(t, err, ErrCorruptSnapshot)
	})
}

func TestPersist(t *testing.T) {
	ctx := context.Background()

	x, _ := New(2, index.KindFlat)
	assert.ErrorIs(t, x.Persist(ctx), ErrNoHome)

	dir := t.TempDir()
	y, _ := New(2, index.KindFlat, WithHome(dir))
	_, _ = y.Insert(ctx, []float32{1, 2}, rec("a"))
	require.NoError(t, y.Persist(ctx))

	z, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, z.Size())
}

func TestPersist_ConcurrentWithInserts(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	x, err := New(4, index.KindFlat, WithHome(dir))
	require.NoError(t, err)

	const writers = 16
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			rng := testutil.NewRNG(int64(w))
			for i := 0; i < 4; i++ {
				_, err := x.Insert(ctx, rng.UniformVector(4), rec(fmt.Sprintf("%d-%d", w, i)))
				assert.NoError(t, err)
				assert.NoError(t, x.Persist(ctx))
			}
		}(w)
	}
	wg.Wait()

	y, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, writers*4, y.Size())
	for slot := 0; slot < y.Size(); slot++ {
		a, _ := x.MetadataFor(core.SlotID(slot))
		b, ok := y.MetadataFor(core.SlotID(slot))
		require.True(t, ok)
		assert.Equal(t, a.IdentityKey, b.IdentityKey)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("Fresh", func(t *testing.T) {
		dir := t.TempDir()
		x, loaded, err := Open(dir, 8, index.KindFlat)
		require.NoError(t, err)
		assert.False(t, loaded)
		assert.Equal(t, 0, x.Size())
		assert.Equal(t, dir, x.Home())
	})

	t.Run("Existing", func(t *testing.T) {
		dir := t.TempDir()
		x, _ := populated(t, index.KindFlat, 4)
		require.NoError(t, x.SaveTo(ctx, dir))

		y, loaded, err := Open(dir, 8, index.KindFlat)
		require.NoError(t, err)
		assert.True(t, loaded)
		assert.Equal(t, 4, y.Size())
	})

	t.Run("CorruptFallsBackToEmpty", func(t *testing.T) {
		dir := t.TempDir()
		x, _ := populated(t, index.KindFlat, 4)
		require.NoError(t, x.SaveTo(ctx, dir))
		require.NoError(t, os.WriteFile(filepath.Join(dir, IndexFile), []byte("junk"), 0644))

		var buf bytes.Buffer
		logger := logging.NewTextLogger(&buf, slog.LevelInfo)

		y, loaded, err := Open(dir, 8, index.KindFlat, WithLogger(logger))
		require.NoError(t, err)
		assert.False(t, loaded)
		assert.Equal(t, 0, y.Size())
		assert.Contains(t, buf.String(), "rebuild recommended")
		assert.Contains(t, buf.String(), "level=WARN")
	})

	t.Run("ConfigurationMismatch", func(t *testing.T) {
		dir := t.TempDir()
		x, _ := populated(t, index.KindFlat, 4)
		require.NoError(t, x.SaveTo(ctx, dir))

		_, _, err := Open(dir, 16, index.KindFlat)
		assert.ErrorIs(t, err, ErrSnapshotMismatch)
	})

	t.Run("InvalidDimension", func(t *testing.T) {
		_, _, err := Open(t.TempDir(), 0, index.KindFlat)
		var ide *index.ErrInvalidDimension
		assert.ErrorAs(t, err, &ide)
	})
}
