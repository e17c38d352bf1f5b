package redisjobs

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/facevault/batch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("FACEVAULT_REDIS_TEST") != "1" {
		t.Skip("skipping Redis integration test; set FACEVAULT_REDIS_TEST=1 to run")
	}

	url := os.Getenv("FACEVAULT_REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/0"
	}

	s, err := NewFromURL(url, func(o *Options) {
		o.Prefix = "facevault-test:" + uuid.NewString() + ":"
		o.TTL = time.Minute
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, batch.ErrJobNotFound)

	job := batch.Job{ID: uuid.NewString(), Total: 10, Status: batch.StatusPending, CreatedAt: time.Now().UTC()}
	require.NoError(t, s.Create(ctx, job))

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, job.ID, func(j *batch.Job) error {
				j.Processed++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Processed)
	assert.Equal(t, job.Total, got.Total)
}

func TestNewFromURL_Invalid(t *testing.T) {
	_, err := NewFromURL("://bad")
	assert.Error(t, err)
}
