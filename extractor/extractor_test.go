package extractor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFunc(t *testing.T) {
	e := Func(func(_ context.Context, image []byte) ([]float32, error) {
		if len(image) == 0 {
			return nil, nil
		}
		return []float32{float32(len(image))}, nil
	})

	v, err := e.Extract(context.Background(), []byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, []float32{3}, v)

	v, err = e.Extract(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestLimit(t *testing.T) {
	var calls atomic.Int32
	base := Func(func(context.Context, []byte) ([]float32, error) {
		calls.Add(1)
		return []float32{1}, nil
	})

	_, unchanged := Limit(base, 0, 0).(Func)
	assert.True(t, unchanged)

	l := Limit(base, 1, 1)
	_, err := l.Extract(context.Background(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Extract(ctx, nil)
	assert.Error(t, err, "second call exceeds the budget before the deadline")
	assert.Equal(t, int32(1), calls.Load())
}

func TestBound(t *testing.T) {
	var (
		inFlight atomic.Int32
		peak     atomic.Int32
	)
	base := Func(func(context.Context, []byte) ([]float32, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return []float32{1}, nil
	})

	b := Bound(base, 2)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.Extract(context.Background(), nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
}
