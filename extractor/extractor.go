// Package extractor defines the boundary to the face-embedding model.
//
// An Extractor turns image bytes into an embedding. Returning (nil, nil)
// means the image carried no usable signal (no face detected); it is not an
// error. Adapters in this package add rate limiting and bounded concurrency
// around any Extractor.
package extractor

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Extractor produces an embedding for an image.
// Implementations must be safe for concurrent use.
type Extractor interface {
	Extract(ctx context.Context, image []byte) ([]float32, error)
}

// Func adapts a function to the Extractor interface.
type Func func(ctx context.Context, image []byte) ([]float32, error)

// Extract implements Extractor.
func (f Func) Extract(ctx context.Context, image []byte) ([]float32, error) {
	return f(ctx, image)
}

type limited struct {
	next    Extractor
	limiter *rate.Limiter
}

// Limit throttles next to r calls per second with the given burst.
// A non-positive r returns next unchanged.
func Limit(next Extractor, r float64, burst int) Extractor {
	if r <= 0 {
		return next
	}
	if burst <= 0 {
		burst = 1
	}
	return &limited{next: next, limiter: rate.NewLimiter(rate.Limit(r), burst)}
}

func (l *limited) Extract(ctx context.Context, image []byte) ([]float32, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.next.Extract(ctx, image)
}

type bounded struct {
	next Extractor
	sem  *semaphore.Weighted
}

// Bound caps the number of concurrent calls into next at n.
// A non-positive n returns next unchanged.
func Bound(next Extractor, n int) Extractor {
	if n <= 0 {
		return next
	}
	return &bounded{next: next, sem: semaphore.NewWeighted(int64(n))}
}

func (b *bounded) Extract(ctx context.Context, image []byte) ([]float32, error) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer b.sem.Release(1)
	return b.next.Extract(ctx, image)
}
