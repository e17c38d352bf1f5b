// Package redisjobs stores batch jobs in Redis so several processes can share
// job progress.
package redisjobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/hupe1980/facevault/batch"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces job keys.
const DefaultPrefix = "facevault:job:"

const maxRetries = 100

// Options configures a Store.
type Options struct {
	Prefix string

	// TTL expires job keys; zero keeps them forever.
	TTL time.Duration
}

// Store is a batch.JobStore backed by Redis. Jobs are JSON values updated
// with optimistic WATCH/MULTI transactions.
type Store struct {
	client redis.UniversalClient
	opts   Options
}

var _ batch.JobStore = (*Store)(nil)

// New creates a store over client.
func New(client redis.UniversalClient, optFns ...func(o *Options)) *Store {
	opts := Options{Prefix: DefaultPrefix}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Store{client: client, opts: opts}
}

// NewFromURL parses a redis:// URL and creates a store that owns the client.
func NewFromURL(url string, optFns ...func(o *Options)) (*Store, error) {
	ro, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redisjobs: %w", err)
	}
	return New(redis.NewClient(ro), optFns...), nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(id string) string {
	return s.opts.Prefix + id
}

// Create implements batch.JobStore.
func (s *Store) Create(ctx context.Context, job batch.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(job.ID), data, s.opts.TTL).Err(); err != nil {
		return fmt.Errorf("redisjobs: create %s: %w", job.ID, err)
	}
	return nil
}

// Get implements batch.JobStore.
func (s *Store) Get(ctx context.Context, id string) (batch.Job, error) {
	return s.get(ctx, s.client, id)
}

func (s *Store) get(ctx context.Context, c redis.Cmdable, id string) (batch.Job, error) {
	data, err := c.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return batch.Job{}, batch.ErrJobNotFound
	}
	if err != nil {
		return batch.Job{}, fmt.Errorf("redisjobs: get %s: %w", id, err)
	}

	var job batch.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return batch.Job{}, fmt.Errorf("redisjobs: decode %s: %w", id, err)
	}
	return job, nil
}

// Update implements batch.JobStore.
func (s *Store) Update(ctx context.Context, id string, fn func(*batch.Job) error) (batch.Job, error) {
	key := s.key(id)

	var updated batch.Job
	txf := func(tx *redis.Tx) error {
		job, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(&job); err != nil {
			return err
		}
		data, err := json.Marshal(job)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.opts.TTL)
			return nil
		})
		if err == nil {
			updated = job
		}
		return err
	}

	for range maxRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return batch.Job{}, err
		}
		return updated, nil
	}
	return batch.Job{}, fmt.Errorf("redisjobs: update %s: too much contention", id)
}
