package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// CounterStore implements cache.CounterStore on Redis. Each (key, bucket)
// pair is one Redis key holding an integer; INCR makes the mutation atomic
// across instances and the per-key TTL is the bucket sweep.
type CounterStore struct {
	client *redis.Client
	prefix string
}

// NewCounterStore creates a Redis-backed counter store. prefix namespaces
// the keys so the store can share a Redis database.
func NewCounterStore(client *redis.Client, prefix string) *CounterStore {
	return &CounterStore{client: client, prefix: prefix}
}

func (s *CounterStore) bucketKey(key string, bucket time.Time) string {
	return fmt.Sprintf("%s:ctr:%s:%d", s.prefix, key, bucket.Unix())
}

// Increment implements cache.CounterStore.Increment. INCR and EXPIRE run in
// one pipeline; EXPIRE NX only arms the TTL when the bucket is new, so later
// increments do not extend a bucket's lifetime.
func (s *CounterStore) Increment(ctx context.Context, key string, bucket time.Time, ttl time.Duration) (int64, error) {
	k := s.bucketKey(key, bucket)

	pipe := s.client.Pipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to increment counter bucket: %w", err)
	}
	return incr.Val(), nil
}

// Counts implements cache.CounterStore.Counts using a single MGET over the
// bucket range.
func (s *CounterStore) Counts(ctx context.Context, key string, from, to time.Time, step time.Duration) ([]int64, error) {
	var keys []string
	for t := from; !t.After(to); t = t.Add(step) {
		keys = append(keys, s.bucketKey(key, t))
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read counter buckets: %w", err)
	}

	counts := make([]int64, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		str, ok := v.(string)
		if !ok {
			continue
		}
		n, parseErr := strconv.ParseInt(str, 10, 64)
		if parseErr != nil {
			continue
		}
		counts[i] = n
	}
	return counts, nil
}
