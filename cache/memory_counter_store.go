package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryCounterStore implements CounterStore using ttlcache. Suitable for a
// single instance only (development, tests); multi-instance deployments need
// the Redis store so counters are shared.
type MemoryCounterStore struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, int64]
}

// NewMemoryCounterStore creates an in-memory counter store with automatic
// expiry of stale buckets.
func NewMemoryCounterStore() *MemoryCounterStore {
	cache := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, int64](),
	)

	// Start the background expiry process; this is the bucket sweep.
	go cache.Start()

	return &MemoryCounterStore{cache: cache}
}

func counterKey(key string, bucket time.Time) string {
	return fmt.Sprintf("%s|%d", key, bucket.Unix())
}

// Increment implements CounterStore.Increment. The mutex makes the
// read-modify-write atomic within the process.
func (s *MemoryCounterStore) Increment(_ context.Context, key string, bucket time.Time, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := counterKey(key, bucket)
	var n int64 = 1
	if item := s.cache.Get(k); item != nil {
		n = item.Value() + 1
	}
	s.cache.Set(k, n, ttl)
	return n, nil
}

// Counts implements CounterStore.Counts.
func (s *MemoryCounterStore) Counts(_ context.Context, key string, from, to time.Time, step time.Duration) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var counts []int64
	for t := from; !t.After(to); t = t.Add(step) {
		var n int64
		if item := s.cache.Get(counterKey(key, t)); item != nil {
			n = item.Value()
		}
		counts = append(counts, n)
	}
	return counts, nil
}

// Stop halts the background expiry goroutine.
func (s *MemoryCounterStore) Stop() {
	s.cache.Stop()
}
