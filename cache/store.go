package cache

import (
	"context"
	"time"
)

// CounterStore is a durable key/bucket counter supporting atomic
// increment-with-expiry. It is the leaf dependency of the rate limiter.
//
// Buckets are identified by their start instant truncated to the bucket
// granularity. Implementations must make Increment atomic across concurrent
// callers and across process boundaries.
type CounterStore interface {
	// Increment atomically adds one to the counter for (key, bucket) and
	// returns the new bucket count. The bucket is created on first use and
	// garbage-collected after ttl.
	Increment(ctx context.Context, key string, bucket time.Time, ttl time.Duration) (int64, error)

	// Counts returns the per-bucket counts for every bucket in
	// [from, to] inclusive, oldest first, one entry per bucket step.
	// Missing buckets read as zero.
	Counts(ctx context.Context, key string, from, to time.Time, step time.Duration) ([]int64, error)
}

// Lease is a held lock. Release is safe to call from a defer on every exit
// path; releasing an already-expired lease is a no-op.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker is the session-scoped mutual-exclusion primitive for the cleanup
// coordinator. Acquisition is non-blocking: contention reports ok=false
// immediately rather than queueing.
type Locker interface {
	// TryAcquire attempts to take the lock for key. ok is false when the
	// lock is already held elsewhere. The ttl bounds the hold time so a
	// crashed holder never wedges the key.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (lease Lease, ok bool, err error)
}
