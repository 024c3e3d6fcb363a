package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/loclio/identity-recovery/cache"
)

// BucketGranularity is the width of one counter bucket.
const BucketGranularity = time.Second

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed      bool
	CurrentCount int64
	// RetryAfter is how long until the oldest in-window bucket falls out of
	// the window. Only meaningful when Allowed is false.
	RetryAfter time.Duration
}

// Limiter is a bucketed sliding-window rate limiter over a CounterStore.
type Limiter struct {
	counters cache.CounterStore
	now      func() time.Time
}

// NewLimiter creates a Limiter backed by the given counter store.
func NewLimiter(counters cache.CounterStore) *Limiter {
	return &Limiter{counters: counters, now: time.Now}
}

// CheckAndIncrement atomically increments the current bucket for key, then
// sums every bucket inside the sliding window. The call itself counts: the
// decision reflects traffic including this request.
//
// Bucket lifetime is twice the window, so stale buckets are garbage-collected
// by the store without a separate sweeper.
func (l *Limiter) CheckAndIncrement(ctx context.Context, key string, limit int64, window time.Duration) (Decision, error) {
	now := l.now()
	bucket := now.Truncate(BucketGranularity)

	if _, err := l.counters.Increment(ctx, key, bucket, 2*window); err != nil {
		return Decision{}, err
	}

	// The window spans (now-window, now]: the bucket exactly one window old
	// has already fallen out.
	from := bucket.Add(-window + BucketGranularity)
	counts, err := l.counters.Counts(ctx, key, from, bucket, BucketGranularity)
	if err != nil {
		return Decision{}, err
	}

	var sum int64
	oldest := -1
	for i, n := range counts {
		if n == 0 {
			continue
		}
		sum += n
		if oldest < 0 {
			oldest = i
		}
	}

	d := Decision{Allowed: sum <= limit, CurrentCount: sum}
	if !d.Allowed && oldest >= 0 {
		oldestBucket := from.Add(time.Duration(oldest) * BucketGranularity)
		d.RetryAfter = oldestBucket.Add(window).Sub(now)
		if d.RetryAfter < BucketGranularity {
			d.RetryAfter = BucketGranularity
		}
	}
	return d, nil
}

// Tier is one admission ceiling.
type Tier struct {
	Name   string
	Limit  int64
	Window time.Duration
}

// TierGate applies the three independent admission tiers: a global ceiling,
// a per-network-origin ceiling, and a per-email ceiling. The first tier that
// trips denies the request.
type TierGate struct {
	limiter   *Limiter
	global    Tier
	perSource Tier
	perEmail  Tier
}

// NewTierGate creates a TierGate.
func NewTierGate(limiter *Limiter, global, perSource, perEmail Tier) *TierGate {
	return &TierGate{limiter: limiter, global: global, perSource: perSource, perEmail: perEmail}
}

// Allow runs the three tiers in order. It returns the denying decision and
// tier name on rejection, or an allowed decision when all tiers pass.
func (g *TierGate) Allow(ctx context.Context, sourceKey, emailKey string) (Decision, string, error) {
	checks := []struct {
		tier Tier
		key  string
	}{
		{g.global, "global"},
		{g.perSource, "src:" + keyHash(sourceKey)},
		{g.perEmail, "email:" + keyHash(emailKey)},
	}

	for _, c := range checks {
		d, err := g.limiter.CheckAndIncrement(ctx, c.key, c.tier.Limit, c.tier.Window)
		if err != nil {
			return Decision{}, c.tier.Name, err
		}
		if !d.Allowed {
			return d, c.tier.Name, nil
		}
	}
	return Decision{Allowed: true}, "", nil
}

// keyHash keeps raw origin addresses and emails out of store keys.
func keyHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}
