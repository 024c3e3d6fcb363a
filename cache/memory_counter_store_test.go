package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCounterStore_IncrementAccumulates(t *testing.T) {
	s := NewMemoryCounterStore()
	defer s.Stop()
	ctx := context.Background()

	bucket := time.Now().Truncate(time.Second)

	n, err := s.Increment(ctx, "k", bucket, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.Increment(ctx, "k", bucket, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// A different bucket for the same key starts fresh.
	n, err = s.Increment(ctx, "k", bucket.Add(time.Second), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemoryCounterStore_CountsRange(t *testing.T) {
	s := NewMemoryCounterStore()
	defer s.Stop()
	ctx := context.Background()

	base := time.Now().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		_, err := s.Increment(ctx, "k", base, time.Minute)
		require.NoError(t, err)
	}
	_, err := s.Increment(ctx, "k", base.Add(2*time.Second), time.Minute)
	require.NoError(t, err)

	counts, err := s.Counts(ctx, "k", base, base.Add(2*time.Second), time.Second)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 0, 1}, counts)
}

func TestMemoryCounterStore_BucketsExpire(t *testing.T) {
	s := NewMemoryCounterStore()
	defer s.Stop()
	ctx := context.Background()

	bucket := time.Now().Truncate(time.Second)
	_, err := s.Increment(ctx, "k", bucket, 30*time.Millisecond)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		counts, countErr := s.Counts(ctx, "k", bucket, bucket, time.Second)
		return countErr == nil && counts[0] == 0
	}, time.Second, 10*time.Millisecond)
}
