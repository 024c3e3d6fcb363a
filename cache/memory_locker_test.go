package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLocker_MutualExclusion(t *testing.T) {
	l := NewMemoryLocker()
	defer l.Stop()
	ctx := context.Background()

	lease, ok, err := l.TryAcquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryAcquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "a held lock must not be re-acquired")

	require.NoError(t, lease.Release(ctx))

	_, ok, err = l.TryAcquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "a released lock is available again")
}

func TestMemoryLocker_KeysAreIndependent(t *testing.T) {
	l := NewMemoryLocker()
	defer l.Stop()
	ctx := context.Background()

	_, ok, err := l.TryAcquire(ctx, "a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryAcquire(ctx, "b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLocker_ExpiredLeaseDoesNotReleaseNewHolder(t *testing.T) {
	l := NewMemoryLocker()
	defer l.Stop()
	ctx := context.Background()

	stale, ok, err := l.TryAcquire(ctx, "k", time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	// Let the first lease expire, then hand the lock to a second holder.
	require.Eventually(t, func() bool {
		_, reacquired, acqErr := l.TryAcquire(ctx, "k", time.Minute)
		return acqErr == nil && reacquired
	}, time.Second, 5*time.Millisecond)

	// Releasing the stale lease must not free the second holder's lock.
	require.NoError(t, stale.Release(ctx))

	_, ok, err = l.TryAcquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryLocker_LockExpiresByTTL(t *testing.T) {
	l := NewMemoryLocker()
	defer l.Stop()
	ctx := context.Background()

	_, ok, err := l.TryAcquire(ctx, "k", 20*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Eventually(t, func() bool {
		_, reacquired, acqErr := l.TryAcquire(ctx, "k", time.Minute)
		return acqErr == nil && reacquired
	}, time.Second, 10*time.Millisecond)
}
