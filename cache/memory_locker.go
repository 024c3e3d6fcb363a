package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
)

// MemoryLocker implements Locker using ttlcache. Single instance only; the
// lock TTL guarantees expiry even if the holder never releases.
type MemoryLocker struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, string]
}

// NewMemoryLocker creates an in-memory locker.
func NewMemoryLocker() *MemoryLocker {
	cache := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go cache.Start()

	return &MemoryLocker{cache: cache}
}

// TryAcquire implements Locker.TryAcquire.
func (l *MemoryLocker) TryAcquire(_ context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if item := l.cache.Get(key); item != nil {
		return nil, false, nil
	}

	token := uuid.NewString()
	l.cache.Set(key, token, ttl)
	return &memoryLease{locker: l, key: key, token: token}, true, nil
}

// Stop halts the background expiry goroutine.
func (l *MemoryLocker) Stop() {
	l.cache.Stop()
}

type memoryLease struct {
	locker *MemoryLocker
	key    string
	token  string
}

// Release drops the lock, but only if this lease still holds it. A lease
// that expired and was re-acquired by someone else is left alone.
func (le *memoryLease) Release(_ context.Context) error {
	le.locker.mu.Lock()
	defer le.locker.mu.Unlock()

	if item := le.locker.cache.Get(le.key); item != nil && item.Value() == le.token {
		le.locker.cache.Delete(le.key)
	}
	return nil
}
