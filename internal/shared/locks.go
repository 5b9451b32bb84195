package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLocked indicates another writer currently holds the document lock.
var ErrLocked = errors.New("document locked by another operation")

// DocumentLockKey builds redis keys for per-document critical sections.
func DocumentLockKey(entity, id string) string {
	return fmt.Sprintf("doc:%s:%s:lock", entity, id)
}

// DocumentLock serializes writers of one document across processes. It
// complements the per-row revision CAS: the CAS makes a lost race fail,
// the lock makes racing writers queue-or-retry instead of burning a
// revision.
type DocumentLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDocumentLock constructs the lock. A zero ttl defaults to 10s; the
// TTL bounds how long a crashed holder can block other writers.
func NewDocumentLock(client *redis.Client, ttl time.Duration) *DocumentLock {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &DocumentLock{client: client, ttl: ttl}
}

// Acquire takes the lock for one document and returns its release
// function. A held lock yields ErrLocked.
func (l *DocumentLock) Acquire(ctx context.Context, entity, id string) (func(), error) {
	if l == nil || l.client == nil {
		return nil, errors.New("document lock not initialised")
	}
	key := DocumentLockKey(entity, id)
	ok, err := l.client.SetNX(ctx, key, "1", l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", ErrLocked, entity, id)
	}
	release := func() {
		l.client.Del(context.WithoutCancel(ctx), key)
	}
	return release, nil
}
