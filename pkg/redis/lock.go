package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another process holds the lock
var ErrLockHeld = errors.New("lock held by another process")

// releaseScript deletes the key only when the caller still owns it
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// Locker hands out cross-process locks backed by SET NX PX
// ⭐ SSOT: 분산 락은 여기서만
type Locker struct {
	client *Client
	prefix string
}

// NewLocker creates a locker whose keys live under prefix:lock:
func NewLocker(client *Client, prefix string) *Locker {
	return &Locker{client: client, prefix: prefix}
}

// Lock is a held lock. Release is safe to call more than once.
type Lock struct {
	locker *Locker
	key    string
	token  string
}

// Key returns the full Redis key
func (l *Lock) Key() string {
	return l.key
}

// Acquire takes the lock for ttl or returns ErrLockHeld.
// With Redis disabled a no-op lock is returned.
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lock, error) {
	lock := &Lock{
		locker: l,
		key:    fmt.Sprintf("%s:lock:%s", l.prefix, name),
		token:  uuid.NewString(),
	}
	if !l.client.Enabled() {
		return lock, nil
	}

	ok, err := l.client.Redis().SetNX(ctx, lock.key, lock.token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", lock.key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return lock, nil
}

// Release frees the lock if this holder still owns it
func (l *Lock) Release(ctx context.Context) error {
	if l == nil || !l.locker.client.Enabled() {
		return nil
	}
	if err := releaseScript.Run(ctx, l.locker.client.Redis(), []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	return nil
}

// TrendRunLockName names the lock for one window start, shared by every window type
func TrendRunLockName(start time.Time) string {
	return fmt.Sprintf("trends:%s", start.Format("2006-01-02"))
}
