package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polyonboard/internal/domain"
)

// releaseLua deletes the lock only while it still carries the caller's
// token. A holder whose TTL ran out must not release a lock another instance
// has since taken for its own credential reset.
const releaseLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// LockManager implements domain.LockManager. The credential service holds a
// lock per credential scope while it revokes and reissues an API key, so two
// instances that see the same 401 never issue two keys.
type LockManager struct {
	rdb     *redis.Client
	ns      string
	release *redis.Script
	holder  string
}

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client) *LockManager {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return &LockManager{
		rdb:     c.Underlying(),
		ns:      c.Namespace(),
		release: redis.NewScript(releaseLua),
		holder:  host + "/" + strconv.Itoa(os.Getpid()),
	}
}

// lockToken identifies one acquisition. The holder part lets an operator see
// which instance is mid-reset when another is turned away.
func (lm *LockManager) lockToken() string {
	return lm.holder + "/" + uuid.NewString()
}

// Acquire takes the lock for k or returns an error matching
// domain.ErrLockHeld that names the current holder. The returned release func
// is idempotent and runs even if ctx has been cancelled.
func (lm *LockManager) Acquire(ctx context.Context, k string, ttl time.Duration) (func(), error) {
	token := lm.lockToken()
	lk := key(lm.ns, "lock", k)

	ok, err := lm.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", k, err)
	}
	if !ok {
		return nil, fmt.Errorf("redis: lock %s held by %s: %w", k, lm.currentHolder(ctx, lk), domain.ErrLockHeld)
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true

		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = lm.release.Run(releaseCtx, lm.rdb, []string{lk}, token).Err()
	}, nil
}

// currentHolder reads who holds lk; the lock may have expired in between.
func (lm *LockManager) currentHolder(ctx context.Context, lk string) string {
	token, err := lm.rdb.Get(ctx, lk).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "an expired holder"
	case err != nil:
		return "an unknown holder"
	}
	return holderOf(token)
}

// holderOf strips the per-acquisition uuid from a lock token.
func holderOf(token string) string {
	if i := strings.LastIndex(token, "/"); i > 0 {
		return token[:i]
	}
	return token
}

var _ domain.LockManager = (*LockManager)(nil)
