package executor

import (
	"context"
	"sync"
	"time"
)

// Dedup remembers in-flight relayer submissions so the same batch is not
// sent twice while the first one is still settling. Entries expire after ttl
// even if nobody calls Forget. It is safe for concurrent use.
type Dedup struct {
	seen map[string]time.Time // batch key -> first submitted
	ttl  time.Duration
	mu   sync.Mutex
}

// NewDedup creates a Dedup that considers a key a duplicate if it was marked
// within ttl.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// IsDuplicate returns true if key was marked within the TTL window. Otherwise
// key is marked and false is returned.
func (d *Dedup) IsDuplicate(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if marked, ok := d.seen[key]; ok && now.Sub(marked) < d.ttl {
		return true
	}
	d.seen[key] = now
	return false
}

// Forget clears key, typically once its job reached a terminal state or the
// submission was rejected.
func (d *Dedup) Forget(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
}

// Cleanup removes expired entries.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for k, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, k)
		}
	}
}

// SweepLoop calls Cleanup every interval until ctx is done.
func (d *Dedup) SweepLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.Cleanup()
		}
	}
}
