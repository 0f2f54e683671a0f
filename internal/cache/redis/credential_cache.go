package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polyonboard/internal/domain"
)

// CredentialCache implements domain.CredentialCache. Entries are JSON keyed
// by credential scope, so a reset done by one instance replaces the value the
// others read.
type CredentialCache struct {
	rdb *redis.Client
	ns  string
}

// NewCredentialCache creates a CredentialCache backed by the given Client.
func NewCredentialCache(c *Client) *CredentialCache {
	return &CredentialCache{rdb: c.Underlying(), ns: c.Namespace()}
}

func credentialKey(ns string, scope domain.CredentialScope) string {
	return key(ns, "creds", scope.Key())
}

// Get returns the cached credentials or domain.ErrNotFound.
func (c *CredentialCache) Get(ctx context.Context, scope domain.CredentialScope) (domain.TradingCredentials, error) {
	raw, err := c.rdb.Get(ctx, credentialKey(c.ns, scope)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.TradingCredentials{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.TradingCredentials{}, fmt.Errorf("redis: get credentials %s: %w", scope.Key(), err)
	}
	return decodeCredentials(raw)
}

// Set stores creds under their scope. A zero ttl keeps them until replaced.
func (c *CredentialCache) Set(ctx context.Context, creds domain.TradingCredentials, ttl time.Duration) error {
	raw, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("redis: marshal credentials: %w", err)
	}
	if err := c.rdb.Set(ctx, credentialKey(c.ns, creds.Scope), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set credentials %s: %w", creds.Scope.Key(), err)
	}
	return nil
}

// Delete removes the cached credentials for scope.
func (c *CredentialCache) Delete(ctx context.Context, scope domain.CredentialScope) error {
	if err := c.rdb.Del(ctx, credentialKey(c.ns, scope)).Err(); err != nil {
		return fmt.Errorf("redis: delete credentials %s: %w", scope.Key(), err)
	}
	return nil
}

func decodeCredentials(raw []byte) (domain.TradingCredentials, error) {
	var creds domain.TradingCredentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return domain.TradingCredentials{}, fmt.Errorf("redis: decode credentials: %w", err)
	}
	if !creds.Valid() {
		return domain.TradingCredentials{}, fmt.Errorf("redis: cached credentials incomplete: %w", domain.ErrNotFound)
	}
	return creds, nil
}

var _ domain.CredentialCache = (*CredentialCache)(nil)
