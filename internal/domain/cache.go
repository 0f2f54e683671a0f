package domain

import (
	"context"
	"time"
)

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus fans out progress and order events between processes.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// CredentialCache shares trading credentials between processes so a reset
// performed by one instance is seen by the others.
type CredentialCache interface {
	Get(ctx context.Context, scope CredentialScope) (TradingCredentials, error)
	Set(ctx context.Context, creds TradingCredentials, ttl time.Duration) error
	Delete(ctx context.Context, scope CredentialScope) error
}
