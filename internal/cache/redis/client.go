// Package redis backs the engine's shared state with go-redis/v9: the
// credential cache, the credential-reset lock, API rate limiting, and the
// progress signal bus.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultNamespace prefixes keys and channels when ClientConfig leaves
// Namespace empty.
const DefaultNamespace = "polyonboard"

// ClientConfig holds connection parameters for the Redis client. URL, when
// set, is a redis:// or rediss:// URL and takes the place of Addr, Password
// and DB.
type ClientConfig struct {
	URL        string
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool

	// Namespace isolates deployments sharing one Redis, e.g. a staging and a
	// production engine trading for different owners.
	Namespace string
}

// Client wraps a go-redis Client together with the key namespace.
type Client struct {
	rdb *redis.Client
	ns  string
}

// New creates a Client and pings the server. It returns an error if the
// connection cannot be established.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts, err := options(cfg)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", opts.Addr, err)
	}
	return &Client{rdb: rdb, ns: namespace(cfg.Namespace)}, nil
}

func options(cfg ClientConfig) (*redis.Options, error) {
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("redis: parse url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.TLSEnabled && opts.TLSConfig == nil {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts, nil
}

func namespace(ns string) string {
	ns = strings.Trim(ns, ": ")
	if ns == "" {
		return DefaultNamespace
	}
	return ns
}

// Ping checks the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying returns the raw *redis.Client.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}

// Namespace returns the prefix applied to keys and channels.
func (c *Client) Namespace() string {
	return c.ns
}

// key joins parts under ns, e.g. key("polyonboard", "lock", k) is
// "polyonboard:lock:<k>".
func key(ns string, parts ...string) string {
	return ns + ":" + strings.Join(parts, ":")
}
