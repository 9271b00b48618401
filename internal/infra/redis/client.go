package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Client wraps Redis operations for cycle coordination.
type Client struct {
	rdb       *redis.Client
	namespace string
}

// Config holds Redis connection configuration.
// An empty URL disables Redis.
type Config struct {
	URL       string `yaml:"url"       env:"URL"`
	Password  string `yaml:"password"  env:"PASSWORD"`
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// Enabled reports whether a Redis URL is configured.
func (c Config) Enabled() bool {
	return c.URL != ""
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ns := cfg.Namespace
	if ns == "" {
		ns = "reviewer"
	}
	return &Client{rdb: rdb, namespace: ns}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health pings the server.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) key(parts ...string) string {
	k := c.namespace
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

// releaseScript deletes the lock only when it is still held by the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the lock only when it is still held by the caller.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// CycleLock is a distributed mutex that keeps deployments sharing a store
// from running overlapping cycles.
type CycleLock struct {
	client *Client
	name   string
	token  string
}

// NewCycleLock creates a lock with a per-process owner token.
func NewCycleLock(client *Client, name string) *CycleLock {
	return &CycleLock{
		client: client,
		name:   name,
		token:  uuid.NewString(),
	}
}

func (l *CycleLock) lockKey() string {
	return l.client.key("cycle_lock", l.name)
}

// Acquire attempts to take the lock for ttl.
func (l *CycleLock) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := l.client.rdb.SetNX(ctx, l.lockKey(), l.token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// Refresh extends the TTL of a held lock.
func (l *CycleLock) Refresh(ctx context.Context, ttl time.Duration) error {
	n, err := refreshScript.Run(ctx, l.client.rdb, []string{l.lockKey()}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("refresh lock failed: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("lock %s no longer held", l.name)
	}
	return nil
}

// Release drops the lock if this process still owns it.
func (l *CycleLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client.rdb, []string{l.lockKey()}, l.token).Err(); err != nil {
		return fmt.Errorf("release lock failed: %w", err)
	}
	return nil
}
