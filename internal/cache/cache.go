// Package cache stores finished crawl results so that repeated requests for
// the same seed and limits can be answered without crawling again.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nao1215/mailspider/internal/model"
)

// DefaultPrefix is prepended to every key written by RedisCache.
const DefaultPrefix = "mailspider:result:"

// ResultCache looks up and stores crawl results by key.
type ResultCache interface {
	// Get returns the cached result and true, or false when the key is absent.
	Get(ctx context.Context, key string) (*model.CrawlResult, bool, error)
	// Set stores the result under key.
	Set(ctx context.Context, key string, result *model.CrawlResult) error
}

// Key builds the cache key for a normalized seed URL and crawl limits.
func Key(seedURL string, maxDepth, maxPages, maxConcurrency int) string {
	return fmt.Sprintf("%s|d=%d|p=%d|c=%d", seedURL, maxDepth, maxPages, maxConcurrency)
}

// RedisCache is a ResultCache backed by Redis. Entries expire after the
// configured TTL.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration

	// redisOpts is only used while the cache is being built.
	redisOpts *redis.Options
}

// Option configures a RedisCache.
type Option func(*RedisCache)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(c *RedisCache) {
		c.prefix = prefix
	}
}

// WithDialTimeout bounds how long connecting to Redis may take.
func WithDialTimeout(d time.Duration) Option {
	return func(c *RedisCache) {
		c.redisOpts.DialTimeout = d
	}
}

// NewRedisCache connects to the Redis server at addr. A ttl of zero keeps
// entries until they are evicted.
func NewRedisCache(addr string, ttl time.Duration, opts ...Option) *RedisCache {
	c := &RedisCache{
		prefix:    DefaultPrefix,
		ttl:       ttl,
		redisOpts: &redis.Options{Addr: addr},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.client = redis.NewClient(c.redisOpts)
	c.redisOpts = nil
	return c
}

// Ping checks that the server is reachable.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Set writes the result to Redis.
func (c *RedisCache) Set(ctx context.Context, key string, result *model.CrawlResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+key, payload, c.ttl).Err()
}

// Get reads a result from Redis.
func (c *RedisCache) Get(ctx context.Context, key string) (*model.CrawlResult, bool, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var result model.CrawlResult
	if err := json.Unmarshal(val, &result); err != nil {
		return nil, false, fmt.Errorf("failed to parse cached result: %w", err)
	}
	return &result, true, nil
}
