// Package cache provides the Redis-backed key/value layer shared by the
// heat signal cache, card dedup markers, rate limiting, and the scheduler
// heartbeat.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Client wraps a go-redis client with the fail-open semantics the pipeline
// requires: callers treat a cache outage as a cache miss, never as a hard
// error, except where explicitly noted (dedup markers stay fail-open by
// design; rate limiting fails open too, logged as degraded upstream).
type Client struct {
	rdb *redis.Client
}

// Config configures the Redis connection.
type Config struct {
	URL          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// New creates a Client from a redis:// URL (REDIS_URL).
func New(cfg Config) (*Client, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	if cfg.DialTimeout > 0 {
		opt.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opt.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opt.WriteTimeout = cfg.WriteTimeout
	}
	return &Client{rdb: redis.NewClient(opt)}, nil
}

// NewFromURL is a convenience wrapper for the common case of a bare URL.
func NewFromURL(url string) (*Client, error) {
	return New(Config{URL: url})
}

// Ping verifies connectivity, used by the /readyz handler.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// GetString reads a string key. ok is false on miss or on any Redis error
// (fail-open: caller falls back to recompute).
func (c *Client) GetString(ctx context.Context, key string) (value string, ok bool) {
	v, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	return v, true
}

// SetString writes a string key with a TTL. Errors are swallowed by design
// (cache writes never fail a request); callers that care should use
// SetStringErr.
func (c *Client) SetString(ctx context.Context, key, value string, ttl time.Duration) {
	_ = c.rdb.Set(ctx, key, value, ttl).Err()
}

// SetStringErr is the error-returning variant of SetString, used where a
// caller needs to distinguish a cache outage from success (e.g. metrics).
func (c *Client) SetStringErr(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// SetNX sets key to value only if it does not already exist, returning
// whether this call created it. Used for card dedup markers: a false
// return means a duplicate push within the dedup window. Fail-open: a
// Redis error is treated as "not a duplicate" so outages never silently
// drop cards.
func (c *Client) SetNX(ctx context.Context, key, value string, ttl time.Duration) (created bool, err error) {
	created, err = c.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return true, err
	}
	return created, nil
}

// Del removes one or more keys.
func (c *Client) Del(ctx context.Context, keys ...string) {
	_ = c.rdb.Del(ctx, keys...).Err()
}

// Incr increments an integer counter key, creating it with the given TTL
// if it did not already exist. Used for the per-minute rate limit bucket.
func (c *Client) Incr(ctx context.Context, key string, ttl time.Duration) (count int64, err error) {
	pipe := c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// RateLimitBucket builds the per-minute rate limit key for an identity
// (e.g. "ratelimit:expert_view:203.0.113.4") bucketed to the current
// UTC minute, so TTL-based expiry naturally rotates buckets.
func RateLimitBucket(prefix, identity string, now time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", prefix, identity, now.UTC().Unix()/60)
}

// HeatCacheKey builds the Redis key for a cached heat compute result,
// bucketed by symbol/token and the 30s window boundary so repeated reads
// within the same bucket hit cache.
func HeatCacheKey(symbolOrCA string, bucketUnixSec int64) string {
	return fmt.Sprintf("heat:%s:%d", symbolOrCA, bucketUnixSec)
}

// CardDedupKey builds the Redis key used for card push dedup markers.
func CardDedupKey(eventKey, channelID string) string {
	return fmt.Sprintf("card:dedup:%s:%s", eventKey, channelID)
}

// HeartbeatKey builds the Redis key the scheduler watchdog writes to on
// every successful tick of a named job.
func HeartbeatKey(jobName string) string {
	return fmt.Sprintf("scheduler:heartbeat:%s", jobName)
}

// Heartbeat records that jobName completed a tick at now, with a TTL so a
// stalled job naturally ages the key out (read back through LastHeartbeat
// by the scheduler watchdog, which compares it against BEAT_STALE_SEC).
func (c *Client) Heartbeat(ctx context.Context, jobName string, now time.Time, ttl time.Duration) {
	c.SetString(ctx, HeartbeatKey(jobName), now.UTC().Format(time.RFC3339), ttl)
}

// LastHeartbeat returns the last recorded heartbeat time for jobName, and
// whether one was found within its TTL.
func (c *Client) LastHeartbeat(ctx context.Context, jobName string) (t time.Time, ok bool) {
	v, found := c.GetString(ctx, HeartbeatKey(jobName))
	if !found {
		return time.Time{}, false
	}
	parsed, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}
