// Package cache provides the namespaced key-value cache client. Every
// operation degrades to a benign default when the cache is unreachable;
// callers never see an error, they only lose the caching benefit.
package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/modgate/modgate/internal/logging"
)

// Cache is the capability surface handed to the data layer and to modules.
type Cache interface {
	// Get returns the cached value and whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores value under key with ttl. Reports whether the write landed.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool
	// Delete removes one key. Reports whether a key was removed.
	Delete(ctx context.Context, key string) bool
	// DeletePattern removes every key matching pattern (glob syntax) and
	// returns how many were removed.
	DeletePattern(ctx context.Context, pattern string) int
	// Healthy reports whether the cache backend is reachable.
	Healthy(ctx context.Context) bool
}

// Config controls the Redis client.
type Config struct {
	Addrs     []string // single node or cluster
	Password  string
	Namespace string
	// Reconnect backoff bounds; zero values take the defaults below.
	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration
}

// Redis is the production Cache backed by go-redis. A UniversalClient covers
// both single-node and clustered deployments.
type Redis struct {
	client    redis.UniversalClient
	namespace string
	log       *logging.Logger
}

// NewRedis builds a Redis cache client. The connection is lazy; failures
// surface as misses, not errors.
func NewRedis(cfg Config, log *logging.Logger) *Redis {
	minBackoff := cfg.MinRetryBackoff
	if minBackoff == 0 {
		minBackoff = 100 * time.Millisecond
	}
	maxBackoff := cfg.MaxRetryBackoff
	if maxBackoff == 0 {
		maxBackoff = 5 * time.Second
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:           cfg.Addrs,
		Password:        cfg.Password,
		MinRetryBackoff: minBackoff,
		MaxRetryBackoff: maxBackoff,
		DialTimeout:     2 * time.Second,
		ReadTimeout:     1 * time.Second,
		WriteTimeout:    1 * time.Second,
	})

	return &Redis{
		client:    client,
		namespace: cfg.Namespace,
		log:       log,
	}
}

// NewRedisWithClient wraps an existing client. Used by tests with miniredis.
func NewRedisWithClient(client redis.UniversalClient, namespace string, log *logging.Logger) *Redis {
	return &Redis{client: client, namespace: namespace, log: log}
}

// Key prefixes a logical key with the deployment namespace, so pattern
// invalidation only ever touches keys owned by this deployment.
func (r *Redis) Key(logical string) string {
	if r.namespace == "" {
		return logical
	}
	return r.namespace + ":" + logical
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := r.client.Get(ctx, r.Key(key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.log.WithError(err).WithField("key", key).Debug("cache get failed")
		}
		return nil, false
	}
	return val, true
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	if err := r.client.Set(ctx, r.Key(key), value, ttl).Err(); err != nil {
		r.log.WithError(err).WithField("key", key).Debug("cache set failed")
		return false
	}
	return true
}

func (r *Redis) Delete(ctx context.Context, key string) bool {
	n, err := r.client.Del(ctx, r.Key(key)).Result()
	if err != nil {
		r.log.WithError(err).WithField("key", key).Debug("cache delete failed")
		return false
	}
	return n > 0
}

// DeletePattern walks the keyspace with SCAN rather than KEYS so large
// keyspaces do not block the server.
func (r *Redis) DeletePattern(ctx context.Context, pattern string) int {
	full := r.Key(pattern)
	removed := 0

	iter := r.client.Scan(ctx, 0, full, 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			continue
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		r.log.WithError(err).WithField("pattern", pattern).Debug("cache pattern scan failed")
	}
	return removed
}

func (r *Redis) Healthy(ctx context.Context) bool {
	return r.client.Ping(ctx).Err() == nil
}

// Close releases the underlying connections.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Noop is the Cache used when no cache endpoint is configured. Every read
// misses and every write reports failure, which the data layer treats as a
// plain store round trip.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool)               { return nil, false }
func (Noop) Set(context.Context, string, []byte, time.Duration) bool  { return false }
func (Noop) Delete(context.Context, string) bool                      { return false }
func (Noop) DeletePattern(context.Context, string) int                { return 0 }
func (Noop) Healthy(context.Context) bool                             { return false }
