package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/inkify/engine/internal/logger"
	"github.com/inkify/engine/internal/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// observe records latency and outcome for one Redis operation. Cache
// misses count as success.
func observe(op string, start time.Time, err error) {
	m := metrics.Get()
	status := "success"
	if err != nil && err != redis.Nil {
		status = "error"
	}
	m.RedisOperationDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
	m.RedisOperationsTotal.WithLabelValues(op, status).Inc()
}

// RedisClient wraps the redis.Client with centralized connection pooling.
// The identity resolver uses it for short-lived name lookups and the
// engagement ledger for view-debounce markers.
type RedisClient struct {
	client *redis.Client
}

// Singleton instance (package-level)
var globalRedis *RedisClient

// NewRedisClient creates and initializes a Redis client with connection pooling
func NewRedisClient(host string, port string, password string) (*RedisClient, error) {
	if host == "" {
		host = "localhost"
	}
	if port == "" {
		port = "6379"
	}

	addr := fmt.Sprintf("%s:%s", host, port)

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 5,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		DialTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.ErrorWithFields("Failed to connect to Redis", err)
		return nil, err
	}

	rc := &RedisClient{client: client}
	globalRedis = rc

	logger.Log.Info("✅ Redis client connected successfully",
		zap.String("address", addr),
	)

	return rc, nil
}

// GetRedisClient returns the global Redis client instance
func GetRedisClient() *RedisClient {
	return globalRedis
}

// Close closes the Redis connection gracefully
func (rc *RedisClient) Close() error {
	if rc == nil || rc.client == nil {
		return nil
	}
	return rc.client.Close()
}

// Get retrieves a value from Redis
func (rc *RedisClient) Get(ctx context.Context, key string) (string, error) {
	start := time.Now()
	val, err := rc.client.Get(ctx, key).Result()
	observe("get", start, err)
	return val, err
}

// SetEx stores a value in Redis with expiration
func (rc *RedisClient) SetEx(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	start := time.Now()
	err := rc.client.Set(ctx, key, value, ttl).Err()
	observe("setex", start, err)
	return err
}

// SetNX stores a value only if the key does not exist yet.
// Returns true when the key was set.
func (rc *RedisClient) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	start := time.Now()
	ok, err := rc.client.SetNX(ctx, key, value, ttl).Result()
	observe("setnx", start, err)
	return ok, err
}

// MGet retrieves multiple values in one round trip; missing keys come
// back as nil entries.
func (rc *RedisClient) MGet(ctx context.Context, keys ...string) ([]interface{}, error) {
	start := time.Now()
	vals, err := rc.client.MGet(ctx, keys...).Result()
	observe("mget", start, err)
	return vals, err
}

// Del deletes one or more keys from Redis
func (rc *RedisClient) Del(ctx context.Context, keys ...string) error {
	start := time.Now()
	err := rc.client.Del(ctx, keys...).Err()
	observe("del", start, err)
	return err
}

// Exists checks if one or more keys exist in Redis
func (rc *RedisClient) Exists(ctx context.Context, keys ...string) (int64, error) {
	start := time.Now()
	n, err := rc.client.Exists(ctx, keys...).Result()
	observe("exists", start, err)
	return n, err
}

// IncrBy atomically increments a counter key and returns the new value
func (rc *RedisClient) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	start := time.Now()
	val, err := rc.client.IncrBy(ctx, key, delta).Result()
	observe("incrby", start, err)
	return val, err
}

// Expire sets an expiration timeout on a key
func (rc *RedisClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	start := time.Now()
	err := rc.client.Expire(ctx, key, ttl).Err()
	observe("expire", start, err)
	return err
}

// Ping tests the Redis connection
func (rc *RedisClient) Ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// IsNil reports whether err is the redis cache-miss sentinel
func IsNil(err error) bool {
	return err == redis.Nil
}
