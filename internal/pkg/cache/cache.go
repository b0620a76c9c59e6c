package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/trogdorcult/burninator/internal/pkg/env"
)

// ErrCacheMiss is returned by Get and GetDel when the key does not exist.
var ErrCacheMiss = errors.New("cache: miss")

// Cache is the subset of key-value operations the application relies on.
// Callers treat every error other than ErrCacheMiss as "cache unavailable".
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	GetDel(ctx context.Context, key string) (string, error)
}

var (
	client   *redis.Client
	instance Cache
)

// SetupCache initializes the connection to the Redis cache server. With
// CACHE_ENABLED=false the process runs on an in-memory cache instead.
func SetupCache() {
	if !env.GetEnvBool("CACHE_ENABLED", true) {
		log.Warnf("[Cache] CACHE_ENABLED=false, using in-process memory cache")
		instance = NewMemory()
		return
	}

	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")

	client = redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", host, port),
		Password:     env.GetEnv("CACHE_PASSWORD", ""),
		DB:           0,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Warnf("[Cache] Could not connect to Redis: %v (cache-dependent features degrade)", err)
	} else {
		log.Infof("[Cache] Successfully connected to Redis: %s", pong)
	}
	instance = NewRedis(client)
}

// GetClient returns the Redis client instance, nil when running on the memory cache.
func GetClient() *redis.Client {
	if client == nil && instance == nil {
		SetupCache()
	}
	return client
}

// Default returns the process-wide Cache.
func Default() Cache {
	if instance == nil {
		SetupCache()
	}
	return instance
}

// SetDefault swaps the process-wide Cache, used by tests and the CLI.
func SetDefault(c Cache) {
	instance = c
}

// Redis implements Cache on a go-redis client.
type Redis struct {
	rdb redis.Cmdable
}

func NewRedis(rdb redis.Cmdable) *Redis {
	return &Redis{rdb: rdb}
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	val, err := r.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return val, err
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, value, ttl).Err()
}

func (r *Redis) Incr(ctx context.Context, key string) (int64, error) {
	return r.rdb.Incr(ctx, key).Result()
}

func (r *Redis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.rdb.Expire(ctx, key, ttl).Err()
}

func (r *Redis) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.rdb.Del(ctx, keys...).Err()
}

// GetDel reads and removes the key in a single round trip (Redis >= 6.2).
func (r *Redis) GetDel(ctx context.Context, key string) (string, error) {
	val, err := r.rdb.GetDel(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return val, err
}

// GetInt is a convenience around Get for counters.
func GetInt(ctx context.Context, c Cache, key string) (int64, error) {
	raw, err := c.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}
