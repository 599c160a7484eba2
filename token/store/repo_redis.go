package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	sessionerrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/redis/go-redis/v9"
)

const (
	redisOpTimeout   = 2 * time.Second
	redisPingTimeout = 2 * time.Second
)

var _ Repo = (*RedisRepo)(nil)

// RedisRepo keeps the session in Redis, one string per key, optionally prefixed
// so several consoles can share one instance.
type RedisRepo struct {
	client *redis.Client
	prefix string
}

type RedisRepoOption func(*RedisRepo)

// WithKeyPrefix namespaces every key, e.g. "console:alice:"
func WithKeyPrefix(prefix string) RedisRepoOption {
	return func(r *RedisRepo) {
		r.prefix = prefix
	}
}

// NewRedisRepo wraps an existing client
func NewRedisRepo(client *redis.Client, options ...RedisRepoOption) *RedisRepo {
	r := &RedisRepo{client: client}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// DialRedis parses a Redis URL, pings the server and returns a repo on success
func DialRedis(ctx context.Context, redisURL string, options ...RedisRepoOption) (*RedisRepo, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping failed: %w", err)
	}
	return NewRedisRepo(client, options...), nil
}

// Close releases the underlying client
func (r *RedisRepo) Close() error {
	return r.client.Close()
}

func (r *RedisRepo) Get(key string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	v, err := r.client.Get(ctx, r.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", sessionerrors.ErrNotFound
		}
		return "", fmt.Errorf("redis_session_get_failed: %w", err)
	}
	return v, nil
}

func (r *RedisRepo) SetMany(values map[string]string) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range values {
			pipe.Set(ctx, r.prefix+k, v, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis_session_set_failed: %w", err)
	}
	return nil
}

func (r *RedisRepo) Delete(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	prefixed := make([]string, 0, len(keys))
	for _, k := range keys {
		prefixed = append(prefixed, r.prefix+k)
	}
	if err := r.client.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("redis_session_delete_failed: %w", err)
	}
	return nil
}
