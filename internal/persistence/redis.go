package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/loopio/feedback-tracker/internal/config"
)

const redisPingTimeout = 3 * time.Second

// Redis holds the client shared by the realtime relay, the rate limiter and
// the readiness check.
type Redis struct {
	Client *redis.Client
}

// NewRedis builds the client. An unreachable server is only logged: the API
// still serves, the relay retries and readiness reports the failure.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable at startup", zap.String("addr", cfg.Addr), zap.Error(err))
	} else {
		logger.Info("redis connected", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	}

	return &Redis{Client: client}
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}

// LimiterStore keeps rate-limit counters in Redis so every API instance
// enforces the same window. It satisfies fiber.Storage.
type LimiterStore struct {
	client *redis.Client
	prefix string
}

// LimiterStore returns a store whose keys are namespaced by prefix. It is
// nil when the client is not configured.
func (r *Redis) LimiterStore(prefix string) *LimiterStore {
	if r == nil || r.Client == nil {
		return nil
	}
	return &LimiterStore{client: r.Client, prefix: prefix}
}

// Get returns nil without error for a missing key.
func (s *LimiterStore) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, nil
	}
	val, err := s.client.Get(context.Background(), s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return val, err
}

func (s *LimiterStore) Set(key string, val []byte, exp time.Duration) error {
	if key == "" || len(val) == 0 {
		return nil
	}
	return s.client.Set(context.Background(), s.prefix+key, val, exp).Err()
}

func (s *LimiterStore) Delete(key string) error {
	if key == "" {
		return nil
	}
	return s.client.Del(context.Background(), s.prefix+key).Err()
}

// Reset drops every counter under the prefix.
func (s *LimiterStore) Reset() error {
	ctx := context.Background()
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Close is a no-op; the client belongs to Redis.
func (s *LimiterStore) Close() error { return nil }
