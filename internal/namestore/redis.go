// SPDX-License-Identifier: MIT

package namestore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisHashKey is the hash holding key → name fields.
const RedisHashKey = "audiocenter:names"

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string // Redis server address (host:port)
	Password string // Redis password (optional)
	DB       int    // Redis database number
}

// RedisStore shares the name map between daemons through a Redis hash.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects and pings; an unreachable server is an error.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
	})
	s := &RedisStore{client: client}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.Ping(pingCtx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return s, nil
}

func (s *RedisStore) Load(ctx context.Context) (map[string]string, error) {
	out, err := s.client.HGetAll(ctx, RedisHashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	return out, nil
}

func (s *RedisStore) Save(ctx context.Context, names map[string]string) error {
	if len(names) == 0 {
		return nil
	}
	fields := make(map[string]any, len(names))
	for k, v := range names {
		fields[k] = v
	}
	if err := s.client.HSet(ctx, RedisHashKey, fields).Err(); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error { return s.client.Close() }
