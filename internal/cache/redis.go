package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares the cache across orchestrator replicas. The coalescing
// guarantee stays per-process (singleflight); Redis only widens hit rates.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisConfig is the connection subset we need from config.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// NewRedisStore connects and pings the backend so a bad address fails at
// startup rather than on the first request.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "mdcache"
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	b, err := s.client.Get(ctx, s.prefix+":"+key).Bytes()
	if err == redis.Nil {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, e Entry, retention time.Duration) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+":"+key, b, retention).Err()
}

// Close releases the connection pool.
func (s *RedisStore) Close() error { return s.client.Close() }
