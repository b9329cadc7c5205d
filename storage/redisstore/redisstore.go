package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fw-platform/wish-console/storage"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var _ storage.Storage = (*Store)(nil)

const defaultTimeout = 2 * time.Second

// Store keeps one scope as fields of a single redis hash. Shared durable
// scope for consoles that run on several hosts for the same operator.
type Store struct {
	client  redis.Cmdable
	hash    string
	timeout time.Duration
	logger  zerolog.Logger
}

// Connect opens a client and pings it
func Connect(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

// New stores fields under hash (e.g. "wish-console:alice:durable")
func New(client redis.Cmdable, hash string) *Store {
	return &Store{
		client:  client,
		hash:    hash,
		timeout: defaultTimeout,
		logger:  log.Logger.With().Str("component", "redisstore").Str("hash", hash).Logger(),
	}
}

// WithTimeout sets the per-call deadline
func (s *Store) WithTimeout(d time.Duration) *Store {
	s.timeout = d
	return s
}

func (s *Store) Get(key string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	v, err := s.client.HGet(ctx, s.hash, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("HGET failed, treating as absent")
		return "", false
	}
	return v, true
}

func (s *Store) Set(key, value string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.client.HSet(ctx, s.hash, key, value).Err(); err != nil {
		s.logger.Err(err).Str("key", key).Msg("HSET failed")
	}
}

func (s *Store) Remove(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.client.HDel(ctx, s.hash, key).Err(); err != nil {
		s.logger.Err(err).Str("key", key).Msg("HDEL failed")
	}
}
