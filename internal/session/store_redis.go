package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"guildgate/pkg/platform/sentinel"
)

// RedisStore persists sessions as redis hashes with a TTL on the whole
// session, so abandoned login flows expire on their own.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

func NewRedis(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client, prefix: "session:"}
}

func (s *RedisStore) key(sid string) string {
	return s.prefix + sid
}

func (s *RedisStore) Put(ctx context.Context, sid, key, value string, ttl time.Duration) error {
	k := s.key(sid)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, k, key, value)
	pipe.Expire(ctx, k, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session put: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, sid, key string) (string, error) {
	value, err := s.client.HGet(ctx, s.key(sid), key).Result()
	if err == redis.Nil {
		return "", sentinel.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("session get: %w", err)
	}
	return value, nil
}

func (s *RedisStore) Delete(ctx context.Context, sid, key string) error {
	if err := s.client.HDel(ctx, s.key(sid), key).Err(); err != nil {
		return fmt.Errorf("session delete: %w", err)
	}
	return nil
}

func (s *RedisStore) Destroy(ctx context.Context, sid string) error {
	if err := s.client.Del(ctx, s.key(sid)).Err(); err != nil {
		return fmt.Errorf("session destroy: %w", err)
	}
	return nil
}
