package kv

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisStore maps each bucket onto a redis hash. Meant for deployments that
// already run Redis with persistence enabled; the default is FileStore.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "rendergw:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) hkey(bucket string) string {
	return s.prefix + bucket
}

func (s *RedisStore) Put(ctx context.Context, bucket, key string, value []byte) error {
	return s.rdb.HSet(ctx, s.hkey(bucket), key, value).Err()
}

func (s *RedisStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	v, err := s.rdb.HGet(ctx, s.hkey(bucket), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *RedisStore) List(ctx context.Context, bucket string) (map[string][]byte, error) {
	m, err := s.rdb.HGetAll(ctx, s.hkey(bucket)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(m))
	for k, v := range m {
		out[k] = []byte(v)
	}
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, bucket, key string) error {
	return s.rdb.HDel(ctx, s.hkey(bucket), key).Err()
}

var _ Store = (*RedisStore)(nil)
