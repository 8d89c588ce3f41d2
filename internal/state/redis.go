package state

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps state in one hash per profile, for kiosks that share
// a login across machines.
type RedisStore struct {
	rdb  redis.UniversalClient
	hash string
}

// NewRedisClient parses a redis:// URI and pings the server.
func NewRedisClient(ctx context.Context, uri string) (redis.UniversalClient, error) {
	opt, err := redis.ParseURL(uri)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func NewRedisStore(rdb redis.UniversalClient, profile string) *RedisStore {
	if profile == "" {
		profile = "default"
	}
	return &RedisStore{rdb: rdb, hash: "companion:state:" + profile}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.HGet(ctx, s.hash, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	return s.rdb.HSet(ctx, s.hash, key, value).Err()
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.HDel(ctx, s.hash, keys...).Err()
}
