package querycache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore backs the cache with Redis. Connectivity failures surface as
// misses and no-ops: the store logs at debug level and carries on.
type RedisStore struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewRedisStore connects to the Redis instance described by redisURL
// (redis://[user:pass@]host:port/db). The connection is verified with a
// short ping so a misconfigured URL fails at startup.
func NewRedisStore(redisURL string, logger *zap.Logger) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{rdb: rdb, logger: logger}, nil
}

// Get returns the value for key, or a miss on absence or store failure.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Debug("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return data, true
}

// Set stores value under key with the given TTL. Failures are dropped.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		s.logger.Debug("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Delete removes key. Failures are dropped.
func (s *RedisStore) Delete(ctx context.Context, key string) {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		s.logger.Debug("cache delete failed", zap.String("key", key), zap.Error(err))
	}
}

// ClearPrefix removes every key under prefix via SCAN + DEL and returns the
// number removed. SCAN keeps the operation incremental on a shared instance.
func (s *RedisStore) ClearPrefix(ctx context.Context, prefix string) int {
	var removed int
	iter := s.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 100 {
			removed += s.deleteBatch(ctx, batch)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		s.logger.Debug("cache scan failed", zap.String("prefix", prefix), zap.Error(err))
	}
	if len(batch) > 0 {
		removed += s.deleteBatch(ctx, batch)
	}
	return removed
}

func (s *RedisStore) deleteBatch(ctx context.Context, keys []string) int {
	n, err := s.rdb.Del(ctx, keys...).Result()
	if err != nil {
		s.logger.Debug("cache batch delete failed", zap.Error(err))
		return 0
	}
	return int(n)
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
