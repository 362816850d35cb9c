package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"relentless-relay/internal/crawler"
	"relentless-relay/internal/models"
)

type redisGetSetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// RedisRecordStore stores each record as JSON under prefix+key. SET overwrites,
// so repeated writes of a record leave one value. fetched_at keeps the time of
// the first write.
type RedisRecordStore struct {
	client redisGetSetter
	prefix string
	ttl    time.Duration
}

// NewRedisRecordStore connects to addr. ttl <= 0 keeps records forever.
func NewRedisRecordStore(addr, prefix string, ttl time.Duration) *RedisRecordStore {
	return NewRedisRecordStoreWithClient(redis.NewClient(&redis.Options{Addr: addr}), prefix, ttl)
}

// NewRedisRecordStoreWithClient builds a store using a custom client (tests).
func NewRedisRecordStoreWithClient(client redisGetSetter, prefix string, ttl time.Duration) *RedisRecordStore {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisRecordStore{client: client, prefix: prefix, ttl: ttl}
}

// Close closes the Redis client.
func (s *RedisRecordStore) Close() error {
	return s.client.Close()
}

// Put writes rec to Redis.
func (s *RedisRecordStore) Put(ctx context.Context, rec models.Record) error {
	key := s.prefix + rec.Key
	first, err := s.firstFetchedAt(ctx, key)
	if err != nil {
		return err
	}
	if !first.IsZero() {
		rec.FetchedAt = first
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return crawler.Permanent(err)
	}
	return s.client.Set(ctx, key, payload, s.ttl).Err()
}

// firstFetchedAt returns the fetched_at of the stored value, or zero when
// there is none or it cannot be decoded.
func (s *RedisRecordStore) firstFetchedAt(ctx context.Context, key string) (time.Time, error) {
	raw, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	var prev struct {
		FetchedAt time.Time `json:"fetched_at"`
	}
	if json.Unmarshal([]byte(raw), &prev) != nil {
		return time.Time{}, nil
	}
	return prev.FetchedAt, nil
}
