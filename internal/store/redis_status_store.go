package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"relentless-relay/internal/models"
)

// StatusHistoryLen is how many past statuses are kept per job.
const StatusHistoryLen = 50

type statusClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
	Close() error
}

// RedisStatusStore keeps the latest run status of each job under prefix+job
// and a capped newest-first history under prefix+job+":history".
type RedisStatusStore struct {
	client statusClient
	prefix string
	ttl    time.Duration
}

// NewRedisStatusStore initializes a Redis-backed StatusStore.
func NewRedisStatusStore(addr, prefix string, ttl time.Duration) *RedisStatusStore {
	return NewRedisStatusStoreWithClient(redis.NewClient(&redis.Options{Addr: addr}), prefix, ttl)
}

// NewRedisStatusStoreWithClient builds a store using a custom client (tests).
func NewRedisStatusStoreWithClient(client statusClient, prefix string, ttl time.Duration) *RedisStatusStore {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisStatusStore{client: client, prefix: prefix, ttl: ttl}
}

// Close closes the Redis client.
func (s *RedisStatusStore) Close() error {
	return s.client.Close()
}

func (s *RedisStatusStore) historyKey(jobID string) string {
	return s.prefix + jobID + ":history"
}

// SetStatus writes the latest status and appends it to the history in one transaction.
func (s *RedisStatusStore) SetStatus(ctx context.Context, status models.RunStatus) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return err
	}
	history := s.historyKey(status.JobID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.prefix+status.JobID, payload, s.ttl)
		pipe.LPush(ctx, history, payload)
		pipe.LTrim(ctx, history, 0, StatusHistoryLen-1)
		if s.ttl > 0 {
			pipe.Expire(ctx, history, s.ttl)
		}
		return nil
	})
	return err
}

// GetStatus reads the latest status record from Redis.
func (s *RedisStatusStore) GetStatus(ctx context.Context, jobID string) (models.RunStatus, bool, error) {
	val, err := s.client.Get(ctx, s.prefix+jobID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.RunStatus{}, false, nil
		}
		return models.RunStatus{}, false, err
	}

	var status models.RunStatus
	if err := json.Unmarshal([]byte(val), &status); err != nil {
		return models.RunStatus{}, false, err
	}
	return status, true, nil
}

// History returns up to limit past statuses, newest first. Entries that fail
// to decode are skipped.
func (s *RedisStatusStore) History(ctx context.Context, jobID string, limit int) ([]models.RunStatus, error) {
	if limit <= 0 || limit > StatusHistoryLen {
		limit = StatusHistoryLen
	}
	vals, err := s.client.LRange(ctx, s.historyKey(jobID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.RunStatus, 0, len(vals))
	for _, val := range vals {
		var status models.RunStatus
		if err := json.Unmarshal([]byte(val), &status); err != nil {
			continue
		}
		out = append(out, status)
	}
	return out, nil
}
