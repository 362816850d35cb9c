package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relentless-relay/internal/models"
)

// fakeStatusRedis keeps strings and lists in memory. Pipelined commands run immediately.
type fakeStatusRedis struct {
	redis.Pipeliner // unimplemented pipeline methods panic

	values  map[string]string
	lists   map[string][]string
	expires map[string]time.Duration
	txErr   error
}

func newFakeStatusRedis() *fakeStatusRedis {
	return &fakeStatusRedis{
		values:  map[string]string{},
		lists:   map[string][]string{},
		expires: map[string]time.Duration{},
	}
}

func (f *fakeStatusRedis) TxPipelined(_ context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error) {
	if f.txErr != nil {
		return nil, f.txErr
	}
	return nil, fn(f)
}

func (f *fakeStatusRedis) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	f.values[key] = string(value.([]byte))
	f.expires[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeStatusRedis) LPush(_ context.Context, key string, values ...any) *redis.IntCmd {
	for _, v := range values {
		f.lists[key] = append([]string{string(v.([]byte))}, f.lists[key]...)
	}
	return redis.NewIntResult(int64(len(f.lists[key])), nil)
}

func (f *fakeStatusRedis) LTrim(_ context.Context, key string, start, stop int64) *redis.StatusCmd {
	list := f.lists[key]
	if int(stop)+1 < len(list) {
		f.lists[key] = list[start : stop+1]
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeStatusRedis) Expire(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	f.expires[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeStatusRedis) Get(_ context.Context, key string) *redis.StringCmd {
	val, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(val, nil)
}

func (f *fakeStatusRedis) LRange(_ context.Context, key string, start, stop int64) *redis.StringSliceCmd {
	list := f.lists[key]
	end := int(stop) + 1
	if end > len(list) {
		end = len(list)
	}
	if int(start) >= end {
		return redis.NewStringSliceResult(nil, nil)
	}
	return redis.NewStringSliceResult(list[start:end], nil)
}

func (f *fakeStatusRedis) Close() error { return nil }

func TestRedisStatusStoreLatestAndHistory(t *testing.T) {
	client := newFakeStatusRedis()
	s := NewRedisStatusStoreWithClient(client, "relay:status:", time.Hour)
	ctx := context.Background()

	for hop := 0; hop < 3; hop++ {
		require.NoError(t, s.SetStatus(ctx, models.RunStatus{JobID: "job", Hop: hop, Status: "publish_continuation"}))
	}

	latest, ok, err := s.GetStatus(ctx, "job")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, latest.Hop)

	history, err := s.History(ctx, "job", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 2, history[0].Hop)
	assert.Equal(t, 1, history[1].Hop)

	assert.Equal(t, time.Hour, client.expires["relay:status:job"])
	assert.Equal(t, time.Hour, client.expires["relay:status:job:history"])
}

func TestRedisStatusStoreHistoryIsCapped(t *testing.T) {
	client := newFakeStatusRedis()
	s := NewRedisStatusStoreWithClient(client, "p:", 0)
	ctx := context.Background()

	for hop := 0; hop < StatusHistoryLen+5; hop++ {
		require.NoError(t, s.SetStatus(ctx, models.RunStatus{JobID: "job", Hop: hop}))
	}
	assert.Len(t, client.lists["p:job:history"], StatusHistoryLen)
	_, expired := client.expires["p:job:history"]
	assert.False(t, expired, "history must not expire when ttl is 0")

	history, err := s.History(ctx, "job", 0)
	require.NoError(t, err)
	assert.Len(t, history, StatusHistoryLen)
	assert.Equal(t, StatusHistoryLen+4, history[0].Hop)
}

func TestRedisStatusStoreMissingAndErrors(t *testing.T) {
	client := newFakeStatusRedis()
	s := NewRedisStatusStoreWithClient(client, "p:", time.Minute)
	ctx := context.Background()

	_, ok, err := s.GetStatus(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	history, err := s.History(ctx, "nope", 5)
	require.NoError(t, err)
	assert.Empty(t, history)

	client.txErr = errors.New("redis down")
	assert.Error(t, s.SetStatus(ctx, models.RunStatus{JobID: "job"}))

	client.values["p:bad"] = "{not json"
	_, _, err = s.GetStatus(ctx, "bad")
	assert.Error(t, err)
}
