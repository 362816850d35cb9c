package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relentless-relay/internal/crawler"
	"relentless-relay/internal/models"
	"relentless-relay/internal/store"
	"relentless-relay/mocks"
)

func TestRetryingSucceedsAfterTransientFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	inner := mocks.NewMockRecordStore(ctrl)
	rec := models.Record{Key: "k1"}
	gomock.InOrder(
		inner.EXPECT().Put(gomock.Any(), rec).Return(errors.New("connection reset")),
		inner.EXPECT().Put(gomock.Any(), rec).Return(nil),
	)

	s := store.NewRetrying(inner, 2, 0, 0)
	require.NoError(t, s.Put(context.Background(), rec))
}

func TestRetryingStopsAfterBudget(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	inner := mocks.NewMockRecordStore(ctrl)
	inner.EXPECT().Put(gomock.Any(), gomock.Any()).Return(errors.New("down")).Times(3)

	s := store.NewRetrying(inner, 2, time.Millisecond, 2*time.Millisecond)
	err := s.Put(context.Background(), models.Record{Key: "k2"})

	var storeErr *crawler.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "k2", storeErr.Key)
	assert.Equal(t, 3, storeErr.Attempts)
}

func TestRetryingDoesNotRetryCancelledContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inner := mocks.NewMockRecordStore(ctrl)
	inner.EXPECT().Put(gomock.Any(), gomock.Any()).Return(context.Canceled).Times(1)

	s := store.NewRetrying(inner, 5, time.Second, time.Second)
	err := s.Put(ctx, models.Record{Key: "k3"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "store", crawler.Kind(err))
}

func TestRetryingNegativeBudgetMeansSingleAttempt(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	inner := mocks.NewMockRecordStore(ctrl)
	inner.EXPECT().Put(gomock.Any(), gomock.Any()).Return(errors.New("down")).Times(1)

	s := store.NewRetrying(inner, -1, 0, 0)
	require.Error(t, s.Put(context.Background(), models.Record{Key: "k4"}))
}

func TestMemoryRecordStoreIdempotent(t *testing.T) {
	s := store.NewMemoryRecordStore()
	rec := models.Record{Key: "/works/OL1W", JobID: "job", Fields: map[string]any{"title": "A"}}

	require.NoError(t, s.Put(context.Background(), rec))
	once := s.Keys()
	require.NoError(t, s.Put(context.Background(), rec))

	assert.Equal(t, once, s.Keys())
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 2, s.Writes())
	got, ok := s.Get("/works/OL1W")
	require.True(t, ok)
	assert.Equal(t, "A", got.Fields["title"])
}

func TestRetryingGivesUpOnPermanentError(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	inner := mocks.NewMockRecordStore(ctrl)
	inner.EXPECT().Put(gomock.Any(), gomock.Any()).Return(crawler.Permanent(errors.New("json: unsupported type"))).Times(1)

	s := store.NewRetrying(inner, 5, time.Second, time.Second)
	err := s.Put(context.Background(), models.Record{Key: "k5"})

	var storeErr *crawler.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, 1, storeErr.Attempts)
	assert.True(t, crawler.IsPermanent(err))
}

func TestMemoryRecordStoreKeepsFirstFetchedAt(t *testing.T) {
	s := store.NewMemoryRecordStore()
	first := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Put(context.Background(), models.Record{Key: "k", FetchedAt: first}))
	require.NoError(t, s.Put(context.Background(), models.Record{Key: "k", FetchedAt: first.Add(time.Minute)}))

	got, ok := s.Get("k")
	require.True(t, ok)
	assert.True(t, got.FetchedAt.Equal(first))
}
