package store

import (
	"context"
	"errors"
	"time"

	"relentless-relay/internal/crawler"
	"relentless-relay/internal/models"
)

// Retrying wraps a RecordStore with a small, fixed local retry budget.
// After retryMax retries the last error is returned as a *crawler.StoreError.
// Errors marked crawler.Permanent are not retried.
type Retrying struct {
	inner         crawler.RecordStore
	retryMax      int
	retryBase     time.Duration
	retryMaxDelay time.Duration
}

// NewRetrying builds a Retrying store. retryMax < 0 is treated as 0.
func NewRetrying(inner crawler.RecordStore, retryMax int, retryBase, retryMaxDelay time.Duration) *Retrying {
	if retryMax < 0 {
		retryMax = 0
	}
	return &Retrying{
		inner:         inner,
		retryMax:      retryMax,
		retryBase:     retryBase,
		retryMaxDelay: retryMaxDelay,
	}
}

// Put writes rec, retrying transient failures with capped exponential backoff.
func (r *Retrying) Put(ctx context.Context, rec models.Record) error {
	delay := r.retryBase
	attempts := 0
	for {
		err := r.inner.Put(ctx, rec)
		if err == nil {
			return nil
		}
		attempts++
		if attempts > r.retryMax || ctx.Err() != nil || errors.Is(err, context.Canceled) || crawler.IsPermanent(err) {
			return &crawler.StoreError{Key: rec.Key, Attempts: attempts, Err: err}
		}
		if delay > 0 {
			if r.retryMaxDelay > 0 && delay > r.retryMaxDelay {
				delay = r.retryMaxDelay
			}
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return &crawler.StoreError{Key: rec.Key, Attempts: attempts, Err: ctx.Err()}
			case <-timer.C:
			}
			delay *= 2
		}
	}
}
