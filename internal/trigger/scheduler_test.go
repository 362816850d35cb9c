package trigger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relentless-relay/internal/models"
	"relentless-relay/internal/pipeline"
)

type blockingRunner struct {
	calls   atomic.Int32
	release chan struct{}
	resumes []*models.ContinuationMessage
	mu      sync.Mutex
	err     error
}

func (r *blockingRunner) Run(ctx context.Context, resume *models.ContinuationMessage) (pipeline.Outcome, error) {
	r.calls.Add(1)
	r.mu.Lock()
	r.resumes = append(r.resumes, resume)
	r.mu.Unlock()
	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
		}
	}
	return pipeline.Outcome{JobID: "job", State: pipeline.StateDone}, r.err
}

func TestNewRejectsBadSchedule(t *testing.T) {
	_, err := New("every now and then", &blockingRunner{}, 0, nil)
	assert.Error(t, err)

	_, err = New("*/5 * * * *", nil, 0, nil)
	assert.Error(t, err)
}

func TestTickStartsJobFromScratch(t *testing.T) {
	runner := &blockingRunner{err: errors.New("boom")}
	var gotErr error
	s, err := New("@hourly", runner, time.Second, func(_ pipeline.Outcome, err error) { gotErr = err })
	require.NoError(t, err)

	s.job.Run()
	assert.Equal(t, int32(1), runner.calls.Load())
	require.Len(t, runner.resumes, 1)
	assert.Nil(t, runner.resumes[0], "scheduled ticks start without a cursor")
	assert.EqualError(t, gotErr, "boom")
}

func TestOverlappingTickIsSkipped(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{})}
	s, err := New("*/5 * * * *", runner, 0, nil)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		s.job.Run()
		close(done)
	}()
	require.Eventually(t, func() bool { return runner.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	s.job.Run()
	assert.Equal(t, int32(1), runner.calls.Load())

	close(runner.release)
	<-done
	s.job.Run()
	assert.Equal(t, int32(2), runner.calls.Load())
}

func TestStartAndStop(t *testing.T) {
	s, err := New("0 3 * * *", &blockingRunner{}, 0, nil)
	require.NoError(t, err)

	s.Start()
	assert.False(t, s.Next().IsZero())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}
