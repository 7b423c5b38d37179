package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	done := make(chan string, 1)
	q := NewQueue("reports", func(_ context.Context, job Job) error {
		done <- job.ID
		return nil
	}, QueueConfig{Workers: 2})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "job-1", Type: "attendance"}))
	select {
	case id := <-done:
		assert.Equal(t, "job-1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("job was not processed")
	}
}

func TestQueueRetriesThenReportsFailure(t *testing.T) {
	var attempts int32
	failed := make(chan Job, 1)
	q := NewQueue("reports", func(_ context.Context, _ Job) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("disk full")
	}, QueueConfig{
		MaxRetries: 2,
		RetryDelay: 5 * time.Millisecond,
		OnFailure: func(_ context.Context, job Job, _ error) {
			failed <- job
		},
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "job-2"}))
	select {
	case job := <-failed:
		assert.Equal(t, "job-2", job.ID)
		assert.Equal(t, 3, job.Attempt)
		assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	case <-time.After(2 * time.Second):
		t.Fatal("failure handler not called")
	}
}

func TestEnqueueRequiresStartedQueue(t *testing.T) {
	q := NewQueue("reports", func(context.Context, Job) error { return nil }, QueueConfig{})
	err := q.Enqueue(Job{ID: "x"})
	assert.ErrorIs(t, err, ErrQueueStopped)
}

func TestQueueRecoversFromPanickingHandler(t *testing.T) {
	failed := make(chan error, 1)
	q := NewQueue("reports", func(_ context.Context, _ Job) error {
		panic("nil policy")
	}, QueueConfig{
		OnFailure: func(_ context.Context, _ Job, err error) {
			failed <- err
		},
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "job-3"}))
	select {
	case err := <-failed:
		assert.Contains(t, err.Error(), "nil policy")
	case <-time.After(2 * time.Second):
		t.Fatal("panic was not reported as failure")
	}
}

func TestQueueBackoff(t *testing.T) {
	q := NewQueue("reports", func(context.Context, Job) error { return nil }, QueueConfig{RetryDelay: 10 * time.Second})
	assert.Equal(t, 10*time.Second, q.backoff(1))
	assert.Equal(t, 20*time.Second, q.backoff(2))
	assert.Equal(t, 40*time.Second, q.backoff(3))
	assert.Equal(t, maxRetryDelay, q.backoff(4))
}
