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
	done := make(chan string, 2)
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		done <- job.ID
		return nil
	}, QueueConfig{Workers: 2})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "a"}))
	require.NoError(t, q.Enqueue(Job{ID: "b"}))

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-done:
			seen[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("job not processed")
		}
	}
	assert.Equal(t, map[string]bool{"a": true, "b": true}, seen)
}

func TestQueueRetriesUntilSuccess(t *testing.T) {
	var calls int32
	done := make(chan struct{})
	q := NewQueue("retry", func(ctx context.Context, job Job) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}, QueueConfig{MaxRetries: 3, RetryDelay: 5 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "r"}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job never succeeded")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestQueueSkipsNonRetryableErrors(t *testing.T) {
	permanent := errors.New("permanent")
	var calls int32
	q := NewQueue("strict", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&calls, 1)
		return permanent
	}, QueueConfig{MaxRetries: 3, RetryDelay: time.Millisecond, Retryable: func(err error) bool {
		return !errors.Is(err, permanent)
	}})
	q.Start(context.Background())

	require.NoError(t, q.Enqueue(Job{ID: "p"}))
	time.Sleep(50 * time.Millisecond)
	q.Stop()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestQueueEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("idle", func(ctx context.Context, job Job) error { return nil }, QueueConfig{})
	assert.ErrorIs(t, q.Enqueue(Job{ID: "x"}), ErrQueueStopped)
}

func TestQueueReportsExhaustedJobs(t *testing.T) {
	transient := errors.New("transient")
	dropped := make(chan Job, 1)
	q := NewQueue("exhaust", func(ctx context.Context, job Job) error {
		return transient
	}, QueueConfig{MaxRetries: 1, RetryDelay: time.Millisecond, OnDrop: func(job Job, err error) {
		assert.ErrorIs(t, err, transient)
		dropped <- job
	}})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "e"}))
	select {
	case job := <-dropped:
		assert.Equal(t, "e", job.ID)
		assert.Equal(t, 2, job.Attempt)
	case <-time.After(2 * time.Second):
		t.Fatal("exhausted job not reported")
	}
}

func TestQueueStopAbandonsPendingRetry(t *testing.T) {
	called := make(chan struct{}, 1)
	var dropped []Job
	var dropErr error
	q := NewQueue("waiting", func(ctx context.Context, job Job) error {
		called <- struct{}{}
		return errors.New("busy")
	}, QueueConfig{MaxRetries: 3, RetryDelay: time.Hour, OnDrop: func(job Job, err error) {
		dropped = append(dropped, job)
		dropErr = err
	}})
	q.Start(context.Background())

	require.NoError(t, q.Enqueue(Job{ID: "w"}))
	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("job not processed")
	}

	stopped := make(chan struct{})
	go func() {
		q.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not return")
	}
	require.Len(t, dropped, 1)
	assert.Equal(t, "w", dropped[0].ID)
	assert.Equal(t, 1, dropped[0].Attempt)
	assert.ErrorIs(t, dropErr, ErrQueueStopped)
}

func TestQueueStopDropsBufferedJobs(t *testing.T) {
	running := make(chan struct{})
	var handled int32
	var dropped []string
	q := NewQueue("buffered", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&handled, 1)
		close(running)
		<-ctx.Done()
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 2, OnDrop: func(job Job, err error) {
		assert.ErrorIs(t, err, ErrQueueStopped)
		dropped = append(dropped, job.ID)
	}})
	q.Start(context.Background())

	require.NoError(t, q.Enqueue(Job{ID: "first"}))
	<-running
	require.NoError(t, q.Enqueue(Job{ID: "second"}))
	q.Stop()

	assert.Equal(t, int32(1), atomic.LoadInt32(&handled))
	assert.Equal(t, []string{"second"}, dropped)
}
