package outbox

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/orderbot/core/collab"
)

func fastOptions() Options {
	return Options{QueueSize: 4, Workers: 1, MaxRetries: 3, RetryBackoff: time.Millisecond, MaxDuration: time.Second}
}

func TestOutboxRetriesTransientFailures(t *testing.T) {
	o := New(fastOptions())
	var calls atomic.Int32
	err := o.Enqueue(context.Background(), "email.order", "OIL-1", func(ctx context.Context) error {
		if calls.Add(1) < 3 {
			return collab.New("smtp", "send", collab.KindTransient, errors.New("421 try later"))
		}
		return nil
	})
	require.NoError(t, err)
	o.Close()

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, uint64(1), o.DoneCount())
	assert.Equal(t, uint64(0), o.ErrorCount())
}

func TestOutboxDoesNotRetryPermanentFailures(t *testing.T) {
	o := New(fastOptions())
	var calls atomic.Int32
	require.NoError(t, o.Enqueue(context.Background(), "email.order", "", func(ctx context.Context) error {
		calls.Add(1)
		return collab.New("smtp", "send", collab.KindAuthExpired, errors.New("535 bad credentials"))
	}))
	o.Close()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, uint64(1), o.ErrorCount())
}

func TestOutboxGivesUpAfterMaxRetries(t *testing.T) {
	opts := fastOptions()
	opts.MaxRetries = 1
	o := New(opts)
	var calls atomic.Int32
	require.NoError(t, o.Enqueue(context.Background(), "email.proof", "", func(ctx context.Context) error {
		calls.Add(1)
		return collab.New("smtp", "send", collab.KindTransient, errors.New("timeout"))
	}))
	o.Close()

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, uint64(1), o.ErrorCount())
}

func TestOutboxQueueFullAndClosed(t *testing.T) {
	o := New(Options{QueueSize: 1, Workers: 1, RetryBackoff: time.Millisecond, MaxDuration: time.Second})
	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, o.Enqueue(context.Background(), "block", "", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started
	noop := func(ctx context.Context) error { return nil }
	require.NoError(t, o.Enqueue(context.Background(), "queued", "", noop))
	assert.ErrorIs(t, o.Enqueue(context.Background(), "overflow", "", noop), ErrQueueFull)

	close(release)
	o.Close()
	assert.Equal(t, uint64(2), o.DoneCount())
	assert.ErrorIs(t, o.Enqueue(context.Background(), "late", "", noop), ErrQueueClosed)
}

func TestOutboxJobsOutliveRequestContext(t *testing.T) {
	o := New(fastOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var ran atomic.Bool
	require.NoError(t, o.Enqueue(ctx, "email.order", "", func(jobCtx context.Context) error {
		ran.Store(jobCtx.Err() == nil)
		return nil
	}))
	o.Close()
	assert.True(t, ran.Load())
}

func TestOutboxRunDrainsOnCancel(t *testing.T) {
	o := New(fastOptions())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()
	require.NoError(t, o.Enqueue(context.Background(), "email.order", "", func(context.Context) error { return nil }))
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, uint64(1), o.DoneCount())
}
