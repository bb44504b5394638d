// Package outbox runs slow side effects, such as supplier emails, on a
// bounded worker pool with retries so the conversation never waits on them.
package outbox

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/orderbot/core/collab"
	"github.com/m3rciful/orderbot/core/logger"
	"github.com/m3rciful/orderbot/core/netutil"
)

var (
	// ErrQueueClosed is returned when enqueue is attempted after Close.
	ErrQueueClosed = errors.New("outbox: queue closed")
	// ErrQueueFull indicates the queue is saturated and the job was not accepted.
	ErrQueueFull = errors.New("outbox: queue full")
)

// Options controls the behaviour of the outbox.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent retrying a single job.
	MaxDuration time.Duration
}

// Job is an idempotent unit of work; it receives a context bounded by MaxDuration.
type Job func(ctx context.Context) error

type job struct {
	ctx    context.Context
	action string
	target string
	run    Job
}

// Outbox executes jobs asynchronously with retries.
type Outbox struct {
	opts Options
	jobs chan job
	stop chan struct{}
	once sync.Once
	mu   sync.RWMutex
	wg   sync.WaitGroup
	errs atomic.Uint64
	done atomic.Uint64
}

// New starts an outbox with defaults for zeroed options.
func New(opts Options) *Outbox {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 30 * time.Second
	}

	o := &Outbox{
		opts: opts,
		jobs: make(chan job, opts.QueueSize),
		stop: make(chan struct{}),
	}
	o.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go o.worker()
	}
	return o
}

// Enqueue schedules run. Request-scoped values of ctx are kept for logging
// but its cancellation is not, so jobs outlive the inbound request.
func (o *Outbox) Enqueue(ctx context.Context, action, target string, run Job) error {
	if run == nil {
		return errors.New("outbox: nil job")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	select {
	case <-o.stop:
		return ErrQueueClosed
	default:
	}

	j := job{ctx: context.WithoutCancel(ctx), action: action, target: target, run: run}
	select {
	case o.jobs <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// ErrorCount returns the number of jobs that failed after all attempts.
func (o *Outbox) ErrorCount() uint64 { return o.errs.Load() }

// DoneCount returns the number of jobs that succeeded.
func (o *Outbox) DoneCount() uint64 { return o.done.Load() }

// Close stops accepting jobs and waits for queued ones to finish.
func (o *Outbox) Close() {
	o.once.Do(func() {
		o.mu.Lock()
		close(o.stop)
		close(o.jobs)
		o.mu.Unlock()
		o.wg.Wait()
	})
}

// Run blocks until ctx is done, then drains the queue.
func (o *Outbox) Run(ctx context.Context) error {
	<-ctx.Done()
	o.Close()
	logger.Info(context.Background(), "outbox", "outbox.stopped",
		slog.Uint64("done", o.DoneCount()),
		slog.Uint64("failed", o.ErrorCount()),
	)
	return nil
}

func (o *Outbox) worker() {
	defer o.wg.Done()
	for j := range o.jobs {
		o.handleJob(j)
	}
}

func (o *Outbox) handleJob(j job) {
	ctx := j.ctx
	deadlineCtx, cancel := context.WithTimeout(ctx, o.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	logger.Debug(ctx, "outbox", "job.start", jobAttrs(j)...)

	var (
		lastErr       error
		failureLogged bool
	)
	attempts := o.opts.MaxRetries + 1

attemptLoop:
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := deadlineCtx.Err(); err != nil {
			lastErr = err
			break
		}

		if err := j.run(deadlineCtx); err != nil {
			lastErr = err
			if !netutil.ShouldRetry(err) || attempt == attempts {
				logFailure(ctx, j, lastErr, attempt, time.Since(start))
				failureLogged = true
				break
			}

			delay := o.opts.RetryBackoff * time.Duration(attempt)
			timer := time.NewTimer(delay)
			select {
			case <-deadlineCtx.Done():
				timer.Stop()
				lastErr = deadlineCtx.Err()
				logFailure(ctx, j, lastErr, attempt, time.Since(start))
				failureLogged = true
				break attemptLoop
			case <-timer.C:
			}
			logger.Debug(ctx, "outbox", "job.retry.backoff",
				append(jobAttrs(j),
					slog.Int("attempt", attempt),
					slog.Duration("delay", delay),
				)...,
			)
			continue
		}

		o.done.Add(1)
		attrs := append(jobAttrs(j), slog.Int("attempt", attempt), slog.Duration("took", logger.Took(start)))
		logger.Info(ctx, "outbox", "job.done", attrs...)
		return
	}

	if lastErr != nil {
		o.errs.Add(1)
		if !failureLogged {
			logFailure(ctx, j, lastErr, attempts, time.Since(start))
		}
	}
}

func jobAttrs(j job) []slog.Attr {
	attrs := []slog.Attr{slog.String("action", j.action)}
	if j.target != "" {
		attrs = append(attrs, slog.String("target", j.target))
	}
	return attrs
}

func logFailure(ctx context.Context, j job, err error, attempts int, elapsed time.Duration) {
	attrs := append(jobAttrs(j),
		slog.String("status", "fail"),
		slog.String("err", netutil.SanitizeError(err)),
		slog.String("err_kind", errorKind(err)),
		slog.Int("attempts", attempts),
		slog.Duration("took", logger.RoundMS(elapsed)),
	)
	logger.Error(ctx, "outbox", "job.fail", attrs...)
}

func errorKind(err error) string {
	if k := collab.KindOf(err); k != collab.KindOther {
		return string(k)
	}
	return netutil.ClassifyError(err)
}
