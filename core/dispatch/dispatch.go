// Package dispatch runs inbound events through the conversation engine and
// executes the resulting actions against the collaborators.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/orderbot/core/archive"
	"github.com/m3rciful/orderbot/core/conversation"
	"github.com/m3rciful/orderbot/core/logger"
	"github.com/m3rciful/orderbot/core/media"
	"github.com/m3rciful/orderbot/core/messaging"
	"github.com/m3rciful/orderbot/core/notify"
	"github.com/m3rciful/orderbot/core/outbox"
	"github.com/m3rciful/orderbot/core/payment"
	"github.com/m3rciful/orderbot/core/ratelimit"
	"github.com/m3rciful/orderbot/core/session"
)

const defaultLockTimeout = 10 * time.Second

// Queue runs jobs in the background; *outbox.Outbox implements it.
type Queue interface {
	Enqueue(ctx context.Context, action, target string, run outbox.Job) error
}

// Deps lists the collaborators a Dispatcher drives.
type Deps struct {
	Engine   *conversation.Engine
	Store    session.Store
	Sender   messaging.Sender
	Gateway  payment.Gateway
	Media    media.Fetcher
	Notifier notify.Notifier
	Archiver archive.Archiver
	// Queue defers notifications; nil runs them inline.
	Queue Queue
	// Limiter drops customers sending faster than allowed; nil disables it.
	Limiter     *ratelimit.Limiter
	LockTimeout time.Duration
}

// Dispatcher serialises events per customer and executes decisions.
type Dispatcher struct {
	deps Deps
	now  func() time.Time
}

// New builds a dispatcher. Engine and Store are required.
func New(deps Deps) *Dispatcher {
	if deps.LockTimeout <= 0 {
		deps.LockTimeout = defaultLockTimeout
	}
	if deps.Archiver == nil {
		deps.Archiver = archive.None{}
	}
	return &Dispatcher{deps: deps, now: time.Now}
}

// Dispatch handles one inbound event. Business failures are answered inside
// the conversation; the returned error reports only store failures, and
// transports acknowledge the event either way.
func (d *Dispatcher) Dispatch(ctx context.Context, ev conversation.Event) error {
	if logger.RIDFrom(ctx) == "" {
		ctx = logger.WithRID(ctx, logger.NewRID())
	}
	ctx = logger.WithEventMeta(ctx, ev.Channel, ev.CustomerID, ev.MessageID)
	start := time.Now()

	if ev.CustomerID == "" {
		logger.Warn(ctx, "dispatch", "event.rejected", slog.String("reason", "empty customer id"))
		return nil
	}
	if !d.deps.Limiter.Allow(ev.CustomerID) {
		logger.Warn(ctx, "dispatch", "event.rate_limited", slog.String("kind", string(ev.Kind)))
		return nil
	}

	lockCtx, cancel := context.WithTimeout(ctx, d.deps.LockTimeout)
	unlock, err := d.deps.Store.Lock(lockCtx, ev.CustomerID)
	cancel()
	if err != nil {
		logger.Error(ctx, "dispatch", "session.lock", slog.String("status", "fail"), slog.String("err", err.Error()))
		return fmt.Errorf("dispatch: lock %s: %w", logger.MaskCustomer(ev.CustomerID), err)
	}
	defer unlock()

	current, err := d.deps.Store.Get(ctx, ev.CustomerID)
	if errors.Is(err, session.ErrNotFound) {
		current, err = nil, nil
	}
	if err != nil {
		logger.Error(ctx, "dispatch", "session.load", slog.String("status", "fail"), slog.String("err", err.Error()))
		return fmt.Errorf("dispatch: load session: %w", err)
	}

	dec := d.deps.Engine.Handle(current, ev)
	dec = d.execute(ctx, ev.CustomerID, dec)

	if err := d.persist(ctx, ev.CustomerID, dec); err != nil {
		logger.Error(ctx, "dispatch", "session.persist", slog.String("status", "fail"), slog.String("err", err.Error()))
		return err
	}

	logger.Info(ctx, "dispatch", "event.handled",
		slog.String("status", "ok"),
		slog.String("kind", string(ev.Kind)),
		slog.String("from_state", stateOf(current)),
		slog.String("state", stateOf(dec.Session)),
		slog.Bool("deleted", dec.Delete),
		slog.Duration("took", logger.Took(start)),
	)
	return nil
}

func (d *Dispatcher) persist(ctx context.Context, customerID string, dec conversation.Decision) error {
	switch {
	case dec.Delete:
		if err := d.deps.Store.Delete(ctx, customerID); err != nil {
			return fmt.Errorf("dispatch: delete session: %w", err)
		}
	case dec.Changed && dec.Session != nil:
		if err := d.deps.Store.Save(ctx, dec.Session); err != nil {
			return fmt.Errorf("dispatch: save session: %w", err)
		}
	}
	return nil
}

func stateOf(s *session.Session) string {
	if s == nil {
		return "NONE"
	}
	return string(s.State)
}
