package dispatch

import (
	"context"
	"errors"
	"log/slog"

	"github.com/m3rciful/orderbot/core/collab"
	"github.com/m3rciful/orderbot/core/conversation"
	"github.com/m3rciful/orderbot/core/logger"
	"github.com/m3rciful/orderbot/core/messaging"
	"github.com/m3rciful/orderbot/core/notify"
	"github.com/m3rciful/orderbot/core/outbox"
	"github.com/m3rciful/orderbot/core/payment"
	"github.com/m3rciful/orderbot/core/session"
)

// execute runs dec.Actions in order. Payment creation feeds its outcome back
// into the engine, whose follow-up actions are appended to the queue. It
// returns the decision to persist.
func (d *Dispatcher) execute(ctx context.Context, customerID string, dec conversation.Decision) conversation.Decision {
	skipped := make(map[conversation.ActionKind]bool)
	actions := dec.Actions
	for i := 0; i < len(actions); i++ {
		a := actions[i]
		if skipped[a.Kind] {
			logger.Debug(ctx, "dispatch", "action.skipped", slog.String("action", string(a.Kind)))
			continue
		}
		var err error
		switch a.Kind {
		case conversation.ActionSendMessage:
			err = d.sendMessage(ctx, customerID, a)
		case conversation.ActionCreatePaymentOrder:
			var next conversation.Decision
			next, err = d.createPaymentOrder(ctx, dec.Session, a.Payment)
			dec.Session = next.Session
			dec.Changed = dec.Changed || next.Changed
			actions = append(actions, next.Actions...)
		case conversation.ActionNotifyPaymentProof:
			err = d.notifyPaymentProof(ctx, a.Proof)
		case conversation.ActionNotifyOrder:
			err = d.notifyOrder(ctx, a.Order)
		case conversation.ActionArchiveOrder:
			err = d.archiveOrder(ctx, a.Order)
		default:
			err = errors.New("unknown action")
		}
		if err != nil {
			logActionFailure(ctx, a.Kind, err)
			if collab.Unrecoverable(err) {
				skipped[a.Kind] = true
			}
		}
	}
	dec.Actions = actions
	return dec
}

func logActionFailure(ctx context.Context, kind conversation.ActionKind, err error) {
	attrs := []slog.Attr{
		slog.String("action", string(kind)),
		slog.String("status", "fail"),
		slog.String("err_kind", string(collab.KindOf(err))),
		slog.String("err", err.Error()),
	}
	switch {
	case collab.IsAuthExpired(err):
		logger.Error(ctx, "dispatch", "action.auth_expired", attrs...)
	case collab.KindOf(err) == collab.KindNotConfigured:
		logger.Warn(ctx, "dispatch", "action.not_configured", attrs...)
	default:
		logger.Error(ctx, "dispatch", "action.fail", attrs...)
	}
}

func (d *Dispatcher) sendMessage(ctx context.Context, customerID string, a conversation.Action) error {
	if d.deps.Sender == nil {
		return collab.New("messaging", "send", collab.KindNotConfigured, errors.New("no sender"))
	}
	return d.deps.Sender.Send(ctx, customerID, messaging.Message{
		Text:         a.Text,
		QuickReplies: a.QuickReplies,
	})
}

func (d *Dispatcher) createPaymentOrder(ctx context.Context, s *session.Session, req *conversation.PaymentRequest) (conversation.Decision, error) {
	engine := d.deps.Engine
	if req == nil {
		err := errors.New("payment request missing")
		return engine.PaymentOrderFailed(s, err), err
	}
	if d.deps.Gateway == nil {
		err := collab.New("payment", "create_order", collab.KindNotConfigured, errors.New("no gateway"))
		return engine.PaymentOrderFailed(s, err), err
	}
	id, err := d.deps.Gateway.CreateOrder(ctx, payment.OrderRequest{
		OrderID:    req.OrderID,
		CustomerID: req.CustomerID,
		Amount:     req.Amount,
		Currency:   req.Currency,
		Items:      req.Items,
	})
	if err != nil {
		return engine.PaymentOrderFailed(s, err), err
	}
	logger.Info(ctx, "pay", "order.created",
		slog.String("status", "ok"),
		slog.String("provider", d.deps.Gateway.Name()),
		slog.String("order_id", req.OrderID),
		slog.String("payment_order_id", id),
		slog.String("amount", req.Amount.String()),
	)
	return engine.PaymentOrderCreated(s, id), nil
}

func (d *Dispatcher) notifyPaymentProof(ctx context.Context, p *conversation.PaymentProof) error {
	if p == nil {
		return errors.New("payment proof missing")
	}
	if d.deps.Notifier == nil {
		return collab.New("notify", "payment_proof", collab.KindNotConfigured, errors.New("no notifier"))
	}
	proof := notify.Proof{
		OrderID:    p.OrderID,
		CustomerID: p.CustomerID,
		Amount:     p.Amount,
		ReceivedAt: d.now(),
	}
	mediaRef := p.MediaRef
	return d.enqueue(ctx, "email.payment_proof", p.OrderID, func(jobCtx context.Context) error {
		if proof.Image == nil && d.deps.Media != nil && mediaRef != "" {
			image, err := d.deps.Media.Fetch(jobCtx, mediaRef)
			switch {
			case err == nil:
				proof.Image = image
			case collab.KindOf(err) == collab.KindTransient:
				return err
			default:
				logger.Warn(jobCtx, "dispatch", "media.fetch",
					slog.String("status", "fail"),
					slog.String("err", err.Error()),
					slog.String("fallback", "email without attachment"),
				)
			}
		}
		return d.deps.Notifier.SendPaymentProof(jobCtx, proof)
	})
}

func (d *Dispatcher) notifyOrder(ctx context.Context, order *session.Order) error {
	if order == nil {
		return errors.New("order missing")
	}
	if d.deps.Notifier == nil {
		return collab.New("notify", "order", collab.KindNotConfigured, errors.New("no notifier"))
	}
	snapshot := *order
	return d.enqueue(ctx, "email.order", order.OrderID, func(jobCtx context.Context) error {
		return d.deps.Notifier.SendOrderNotification(jobCtx, snapshot)
	})
}

func (d *Dispatcher) archiveOrder(ctx context.Context, order *session.Order) error {
	if order == nil {
		return errors.New("order missing")
	}
	if err := d.deps.Archiver.Archive(ctx, *order); err != nil {
		return err
	}
	logger.Info(ctx, "archive", "order.archived", slog.String("status", "ok"), slog.String("order_id", order.OrderID))
	return nil
}

// enqueue hands run to the queue, or runs it inline without one.
func (d *Dispatcher) enqueue(ctx context.Context, action, target string, run outbox.Job) error {
	if d.deps.Queue == nil {
		return run(ctx)
	}
	return d.deps.Queue.Enqueue(ctx, action, target, run)
}
