// Package conversation decides how the bot answers each customer message.
//
// The engine is a pure function of (session, event): it never performs I/O
// and returns a Decision listing the side effects for the dispatcher.
package conversation

import (
	"strings"
	"time"

	"github.com/m3rciful/orderbot/core/catalog"
	"github.com/m3rciful/orderbot/core/session"
)

// Options carries shop wording and links used in replies.
type Options struct {
	ShopName       string
	Currency       string
	CurrencySymbol string
	Unit           string
	BaseURL        string
	OrderPrefix    string
	SupportEmail   string
}

// Engine is the order conversation state machine.
type Engine struct {
	catalog *catalog.Catalog
	opts    Options
	ids     *OrderIDs
	now     func() time.Time
}

// New builds an engine over cat.
func New(cat *catalog.Catalog, opts Options) *Engine {
	return &Engine{
		catalog: cat,
		opts:    opts,
		ids:     NewOrderIDs(opts.OrderPrefix),
		now:     time.Now,
	}
}

// WithClock replaces the time source; used by tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Handle processes one inbound event. current may be nil when the customer
// has no order in progress; it is never modified.
func (e *Engine) Handle(current *session.Session, ev Event) Decision {
	s := current.Clone()
	text := ev.Text
	in := intentNone
	if ev.Kind == EventText {
		in = classify(text)
	}

	switch in {
	case intentGreeting:
		return keep(s, send(e.welcomeText(), "menu", "help"))
	case intentHelp:
		return keep(s, send(e.helpText(), "menu"))
	case intentMenu:
		fresh := session.New(ev.CustomerID, e.now())
		if s != nil {
			fresh.CreatedAt = s.CreatedAt
		}
		return changed(fresh, send(e.menuText()))
	}

	if s == nil {
		return keep(nil, e.fallback())
	}

	switch s.State {
	case session.StateSelectingItems:
		if ev.Kind == EventText {
			return e.selectItems(s, text)
		}
	case session.StateCollectingQuantity:
		if ev.Kind == EventText {
			return e.collectQuantity(s, text)
		}
	case session.StateAwaitingConfirmation:
		if ev.Kind == EventText {
			return e.confirmation(s, in)
		}
	case session.StateAwaitingPayment:
		return e.awaitPayment(s, ev, in)
	case session.StateAwaitingAddress:
		if ev.Kind == EventText {
			return e.collectAddress(s, text)
		}
	}
	return keep(s, e.fallback())
}

func (e *Engine) selectItems(s *session.Session, text string) Decision {
	ids := parseItemIDs(text, func(id int) bool {
		_, ok := e.catalog.FindByID(id)
		return ok
	})
	if len(ids) == 0 {
		return keep(s, send(invalidSelectionText))
	}
	s.Items = make([]session.LineItem, 0, len(ids))
	for _, id := range ids {
		item, _ := e.catalog.FindByID(id)
		s.Items = append(s.Items, session.LineItem{Item: item})
	}
	s.Cursor = 0
	s.State = session.StateCollectingQuantity
	return changed(s, send(e.quantityPrompt(s.Items[0])))
}

func (e *Engine) collectQuantity(s *session.Session, text string) Decision {
	current, ok := s.Current()
	if !ok {
		// Corrupt snapshot; restart selection rather than guess.
		s.State = session.StateSelectingItems
		s.Items, s.Cursor = nil, 0
		return changed(s, send(invalidSelectionText))
	}
	q, ok := parseQuantity(text, e.opts.Unit)
	if !ok {
		return keep(s, send(invalidQuantityText))
	}
	s.Items[s.Cursor] = current.WithQuantity(q)
	s.Cursor++
	if next, more := s.Current(); more {
		return changed(s, send(e.quantityPrompt(next)))
	}
	return e.summarize(s)
}

// summarize fixes the order id and total; both stay stable for the rest of
// the session.
func (e *Engine) summarize(s *session.Session) Decision {
	if s.OrderID == "" {
		s.OrderID = e.ids.Next(e.now())
	}
	s.Total = s.ComputeTotal()
	s.State = session.StateAwaitingConfirmation
	return changed(s, send(e.summaryText(s), "confirm", "cancel"))
}

func (e *Engine) confirmation(s *session.Session, in intent) Decision {
	switch in {
	case intentConfirm:
		if s.PaymentOrderID != "" {
			return e.requestPayment(s)
		}
		return keep(s, Action{
			Kind: ActionCreatePaymentOrder,
			Payment: &PaymentRequest{
				OrderID:    s.OrderID,
				CustomerID: s.CustomerID,
				Amount:     s.Total,
				Currency:   e.opts.Currency,
				Items:      append([]session.LineItem(nil), s.Items...),
			},
		})
	case intentCancel:
		return Decision{Delete: true, Actions: []Action{send(cancelledText)}}
	}
	return keep(s, send(confirmOrCancelText, "confirm", "cancel"))
}

// PaymentOrderCreated records the gateway order produced for an
// ActionCreatePaymentOrder and sends payment instructions.
func (e *Engine) PaymentOrderCreated(current *session.Session, paymentOrderID string) Decision {
	s := current.Clone()
	if s == nil || s.State != session.StateAwaitingConfirmation {
		return keep(s)
	}
	if s.PaymentOrderID == "" {
		s.PaymentOrderID = paymentOrderID
	}
	return e.requestPayment(s)
}

// PaymentOrderFailed reports a gateway failure. The session keeps its state
// so the customer can confirm again.
func (e *Engine) PaymentOrderFailed(current *session.Session, _ error) Decision {
	return keep(current.Clone(), send(paymentErrorText))
}

func (e *Engine) requestPayment(s *session.Session) Decision {
	s.State = session.StateAwaitingPayment
	if s.PaymentRequestSent {
		return changed(s, send(e.paymentReminderText(s)))
	}
	s.PaymentRequestSent = true
	return changed(s, send(e.paymentRequestText(s)))
}

func (e *Engine) awaitPayment(s *session.Session, ev Event, in intent) Decision {
	switch {
	case ev.Kind == EventImage:
		s.PaymentTime = e.now()
		s.PaymentStatus = session.PaymentPendingVerification
		s.PaymentReference = "payment screenshot"
		s.ScreenshotRef = ev.MediaRef
		s.State = session.StateAwaitingAddress
		return changed(s,
			Action{Kind: ActionNotifyPaymentProof, Proof: &PaymentProof{
				OrderID:    s.OrderID,
				CustomerID: s.CustomerID,
				Amount:     s.Total,
				MediaRef:   ev.MediaRef,
			}},
			send(e.proofReceivedText(s)),
		)
	case in == intentPaid:
		return keep(s, send(paidWithoutProofText))
	}
	return keep(s, send(e.paymentReminderText(s)))
}

func (e *Engine) collectAddress(s *session.Session, text string) Decision {
	address := strings.TrimSpace(text)
	if address == "" {
		return keep(s, send(addressPromptText))
	}
	s.Address = address
	order := s.Complete(e.opts.Currency, e.now())
	return Decision{
		Delete: true,
		Actions: []Action{
			send(e.completedText(s)),
			{Kind: ActionNotifyOrder, Order: &order},
			{Kind: ActionArchiveOrder, Order: &order},
		},
	}
}

func (e *Engine) fallback() Action {
	return send(fallbackText, "menu", "help")
}

func keep(s *session.Session, actions ...Action) Decision {
	return Decision{Session: s, Actions: actions}
}

func changed(s *session.Session, actions ...Action) Decision {
	return Decision{Session: s, Changed: true, Actions: actions}
}
