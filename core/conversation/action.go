package conversation

import (
	"github.com/shopspring/decimal"

	"github.com/m3rciful/orderbot/core/session"
)

// EventKind tells text messages from media uploads.
type EventKind string

const (
	// EventText is a plain text message.
	EventText EventKind = "text"
	// EventImage is a photo or image document.
	EventImage EventKind = "image"
)

// Event is a normalised inbound message.
type Event struct {
	Channel    string
	CustomerID string
	Kind       EventKind
	Text       string
	// MediaRef identifies the uploaded image at the channel, e.g. a WhatsApp media id.
	MediaRef  string
	MessageID string
}

// ActionKind names what the dispatcher must do.
type ActionKind string

const (
	// ActionSendMessage sends Text to the customer.
	ActionSendMessage ActionKind = "send_message"
	// ActionCreatePaymentOrder asks the payment gateway for an order; the
	// outcome is fed back through PaymentOrderCreated or PaymentOrderFailed.
	ActionCreatePaymentOrder ActionKind = "create_payment_order"
	// ActionNotifyPaymentProof forwards the payment screenshot to the supplier.
	ActionNotifyPaymentProof ActionKind = "notify_payment_proof"
	// ActionNotifyOrder hands the completed order to fulfillment.
	ActionNotifyOrder ActionKind = "notify_order"
	// ActionArchiveOrder persists the completed order record.
	ActionArchiveOrder ActionKind = "archive_order"
)

// PaymentRequest describes the gateway order to create.
type PaymentRequest struct {
	OrderID    string
	CustomerID string
	Amount     decimal.Decimal
	Currency   string
	Items      []session.LineItem
}

// PaymentProof points at the screenshot uploaded for an order.
type PaymentProof struct {
	OrderID    string
	CustomerID string
	Amount     decimal.Decimal
	MediaRef   string
}

// Action is a declarative side effect.
type Action struct {
	Kind ActionKind
	Text string
	// QuickReplies are suggested answers; transports without buttons ignore them.
	QuickReplies []string
	Payment      *PaymentRequest
	Proof        *PaymentProof
	Order        *session.Order
}

// Decision is the outcome of feeding one event into the engine.
type Decision struct {
	// Session is the new snapshot, nil when there is none.
	Session *session.Session
	// Changed reports that Session must be persisted.
	Changed bool
	// Delete reports that the customer's session must be removed.
	Delete  bool
	Actions []Action
}

func send(text string, replies ...string) Action {
	return Action{Kind: ActionSendMessage, Text: text, QuickReplies: replies}
}
