// Package session models the per-customer order conversation and the stores
// that hold it.
package session

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/orderbot/core/catalog"
)

// State is a step of the order conversation.
type State string

const (
	// StateSelectingItems waits for a comma separated list of item numbers.
	StateSelectingItems State = "SELECTING_ITEMS"
	// StateCollectingQuantity waits for the quantity of the item at Cursor.
	StateCollectingQuantity State = "COLLECTING_QUANTITY"
	// StateAwaitingConfirmation waits for "confirm" or "cancel".
	StateAwaitingConfirmation State = "AWAITING_CONFIRMATION"
	// StateAwaitingPayment waits for a payment screenshot.
	StateAwaitingPayment State = "AWAITING_PAYMENT"
	// StateAwaitingAddress waits for the delivery address.
	StateAwaitingAddress State = "AWAITING_ADDRESS"
)

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	switch s {
	case StateSelectingItems, StateCollectingQuantity, StateAwaitingConfirmation,
		StateAwaitingPayment, StateAwaitingAddress:
		return true
	}
	return false
}

// PaymentPendingVerification marks a screenshot that a human still has to check.
const PaymentPendingVerification = "PENDING_VERIFICATION"

// LineItem is one catalog item in the order. Quantity is zero while pending.
type LineItem struct {
	Item     catalog.Item    `json:"item"`
	Quantity decimal.Decimal `json:"quantity"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// Pending reports whether the quantity is still to be collected.
func (li LineItem) Pending() bool { return !li.Quantity.IsPositive() }

// WithQuantity returns a completed copy of li.
func (li LineItem) WithQuantity(q decimal.Decimal) LineItem {
	li.Quantity = q
	li.Subtotal = q.Mul(li.Item.UnitPrice)
	return li
}

// Session is the in-progress order of one customer.
type Session struct {
	CustomerID         string          `json:"customer_id"`
	State              State           `json:"state"`
	Items              []LineItem      `json:"items"`
	Cursor             int             `json:"cursor"`
	OrderID            string          `json:"order_id,omitempty"`
	Total              decimal.Decimal `json:"total"`
	PaymentOrderID     string          `json:"payment_order_id,omitempty"`
	PaymentRequestSent bool            `json:"payment_request_sent"`
	PaymentStatus      string          `json:"payment_status,omitempty"`
	PaymentReference   string          `json:"payment_reference,omitempty"`
	ScreenshotRef      string          `json:"screenshot_ref,omitempty"`
	PaymentTime        time.Time       `json:"payment_time,omitzero"`
	Address            string          `json:"address,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// New starts a session in the item selection step.
func New(customerID string, now time.Time) *Session {
	return &Session{
		CustomerID: customerID,
		State:      StateSelectingItems,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Clone returns a deep copy so stores never share item slices with callers.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.Items != nil {
		out.Items = make([]LineItem, len(s.Items))
		copy(out.Items, s.Items)
	}
	return &out
}

// Current returns the line item awaiting a quantity.
func (s *Session) Current() (LineItem, bool) {
	if s.Cursor < 0 || s.Cursor >= len(s.Items) {
		return LineItem{}, false
	}
	return s.Items[s.Cursor], true
}

// ComputeTotal sums the subtotals of all line items.
func (s *Session) ComputeTotal() decimal.Decimal {
	total := decimal.Zero
	for _, li := range s.Items {
		total = total.Add(li.Subtotal)
	}
	return total
}
