package session

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is the record of a completed session handed to fulfillment and the archive.
type Order struct {
	OrderID           string          `json:"order_id"`
	CustomerID        string          `json:"customer_id"`
	Items             []LineItem      `json:"items"`
	Total             decimal.Decimal `json:"total"`
	Currency          string          `json:"currency"`
	Address           string          `json:"address"`
	PaymentOrderID    string          `json:"payment_order_id,omitempty"`
	PaymentStatus     string          `json:"payment_status,omitempty"`
	PaymentReference  string          `json:"payment_reference,omitempty"`
	ScreenshotRef     string          `json:"screenshot_ref,omitempty"`
	PaymentTime       time.Time       `json:"payment_time,omitzero"`
	NeedsVerification bool            `json:"needs_verification"`
	CompletedAt       time.Time       `json:"completed_at"`
}

// Complete snapshots the session into an order record.
func (s *Session) Complete(currency string, now time.Time) Order {
	items := make([]LineItem, len(s.Items))
	copy(items, s.Items)
	return Order{
		OrderID:           s.OrderID,
		CustomerID:        s.CustomerID,
		Items:             items,
		Total:             s.Total,
		Currency:          currency,
		Address:           s.Address,
		PaymentOrderID:    s.PaymentOrderID,
		PaymentStatus:     s.PaymentStatus,
		PaymentReference:  s.PaymentReference,
		ScreenshotRef:     s.ScreenshotRef,
		PaymentTime:       s.PaymentTime,
		NeedsVerification: s.PaymentStatus == PaymentPendingVerification,
		CompletedAt:       now,
	}
}
