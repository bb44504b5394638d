// Package notify delivers order and payment-proof emails to the supplier.
package notify

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/orderbot/core/session"
)

// Notifier forwards business events to the human fulfillment channel.
type Notifier interface {
	SendOrderNotification(ctx context.Context, order session.Order) error
	SendPaymentProof(ctx context.Context, proof Proof) error
}

// Proof is a payment screenshot awaiting manual verification.
type Proof struct {
	OrderID    string
	CustomerID string
	Amount     decimal.Decimal
	Image      []byte
	ReceivedAt time.Time
}

// Options controls how amounts and quantities are rendered.
type Options struct {
	ShopName       string
	CurrencySymbol string
	Unit           string
}

// AttachmentName is the file name of the forwarded screenshot.
func AttachmentName(orderID string) string {
	return "payment-screenshot-" + orderID + ".jpg"
}
