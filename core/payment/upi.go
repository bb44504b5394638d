package payment

import (
	"context"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/m3rciful/orderbot/core/config"
)

// UPI is the fallback gateway used without Razorpay credentials. Orders are
// local identifiers; the hosted pay page renders a UPI QR code for them.
type UPI struct {
	payeeID   string
	payeeName string
	newID     func() string
}

// NewUPI builds the fallback gateway for the given VPA.
func NewUPI(cfg config.PaymentConfig, shopName string) *UPI {
	return &UPI{
		payeeID:   cfg.UPIID,
		payeeName: shopName,
		newID: func() string {
			return "upi_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
		},
	}
}

// Name implements Gateway.
func (u *UPI) Name() string { return config.ProviderUPI }

// CreateOrder implements Gateway.
func (u *UPI) CreateOrder(_ context.Context, _ OrderRequest) (string, error) {
	return u.newID(), nil
}

// URI returns the upi://pay deep link for an order.
func (u *UPI) URI(orderID string, amount decimal.Decimal, currency string) string {
	return UPIURI(u.payeeID, u.payeeName, orderID, amount, currency)
}

// UPIURI builds upi://pay?pa=..&pn=..&am=..&cu=..&tn=Order%20<id>.
func UPIURI(payeeID, payeeName, orderID string, amount decimal.Decimal, currency string) string {
	var b strings.Builder
	b.WriteString("upi://pay?pa=")
	b.WriteString(url.PathEscape(payeeID))
	b.WriteString("&pn=")
	b.WriteString(url.PathEscape(payeeName))
	b.WriteString("&am=")
	b.WriteString(amount.StringFixed(2))
	b.WriteString("&cu=")
	b.WriteString(currency)
	b.WriteString("&tn=")
	b.WriteString(url.PathEscape("Order " + orderID))
	return b.String()
}
