// Package payment creates gateway orders for confirmed sessions.
package payment

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/orderbot/core/session"
)

// OrderRequest describes a confirmed order awaiting payment.
type OrderRequest struct {
	OrderID    string
	CustomerID string
	Amount     decimal.Decimal
	Currency   string
	Items      []session.LineItem
}

// Gateway creates a payment order and returns the gateway's identifier.
type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (string, error)
	// Name identifies the provider in logs and on the hosted pay page.
	Name() string
}

var maxMinor = decimal.NewFromInt(math.MaxInt64)

// MinorUnits converts an amount to paise, rounding half away from zero.
func MinorUnits(amount decimal.Decimal) (int64, error) {
	minor := amount.Mul(decimal.NewFromInt(100)).Round(0)
	if minor.IsNegative() || minor.GreaterThan(maxMinor) {
		return 0, fmt.Errorf("payment: amount %s out of range", amount.String())
	}
	return minor.IntPart(), nil
}

// ItemsSummary renders "Sunflower Oil x 2L, Mustard Oil x 1L".
func ItemsSummary(items []session.LineItem, unit string) string {
	parts := make([]string, 0, len(items))
	for _, li := range items {
		parts = append(parts, fmt.Sprintf("%s x %s%s", li.Item.Name, li.Quantity.String(), unit))
	}
	return strings.Join(parts, ", ")
}
