package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/m3rciful/orderbot/core/session"
)

// Postgres inserts completed orders into the orders table.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres wraps an open database handle. The schema comes from migrations.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

type orderRow struct {
	OrderID           string          `db:"order_id"`
	CustomerID        string          `db:"customer_id"`
	Items             []byte          `db:"items"`
	Total             decimal.Decimal `db:"total"`
	Currency          string          `db:"currency"`
	Address           string          `db:"address"`
	PaymentOrderID    sql.NullString  `db:"payment_order_id"`
	PaymentStatus     sql.NullString  `db:"payment_status"`
	PaymentReference  sql.NullString  `db:"payment_reference"`
	ScreenshotRef     sql.NullString  `db:"screenshot_ref"`
	PaymentTime       sql.NullTime    `db:"payment_time"`
	NeedsVerification bool            `db:"needs_verification"`
	CompletedAt       time.Time       `db:"completed_at"`
}

const insertOrderSQL = `
INSERT INTO orders (order_id, customer_id, items, total, currency, address,
    payment_order_id, payment_status, payment_reference, screenshot_ref,
    payment_time, needs_verification, completed_at)
VALUES (:order_id, :customer_id, :items, :total, :currency, :address,
    :payment_order_id, :payment_status, :payment_reference, :screenshot_ref,
    :payment_time, :needs_verification, :completed_at)
ON CONFLICT (order_id) DO NOTHING`

const selectOrderSQL = `
SELECT order_id, customer_id, items, total, currency, address,
    payment_order_id, payment_status, payment_reference, screenshot_ref,
    payment_time, needs_verification, completed_at
FROM orders WHERE order_id = $1`

// Archive implements Archiver.
func (p *Postgres) Archive(ctx context.Context, order session.Order) error {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("archive: encode items: %w", err)
	}
	row := orderRow{
		OrderID:           order.OrderID,
		CustomerID:        order.CustomerID,
		Items:             items,
		Total:             order.Total,
		Currency:          order.Currency,
		Address:           order.Address,
		PaymentOrderID:    nullString(order.PaymentOrderID),
		PaymentStatus:     nullString(order.PaymentStatus),
		PaymentReference:  nullString(order.PaymentReference),
		ScreenshotRef:     nullString(order.ScreenshotRef),
		PaymentTime:       sql.NullTime{Time: order.PaymentTime, Valid: !order.PaymentTime.IsZero()},
		NeedsVerification: order.NeedsVerification,
		CompletedAt:       order.CompletedAt,
	}
	if _, err := p.db.NamedExecContext(ctx, insertOrderSQL, row); err != nil {
		return fmt.Errorf("archive: insert %s: %w", order.OrderID, err)
	}
	return nil
}

// Load implements Reader.
func (p *Postgres) Load(ctx context.Context, orderID string) (session.Order, error) {
	var row orderRow
	if err := p.db.GetContext(ctx, &row, selectOrderSQL, orderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return session.Order{}, ErrNotFound
		}
		return session.Order{}, fmt.Errorf("archive: load %s: %w", orderID, err)
	}
	order := session.Order{
		OrderID:           row.OrderID,
		CustomerID:        row.CustomerID,
		Total:             row.Total,
		Currency:          row.Currency,
		Address:           row.Address,
		PaymentOrderID:    row.PaymentOrderID.String,
		PaymentStatus:     row.PaymentStatus.String,
		PaymentReference:  row.PaymentReference.String,
		ScreenshotRef:     row.ScreenshotRef.String,
		NeedsVerification: row.NeedsVerification,
		CompletedAt:       row.CompletedAt,
	}
	if row.PaymentTime.Valid {
		order.PaymentTime = row.PaymentTime.Time
	}
	if err := json.Unmarshal(row.Items, &order.Items); err != nil {
		return session.Order{}, fmt.Errorf("archive: decode items %s: %w", orderID, err)
	}
	return order, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
