package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Postgres persists sessions as JSONB snapshots in the sessions table.
// Per-customer locking stays in process, so one bot instance may own a
// database at a time.
type Postgres struct {
	db    *sqlx.DB
	locks *keyedMutex
	now   func() time.Time
}

type sessionRow struct {
	CustomerID     string         `db:"customer_id"`
	State          string         `db:"state"`
	PaymentOrderID sql.NullString `db:"payment_order_id"`
	Data           []byte         `db:"data"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

const upsertSessionSQL = `
INSERT INTO sessions (customer_id, state, payment_order_id, data, created_at, updated_at)
VALUES (:customer_id, :state, :payment_order_id, :data, :created_at, :updated_at)
ON CONFLICT (customer_id) DO UPDATE SET
    state = EXCLUDED.state,
    payment_order_id = EXCLUDED.payment_order_id,
    data = EXCLUDED.data,
    updated_at = EXCLUDED.updated_at`

// NewPostgres wraps an open database handle. The schema comes from migrations.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db, locks: newKeyedMutex(), now: time.Now}
}

// Get loads the session snapshot of customerID.
func (p *Postgres) Get(ctx context.Context, customerID string) (*Session, error) {
	return p.selectOne(ctx, `SELECT data FROM sessions WHERE customer_id = $1`, customerID)
}

// GetOrCreate returns the stored session or inserts a fresh one.
// Callers are expected to hold the customer's lock.
func (p *Postgres) GetOrCreate(ctx context.Context, customerID string) (*Session, error) {
	s, err := p.Get(ctx, customerID)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	s = New(customerID, p.now())
	if err := p.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Save upserts the session snapshot.
func (p *Postgres) Save(ctx context.Context, s *Session) error {
	now := p.now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	row := sessionRow{
		CustomerID:     s.CustomerID,
		State:          string(s.State),
		PaymentOrderID: sql.NullString{String: s.PaymentOrderID, Valid: s.PaymentOrderID != ""},
		Data:           data,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
	if _, err := p.db.NamedExecContext(ctx, upsertSessionSQL, row); err != nil {
		return fmt.Errorf("session: save %s: %w", s.CustomerID, err)
	}
	return nil
}

// Delete removes the session row.
func (p *Postgres) Delete(ctx context.Context, customerID string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM sessions WHERE customer_id = $1`, customerID); err != nil {
		return fmt.Errorf("session: delete %s: %w", customerID, err)
	}
	return nil
}

// Lock serialises work on one customer within this process.
func (p *Postgres) Lock(ctx context.Context, customerID string) (func(), error) {
	return p.locks.Lock(ctx, customerID)
}

// FindByPaymentOrderID uses the partial unique index on payment_order_id.
func (p *Postgres) FindByPaymentOrderID(ctx context.Context, paymentOrderID string) (*Session, error) {
	if paymentOrderID == "" {
		return nil, ErrNotFound
	}
	return p.selectOne(ctx, `SELECT data FROM sessions WHERE payment_order_id = $1`, paymentOrderID)
}

// Reap deletes sessions not updated since before.
func (p *Postgres) Reap(ctx context.Context, before time.Time) (int, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("session: reap: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("session: reap rows: %w", err)
	}
	return int(n), nil
}

func (p *Postgres) selectOne(ctx context.Context, query string, arg any) (*Session, error) {
	var data []byte
	if err := p.db.GetContext(ctx, &data, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session: load: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("session: decode: %w", err)
	}
	return &s, nil
}
