// Package archive records completed orders once they leave the conversation.
package archive

import (
	"context"
	"errors"

	"github.com/m3rciful/orderbot/core/session"
)

// ErrNotFound is returned when no archived order matches.
var ErrNotFound = errors.New("archive: order not found")

// Archiver persists a completed order record exactly once.
type Archiver interface {
	Archive(ctx context.Context, order session.Order) error
}

// Reader looks archived orders up by order id.
type Reader interface {
	Load(ctx context.Context, orderID string) (session.Order, error)
}

// None discards orders; used when archive.driver is "none".
type None struct{}

// Archive implements Archiver.
func (None) Archive(context.Context, session.Order) error { return nil }
