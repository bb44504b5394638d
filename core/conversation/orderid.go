package conversation

import (
	"fmt"
	"sync"
	"time"
)

// OrderIDs issues order identifiers of the form <prefix><6 digits>, where
// the digits are the low part of the current unix time in milliseconds.
// Identifiers never repeat within one process: when the clock has not moved
// since the last call the previous value is bumped by one.
type OrderIDs struct {
	prefix string
	mu     sync.Mutex
	last   int64
}

// NewOrderIDs returns a generator for the given prefix.
func NewOrderIDs(prefix string) *OrderIDs {
	return &OrderIDs{prefix: prefix}
}

// Next returns a fresh identifier derived from now.
func (g *OrderIDs) Next(now time.Time) string {
	g.mu.Lock()
	ms := now.UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms
	g.mu.Unlock()
	return fmt.Sprintf("%s%06d", g.prefix, ms%1_000_000)
}
