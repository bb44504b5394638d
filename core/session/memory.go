package session

import (
	"context"
	"sync"
	"time"
)

// Memory keeps sessions in process memory. Sessions are lost on restart.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	locks    *keyedMutex
	now      func() time.Time
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]*Session),
		locks:    newKeyedMutex(),
		now:      time.Now,
	}
}

// Get returns a copy of the session for customerID.
func (m *Memory) Get(_ context.Context, customerID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[customerID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

// GetOrCreate returns the existing session or stores a fresh one.
func (m *Memory) GetOrCreate(_ context.Context, customerID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[customerID]; ok {
		return s.Clone(), nil
	}
	s := New(customerID, m.now())
	m.sessions[customerID] = s
	return s.Clone(), nil
}

// Save stores a copy of s, replacing any previous session of the customer.
func (m *Memory) Save(_ context.Context, s *Session) error {
	cp := s.Clone()
	cp.UpdatedAt = m.now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = cp.UpdatedAt
	}
	m.mu.Lock()
	m.sessions[cp.CustomerID] = cp
	m.mu.Unlock()
	s.UpdatedAt, s.CreatedAt = cp.UpdatedAt, cp.CreatedAt
	return nil
}

// Delete removes the session; deleting a missing session is not an error.
func (m *Memory) Delete(_ context.Context, customerID string) error {
	m.mu.Lock()
	delete(m.sessions, customerID)
	m.mu.Unlock()
	return nil
}

// Lock serialises work on one customer.
func (m *Memory) Lock(ctx context.Context, customerID string) (func(), error) {
	return m.locks.Lock(ctx, customerID)
}

// FindByPaymentOrderID scans sessions for a gateway order id.
func (m *Memory) FindByPaymentOrderID(_ context.Context, paymentOrderID string) (*Session, error) {
	if paymentOrderID == "" {
		return nil, ErrNotFound
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.PaymentOrderID == paymentOrderID {
			return s.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

// Reap drops sessions idle since before.
func (m *Memory) Reap(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.UpdatedAt.Before(before) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// Len reports the number of live sessions.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
