package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when no session exists for the key.
	ErrNotFound = errors.New("session: not found")
	// ErrLockTimeout is returned when a per-customer lock cannot be taken in time.
	ErrLockTimeout = errors.New("session: lock timeout")
)

// Store owns sessions and serialises mutations per customer.
//
// Callers take Lock for the customer, read, decide, then Save or Delete
// before calling the returned unlock function.
type Store interface {
	Get(ctx context.Context, customerID string) (*Session, error)
	GetOrCreate(ctx context.Context, customerID string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, customerID string) error
	Lock(ctx context.Context, customerID string) (unlock func(), err error)
	// FindByPaymentOrderID looks a session up by its gateway order id.
	FindByPaymentOrderID(ctx context.Context, paymentOrderID string) (*Session, error)
	// Reap removes sessions not updated since before. It returns the number removed.
	Reap(ctx context.Context, before time.Time) (int, error)
}

// keyedMutex hands out one lock per key and forgets idle keys.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyLock)}
}

// Lock blocks until key is free or ctx is done.
func (k *keyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, l)
		return nil, errors.Join(ErrLockTimeout, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			k.release(key, l)
		})
	}, nil
}

func (k *keyedMutex) release(key string, l *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
