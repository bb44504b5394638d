package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/orderbot/core/catalog"
)

func sampleSession(id string) *Session {
	item, _ := catalog.Default().FindByID(1)
	s := New(id, time.Now())
	s.State = StateCollectingQuantity
	s.Items = []LineItem{{Item: item}}
	return s
}

func TestMemoryGetOrCreateAndSave(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	s, err := m.GetOrCreate(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, StateSelectingItems, s.State)
	assert.Equal(t, 1, m.Len())

	s.State = StateAwaitingPayment
	s.PaymentOrderID = "order_1"
	require.NoError(t, m.Save(ctx, s))

	got, err := m.GetOrCreate(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingPayment, got.State)

	byPay, err := m.FindByPaymentOrderID(ctx, "order_1")
	require.NoError(t, err)
	assert.Equal(t, "a", byPay.CustomerID)

	_, err = m.FindByPaymentOrderID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Delete(ctx, "a"))
	require.NoError(t, m.Delete(ctx, "a"))
	assert.Equal(t, 0, m.Len())
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	s := sampleSession("a")
	require.NoError(t, m.Save(ctx, s))

	s.Items[0] = s.Items[0].WithQuantity(decimal.NewFromInt(5))
	got, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, got.Items[0].Pending())

	got.Items[0].Item.Name = "mutated"
	again, _ := m.Get(ctx, "a")
	assert.Equal(t, "Sunflower Oil", again.Items[0].Item.Name)
}

func TestMemoryReap(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }
	require.NoError(t, m.Save(ctx, sampleSession("old")))
	m.now = func() time.Time { return base.Add(time.Hour) }
	require.NoError(t, m.Save(ctx, sampleSession("fresh")))

	assert.Equal(t, 1, ReapOnce(ctx, m, base.Add(30*time.Minute)))
	_, err := m.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.Get(ctx, "fresh")
	assert.NoError(t, err)
}

func TestKeyedMutexSerialisesSameKey(t *testing.T) {
	ctx := context.Background()
	k := newKeyedMutex()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := k.Lock(ctx, "same")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, k.size())
}

func TestKeyedMutexIndependentKeysAndTimeout(t *testing.T) {
	k := newKeyedMutex()
	unlockA, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)

	unlockB, err := k.Lock(context.Background(), "b")
	require.NoError(t, err)
	unlockB()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = k.Lock(ctx, "a")
	assert.ErrorIs(t, err, ErrLockTimeout)

	unlockA()
	unlockA()
	assert.Equal(t, 0, k.size())
}

func TestRunReaperDisabledWithoutTTL(t *testing.T) {
	assert.NoError(t, RunReaper(context.Background(), NewMemory(), 0, time.Second))
}

func TestSessionHelpers(t *testing.T) {
	s := sampleSession("a")
	item, _ := catalog.Default().FindByID(3)
	s.Items = append(s.Items, LineItem{Item: item})
	s.Items[0] = s.Items[0].WithQuantity(decimal.NewFromInt(2))
	s.Items[1] = s.Items[1].WithQuantity(decimal.RequireFromString("1.5"))

	assert.Equal(t, "480", s.ComputeTotal().String())
	s.Cursor = 2
	_, ok := s.Current()
	assert.False(t, ok)
	assert.True(t, StateAwaitingAddress.Valid())
	assert.False(t, State("DONE").Valid())
}
