package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/orderbot/core/catalog"
	"github.com/m3rciful/orderbot/core/collab"
	"github.com/m3rciful/orderbot/core/conversation"
	"github.com/m3rciful/orderbot/core/messaging"
	"github.com/m3rciful/orderbot/core/notify"
	"github.com/m3rciful/orderbot/core/outbox"
	"github.com/m3rciful/orderbot/core/payment"
	"github.com/m3rciful/orderbot/core/ratelimit"
	"github.com/m3rciful/orderbot/core/session"
)

const customer = "919876543210"

type sent struct {
	to  string
	msg messaging.Message
}

type fakeSender struct {
	mu   sync.Mutex
	out  []sent
	err  error
	seen int
}

func (f *fakeSender) Send(_ context.Context, to string, msg messaging.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen++
	if f.err != nil {
		return f.err
	}
	f.out = append(f.out, sent{to: to, msg: msg})
	return nil
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.out {
		out = append(out, s.msg.Text)
	}
	return out
}

func (f *fakeSender) last() string {
	t := f.texts()
	if len(t) == 0 {
		return ""
	}
	return t[len(t)-1]
}

type fakeGateway struct {
	calls []payment.OrderRequest
	err   error
}

func (g *fakeGateway) CreateOrder(_ context.Context, req payment.OrderRequest) (string, error) {
	g.calls = append(g.calls, req)
	if g.err != nil {
		return "", g.err
	}
	return fmt.Sprintf("order_%d", len(g.calls)), nil
}

func (g *fakeGateway) Name() string { return "fake" }

type fakeMedia struct {
	data []byte
	err  error
	refs []string
}

func (m *fakeMedia) Fetch(_ context.Context, ref string) ([]byte, error) {
	m.refs = append(m.refs, ref)
	return m.data, m.err
}

type fakeNotifier struct {
	orders []session.Order
	proofs []notify.Proof
}

func (n *fakeNotifier) SendOrderNotification(_ context.Context, o session.Order) error {
	n.orders = append(n.orders, o)
	return nil
}

func (n *fakeNotifier) SendPaymentProof(_ context.Context, p notify.Proof) error {
	n.proofs = append(n.proofs, p)
	return nil
}

type fakeArchiver struct {
	orders []session.Order
}

func (a *fakeArchiver) Archive(_ context.Context, o session.Order) error {
	a.orders = append(a.orders, o)
	return nil
}

type fixture struct {
	d        *Dispatcher
	store    *session.Memory
	sender   *fakeSender
	gateway  *fakeGateway
	media    *fakeMedia
	notifier *fakeNotifier
	archiver *fakeArchiver
}

func newFixture() *fixture {
	clock := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
	engine := conversation.New(catalog.Default(), conversation.Options{
		ShopName:       "OilFacts",
		Currency:       "INR",
		CurrencySymbol: "₹",
		Unit:           "L",
		BaseURL:        "https://shop.example.com",
		OrderPrefix:    "OIL-",
		SupportEmail:   "support@oilfacts.com",
	}).WithClock(func() time.Time { return clock })
	f := &fixture{
		store:    session.NewMemory(),
		sender:   &fakeSender{},
		gateway:  &fakeGateway{},
		media:    &fakeMedia{data: []byte("JPEG")},
		notifier: &fakeNotifier{},
		archiver: &fakeArchiver{},
	}
	f.d = New(Deps{
		Engine:   engine,
		Store:    f.store,
		Sender:   f.sender,
		Gateway:  f.gateway,
		Media:    f.media,
		Notifier: f.notifier,
		Archiver: f.archiver,
	})
	return f
}

func (f *fixture) text(t *testing.T, msg string) {
	t.Helper()
	require.NoError(t, f.d.Dispatch(context.Background(), conversation.Event{
		Channel: "whatsapp", CustomerID: customer, Kind: conversation.EventText, Text: msg,
	}))
}

func (f *fixture) image(t *testing.T, ref string) {
	t.Helper()
	require.NoError(t, f.d.Dispatch(context.Background(), conversation.Event{
		Channel: "whatsapp", CustomerID: customer, Kind: conversation.EventImage, MediaRef: ref,
	}))
}

func (f *fixture) state(t *testing.T) session.State {
	t.Helper()
	s, err := f.store.Get(context.Background(), customer)
	if errors.Is(err, session.ErrNotFound) {
		return ""
	}
	require.NoError(t, err)
	return s.State
}

func TestDispatchFullOrder(t *testing.T) {
	f := newFixture()

	f.text(t, "hi")
	assert.Contains(t, f.sender.last(), "Welcome to OilFacts")
	assert.Equal(t, 0, f.store.Len())

	f.text(t, "menu")
	assert.Equal(t, session.StateSelectingItems, f.state(t))

	f.text(t, "1, 2")
	assert.Equal(t, session.StateCollectingQuantity, f.state(t))
	assert.Contains(t, f.sender.last(), "Sunflower Oil")

	f.text(t, "2")
	assert.Contains(t, f.sender.last(), "Mustard Oil")
	f.text(t, "1.5")
	assert.Equal(t, session.StateAwaitingConfirmation, f.state(t))
	assert.Contains(t, f.sender.last(), "Total: ₹450")

	f.text(t, "confirm")
	assert.Equal(t, session.StateAwaitingPayment, f.state(t))
	require.Len(t, f.gateway.calls, 1)
	assert.Equal(t, "450", f.gateway.calls[0].Amount.String())
	assert.Contains(t, f.sender.last(), "https://shop.example.com/pay/order_1")

	f.image(t, "media-77")
	assert.Equal(t, session.StateAwaitingAddress, f.state(t))
	assert.Equal(t, []string{"media-77"}, f.media.refs)
	require.Len(t, f.notifier.proofs, 1)
	assert.Equal(t, []byte("JPEG"), f.notifier.proofs[0].Image)

	f.text(t, "12 MG Road, Bengaluru")
	assert.Equal(t, 0, f.store.Len())
	assert.Contains(t, f.sender.last(), "Order Complete")
	require.Len(t, f.notifier.orders, 1)
	require.Len(t, f.archiver.orders, 1)
	order := f.archiver.orders[0]
	assert.Equal(t, "12 MG Road, Bengaluru", order.Address)
	assert.Equal(t, "order_1", order.PaymentOrderID)
	assert.True(t, order.NeedsVerification)
	assert.Equal(t, order.OrderID, f.notifier.orders[0].OrderID)
	assert.Len(t, f.gateway.calls, 1)
	for _, s := range f.sender.out {
		assert.Equal(t, customer, s.to)
	}
}

func TestDispatchGatewayFailureKeepsState(t *testing.T) {
	f := newFixture()
	f.text(t, "menu")
	f.text(t, "1")
	f.text(t, "2")

	f.gateway.err = collab.New("razorpay", "create_order", collab.KindTransient, errors.New("503"))
	f.text(t, "confirm")
	assert.Equal(t, session.StateAwaitingConfirmation, f.state(t))
	assert.Contains(t, f.sender.last(), "Payment system error")

	f.gateway.err = nil
	f.text(t, "confirm")
	assert.Equal(t, session.StateAwaitingPayment, f.state(t))
	s, err := f.store.Get(context.Background(), customer)
	require.NoError(t, err)
	assert.Equal(t, "order_2", s.PaymentOrderID)
}

func TestDispatchReusesPaymentOrder(t *testing.T) {
	f := newFixture()
	f.text(t, "menu")
	f.text(t, "3")
	f.text(t, "1")
	f.text(t, "confirm")
	f.text(t, "what now")
	assert.Contains(t, f.sender.last(), "Please complete the payment of ₹160")
	f.text(t, "paid")
	assert.Contains(t, f.sender.last(), "screenshot")
	assert.Len(t, f.gateway.calls, 1)
}

func TestDispatchCancelDeletesSession(t *testing.T) {
	f := newFixture()
	f.text(t, "menu")
	f.text(t, "1")
	f.text(t, "1")
	f.text(t, "cancel")
	assert.Equal(t, 0, f.store.Len())
	assert.Contains(t, f.sender.last(), "Order cancelled")
}

func TestDispatchAuthExpiredStillAdvancesState(t *testing.T) {
	f := newFixture()
	f.sender.err = collab.New("whatsapp", "send", collab.KindAuthExpired, errors.New("token expired"))
	f.text(t, "menu")
	assert.Equal(t, session.StateSelectingItems, f.state(t))
	assert.Equal(t, 1, f.sender.seen)
}

func TestExecuteSkipsRemainingActionsOfUnrecoverableKind(t *testing.T) {
	f := newFixture()
	f.sender.err = collab.New("whatsapp", "send", collab.KindAuthExpired, errors.New("token expired"))
	order := session.Order{OrderID: "OIL-1", CustomerID: customer}
	dec := conversation.Decision{Actions: []conversation.Action{
		{Kind: conversation.ActionSendMessage, Text: "one"},
		{Kind: conversation.ActionSendMessage, Text: "two"},
		{Kind: conversation.ActionArchiveOrder, Order: &order},
		{Kind: conversation.ActionSendMessage, Text: "three"},
	}}
	f.d.execute(context.Background(), customer, dec)
	assert.Equal(t, 1, f.sender.seen)
	assert.Len(t, f.archiver.orders, 1)
}

func TestExecuteKeepsGoingAfterTransientFailures(t *testing.T) {
	f := newFixture()
	f.sender.err = collab.New("whatsapp", "send", collab.KindTransient, errors.New("503"))
	dec := conversation.Decision{Actions: []conversation.Action{
		{Kind: conversation.ActionSendMessage, Text: "one"},
		{Kind: conversation.ActionSendMessage, Text: "two"},
	}}
	f.d.execute(context.Background(), customer, dec)
	assert.Equal(t, 2, f.sender.seen)
}

func TestDispatchProofWithoutMediaSendsEmailAnyway(t *testing.T) {
	f := newFixture()
	f.media.err = collab.New("whatsapp", "media", collab.KindNotFound, errors.New("gone"))
	f.text(t, "menu")
	f.text(t, "1")
	f.text(t, "1")
	f.text(t, "confirm")
	f.image(t, "media-1")
	require.Len(t, f.notifier.proofs, 1)
	assert.Nil(t, f.notifier.proofs[0].Image)
	assert.Equal(t, session.StateAwaitingAddress, f.state(t))
}

func TestDispatchRateLimitDropsEvents(t *testing.T) {
	f := newFixture()
	f.d.deps.Limiter = ratelimit.New(0.001, 1)
	f.text(t, "menu")
	f.text(t, "menu")
	assert.Equal(t, 1, f.sender.seen)
}

func TestDispatchUnknownTextWithoutSession(t *testing.T) {
	f := newFixture()
	f.text(t, "blah")
	assert.Contains(t, f.sender.last(), "didn't understand")
	assert.Equal(t, 0, f.store.Len())
}

func TestDispatchIgnoresEmptyCustomer(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.d.Dispatch(context.Background(), conversation.Event{Kind: conversation.EventText, Text: "menu"}))
	assert.Equal(t, 0, f.sender.seen)
}

type queued struct {
	action string
	target string
}

type fakeQueue struct {
	jobs []queued
	err  error
}

func (q *fakeQueue) Enqueue(_ context.Context, action, target string, _ outbox.Job) error {
	q.jobs = append(q.jobs, queued{action, target})
	return q.err
}

func TestDispatchDefersEmailsToQueue(t *testing.T) {
	f := newFixture()
	q := &fakeQueue{}
	f.d.deps.Queue = q
	f.text(t, "menu")
	f.text(t, "1")
	f.text(t, "1")
	f.text(t, "confirm")
	f.image(t, "media-1")
	f.text(t, "Home")

	require.Len(t, q.jobs, 2)
	assert.Equal(t, "email.payment_proof", q.jobs[0].action)
	assert.Equal(t, "email.order", q.jobs[1].action)
	assert.Empty(t, f.notifier.proofs)
	assert.Empty(t, f.media.refs)
}

func TestDispatchConcurrentCustomers(t *testing.T) {
	f := newFixture()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_ = f.d.Dispatch(context.Background(), conversation.Event{CustomerID: id, Kind: conversation.EventText, Text: "menu"})
		}(fmt.Sprintf("cust-%d", i))
	}
	wg.Wait()
	assert.Equal(t, 20, f.store.Len())
}

func TestDispatchSerializesSameCustomer(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	stores := map[string]session.Store{
		"memory": session.NewMemory(),
		"redis":  session.NewRedis(rdb, session.RedisOptions{Prefix: "t:"}),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			f.d.deps.Store = store
			f.text(t, "menu")
			f.text(t, "1,1,1,1,1,1,1,1")

			var wg sync.WaitGroup
			errs := make(chan error, 8)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					errs <- f.d.Dispatch(context.Background(), conversation.Event{
						Channel: "whatsapp", CustomerID: customer, Kind: conversation.EventText, Text: "2",
					})
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			s, err := store.Get(context.Background(), customer)
			require.NoError(t, err)
			assert.Equal(t, session.StateAwaitingConfirmation, s.State)
			require.Len(t, s.Items, 8)
			for _, li := range s.Items {
				assert.Equal(t, "2", li.Quantity.String())
			}
			assert.Equal(t, "1920", s.Total.String())
			assert.Contains(t, f.sender.last(), "*Total: ₹1920*")
		})
	}
}
