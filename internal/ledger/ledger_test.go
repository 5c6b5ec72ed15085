package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nimasrn/debt-ledger/internal/model"
	"github.com/nimasrn/debt-ledger/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const admin model.Principal = "admin"

var (
	_ Store  = (*store.MemoryStore)(nil)
	_ Store  = (*store.RedisStore)(nil)
	_ Locker = (*store.RedisLocker)(nil)
	_ Locker = (*LocalLocker)(nil)
)

type MockEventSink struct {
	mock.Mock
}

func (m *MockEventSink) Publish(ctx context.Context, topic string, event model.Event) {
	m.Called(ctx, topic, event)
}

type recordingSink struct {
	mu     sync.Mutex
	events []model.Event
}

func (s *recordingSink) Publish(_ context.Context, _ string, event model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Topic)
	}
	return out
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func allowAdmin(_ context.Context, p model.Principal) error {
	if p != admin {
		return errors.New("not admin")
	}
	return nil
}

func amt(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func newTestLedger(t *testing.T, opts ...Option) (*Ledger, *store.MemoryStore, *recordingSink) {
	t.Helper()
	s := store.NewMemoryStore()
	sink := &recordingSink{}
	clock := &stepClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithEventSink(sink), WithClock(clock)}, opts...)
	return New(s, AuthorizerFunc(allowAdmin), opts...), s, sink
}

func registerDebt(t *testing.T, l *Ledger, id uint64, total int64) *model.Debt {
	t.Helper()
	d, err := l.RegisterDebt(context.Background(), admin, model.DebtCreateRequest{
		DebtID:      id,
		SiteID:      10,
		Customer:    "customer-1",
		TotalAmount: amt(total),
	})
	require.NoError(t, err)
	return d
}

func TestLedger_PaymentLifecycle(t *testing.T) {
	l, _, sink := newTestLedger(t)
	ctx := context.Background()

	d := registerDebt(t, l, 1, 150000)
	assert.True(t, d.PaidAmount.IsZero())
	assert.Equal(t, model.DebtStatusPending, d.Status)

	ok, err := l.RegisterPayment(ctx, admin, 1, amt(50000), model.PaymentTypeCash)
	require.NoError(t, err)
	assert.True(t, ok)

	d, err = l.GetDebt(ctx, 1)
	require.NoError(t, err)
	assert.True(t, d.PaidAmount.Equal(amt(50000)))
	assert.Equal(t, model.DebtStatusPartial, d.Status)

	_, err = l.RegisterPayment(ctx, admin, 1, amt(100000), model.PaymentTypeTransfer)
	require.NoError(t, err)

	d, err = l.GetDebt(ctx, 1)
	require.NoError(t, err)
	assert.True(t, d.PaidAmount.Equal(amt(150000)))
	assert.Equal(t, model.DebtStatusPaid, d.Status)
	assert.True(t, d.TotalAmount.Equal(amt(150000)))
	assert.Equal(t, uint64(10), d.SiteID)
	assert.Equal(t, model.Principal("customer-1"), d.Customer)

	count, err := l.GetPaymentCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	assert.Equal(t, []string{model.TopicDebtRegistered, model.TopicPaymentRegistered, model.TopicPaymentRegistered}, sink.topics())
}

func TestLedger_StatusDerivation(t *testing.T) {
	tests := []struct {
		name     string
		total    int64
		payments []int64
		want     model.DebtStatus
	}{
		{"no payments stays pending", 100, nil, model.DebtStatusPending},
		{"zero payment stays pending", 100, []int64{0}, model.DebtStatusPending},
		{"below total is partial", 100, []int64{1, 98}, model.DebtStatusPartial},
		{"exact total is paid", 100, []int64{60, 40}, model.DebtStatusPaid},
		{"overpayment is paid", 100, []int64{250}, model.DebtStatusPaid},
		{"zero total is paid on any payment", 0, []int64{0}, model.DebtStatusPaid},
		{"negative from pending keeps pending", 100, []int64{-5}, model.DebtStatusPending},
		{"refund to zero keeps partial", 100, []int64{30, -30}, model.DebtStatusPartial},
		{"refund below total after paid", 100, []int64{100, -10}, model.DebtStatusPartial},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _, _ := newTestLedger(t)
			ctx := context.Background()
			registerDebt(t, l, 1, tt.total)

			sum := int64(0)
			for _, p := range tt.payments {
				_, err := l.RegisterPayment(ctx, admin, 1, amt(p), model.PaymentTypeCash)
				require.NoError(t, err)
				sum += p
			}

			d, err := l.GetDebt(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Status)
			assert.True(t, d.PaidAmount.Equal(amt(sum)), "paid %s, want %d", d.PaidAmount, sum)
		})
	}
}

func TestLedger_PaymentLogIsContiguousAndOrdered(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	registerDebt(t, l, 3, 1000)

	types := []model.PaymentType{model.PaymentTypeCash, model.PaymentTypeStripe, "voucher", model.PaymentTypeStellar}
	for i, pt := range types {
		_, err := l.RegisterPayment(ctx, admin, 3, amt(int64(i+1)*10), pt)
		require.NoError(t, err)
	}

	count, err := l.GetPaymentCount(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(types)), count)

	payments, err := l.ListPayments(ctx, 3)
	require.NoError(t, err)
	require.Len(t, payments, len(types))
	for i, p := range payments {
		assert.Equal(t, uint64(3), p.DebtID)
		assert.True(t, p.Amount.Equal(amt(int64(i+1)*10)))
		assert.Equal(t, types[i], p.PaymentType)
		if i > 0 {
			assert.True(t, p.Timestamp.After(payments[i-1].Timestamp))
		}

		single, err := l.GetPayment(ctx, 3, uint64(i))
		require.NoError(t, err)
		assert.True(t, single.Timestamp.Equal(p.Timestamp))
	}

	_, err = l.GetPayment(ctx, 3, uint64(len(types)))
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestLedger_PaymentOnUnknownDebt(t *testing.T) {
	l, s, sink := newTestLedger(t)
	ctx := context.Background()

	ok, err := l.RegisterPayment(ctx, admin, 99, amt(10), model.PaymentTypeCash)
	assert.ErrorIs(t, err, ErrDebtNotFound)
	assert.False(t, ok)

	assert.Equal(t, 0, s.Len())
	assert.Empty(t, sink.topics())
}

func TestLedger_ReadAccessorsOnUnknownDebt(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.GetDebt(ctx, 404)
	assert.ErrorIs(t, err, ErrDebtNotFound)

	count, err := l.GetPaymentCount(ctx, 404)
	require.NoError(t, err)
	assert.Zero(t, count)

	payments, err := l.ListPayments(ctx, 404)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestLedger_UpdateStatus(t *testing.T) {
	l, _, sink := newTestLedger(t)
	ctx := context.Background()
	registerDebt(t, l, 2, 100)

	ok, err := l.UpdateStatus(ctx, admin, 2, model.DebtStatusCancelled)
	require.NoError(t, err)
	assert.True(t, ok)

	d, err := l.GetDebt(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, model.DebtStatusCancelled, d.Status)
	assert.True(t, d.PaidAmount.IsZero())
	assert.True(t, d.TotalAmount.Equal(amt(100)))

	t.Run("arbitrary tags are accepted", func(t *testing.T) {
		_, err := l.UpdateStatus(ctx, admin, 2, "disputed")
		require.NoError(t, err)
		d, err := l.GetDebt(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, model.DebtStatus("disputed"), d.Status)
	})

	t.Run("next payment recomputes status", func(t *testing.T) {
		_, err := l.RegisterPayment(ctx, admin, 2, amt(40), model.PaymentTypeCash)
		require.NoError(t, err)
		d, err := l.GetDebt(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, model.DebtStatusPartial, d.Status)
	})

	t.Run("unknown debt", func(t *testing.T) {
		_, err := l.UpdateStatus(ctx, admin, 77, model.DebtStatusPaid)
		assert.ErrorIs(t, err, ErrDebtNotFound)
	})

	last := sink.events[2]
	assert.Equal(t, model.TopicStatusChanged, last.Topic)
	var payload model.StatusChangedPayload
	require.NoError(t, json.Unmarshal(last.Payload, &payload))
	assert.Equal(t, model.DebtStatus("disputed"), payload.Status)
}

func TestLedger_ZeroPaymentKeepsOverride(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	registerDebt(t, l, 4, 100)

	_, err := l.UpdateStatus(ctx, admin, 4, model.DebtStatusCancelled)
	require.NoError(t, err)
	_, err = l.RegisterPayment(ctx, admin, 4, amt(0), model.PaymentTypeCash)
	require.NoError(t, err)

	d, err := l.GetDebt(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, model.DebtStatusCancelled, d.Status)

	count, err := l.GetPaymentCount(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestLedger_Unauthorized(t *testing.T) {
	l, s, sink := newTestLedger(t)
	ctx := context.Background()
	registerDebt(t, l, 1, 100)
	before := s.Len()

	_, err := l.RegisterDebt(ctx, "mallory", model.DebtCreateRequest{DebtID: 2, TotalAmount: amt(1)})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = l.RegisterPayment(ctx, "mallory", 1, amt(10), model.PaymentTypeCash)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = l.UpdateStatus(ctx, "mallory", 1, model.DebtStatusPaid)
	assert.ErrorIs(t, err, ErrUnauthorized)

	// authorization runs before the existence check
	_, err = l.RegisterPayment(ctx, "mallory", 999, amt(10), model.PaymentTypeCash)
	assert.ErrorIs(t, err, ErrUnauthorized)

	assert.Equal(t, before, s.Len())
	assert.Len(t, sink.topics(), 1)

	d, err := l.GetDebt(ctx, 1)
	require.NoError(t, err)
	assert.True(t, d.PaidAmount.IsZero())
	assert.Equal(t, model.DebtStatusPending, d.Status)
}

func TestLedger_AuthorizerSentinelIsKept(t *testing.T) {
	deny := AuthorizerFunc(func(context.Context, model.Principal) error { return ErrUnauthorized })
	l := New(store.NewMemoryStore(), deny)

	_, err := l.RegisterDebt(context.Background(), admin, model.DebtCreateRequest{DebtID: 1, TotalAmount: amt(1)})
	assert.Equal(t, ErrUnauthorized, err)
}

func TestLedger_DuplicateRegistration(t *testing.T) {
	t.Run("overwrite resets the record", func(t *testing.T) {
		l, _, _ := newTestLedger(t)
		ctx := context.Background()
		registerDebt(t, l, 1, 100)
		_, err := l.RegisterPayment(ctx, admin, 1, amt(60), model.PaymentTypeCash)
		require.NoError(t, err)

		registerDebt(t, l, 1, 500)

		d, err := l.GetDebt(ctx, 1)
		require.NoError(t, err)
		assert.True(t, d.TotalAmount.Equal(amt(500)))
		assert.True(t, d.PaidAmount.IsZero())
		assert.Equal(t, model.DebtStatusPending, d.Status)

		count, err := l.GetPaymentCount(ctx, 1)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("log entries from before the overwrite are gone", func(t *testing.T) {
		l, _, _ := newTestLedger(t)
		ctx := context.Background()
		registerDebt(t, l, 7, 100)
		_, err := l.RegisterPayment(ctx, admin, 7, amt(40), model.PaymentTypeCash)
		require.NoError(t, err)

		registerDebt(t, l, 7, 100)

		p, err := l.GetPayment(ctx, 7, 0)
		assert.ErrorIs(t, err, ErrPaymentNotFound)
		assert.Nil(t, p)
		payments, err := l.ListPayments(ctx, 7)
		require.NoError(t, err)
		assert.Empty(t, payments)

		// the next payment takes index 0 again
		_, err = l.RegisterPayment(ctx, admin, 7, amt(15), model.PaymentTypeStripe)
		require.NoError(t, err)
		p, err = l.GetPayment(ctx, 7, 0)
		require.NoError(t, err)
		assert.True(t, p.Amount.Equal(amt(15)))
		assert.Equal(t, model.PaymentTypeStripe, p.PaymentType)
	})

	t.Run("guard rejects", func(t *testing.T) {
		l, _, sink := newTestLedger(t, WithDuplicateGuard())
		ctx := context.Background()
		registerDebt(t, l, 1, 100)

		_, err := l.RegisterDebt(ctx, admin, model.DebtCreateRequest{DebtID: 1, TotalAmount: amt(5)})
		assert.ErrorIs(t, err, ErrDebtExists)

		d, err := l.GetDebt(ctx, 1)
		require.NoError(t, err)
		assert.True(t, d.TotalAmount.Equal(amt(100)))
		assert.Len(t, sink.topics(), 1)
	})
}

func TestLedger_AmountBounds(t *testing.T) {
	l, s, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.RegisterDebt(ctx, admin, model.DebtCreateRequest{DebtID: 1, TotalAmount: decimal.RequireFromString("1.5")})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = l.RegisterDebt(ctx, admin, model.DebtCreateRequest{DebtID: 1, TotalAmount: model.MaxAmount.Add(amt(1))})
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Zero(t, s.Len())

	_, err = l.RegisterDebt(ctx, admin, model.DebtCreateRequest{DebtID: 1, TotalAmount: model.MaxAmount})
	require.NoError(t, err)

	_, err = l.RegisterPayment(ctx, admin, 1, model.MaxAmount, model.PaymentTypeCash)
	require.NoError(t, err)

	_, err = l.RegisterPayment(ctx, admin, 1, amt(1), model.PaymentTypeCash)
	assert.ErrorIs(t, err, ErrAmountOverflow)

	d, err := l.GetDebt(ctx, 1)
	require.NoError(t, err)
	assert.True(t, d.PaidAmount.Equal(model.MaxAmount))
	assert.Equal(t, model.DebtStatusPaid, d.Status)

	count, err := l.GetPaymentCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestLedger_EventPayloads(t *testing.T) {
	s := store.NewMemoryStore()
	sink := new(MockEventSink)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l := New(s, AuthorizerFunc(allowAdmin), WithEventSink(sink), WithClock(ClockFunc(func() time.Time { return at })))
	ctx := context.Background()

	sink.On("Publish", ctx, model.TopicDebtRegistered, mock.MatchedBy(func(e model.Event) bool {
		var p model.DebtRegisteredPayload
		return json.Unmarshal(e.Payload, &p) == nil && e.DebtID == 8 && p.TotalAmount.Equal(amt(300)) && p.Customer == "bob"
	})).Once()
	sink.On("Publish", ctx, model.TopicPaymentRegistered, mock.MatchedBy(func(e model.Event) bool {
		var p model.PaymentRegisteredPayload
		return json.Unmarshal(e.Payload, &p) == nil && p.Amount.Equal(amt(300)) && p.Status == model.DebtStatusPaid &&
			p.PaymentType == model.PaymentTypeStripe && e.OccurredAt.Equal(at) && e.ID != ""
	})).Once()

	_, err := l.RegisterDebt(ctx, admin, model.DebtCreateRequest{DebtID: 8, Customer: "bob", TotalAmount: amt(300)})
	require.NoError(t, err)
	_, err = l.RegisterPayment(ctx, admin, 8, amt(300), model.PaymentTypeStripe)
	require.NoError(t, err)

	sink.AssertExpectations(t)

	p, err := l.GetPayment(ctx, 8, 0)
	require.NoError(t, err)
	assert.True(t, p.Timestamp.Equal(at))
}

type failingStore struct {
	*store.MemoryStore
	failSetOn model.KeyKind
}

func (f *failingStore) Set(ctx context.Context, key model.Key, value []byte) error {
	if key.Kind == f.failSetOn {
		return errors.New("disk full")
	}
	return f.MemoryStore.Set(ctx, key, value)
}

func TestLedger_StoreFailureLeavesNoPartialWrites(t *testing.T) {
	mem := store.NewMemoryStore()
	fs := &failingStore{MemoryStore: mem}
	sink := &recordingSink{}
	l := New(fs, AuthorizerFunc(allowAdmin), WithEventSink(sink))
	ctx := context.Background()

	_, err := l.RegisterDebt(ctx, admin, model.DebtCreateRequest{DebtID: 1, TotalAmount: amt(100)})
	require.NoError(t, err)

	fs.failSetOn = model.KeyKindPaymentCount
	_, err = l.RegisterPayment(ctx, admin, 1, amt(50), model.PaymentTypeCash)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	d, err := l.GetDebt(ctx, 1)
	require.NoError(t, err)
	assert.True(t, d.PaidAmount.IsZero())
	assert.Equal(t, model.DebtStatusPending, d.Status)

	_, err = l.GetPayment(ctx, 1, 0)
	assert.ErrorIs(t, err, ErrPaymentNotFound)
	assert.Equal(t, []string{model.TopicDebtRegistered}, sink.topics())
}

func TestLedger_ConcurrentPaymentsAreSerialized(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	registerDebt(t, l, 1, 1_000_000)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.RegisterPayment(ctx, admin, 1, amt(100), model.PaymentTypeCash)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	d, err := l.GetDebt(ctx, 1)
	require.NoError(t, err)
	assert.True(t, d.PaidAmount.Equal(amt(n*100)))

	payments, err := l.ListPayments(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, payments, n)
}

type refusingLocker struct{}

func (refusingLocker) Lock(context.Context, uint64) (func(), error) {
	return nil, context.DeadlineExceeded
}

func TestLedger_LockFailureAbortsMutation(t *testing.T) {
	l, mem, sink := newTestLedger(t, WithLocker(refusingLocker{}))
	ctx := context.Background()

	_, err := l.RegisterDebt(ctx, admin, model.DebtCreateRequest{DebtID: 1, TotalAmount: amt(100)})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, mem.Len())
	assert.Empty(t, sink.topics())
}
