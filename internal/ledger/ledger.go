package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nimasrn/debt-ledger/internal/model"
	"github.com/nimasrn/debt-ledger/pkg/logger"
	"github.com/nimasrn/debt-ledger/pkg/prom"
	"github.com/shopspring/decimal"
)

const (
	opRegisterDebt    = "register_debt"
	opRegisterPayment = "register_payment"
	opUpdateStatus    = "update_status"
	opGetDebt         = "get_debt"
	opGetPayments     = "get_payments"
)

// Ledger records debts and the payments made against them. Mutations are
// admin-only, serialized per debt and committed atomically; each committed
// mutation emits one event.
type Ledger struct {
	store            Store
	auth             Authorizer
	clock            Clock
	sink             EventSink
	locker           Locker
	rejectDuplicates bool
}

func New(store Store, auth Authorizer, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		auth:   auth,
		clock:  systemClock{},
		sink:   noopSink{},
		locker: NewLocalLocker(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RegisterDebt creates the debt record with nothing paid and an empty
// payment log. An existing record with the same id is overwritten unless the
// ledger was built WithDuplicateGuard.
func (l *Ledger) RegisterDebt(ctx context.Context, admin model.Principal, req model.DebtCreateRequest) (debt *model.Debt, err error) {
	defer func(started time.Time) { prom.ObserveLedgerOperation(opRegisterDebt, started, err) }(time.Now())

	if err = l.authorize(ctx, admin); err != nil {
		return nil, err
	}
	total, err := model.NormalizeAmount(req.TotalAmount)
	if err != nil {
		return nil, err
	}

	debt = &model.Debt{
		DebtID:      req.DebtID,
		SiteID:      req.SiteID,
		Customer:    req.Customer,
		TotalAmount: total,
		PaidAmount:  decimal.Zero,
		Status:      model.DebtStatusPending,
	}

	err = l.mutate(ctx, req.DebtID, func(ctx context.Context) error {
		if l.rejectDuplicates {
			_, found, err := l.store.Get(ctx, model.DebtKey(req.DebtID))
			if err != nil {
				return err
			}
			if found {
				return ErrDebtExists
			}
		}
		if err := l.put(ctx, model.DebtKey(req.DebtID), debt); err != nil {
			return err
		}
		return l.put(ctx, model.PaymentCountKey(req.DebtID), uint64(0))
	})
	if err != nil {
		return nil, err
	}

	l.publish(ctx, model.TopicDebtRegistered, req.DebtID, model.DebtRegisteredPayload{
		SiteID:      debt.SiteID,
		Customer:    debt.Customer,
		TotalAmount: debt.TotalAmount,
	})
	prom.IncDebtRegistered()
	logger.Debug("debt registered", "debt_id", req.DebtID, "site_id", req.SiteID, "total", total.String())

	return debt, nil
}

// RegisterPayment adds amount to the debt's paid total, appends it to the
// payment log and re-derives the status: paid once the total is reached,
// partial while something positive has been paid, otherwise unchanged.
func (l *Ledger) RegisterPayment(ctx context.Context, admin model.Principal, debtID uint64, amount decimal.Decimal, paymentType model.PaymentType) (ok bool, err error) {
	defer func(started time.Time) { prom.ObserveLedgerOperation(opRegisterPayment, started, err) }(time.Now())

	if err = l.authorize(ctx, admin); err != nil {
		return false, err
	}
	amount, err = model.NormalizeAmount(amount)
	if err != nil {
		return false, err
	}

	var status model.DebtStatus
	err = l.mutate(ctx, debtID, func(ctx context.Context) error {
		debt, err := l.loadDebt(ctx, debtID)
		if err != nil {
			return err
		}

		paid := debt.PaidAmount.Add(amount)
		if !model.IsValidAmount(paid) {
			return ErrAmountOverflow
		}
		debt.PaidAmount = paid
		if paid.GreaterThanOrEqual(debt.TotalAmount) {
			debt.Status = model.DebtStatusPaid
		} else if paid.IsPositive() {
			debt.Status = model.DebtStatusPartial
		}

		count, err := l.paymentCount(ctx, debtID)
		if err != nil {
			return err
		}

		if err := l.put(ctx, model.DebtKey(debtID), debt); err != nil {
			return err
		}
		payment := model.Payment{
			DebtID:      debtID,
			Amount:      amount,
			PaymentType: paymentType,
			Timestamp:   l.clock.Now(),
		}
		if err := l.put(ctx, model.PaymentKey(debtID, count), payment); err != nil {
			return err
		}
		status = debt.Status
		return l.put(ctx, model.PaymentCountKey(debtID), count+1)
	})
	if err != nil {
		return false, err
	}

	l.publish(ctx, model.TopicPaymentRegistered, debtID, model.PaymentRegisteredPayload{
		Amount:      amount,
		PaymentType: paymentType,
		Status:      status,
	})
	prom.IncPaymentRegistered(metricLabel(string(paymentType), isKnownPaymentType(paymentType)), metricLabel(string(status), status.IsCanonical()))
	logger.Debug("payment registered", "debt_id", debtID, "amount", amount.String(), "status", status)

	return true, nil
}

// UpdateStatus overwrites the status tag without touching amounts or the
// payment log. Any tag is accepted.
func (l *Ledger) UpdateStatus(ctx context.Context, admin model.Principal, debtID uint64, status model.DebtStatus) (ok bool, err error) {
	defer func(started time.Time) { prom.ObserveLedgerOperation(opUpdateStatus, started, err) }(time.Now())

	if err = l.authorize(ctx, admin); err != nil {
		return false, err
	}

	err = l.mutate(ctx, debtID, func(ctx context.Context) error {
		debt, err := l.loadDebt(ctx, debtID)
		if err != nil {
			return err
		}
		debt.Status = status
		return l.put(ctx, model.DebtKey(debtID), debt)
	})
	if err != nil {
		return false, err
	}

	l.publish(ctx, model.TopicStatusChanged, debtID, model.StatusChangedPayload{Status: status})
	prom.IncStatusOverride(metricLabel(string(status), status.IsCanonical()))
	logger.Info("debt status overridden", "debt_id", debtID, "status", status, "admin", admin)

	return true, nil
}

func (l *Ledger) GetDebt(ctx context.Context, debtID uint64) (debt *model.Debt, err error) {
	defer func(started time.Time) { prom.ObserveLedgerOperation(opGetDebt, started, err) }(time.Now())
	return l.loadDebt(ctx, debtID)
}

// GetPaymentCount returns the length of the debt's payment log, 0 when the
// debt was never registered.
func (l *Ledger) GetPaymentCount(ctx context.Context, debtID uint64) (uint64, error) {
	return l.paymentCount(ctx, debtID)
}

// GetPayment returns the log entry at index, counted from 0. Indexes at or
// past the payment count are not found, even when a record from before a
// re-registration is still stored there.
func (l *Ledger) GetPayment(ctx context.Context, debtID, index uint64) (*model.Payment, error) {
	count, err := l.paymentCount(ctx, debtID)
	if err != nil {
		return nil, err
	}
	if index >= count {
		return nil, ErrPaymentNotFound
	}
	return l.loadPayment(ctx, debtID, index)
}

// ListPayments returns the whole payment log in insertion order. Unknown
// debts have an empty log.
func (l *Ledger) ListPayments(ctx context.Context, debtID uint64) (payments []model.Payment, err error) {
	defer func(started time.Time) { prom.ObserveLedgerOperation(opGetPayments, started, err) }(time.Now())

	count, err := l.paymentCount(ctx, debtID)
	if err != nil {
		return nil, err
	}
	payments = make([]model.Payment, 0, count)
	for i := uint64(0); i < count; i++ {
		p, err := l.loadPayment(ctx, debtID, i)
		if err != nil {
			return nil, fmt.Errorf("payment %d of debt %d: %w", i, debtID, err)
		}
		payments = append(payments, *p)
	}
	return payments, nil
}

// mutate runs fn in a store transaction while holding the debt's lock. The
// lock is taken inside the transaction and released once it has ended.
func (l *Ledger) mutate(ctx context.Context, debtID uint64, fn func(ctx context.Context) error) error {
	var unlock func()
	defer func() {
		if unlock != nil {
			unlock()
		}
	}()

	return l.store.WithinTransaction(ctx, func(ctx context.Context) error {
		u, err := l.locker.Lock(ctx, debtID)
		if err != nil {
			return fmt.Errorf("lock debt %d: %w", debtID, err)
		}
		unlock = u
		return fn(ctx)
	})
}

func (l *Ledger) authorize(ctx context.Context, admin model.Principal) error {
	err := l.auth.RequireAuthorized(ctx, admin)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnauthorized) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnauthorized, err)
}

func (l *Ledger) loadDebt(ctx context.Context, debtID uint64) (*model.Debt, error) {
	var debt model.Debt
	found, err := l.get(ctx, model.DebtKey(debtID), &debt)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrDebtNotFound
	}
	return &debt, nil
}

func (l *Ledger) loadPayment(ctx context.Context, debtID, index uint64) (*model.Payment, error) {
	var p model.Payment
	found, err := l.get(ctx, model.PaymentKey(debtID, index), &p)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrPaymentNotFound
	}
	return &p, nil
}

func (l *Ledger) paymentCount(ctx context.Context, debtID uint64) (uint64, error) {
	var count uint64
	if _, err := l.get(ctx, model.PaymentCountKey(debtID), &count); err != nil {
		return 0, err
	}
	return count, nil
}

func (l *Ledger) get(ctx context.Context, key model.Key, v any) (bool, error) {
	raw, found, err := l.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if !found {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (l *Ledger) put(ctx context.Context, key model.Key, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := l.store.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (l *Ledger) publish(ctx context.Context, topic string, debtID uint64, payload any) {
	event, err := model.NewEvent(topic, debtID, payload, l.clock.Now())
	if err != nil {
		logger.Error("failed to build ledger event", "topic", topic, "debt_id", debtID, "error", err)
		return
	}
	l.sink.Publish(ctx, topic, event)
}

func isKnownPaymentType(t model.PaymentType) bool {
	switch t {
	case model.PaymentTypeCash, model.PaymentTypeTransfer, model.PaymentTypeStripe, model.PaymentTypeStellar:
		return true
	}
	return false
}

// metricLabel keeps label cardinality bounded for free-form tags.
func metricLabel(v string, known bool) string {
	if known {
		return v
	}
	return "other"
}
