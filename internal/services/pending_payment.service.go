package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/nimasrn/debt-ledger/internal/model"
	"github.com/nimasrn/debt-ledger/internal/repository"
	"github.com/nimasrn/debt-ledger/pkg/logger"
	"github.com/shopspring/decimal"
)

var (
	ErrUnauthorized           = errors.New("not allowed to act on this pending payment")
	ErrPendingPaymentNotFound = errors.New("pending payment not found")
	ErrAlreadyResolved        = errors.New("pending payment already resolved")
	ErrDebtAlreadyPaid        = errors.New("debt is already paid")
	ErrAmountExceedsBalance   = errors.New("amount exceeds outstanding balance")
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrInvalidRequest         = errors.New("invalid pending payment request")
)

type Ledger interface {
	GetDebt(ctx context.Context, debtID uint64) (*model.Debt, error)
	RegisterPayment(ctx context.Context, admin model.Principal, debtID uint64, amount decimal.Decimal, paymentType model.PaymentType) (bool, error)
}

type PendingPaymentRepository interface {
	Create(ctx context.Context, p *model.PendingPayment) (*model.PendingPayment, error)
	GetByID(ctx context.Context, id int64) (*model.PendingPayment, error)
	List(ctx context.Context, f model.PendingPaymentFilter) ([]*model.PendingPayment, int64, error)
	Resolve(ctx context.Context, id int64, status model.PendingPaymentStatus, by model.Principal) error
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Authorizer interface {
	RequireAuthorized(ctx context.Context, principal model.Principal) error
	IsAdmin(principal model.Principal) bool
}

// PendingPaymentService lets customers report payments that an
// administrator later approves onto the ledger or rejects.
type PendingPaymentService struct {
	ledger Ledger
	repo   PendingPaymentRepository
	auth   Authorizer
}

func NewPendingPaymentService(ledger Ledger, repo PendingPaymentRepository, auth Authorizer) *PendingPaymentService {
	return &PendingPaymentService{
		ledger: ledger,
		repo:   repo,
		auth:   auth,
	}
}

// Create records a payment reported by caller. Only the debt's customer or an
// administrator may report against a debt.
func (s *PendingPaymentService) Create(ctx context.Context, caller model.Principal, req model.PendingPaymentCreateRequest) (*model.PendingPayment, error) {
	if req.Customer == "" {
		req.Customer = caller
	}
	req.Notes = strings.TrimSpace(req.Notes)
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if !model.IsValidAmount(req.Amount) || !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	debt, err := s.ledger.GetDebt(ctx, req.DebtID)
	if err != nil {
		return nil, err
	}

	if caller != debt.Customer && !s.auth.IsAdmin(caller) {
		return nil, ErrUnauthorized
	}
	if req.Customer != debt.Customer {
		return nil, fmt.Errorf("%w: customer does not own debt %d", ErrInvalidRequest, req.DebtID)
	}
	if err := checkBalance(debt, req.Amount); err != nil {
		return nil, err
	}

	created, err := s.repo.Create(ctx, &model.PendingPayment{
		Reference:   uuid.NewString(),
		DebtID:      req.DebtID,
		Customer:    req.Customer,
		Amount:      req.Amount,
		PaymentType: req.PaymentType,
		Notes:       req.Notes,
		Status:      model.PendingPaymentStatusPending,
	})
	if err != nil {
		return nil, fmt.Errorf("create pending payment: %w", err)
	}

	logger.Info("pending payment created",
		"id", created.ID,
		"reference", created.Reference,
		"debt_id", created.DebtID,
		"amount", created.Amount.String())
	return created, nil
}

// Approve marks the pending payment approved and registers it on the
// ledger. Both writes share one transaction, so a ledger failure leaves the
// row pending. The balance is checked before the transaction opens.
func (s *PendingPaymentService) Approve(ctx context.Context, admin model.Principal, id int64) (*model.PendingPayment, error) {
	if err := s.auth.RequireAuthorized(ctx, admin); err != nil {
		return nil, ErrUnauthorized
	}

	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != model.PendingPaymentStatusPending {
		return nil, ErrAlreadyResolved
	}

	debt, err := s.ledger.GetDebt(ctx, p.DebtID)
	if err != nil {
		return nil, err
	}
	if err := checkBalance(debt, p.Amount); err != nil {
		return nil, err
	}

	err = s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.resolve(ctx, id, model.PendingPaymentStatusApproved, admin); err != nil {
			return err
		}
		if _, err := s.ledger.RegisterPayment(ctx, admin, p.DebtID, p.Amount, p.PaymentType); err != nil {
			return fmt.Errorf("register payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.Status = model.PendingPaymentStatusApproved
	p.ResolvedBy = admin
	logger.Info("pending payment approved", "id", id, "debt_id", p.DebtID, "by", admin)
	return p, nil
}

// Reject closes the pending payment without touching the debt.
func (s *PendingPaymentService) Reject(ctx context.Context, admin model.Principal, id int64) (*model.PendingPayment, error) {
	if err := s.auth.RequireAuthorized(ctx, admin); err != nil {
		return nil, ErrUnauthorized
	}

	var rejected *model.PendingPayment
	err := s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.resolve(ctx, id, model.PendingPaymentStatusRejected, admin); err != nil {
			return err
		}
		p, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		rejected = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("pending payment rejected", "id", id, "debt_id", rejected.DebtID, "by", admin)
	return rejected, nil
}

func (s *PendingPaymentService) Get(ctx context.Context, id int64) (*model.PendingPayment, error) {
	return s.load(ctx, id)
}

func (s *PendingPaymentService) List(ctx context.Context, f model.PendingPaymentFilter) ([]*model.PendingPayment, int64, error) {
	return s.repo.List(ctx, f)
}

func (s *PendingPaymentService) load(ctx context.Context, id int64) (*model.PendingPayment, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrPendingPaymentNotFound) {
			return nil, ErrPendingPaymentNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *PendingPaymentService) resolve(ctx context.Context, id int64, status model.PendingPaymentStatus, by model.Principal) error {
	err := s.repo.Resolve(ctx, id, status, by)
	switch {
	case errors.Is(err, repository.ErrPendingPaymentNotFound):
		return ErrPendingPaymentNotFound
	case errors.Is(err, repository.ErrPendingPaymentResolved):
		return ErrAlreadyResolved
	}
	return err
}

func checkBalance(debt *model.Debt, amount decimal.Decimal) error {
	if debt.PaidAmount.GreaterThanOrEqual(debt.TotalAmount) {
		return ErrDebtAlreadyPaid
	}
	if amount.GreaterThan(debt.Outstanding()) {
		return ErrAmountExceedsBalance
	}
	return nil
}
