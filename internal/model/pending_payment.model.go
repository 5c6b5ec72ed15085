package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type PendingPaymentStatus string

const (
	PendingPaymentStatusPending  PendingPaymentStatus = "pending"
	PendingPaymentStatusApproved PendingPaymentStatus = "approved"
	PendingPaymentStatusRejected PendingPaymentStatus = "rejected"
)

// PendingPayment is a payment reported by a customer that waits for an
// administrator to approve it onto the ledger.
type PendingPayment struct {
	ID          int64                `json:"id"`
	Reference   string               `json:"reference"`
	DebtID      uint64               `json:"debt_id"`
	Customer    Principal            `json:"customer"`
	Amount      decimal.Decimal      `json:"amount"`
	PaymentType PaymentType          `json:"payment_type"`
	Notes       string               `json:"notes,omitempty"`
	Status      PendingPaymentStatus `json:"status"`
	ResolvedBy  Principal            `json:"resolved_by,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

type PendingPaymentCreateRequest struct {
	DebtID      uint64
	Customer    Principal
	Amount      decimal.Decimal
	PaymentType PaymentType
	Notes       string
}

func (p PendingPaymentCreateRequest) Validate() error {
	if p.DebtID == 0 {
		return errors.New("debt_id is required")
	}
	if p.Customer == "" {
		return errors.New("customer is required")
	}
	if p.PaymentType == "" {
		return errors.New("payment_type is required")
	}
	return nil
}

// PendingPaymentFilter controls List queries.
type PendingPaymentFilter struct {
	DebtID   *uint64
	Customer *Principal
	Status   *PendingPaymentStatus
	Limit    int // default 50
	Offset   int
}
