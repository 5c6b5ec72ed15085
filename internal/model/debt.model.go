package model

import "github.com/shopspring/decimal"

// DebtStatus is the lifecycle tag of a debt. The constants below are the
// canonical values; a status override may carry any other tag.
type DebtStatus string

const (
	DebtStatusPending   DebtStatus = "pending"
	DebtStatusPartial   DebtStatus = "partial"
	DebtStatusPaid      DebtStatus = "paid"
	DebtStatusCancelled DebtStatus = "cancelled"
)

func (s DebtStatus) IsCanonical() bool {
	switch s {
	case DebtStatusPending, DebtStatusPartial, DebtStatusPaid, DebtStatusCancelled:
		return true
	}
	return false
}

// Principal identifies an actor: the administrator acting on the ledger or
// the customer a debt is owed by.
type Principal string

type Debt struct {
	DebtID      uint64          `json:"debt_id"`
	SiteID      uint64          `json:"site_id"`
	Customer    Principal       `json:"customer"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	PaidAmount  decimal.Decimal `json:"paid_amount"`
	Status      DebtStatus      `json:"status"`
}

// Outstanding is total minus paid; negative after an overpayment.
func (d *Debt) Outstanding() decimal.Decimal {
	return d.TotalAmount.Sub(d.PaidAmount)
}

type DebtCreateRequest struct {
	DebtID      uint64
	SiteID      uint64
	Customer    Principal
	TotalAmount decimal.Decimal
}
