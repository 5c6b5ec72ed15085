package repository

import (
	"time"

	"github.com/nimasrn/debt-ledger/internal/model"
	"github.com/shopspring/decimal"
)

type PendingPaymentEntity struct {
	ID          int64           `db:"id"           gorm:"primaryKey;autoIncrement;column:id"`
	Reference   string          `db:"reference"    gorm:"column:reference;not null;uniqueIndex;size:36"`
	DebtID      uint64          `db:"debt_id"      gorm:"column:debt_id;not null;index"`
	Customer    string          `db:"customer"     gorm:"column:customer;not null;index"`
	Amount      decimal.Decimal `db:"amount"       gorm:"column:amount;type:numeric(39,0);not null"`
	PaymentType string          `db:"payment_type" gorm:"column:payment_type;not null"`
	Notes       string          `db:"notes"        gorm:"column:notes"`
	Status      string          `db:"status"       gorm:"column:status;not null;index;default:pending"`
	ResolvedBy  string          `db:"resolved_by"  gorm:"column:resolved_by"`
	CreatedAt   time.Time       `db:"created_at"   gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `db:"updated_at"   gorm:"column:updated_at;autoUpdateTime"`
}

func (PendingPaymentEntity) TableName() string {
	return "pending_payments"
}

func toPendingPaymentEntity(m *model.PendingPayment) *PendingPaymentEntity {
	if m == nil {
		return nil
	}
	return &PendingPaymentEntity{
		ID:          m.ID,
		Reference:   m.Reference,
		DebtID:      m.DebtID,
		Customer:    string(m.Customer),
		Amount:      m.Amount,
		PaymentType: string(m.PaymentType),
		Notes:       m.Notes,
		Status:      string(m.Status),
		ResolvedBy:  string(m.ResolvedBy),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func toPendingPaymentModel(e *PendingPaymentEntity) *model.PendingPayment {
	if e == nil {
		return nil
	}
	return &model.PendingPayment{
		ID:          e.ID,
		Reference:   e.Reference,
		DebtID:      e.DebtID,
		Customer:    model.Principal(e.Customer),
		Amount:      e.Amount,
		PaymentType: model.PaymentType(e.PaymentType),
		Notes:       e.Notes,
		Status:      model.PendingPaymentStatus(e.Status),
		ResolvedBy:  model.Principal(e.ResolvedBy),
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func toPendingPaymentModels(entities []*PendingPaymentEntity) []*model.PendingPayment {
	if entities == nil {
		return nil
	}
	models := make([]*model.PendingPayment, len(entities))
	for i, e := range entities {
		models[i] = toPendingPaymentModel(e)
	}
	return models
}
