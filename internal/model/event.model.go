package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TopicDebtRegistered    = "debt_reg"
	TopicPaymentRegistered = "payment"
	TopicStatusChanged     = "status"
)

type Event struct {
	ID         string          `json:"id"`
	Topic      string          `json:"topic"`
	DebtID     uint64          `json:"debt_id"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func NewEvent(topic string, debtID uint64, payload any, at time.Time) (Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:         uuid.NewString(),
		Topic:      topic,
		DebtID:     debtID,
		Payload:    b,
		OccurredAt: at,
	}, nil
}

type DebtRegisteredPayload struct {
	SiteID      uint64          `json:"site_id"`
	Customer    Principal       `json:"customer"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

type PaymentRegisteredPayload struct {
	Amount      decimal.Decimal `json:"amount"`
	PaymentType PaymentType     `json:"payment_type"`
	Status      DebtStatus      `json:"status"`
}

type StatusChangedPayload struct {
	Status DebtStatus `json:"status"`
}
