package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentType tags the settlement channel of a payment. Any tag is accepted.
type PaymentType string

const (
	PaymentTypeCash     PaymentType = "cash"
	PaymentTypeTransfer PaymentType = "transfer"
	PaymentTypeStripe   PaymentType = "stripe"
	PaymentTypeStellar  PaymentType = "stellar"
)

// Payment is an immutable entry of a debt's payment log.
type Payment struct {
	DebtID      uint64          `json:"debt_id"`
	Amount      decimal.Decimal `json:"amount"`
	PaymentType PaymentType     `json:"payment_type"`
	Timestamp   time.Time       `json:"timestamp"`
}
