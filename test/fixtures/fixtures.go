package fixtures

import (
	"github.com/nimasrn/debt-ledger/internal/model"
	"github.com/shopspring/decimal"
)

const (
	Admin    model.Principal = "admin"
	Customer model.Principal = "alice"
	Stranger model.Principal = "mallory"
)

var (
	SmallDebt = model.DebtCreateRequest{
		DebtID:      1,
		SiteID:      10,
		Customer:    Customer,
		TotalAmount: decimal.NewFromInt(1_000),
	}

	LargeDebt = model.DebtCreateRequest{
		DebtID:      2,
		SiteID:      10,
		Customer:    Customer,
		TotalAmount: decimal.RequireFromString("170141183460469231731687303715884105727"),
	}
)

// DebtBody is the json body of a debt registration request.
func DebtBody(req model.DebtCreateRequest) map[string]any {
	return map[string]any{
		"debt_id":      req.DebtID,
		"site_id":      req.SiteID,
		"customer":     req.Customer,
		"total_amount": req.TotalAmount.String(),
	}
}

func PaymentBody(amount int64, paymentType model.PaymentType) map[string]any {
	return map[string]any{
		"amount":       decimal.NewFromInt(amount).String(),
		"payment_type": paymentType,
	}
}
