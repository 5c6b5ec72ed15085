package ledger

import (
	"errors"

	"github.com/nimasrn/debt-ledger/internal/model"
)

var (
	ErrUnauthorized    = errors.New("caller is not an authorized admin")
	ErrDebtNotFound    = errors.New("debt not found")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrDebtExists      = errors.New("debt already registered")
	ErrAmountOverflow  = errors.New("amount overflows the signed 128-bit range")
	ErrInvalidAmount   = model.ErrInvalidAmount
)
