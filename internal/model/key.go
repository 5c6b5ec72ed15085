package model

import "fmt"

// KeyKind enumerates the record kinds kept by a ledger store.
type KeyKind uint8

const (
	KeyKindDebt KeyKind = iota + 1
	KeyKindPaymentCount
	KeyKindPayment
)

func (k KeyKind) String() string {
	switch k {
	case KeyKindDebt:
		return "debt"
	case KeyKindPaymentCount:
		return "payment_count"
	case KeyKindPayment:
		return "payment"
	}
	return "unknown"
}

// Key addresses one record in a ledger store. Index is only meaningful for
// KeyKindPayment.
type Key struct {
	Kind   KeyKind
	DebtID uint64
	Index  uint64
}

func DebtKey(debtID uint64) Key {
	return Key{Kind: KeyKindDebt, DebtID: debtID}
}

func PaymentCountKey(debtID uint64) Key {
	return Key{Kind: KeyKindPaymentCount, DebtID: debtID}
}

func PaymentKey(debtID, index uint64) Key {
	return Key{Kind: KeyKindPayment, DebtID: debtID, Index: index}
}

func (k Key) String() string {
	if k.Kind == KeyKindPayment {
		return fmt.Sprintf("%s:%d:%d", k.Kind, k.DebtID, k.Index)
	}
	return fmt.Sprintf("%s:%d", k.Kind, k.DebtID)
}
