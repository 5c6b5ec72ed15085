package repository

import (
	"time"

	"github.com/nimasrn/debt-ledger/internal/model"
)

// LedgerStateEntity is one record of the ledger key/value state.
type LedgerStateEntity struct {
	Key       string    `db:"state_key"  gorm:"primaryKey;column:state_key;size:96"`
	Kind      uint8     `db:"kind"       gorm:"column:kind;not null;index:idx_ledger_state_debt,priority:2"`
	DebtID    uint64    `db:"debt_id"    gorm:"column:debt_id;not null;index:idx_ledger_state_debt,priority:1"`
	Idx       uint64    `db:"idx"        gorm:"column:idx;not null;default:0"`
	Value     []byte    `db:"value"      gorm:"column:value;not null"`
	UpdatedAt time.Time `db:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (LedgerStateEntity) TableName() string {
	return "ledger_state"
}

func toLedgerStateEntity(key model.Key, value []byte) *LedgerStateEntity {
	return &LedgerStateEntity{
		Key:    key.String(),
		Kind:   uint8(key.Kind),
		DebtID: key.DebtID,
		Idx:    key.Index,
		Value:  value,
	}
}
