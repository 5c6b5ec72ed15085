package repository

import (
	"context"
	"errors"

	"github.com/nimasrn/debt-ledger/internal/model"
	"github.com/nimasrn/debt-ledger/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StateRepository stores ledger records in a SQL table. Reads inside a
// transaction take a row lock so concurrent writers to the same debt queue
// up behind each other.
type StateRepository struct {
	*pg.DB
}

func NewStateRepository(db *pg.DB) *StateRepository {
	return &StateRepository{
		db,
	}
}

func (r *StateRepository) Get(ctx context.Context, key model.Key) ([]byte, bool, error) {
	q := r.Read(ctx)
	if pg.InTransaction(ctx) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var entity LedgerStateEntity
	err := q.Where("state_key = ?", key.String()).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return entity.Value, true, nil
}

func (r *StateRepository) Set(ctx context.Context, key model.Key, value []byte) error {
	entity := toLedgerStateEntity(key, value)
	return r.Write(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "state_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(entity).
		Error
}

// CountByDebt returns how many records exist for a debt across all kinds.
func (r *StateRepository) CountByDebt(ctx context.Context, debtID uint64) (int64, error) {
	var n int64
	err := r.Read(ctx).Model(&LedgerStateEntity{}).Where("debt_id = ?", debtID).Count(&n).Error
	return n, err
}
