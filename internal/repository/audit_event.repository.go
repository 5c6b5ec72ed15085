package repository

import (
	"context"

	"github.com/nimasrn/debt-ledger/internal/model"
	"github.com/nimasrn/debt-ledger/pkg/pg"
	"gorm.io/gorm/clause"
)

type AuditEventRepository struct {
	*pg.DB
}

func NewAuditEventRepository(db *pg.DB) *AuditEventRepository {
	return &AuditEventRepository{
		db,
	}
}

// Create stores the event. A second insert with the same event id is a
// no-op, so redelivered stream messages do not duplicate audit rows.
func (r *AuditEventRepository) Create(ctx context.Context, e *model.AuditEvent) (*model.AuditEvent, bool, error) {
	entity := toAuditEventEntity(e)

	result := r.Write(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(entity)
	if result.Error != nil {
		return nil, false, result.Error
	}

	return toAuditEventModel(entity), result.RowsAffected > 0, nil
}

// List returns the matching events oldest first.
func (r *AuditEventRepository) List(ctx context.Context, f model.AuditFilter) ([]*model.AuditEvent, int64, error) {
	q := r.Read(ctx).Model(&AuditEventEntity{})

	if f.DebtID != 0 {
		q = q.Where("debt_id = ?", f.DebtID)
	}
	if f.Topic != "" {
		q = q.Where("topic = ?", f.Topic)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var entities []*AuditEventEntity
	if err := q.Order("occurred_at ASC, id ASC").Limit(limit).Offset(offset).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return toAuditEventModels(entities), total, nil
}
