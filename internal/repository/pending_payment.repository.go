package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nimasrn/debt-ledger/internal/model"
	"github.com/nimasrn/debt-ledger/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrPendingPaymentNotFound = errors.New("pending payment not found")
	// ErrPendingPaymentResolved is returned when a resolution races with
	// another one or targets a row that is no longer pending.
	ErrPendingPaymentResolved = errors.New("pending payment already resolved")
)

type PendingPaymentRepository struct {
	*pg.DB
}

func NewPendingPaymentRepository(db *pg.DB) *PendingPaymentRepository {
	return &PendingPaymentRepository{
		db,
	}
}

func (r *PendingPaymentRepository) Create(ctx context.Context, p *model.PendingPayment) (*model.PendingPayment, error) {
	entity := toPendingPaymentEntity(p)

	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toPendingPaymentModel(entity), nil
}

// GetByID locks the row when called inside a transaction.
func (r *PendingPaymentRepository) GetByID(ctx context.Context, id int64) (*model.PendingPayment, error) {
	q := r.Read(ctx)
	if pg.InTransaction(ctx) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var entity PendingPaymentEntity
	if err := q.Where("id = ?", id).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPendingPaymentNotFound
		}
		return nil, err
	}
	return toPendingPaymentModel(&entity), nil
}

func (r *PendingPaymentRepository) List(ctx context.Context, f model.PendingPaymentFilter) ([]*model.PendingPayment, int64, error) {
	q := r.Read(ctx).Model(&PendingPaymentEntity{})

	if f.DebtID != nil {
		q = q.Where("debt_id = ?", *f.DebtID)
	}
	if f.Customer != nil && *f.Customer != "" {
		q = q.Where("customer = ?", string(*f.Customer))
	}
	if f.Status != nil && *f.Status != "" {
		q = q.Where("status = ?", string(*f.Status))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var entities []*PendingPaymentEntity
	if err := q.Order("id ASC").Limit(limit).Offset(offset).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return toPendingPaymentModels(entities), total, nil
}

// Resolve moves a pending row to status. Only rows still pending are
// touched, so two concurrent resolutions cannot both succeed.
func (r *PendingPaymentRepository) Resolve(ctx context.Context, id int64, status model.PendingPaymentStatus, by model.Principal) error {
	result := r.Write(ctx).
		Model(&PendingPaymentEntity{}).
		Where("id = ? AND status = ?", id, string(model.PendingPaymentStatusPending)).
		Updates(map[string]any{
			"status":      string(status),
			"resolved_by": string(by),
			"updated_at":  time.Now().UTC(),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrPendingPaymentResolved
	}

	return nil
}
