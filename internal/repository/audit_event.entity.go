package repository

import (
	"time"

	"github.com/nimasrn/debt-ledger/internal/model"
)

type AuditEventEntity struct {
	ID         int64     `db:"id"          gorm:"primaryKey;autoIncrement;column:id"`
	EventID    string    `db:"event_id"    gorm:"column:event_id;not null;uniqueIndex;size:36"`
	Topic      string    `db:"topic"       gorm:"column:topic;not null;index"`
	DebtID     uint64    `db:"debt_id"     gorm:"column:debt_id;not null;index"`
	Payload    string    `db:"payload"     gorm:"column:payload;type:text;not null"`
	OccurredAt time.Time `db:"occurred_at" gorm:"column:occurred_at;not null"`
	RecordedAt time.Time `db:"recorded_at" gorm:"column:recorded_at;autoCreateTime"`
}

func (AuditEventEntity) TableName() string {
	return "audit_events"
}

func toAuditEventEntity(m *model.AuditEvent) *AuditEventEntity {
	if m == nil {
		return nil
	}
	return &AuditEventEntity{
		ID:         m.ID,
		EventID:    m.EventID,
		Topic:      m.Topic,
		DebtID:     m.DebtID,
		Payload:    string(m.Payload),
		OccurredAt: m.OccurredAt,
		RecordedAt: m.RecordedAt,
	}
}

func toAuditEventModel(e *AuditEventEntity) *model.AuditEvent {
	if e == nil {
		return nil
	}
	return &model.AuditEvent{
		ID:         e.ID,
		EventID:    e.EventID,
		Topic:      e.Topic,
		DebtID:     e.DebtID,
		Payload:    []byte(e.Payload),
		OccurredAt: e.OccurredAt,
		RecordedAt: e.RecordedAt,
	}
}

func toAuditEventModels(entities []*AuditEventEntity) []*model.AuditEvent {
	if entities == nil {
		return nil
	}
	models := make([]*model.AuditEvent, len(entities))
	for i, e := range entities {
		models[i] = toAuditEventModel(e)
	}
	return models
}
