package model

import (
	"encoding/json"
	"time"
)

// AuditEvent is a ledger event as persisted by the event processor.
type AuditEvent struct {
	ID         int64           `json:"id"`
	EventID    string          `json:"event_id"`
	Topic      string          `json:"topic"`
	DebtID     uint64          `json:"debt_id"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
	RecordedAt time.Time       `json:"recorded_at"`
}

type AuditFilter struct {
	DebtID uint64
	Topic  string
	Limit  int
	Offset int
}
