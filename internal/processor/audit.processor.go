package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nimasrn/debt-ledger/internal/model"
	"github.com/nimasrn/debt-ledger/internal/queue"
	"github.com/nimasrn/debt-ledger/pkg/logger"
	"github.com/nimasrn/debt-ledger/pkg/prom"
)

var ErrMalformedEvent = errors.New("malformed ledger event")

const (
	resultStored    = "stored"
	resultDuplicate = "duplicate"
	resultFailed    = "failed"
	resultDropped   = "dropped"
)

type AuditEventRepository interface {
	Create(ctx context.Context, e *model.AuditEvent) (*model.AuditEvent, bool, error)
}

// AuditProcessor persists ledger events published to the event stream into
// the audit trail.
type AuditProcessor struct {
	repo        AuditEventRepository
	idempotency *IdempotencyService
	now         func() time.Time
}

func NewAuditProcessor(repo AuditEventRepository, idempotency *IdempotencyService) *AuditProcessor {
	return &AuditProcessor{
		repo:        repo,
		idempotency: idempotency,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (p *AuditProcessor) GetType() string {
	return "audit"
}

func (p *AuditProcessor) Process(ctx context.Context, queueMessage *queue.Message) error {
	var event model.Event
	if err := json.Unmarshal(queueMessage.Data, &event); err != nil {
		logger.Error("failed to unmarshal ledger event", "stream_id", queueMessage.ID, "error", err)
		prom.IncEventProcessed(queueMessage.Metadata["topic"], resultFailed)
		// left pending so the queue dead-letters it after MaxRetries
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if event.ID == "" || event.Topic == "" {
		prom.IncEventProcessed(event.Topic, resultFailed)
		return fmt.Errorf("%w: missing id or topic", ErrMalformedEvent)
	}

	procCtx, err := p.idempotency.AcquireProcessingLock(ctx, event.ID)
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyProcessed):
			logger.Debug("event already recorded, skipping", "event_id", event.ID)
			prom.IncEventProcessed(event.Topic, resultDuplicate)
			return nil
		case errors.Is(err, ErrMaxRetriesExceeded):
			logger.Error("giving up on ledger event", "event_id", event.ID, "topic", event.Topic)
			prom.IncEventProcessed(event.Topic, resultDropped)
			return nil
		case errors.Is(err, ErrLockAcquireFailed):
			return fmt.Errorf("event %s is being processed by another consumer", event.ID)
		default:
			return err
		}
	}
	defer func() {
		_ = p.idempotency.ReleaseLock(ctx, procCtx)
	}()

	_, inserted, err := p.repo.Create(ctx, &model.AuditEvent{
		EventID:    event.ID,
		Topic:      event.Topic,
		DebtID:     event.DebtID,
		Payload:    event.Payload,
		OccurredAt: event.OccurredAt,
		RecordedAt: p.now(),
	})
	if err != nil {
		logger.Error("failed to store audit event", "event_id", event.ID, "error", err)
		prom.IncEventProcessed(event.Topic, resultFailed)
		if markErr := p.idempotency.MarkFailure(ctx, procCtx, err); markErr != nil {
			logger.Error("failed to mark failure", "event_id", event.ID, "error", markErr)
		}
		return err
	}

	result := resultStored
	if !inserted {
		result = resultDuplicate
	}
	prom.IncEventProcessed(event.Topic, result)

	if markErr := p.idempotency.MarkSuccess(ctx, procCtx); markErr != nil {
		logger.Error("failed to mark success", "event_id", event.ID, "error", markErr)
	}

	logger.Debug("ledger event recorded",
		"event_id", event.ID,
		"topic", event.Topic,
		"debt_id", event.DebtID,
		"retry_count", procCtx.RetryCount)
	return nil
}
