package events

import (
	"context"
	"strconv"

	"github.com/nimasrn/debt-ledger/internal/model"
	"github.com/nimasrn/debt-ledger/pkg/logger"
)

// Sink matches the ledger's event sink contract.
type Sink interface {
	Publish(ctx context.Context, topic string, event model.Event)
}

type Publisher interface {
	PublishJSON(ctx context.Context, data interface{}, metadata map[string]string) (string, error)
}

// QueueSink forwards ledger events onto a stream for the audit processor.
// Publish failures are logged and dropped; the ledger mutation has already
// committed.
type QueueSink struct {
	publisher Publisher
}

func NewQueueSink(publisher Publisher) *QueueSink {
	return &QueueSink{publisher: publisher}
}

func (s *QueueSink) Publish(ctx context.Context, topic string, event model.Event) {
	meta := map[string]string{
		"topic":    topic,
		"debt_id":  strconv.FormatUint(event.DebtID, 10),
		"event_id": event.ID,
	}
	if _, err := s.publisher.PublishJSON(context.WithoutCancel(ctx), event, meta); err != nil {
		logger.Error("failed to publish ledger event", "topic", topic, "event_id", event.ID, "debt_id", event.DebtID, "error", err)
	}
}

// LogSink writes every event to the structured log.
type LogSink struct{}

func (LogSink) Publish(_ context.Context, topic string, event model.Event) {
	logger.Info("ledger event", "topic", topic, "event_id", event.ID, "debt_id", event.DebtID, "payload", string(event.Payload))
}

// Fanout delivers each event to every sink in order.
type Fanout []Sink

func (f Fanout) Publish(ctx context.Context, topic string, event model.Event) {
	for _, s := range f {
		s.Publish(ctx, topic, event)
	}
}
