package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nimasrn/debt-ledger/internal/config"
	"github.com/nimasrn/debt-ledger/internal/model"
	"github.com/nimasrn/debt-ledger/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProcessor struct {
	mu       sync.Mutex
	seen     []string
	failures map[string]int
}

func (p *recordingProcessor) GetType() string { return "recording" }

func (p *recordingProcessor) Process(ctx context.Context, msg *queue.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures[msg.ID] > 0 {
		p.failures[msg.ID]--
		return errors.New("transient")
	}
	p.seen = append(p.seen, string(msg.Data))
	return nil
}

func (p *recordingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

func testServiceConfig() ServiceConfig {
	return ServiceConfig{
		Queue: queue.QueueConfig{
			Name:              "ledger-events",
			ConsumerGroup:     "audit",
			ConsumerName:      "test",
			MaxRetries:        3,
			VisibilityTimeout: 200 * time.Millisecond,
			PollInterval:      10 * time.Millisecond,
			BatchSize:         10,
			EnableDLQ:         true,
		},
		Consumers: 2,
		Workers:   2,
	}
}

func TestProcessorService_RequiresProcessor(t *testing.T) {
	_, adapter := setupRedis(t)
	svc := NewProcessorService(adapter, testServiceConfig())
	assert.Error(t, svc.Start())
}

func TestProcessorService_ProcessesStream(t *testing.T) {
	_, adapter := setupRedis(t)
	cfg := testServiceConfig()

	publisher, err := queue.NewQueue(adapter, cfg.Queue)
	require.NoError(t, err)
	defer publisher.Stop(time.Second)

	rec := &recordingProcessor{}
	svc := NewProcessorService(adapter, cfg)
	svc.RegisterProcessor(rec)
	require.NoError(t, svc.Start())

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		_, err := publisher.PublishJSON(ctx, map[string]int{"n": i}, nil)
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool { return rec.count() == 20 }, 5*time.Second, 20*time.Millisecond)

	stats := svc.Stats(ctx)
	assert.Equal(t, "recording", stats.Processor)
	assert.Equal(t, int64(20), stats.Metrics.TotalProcessed)
	assert.Len(t, stats.Queues, 2)
	require.NoError(t, svc.Ping(ctx))

	svc.Stop()
}

func TestProcessorService_RetriesFailedMessage(t *testing.T) {
	_, adapter := setupRedis(t)
	cfg := testServiceConfig()
	cfg.Consumers = 1

	publisher, err := queue.NewQueue(adapter, cfg.Queue)
	require.NoError(t, err)
	defer publisher.Stop(time.Second)

	ctx := context.Background()
	id, err := publisher.Publish(ctx, []byte(`"retry-me"`), nil)
	require.NoError(t, err)

	rec := &recordingProcessor{failures: map[string]int{id: 1}}
	svc := NewProcessorService(adapter, cfg)
	svc.RegisterProcessor(rec)
	require.NoError(t, svc.Start())
	defer svc.Stop()

	assert.Eventually(t, func() bool { return rec.count() == 1 }, 5*time.Second, 20*time.Millisecond)
	assert.GreaterOrEqual(t, svc.Stats(ctx).Metrics.TotalFailed, int64(1))
}

func TestProcessorService_AuditPipeline(t *testing.T) {
	_, adapter := setupRedis(t)
	repo := setupAuditRepository(t)
	cfg := testServiceConfig()

	publisher, err := queue.NewQueue(adapter, cfg.Queue)
	require.NoError(t, err)
	defer publisher.Stop(time.Second)

	svc := NewProcessorService(adapter, cfg)
	svc.RegisterProcessor(NewAuditProcessor(repo, NewIdempotencyService(adapter, DefaultIdempotencyConfig())))
	require.NoError(t, svc.Start())
	defer svc.Stop()

	ctx := context.Background()
	msg, event := paymentEventMessage(t, 11)
	_, err = publisher.Publish(ctx, msg.Data, map[string]string{"topic": event.Topic})
	require.NoError(t, err)
	// the same event delivered twice is recorded once
	_, err = publisher.Publish(ctx, msg.Data, map[string]string{"topic": event.Topic})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, total, err := repo.List(ctx, model.AuditFilter{DebtID: 11})
		return err == nil && total == 1
	}, 5*time.Second, 20*time.Millisecond)

	assert.Eventually(t, func() bool {
		return svc.Stats(ctx).Metrics.TotalProcessed == 2
	}, 5*time.Second, 20*time.Millisecond)
}

func TestServiceConfigFrom(t *testing.T) {
	c := &config.Config{
		EventStream:        "events",
		QueueConsumerGroup: "grp",
		QueueConsumerName:  "c",
		QueueConsumers:     3,
		QueueMaxRetries:    5,
		ProcessorWorkers:   8,
	}
	cfg := ServiceConfigFrom(c)
	assert.Equal(t, "events", cfg.Queue.Name)
	assert.Equal(t, "grp", cfg.Queue.ConsumerGroup)
	assert.Equal(t, 5, cfg.Queue.MaxRetries)
	assert.Equal(t, 3, cfg.Consumers)
	assert.Equal(t, 8, cfg.Workers)
}
