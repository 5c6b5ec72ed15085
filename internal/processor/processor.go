package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nimasrn/debt-ledger/internal/config"
	"github.com/nimasrn/debt-ledger/internal/queue"
	"github.com/nimasrn/debt-ledger/pkg/logger"
	"github.com/nimasrn/debt-ledger/pkg/prom"
	"github.com/nimasrn/debt-ledger/pkg/redis"
	"github.com/nimasrn/debt-ledger/pkg/worker"
)

const ProcessingTimeout = time.Second * 5
const HealthInterval = time.Second * 30
const ShutdownTimeout = time.Minute

// Processor handles one message taken from the event stream.
type Processor interface {
	Process(ctx context.Context, message *queue.Message) error
	GetType() string
}

type ServiceConfig struct {
	Queue             queue.QueueConfig
	Consumers         int
	Workers           int
	BufferSize        int
	ProcessingTimeout time.Duration
	ReportInterval    time.Duration
}

// ServiceConfigFrom maps the loaded configuration onto the processor service.
func ServiceConfigFrom(c *config.Config) ServiceConfig {
	return ServiceConfig{
		Queue: queue.QueueConfig{
			Name:              c.EventStream,
			ConsumerGroup:     c.QueueConsumerGroup,
			ConsumerName:      c.QueueConsumerName,
			MaxRetries:        c.QueueMaxRetries,
			VisibilityTimeout: c.QueueVisibilityTimeout,
			PollInterval:      c.QueuePollInterval,
			BatchSize:         c.QueueBatchSize,
			MaxLen:            c.QueueMaxLen,
			EnableDLQ:         c.QueueEnableDLQ,
		},
		Consumers: c.QueueConsumers,
		Workers:   c.ProcessorWorkers,
	}
}

// ProcessorService fans messages from several stream consumers out to a
// worker pool and reports each result back to the consumer that owns it.
type ProcessorService struct {
	adapter   redis.RedisAdapter
	config    ServiceConfig
	queues    []*queue.Queue
	processor Processor
	metrics   *ServiceMetrics
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	worker    *worker.WorkerManager
}

type ServiceStats struct {
	Processor   string              `json:"processor"`
	Metrics     MetricsSnapshot     `json:"metrics"`
	Queues      []*queue.QueueStats `json:"queues"`
	PendingJobs int64               `json:"pending_jobs"`
}

func NewProcessorService(adapter redis.RedisAdapter, cfg ServiceConfig) *ProcessorService {
	if cfg.Consumers < 1 {
		cfg.Consumers = 1
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = cfg.Workers * 100
	}
	if cfg.ProcessingTimeout == 0 {
		cfg.ProcessingTimeout = ProcessingTimeout
	}
	if cfg.ReportInterval == 0 {
		cfg.ReportInterval = HealthInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ProcessorService{
		adapter: adapter,
		config:  cfg,
		metrics: NewServiceMetrics(),
		ctx:     ctx,
		cancel:  cancel,
		worker:  worker.NewWorkerManager(cfg.BufferSize, cfg.Workers, nil),
	}
}

func (s *ProcessorService) RegisterProcessor(processor Processor) {
	s.processor = processor
	logger.Info("registered processor", "type", processor.GetType())
}

// Start launches the worker pool and the stream consumers. It returns once
// every consumer is running.
func (s *ProcessorService) Start() error {
	if s.processor == nil {
		return fmt.Errorf("no processor registered")
	}
	logger.Info("starting processor service...")

	s.worker.SetWorker(s.workerHandler)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.worker.Start()
	}()

	for i := 0; i < s.config.Consumers; i++ {
		queueConfig := s.config.Queue
		queueConfig.ConsumerName = fmt.Sprintf("%s-instance-%d", queueConfig.ConsumerName, i)

		q, err := queue.NewQueue(s.adapter, queueConfig)
		if err != nil {
			return fmt.Errorf("failed to create queue %d: %w", i, err)
		}

		if err := q.Consume(s.messageHandler); err != nil {
			return fmt.Errorf("failed to start consumer %d: %w", i, err)
		}

		s.queues = append(s.queues, q)
		logger.Debug("started consumer instance", "instance", i, "consumer", queueConfig.ConsumerName)
	}

	s.wg.Add(1)
	go s.healthChecker()

	logger.Info("processor service started",
		"stream", s.config.Queue.Name,
		"consumers", len(s.queues),
		"workers", s.config.Workers)
	return nil
}

func (s *ProcessorService) Stats(ctx context.Context) ServiceStats {
	stats := ServiceStats{
		Metrics:     s.metrics.Snapshot(),
		PendingJobs: s.worker.GetUnreadCount(),
	}
	if s.processor != nil {
		stats.Processor = s.processor.GetType()
	}
	for i, q := range s.queues {
		qStats, err := q.GetStats(ctx)
		if err != nil {
			logger.Warn("queue stats unavailable", "queue", i, "error", err)
			continue
		}
		stats.Queues = append(stats.Queues, qStats)
	}
	return stats
}

// Ping checks the redis connection the consumers depend on.
func (s *ProcessorService) Ping(ctx context.Context) error {
	return s.adapter.Client().Ping(ctx).Err()
}

func (s *ProcessorService) healthChecker() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.performHealthCheck()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *ProcessorService) performHealthCheck() {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()

	if err := s.Ping(ctx); err != nil {
		logger.Error("health check failed: redis connection error", "error", err)
		return
	}

	stats := s.Stats(ctx)
	logger.Info("processor metrics",
		"total_processed", stats.Metrics.TotalProcessed,
		"total_failed", stats.Metrics.TotalFailed,
		"rate_per_second", stats.Metrics.RatePerSecond,
		"avg_duration_ms", stats.Metrics.AvgDurationMs,
		"pending_jobs", stats.PendingJobs)

	for i, q := range stats.Queues {
		prom.SetStreamPending(s.config.Queue.Name, q.PendingMessages)
		if q.PendingMessages > 10000 {
			logger.Warn("queue has high lag", "queue", i, "pending_messages", q.PendingMessages)
		}
	}
}

// Stop drains the consumers, then the worker pool.
func (s *ProcessorService) Stop() {
	logger.Info("shutting down processor service...")

	s.cancel()

	var qwg sync.WaitGroup
	for i, q := range s.queues {
		qwg.Add(1)
		go func(index int, q *queue.Queue) {
			defer qwg.Done()
			if err := q.Stop(ShutdownTimeout); err != nil {
				logger.Error("error stopping queue", "queue", index, "error", err)
			}
		}(i, q)
	}
	qwg.Wait()

	s.worker.Exit()
	s.wg.Wait()

	final := s.metrics.Snapshot()
	logger.Info("processor service stopped",
		"total_processed", final.TotalProcessed,
		"total_failed", final.TotalFailed)
}

type jobResult struct {
	msg        *queue.Message
	resultChan chan error
	ctx        context.Context
}

// messageHandler hands the message to the worker pool and waits for its
// result, so ack and retry stay with the consumer that read it.
func (s *ProcessorService) messageHandler(ctx context.Context, msg *queue.Message) error {
	resultChan := make(chan error, 1)

	msgCtx, cancel := context.WithTimeout(ctx, s.config.ProcessingTimeout+time.Second)
	defer cancel()

	job := &jobResult{
		msg:        msg,
		resultChan: resultChan,
		ctx:        msgCtx,
	}

	if !s.worker.Enqueue(job) {
		return fmt.Errorf("worker pool is stopped")
	}

	select {
	case err := <-resultChan:
		return err
	case <-msgCtx.Done():
		return fmt.Errorf("timeout waiting for worker to process message: %w", msgCtx.Err())
	}
}

func (s *ProcessorService) workerHandler(workerIndex int, job interface{}) {
	jobRes, ok := job.(*jobResult)
	if !ok {
		logger.Error("invalid job type in worker", "worker", workerIndex)
		return
	}

	select {
	case <-jobRes.ctx.Done():
		logger.Warn("job context cancelled before processing started", "worker", workerIndex)
		return
	default:
	}

	start := time.Now()
	err := s.processor.Process(jobRes.ctx, jobRes.msg)
	if err != nil {
		s.metrics.RecordFailure()
		logger.Error("failed to process message", "worker", workerIndex, "stream_id", jobRes.msg.ID, "error", err)
	} else {
		s.metrics.RecordSuccess(time.Since(start))
	}

	// buffered, never blocks
	jobRes.resultChan <- err
}
