package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nimasrn/debt-ledger/internal/app"
	"github.com/nimasrn/debt-ledger/internal/config"
	"github.com/nimasrn/debt-ledger/internal/processor"
	"github.com/nimasrn/debt-ledger/internal/repository"
	"github.com/nimasrn/debt-ledger/pkg/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	defer logger.Sync()

	logger.Info("starting audit processor", "version", version, "commit", commit, "date", date)

	err := config.Load(app.EnvPath(os.Args))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	cfg := config.Get()

	if err = app.StartMetrics(cfg); err != nil {
		logger.Error("failed to start metrics", "error", err)
		return
	}

	db, err := app.OpenDatabase(cfg)
	if err != nil {
		logger.Error("failed connecting to database", "error", err)
		return
	}

	redisAdap, err := app.ConnectRedis(cfg)
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	auditRepo := repository.NewAuditEventRepository(db)
	idempotencyService := processor.NewIdempotencyService(redisAdap, processor.DefaultIdempotencyConfig())

	service := processor.NewProcessorService(redisAdap, processor.ServiceConfigFrom(cfg))
	service.RegisterProcessor(processor.NewAuditProcessor(auditRepo, idempotencyService))

	if err = service.Start(); err != nil {
		logger.Error("failed to start processor", "error", err)
		return
	}

	status := processor.NewStatusServer(cfg.ProcessorStatusAddr, service)
	go func() {
		if err := status.ListenAndServe(); err != nil {
			logger.Error("error in running status server", "error", err)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := status.Shutdown(ctx); err != nil {
		logger.Error("failed to stop status server", "error", err)
	}
	service.Stop()
}
