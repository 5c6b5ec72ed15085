package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nimasrn/debt-ledger/internal/app"
	"github.com/nimasrn/debt-ledger/internal/auth"
	"github.com/nimasrn/debt-ledger/internal/config"
	"github.com/nimasrn/debt-ledger/internal/events"
	"github.com/nimasrn/debt-ledger/internal/handlers"
	"github.com/nimasrn/debt-ledger/internal/ledger"
	"github.com/nimasrn/debt-ledger/internal/processor"
	"github.com/nimasrn/debt-ledger/internal/queue"
	"github.com/nimasrn/debt-ledger/internal/repository"
	"github.com/nimasrn/debt-ledger/internal/services"
	xhttp "github.com/nimasrn/debt-ledger/pkg/http"
	"github.com/nimasrn/debt-ledger/pkg/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	defer logger.Sync()

	logger.Info("starting debt ledger api", "version", version, "commit", commit, "date", date)

	err := config.Load(app.EnvPath(os.Args))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	cfg := config.Get()
	if err = cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		return
	}

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

	q, err := queue.NewQueue(redisAdap, processor.ServiceConfigFrom(cfg).Queue)
	if err != nil {
		logger.Error("failed creating event queue", "error", err)
		return
	}

	// ledger
	ledgerStore, locker := app.LedgerBackend(cfg, db, redisAdap)
	authorizer := auth.NewAdminAuthorizer(cfg.Admins()...)
	opts := []ledger.Option{
		ledger.WithLocker(locker),
		ledger.WithEventSink(events.Fanout{events.NewQueueSink(q), events.LogSink{}}),
	}
	if cfg.LedgerRejectDuplicates {
		opts = append(opts, ledger.WithDuplicateGuard())
	}
	l := ledger.New(ledgerStore, authorizer, opts...)

	pendingRepo := repository.NewPendingPaymentRepository(db)
	auditRepo := repository.NewAuditEventRepository(db)

	// services
	pendingService := services.NewPendingPaymentService(l, pendingRepo, authorizer)

	// transport
	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.Use(xhttp.RecoverMiddleware)
	s.Use(xhttp.RequestIDMiddleware)
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.TimeoutMiddleware(cfg.HttpRequestTimeout))
	s.Router = xhttp.CreateDefaultRouter()

	jwt := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	authn := handlers.NewAuthenticator(jwt)

	// v1 handlers
	g := s.Router.Group("/api/v1")
	handlers.RegisterDebtRoutes(g, handlers.NewDebtHandler(l, auditRepo), authn)
	handlers.RegisterPendingPaymentRoutes(g, handlers.NewPendingPaymentHandler(pendingService), authn)
	handlers.RegisterHealthRoutes(g, handlers.NewHealthHandler(map[string]handlers.HealthCheck{
		"database": db.Ping,
		"redis": func(ctx context.Context) error {
			return redisAdap.Client().Ping(ctx).Err()
		},
	}))

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("http server listening", "addr", cfg.HttpListenAddr, "store", cfg.LedgerStore)
		var err = s.ListenAndServe(cfg.HttpListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	<-c
	s.Shutdown()
	if err := q.Stop(5 * time.Second); err != nil {
		logger.Error("failed to stop event queue", "error", err)
	}
}
