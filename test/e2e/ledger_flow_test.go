package e2e

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nimasrn/debt-ledger/internal/auth"
	"github.com/nimasrn/debt-ledger/internal/events"
	"github.com/nimasrn/debt-ledger/internal/handlers"
	"github.com/nimasrn/debt-ledger/internal/ledger"
	"github.com/nimasrn/debt-ledger/internal/model"
	"github.com/nimasrn/debt-ledger/internal/processor"
	"github.com/nimasrn/debt-ledger/internal/queue"
	"github.com/nimasrn/debt-ledger/internal/repository"
	"github.com/nimasrn/debt-ledger/internal/services"
	xhttp "github.com/nimasrn/debt-ledger/pkg/http"
	"github.com/nimasrn/debt-ledger/test/fixtures"
	"github.com/nimasrn/debt-ledger/test/helpers"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

const jwtSecret = "e2e-secret"

type TestEnvironment struct {
	Handler   fasthttp.RequestHandler
	JWT       *auth.JWTManager
	Ledger    *ledger.Ledger
	State     *repository.StateRepository
	Audit     *repository.AuditEventRepository
	Publisher *queue.Queue
	Processor *processor.ProcessorService
}

func setupE2EEnvironment(t *testing.T) *TestEnvironment {
	t.Helper()
	db := helpers.SetupTestDB(t)
	_, adapter := helpers.SetupTestRedis(t)

	cfg := processor.ServiceConfig{
		Queue: queue.QueueConfig{
			Name:              "ledger-events",
			ConsumerGroup:     "ledger-audit",
			ConsumerName:      "e2e",
			MaxRetries:        3,
			VisibilityTimeout: 500 * time.Millisecond,
			PollInterval:      10 * time.Millisecond,
			BatchSize:         10,
			MaxLen:            1000,
			EnableDLQ:         true,
		},
		Consumers: 1,
		Workers:   2,
	}

	publisher, err := queue.NewQueue(adapter, cfg.Queue)
	require.NoError(t, err)

	state := repository.NewStateRepository(db)
	audit := repository.NewAuditEventRepository(db)
	authorizer := auth.NewAdminAuthorizer(string(fixtures.Admin))
	l := ledger.New(state, authorizer,
		ledger.WithLocker(ledger.NewLocalLocker()),
		ledger.WithEventSink(events.Fanout{events.NewQueueSink(publisher), events.LogSink{}}),
	)
	pending := services.NewPendingPaymentService(l, repository.NewPendingPaymentRepository(db), authorizer)

	jwt := auth.NewJWTManager(jwtSecret, "debt-ledger", time.Hour)
	authn := handlers.NewAuthenticator(jwt)
	r := xhttp.CreateDefaultRouter()
	g := r.Group("/api/v1")
	handlers.RegisterDebtRoutes(g, handlers.NewDebtHandler(l, audit), authn)
	handlers.RegisterPendingPaymentRoutes(g, handlers.NewPendingPaymentHandler(pending), authn)
	handlers.RegisterHealthRoutes(g, handlers.NewHealthHandler(map[string]handlers.HealthCheck{
		"database": db.Ping,
	}))

	svc := processor.NewProcessorService(adapter, cfg)
	svc.RegisterProcessor(processor.NewAuditProcessor(audit, processor.NewIdempotencyService(adapter, processor.DefaultIdempotencyConfig())))
	require.NoError(t, svc.Start())

	t.Cleanup(func() {
		svc.Stop()
		_ = publisher.Stop(time.Second)
	})

	return &TestEnvironment{
		Handler:   r.Handler,
		JWT:       jwt,
		Ledger:    l,
		State:     state,
		Audit:     audit,
		Publisher: publisher,
		Processor: svc,
	}
}

func (env *TestEnvironment) token(t *testing.T, p model.Principal) string {
	t.Helper()
	tok, err := env.JWT.GenerateToken(p, "")
	require.NoError(t, err)
	return tok
}

func (env *TestEnvironment) do(t *testing.T, method, path string, as model.Principal, body any) *fasthttp.RequestCtx {
	t.Helper()
	tok := ""
	if as != "" {
		tok = env.token(t, as)
	}
	return helpers.Request(t, env.Handler, method, path, tok, body)
}

func TestE2E_DebtLifecycle(t *testing.T) {
	env := setupE2EEnvironment(t)
	ctx := context.Background()

	res := env.do(t, "POST", "/api/v1/debts", fixtures.Admin, fixtures.DebtBody(fixtures.SmallDebt))
	require.Equal(t, fasthttp.StatusCreated, res.Response.StatusCode(), string(res.Response.Body()))

	res = env.do(t, "POST", "/api/v1/debts/1/payments", fixtures.Admin, fixtures.PaymentBody(400, model.PaymentTypeCash))
	require.Equal(t, fasthttp.StatusCreated, res.Response.StatusCode(), string(res.Response.Body()))

	var debt model.Debt
	helpers.Decode(t, env.do(t, "GET", "/api/v1/debts/1", "", nil), &debt)
	assert.Equal(t, model.DebtStatusPartial, debt.Status)
	assert.True(t, debt.PaidAmount.Equal(decimal.NewFromInt(400)))

	res = env.do(t, "POST", "/api/v1/debts/1/payments", fixtures.Admin, fixtures.PaymentBody(600, model.PaymentTypeStripe))
	require.Equal(t, fasthttp.StatusCreated, res.Response.StatusCode())

	helpers.Decode(t, env.do(t, "GET", "/api/v1/debts/1", "", nil), &debt)
	assert.Equal(t, model.DebtStatusPaid, debt.Status)

	var count struct {
		Count uint64 `json:"count"`
	}
	helpers.Decode(t, env.do(t, "GET", "/api/v1/debts/1/payment-count", "", nil), &count)
	assert.Equal(t, uint64(2), count.Count)

	var payment model.Payment
	helpers.Decode(t, env.do(t, "GET", "/api/v1/debts/1/payments/1", "", nil), &payment)
	assert.Equal(t, model.PaymentTypeStripe, payment.PaymentType)
	assert.True(t, payment.Amount.Equal(decimal.NewFromInt(600)))

	res = env.do(t, "PATCH", "/api/v1/debts/1/status", fixtures.Admin, map[string]string{"status": "written_off"})
	require.Equal(t, fasthttp.StatusOK, res.Response.StatusCode())

	rows, err := env.State.CountByDebt(ctx, 1)
	require.NoError(t, err)
	// debt record, payment count and two payments
	assert.Equal(t, int64(4), rows)

	// every mutation reaches the audit trail through the stream
	assert.Eventually(t, func() bool {
		_, total, err := env.Audit.List(ctx, model.AuditFilter{DebtID: 1})
		return err == nil && total == 4
	}, 5*time.Second, 20*time.Millisecond)

	var trail struct {
		Items []model.AuditEvent `json:"items"`
		Total int64              `json:"total"`
	}
	helpers.Decode(t, env.do(t, "GET", "/api/v1/debts/1/events", "", nil), &trail)
	require.Equal(t, int64(4), trail.Total)
	topics := make([]string, 0, len(trail.Items))
	for _, e := range trail.Items {
		topics = append(topics, e.Topic)
	}
	assert.ElementsMatch(t, []string{
		model.TopicDebtRegistered,
		model.TopicPaymentRegistered,
		model.TopicPaymentRegistered,
		model.TopicStatusChanged,
	}, topics)
}

func TestE2E_UnauthorizedMutationsLeaveNoTrace(t *testing.T) {
	env := setupE2EEnvironment(t)
	ctx := context.Background()

	res := env.do(t, "POST", "/api/v1/debts", fixtures.Stranger, fixtures.DebtBody(fixtures.SmallDebt))
	assert.Equal(t, fasthttp.StatusForbidden, res.Response.StatusCode())

	res = env.do(t, "POST", "/api/v1/debts", "", fixtures.DebtBody(fixtures.SmallDebt))
	assert.Equal(t, fasthttp.StatusUnauthorized, res.Response.StatusCode())

	rows, err := env.State.CountByDebt(ctx, fixtures.SmallDebt.DebtID)
	require.NoError(t, err)
	assert.Zero(t, rows)

	stats, err := env.Publisher.GetStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalMessages)
}

func TestE2E_PendingPaymentApproval(t *testing.T) {
	env := setupE2EEnvironment(t)

	res := env.do(t, "POST", "/api/v1/debts", fixtures.Admin, fixtures.DebtBody(fixtures.SmallDebt))
	require.Equal(t, fasthttp.StatusCreated, res.Response.StatusCode())

	res = env.do(t, "POST", "/api/v1/pending-payments", fixtures.Customer, map[string]any{
		"debt_id":      fixtures.SmallDebt.DebtID,
		"amount":       "250",
		"payment_type": model.PaymentTypeTransfer,
		"notes":        " wire #42 ",
	})
	require.Equal(t, fasthttp.StatusCreated, res.Response.StatusCode(), string(res.Response.Body()))
	var pending model.PendingPayment
	helpers.Decode(t, res, &pending)
	assert.Equal(t, model.PendingPaymentStatusPending, pending.Status)
	assert.Equal(t, "wire #42", pending.Notes)

	// the customer cannot approve their own submission
	res = env.do(t, "PATCH", fmt.Sprintf("/api/v1/pending-payments/%d/approve", pending.ID), fixtures.Customer, nil)
	assert.Equal(t, fasthttp.StatusForbidden, res.Response.StatusCode())

	res = env.do(t, "PATCH", fmt.Sprintf("/api/v1/pending-payments/%d/approve", pending.ID), fixtures.Admin, nil)
	require.Equal(t, fasthttp.StatusOK, res.Response.StatusCode(), string(res.Response.Body()))
	helpers.Decode(t, res, &pending)
	assert.Equal(t, model.PendingPaymentStatusApproved, pending.Status)
	assert.Equal(t, fixtures.Admin, pending.ResolvedBy)

	res = env.do(t, "PATCH", fmt.Sprintf("/api/v1/pending-payments/%d/reject", pending.ID), fixtures.Admin, nil)
	assert.Equal(t, fasthttp.StatusConflict, res.Response.StatusCode())

	var debt model.Debt
	helpers.Decode(t, env.do(t, "GET", "/api/v1/debts/1", "", nil), &debt)
	assert.Equal(t, model.DebtStatusPartial, debt.Status)
	assert.True(t, debt.PaidAmount.Equal(decimal.NewFromInt(250)))

	count, err := env.Ledger.GetPaymentCount(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestE2E_MaxAmountDebt(t *testing.T) {
	env := setupE2EEnvironment(t)

	res := env.do(t, "POST", "/api/v1/debts", fixtures.Admin, fixtures.DebtBody(fixtures.LargeDebt))
	require.Equal(t, fasthttp.StatusCreated, res.Response.StatusCode(), string(res.Response.Body()))

	res = env.do(t, "POST", "/api/v1/debts/2/payments", fixtures.Admin, map[string]any{
		"amount":       fixtures.LargeDebt.TotalAmount.String(),
		"payment_type": model.PaymentTypeStellar,
	})
	require.Equal(t, fasthttp.StatusCreated, res.Response.StatusCode())

	// any further positive payment overflows the paid total
	res = env.do(t, "POST", "/api/v1/debts/2/payments", fixtures.Admin, fixtures.PaymentBody(1, model.PaymentTypeCash))
	assert.Equal(t, fasthttp.StatusBadRequest, res.Response.StatusCode())

	var debt model.Debt
	helpers.Decode(t, env.do(t, "GET", "/api/v1/debts/2", "", nil), &debt)
	assert.Equal(t, model.DebtStatusPaid, debt.Status)
	assert.True(t, debt.PaidAmount.Equal(fixtures.LargeDebt.TotalAmount))
}

func TestE2E_Health(t *testing.T) {
	env := setupE2EEnvironment(t)
	res := env.do(t, "GET", "/api/v1/health", "", nil)
	assert.Equal(t, fasthttp.StatusOK, res.Response.StatusCode())
}
