package handlers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/fasthttp/router"
	"github.com/nimasrn/debt-ledger/internal/auth"
	"github.com/nimasrn/debt-ledger/internal/ledger"
	"github.com/nimasrn/debt-ledger/internal/model"
	"github.com/nimasrn/debt-ledger/internal/store"
	xhttp "github.com/nimasrn/debt-ledger/pkg/http"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

const testSecret = "handler-test-secret"

type testAPI struct {
	router *router.Router
	jwt    *auth.JWTManager
	ledger *ledger.Ledger
}

func newTestAPI(t *testing.T, audit AuditReader, pending PendingPaymentService) *testAPI {
	t.Helper()
	jwt := auth.NewJWTManager(testSecret, "debt-ledger", time.Hour)
	l := ledger.New(store.NewMemoryStore(), auth.NewAdminAuthorizer("admin"))

	r := xhttp.CreateDefaultRouter()
	g := r.Group("/api/v1")
	authn := NewAuthenticator(jwt)
	RegisterDebtRoutes(g, NewDebtHandler(l, audit), authn)
	if pending != nil {
		RegisterPendingPaymentRoutes(g, NewPendingPaymentHandler(pending), authn)
	}
	RegisterHealthRoutes(g, NewHealthHandler(map[string]HealthCheck{
		"ledger": func(context.Context) error { return nil },
	}))

	return &testAPI{router: r, jwt: jwt, ledger: l}
}

func (a *testAPI) token(t *testing.T, p model.Principal) string {
	t.Helper()
	tok, err := a.jwt.GenerateToken(p, "")
	require.NoError(t, err)
	return tok
}

// newRequestCtx builds a context bound to fasthttp's stand-in server, the
// way a listener would, so handlers can hand it to code that uses it as a
// context.Context.
func newRequestCtx(method, path string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&fasthttp.Request{}, nil, nil)
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	return ctx
}

// do runs one request through the router. as may be empty for anonymous
// requests.
func (a *testAPI) do(t *testing.T, method, path string, as model.Principal, body any) *fasthttp.RequestCtx {
	t.Helper()
	ctx := newRequestCtx(method, path)
	if as != "" {
		ctx.Request.Header.Set("Authorization", "Bearer "+a.token(t, as))
	}
	switch b := body.(type) {
	case nil:
	case string:
		ctx.Request.SetBodyString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		ctx.Request.SetBody(raw)
	}
	a.router.Handler(ctx)
	return ctx
}

func decode(t *testing.T, ctx *fasthttp.RequestCtx, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), dst), string(ctx.Response.Body()))
}
