package helpers

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/nimasrn/debt-ledger/internal/repository"
	"github.com/nimasrn/debt-ledger/pkg/pg"
	"github.com/nimasrn/debt-ledger/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

// SetupTestDB opens an in-memory sqlite database with every ledger table.
func SetupTestDB(t *testing.T) *pg.DB {
	t.Helper()
	db, err := pg.OpenSQLite(":memory:", false)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(repository.Entities()...))
	return db
}

// SetupTestRedis starts a miniredis server that is closed with the test.
func SetupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, redis.NewFromClient(client, "")
}

// Request runs a request through handler and returns the finished context.
// token may be empty and body nil.
func Request(t *testing.T, handler fasthttp.RequestHandler, method, path, token string, body any) *fasthttp.RequestCtx {
	t.Helper()
	ctx := &fasthttp.RequestCtx{}
	// Init binds the context to fasthttp's stand-in server; without it
	// Done and Err panic once the handler passes ctx down as a context.
	ctx.Init(&fasthttp.Request{}, nil, nil)
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	if token != "" {
		ctx.Request.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		ctx.Request.SetBody(b)
		ctx.Request.Header.SetContentType("application/json")
	}
	handler(ctx)
	return ctx
}

// Decode unmarshals the response body of ctx into out.
func Decode(t *testing.T, ctx *fasthttp.RequestCtx, out any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(bytes.NewReader(ctx.Response.Body())).Decode(out))
}
