package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/nimasrn/debt-ledger/internal/ledger"
	"github.com/nimasrn/debt-ledger/internal/model"
	"github.com/nimasrn/debt-ledger/internal/services"
	xhttp "github.com/nimasrn/debt-ledger/pkg/http"
	"github.com/nimasrn/debt-ledger/pkg/logger"
)

type listResponse[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
}

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	return json.Unmarshal(body, dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, map[string]string{"error": msg})
}

// writeServiceError maps domain errors onto HTTP status codes.
func writeServiceError(ctx *xhttp.RequestCtx, err error) {
	status := statusFor(err)
	if status >= xhttp.StatusInternalServerError {
		logger.Error("request failed", "path", string(ctx.Path()), "error", err)
		writeError(ctx, status, xhttp.StatusText(status))
		return
	}
	writeError(ctx, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrUnauthorized),
		errors.Is(err, services.ErrUnauthorized):
		return xhttp.StatusForbidden
	case errors.Is(err, ledger.ErrDebtNotFound),
		errors.Is(err, ledger.ErrPaymentNotFound),
		errors.Is(err, services.ErrPendingPaymentNotFound):
		return xhttp.StatusNotFound
	case errors.Is(err, ledger.ErrDebtExists),
		errors.Is(err, services.ErrAlreadyResolved):
		return xhttp.StatusConflict
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrAmountOverflow),
		errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrInvalidRequest),
		errors.Is(err, services.ErrDebtAlreadyPaid),
		errors.Is(err, services.ErrAmountExceedsBalance):
		return xhttp.StatusBadRequest
	default:
		return xhttp.StatusInternalServerError
	}
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

func queryInt(ctx *xhttp.RequestCtx, key string) int {
	n, _ := strconv.Atoi(query(ctx, key))
	return n
}

// pathUint reads a numeric route parameter.
func pathUint(ctx *xhttp.RequestCtx, name string) (uint64, error) {
	raw := fmt.Sprint(ctx.UserValue(name))
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return n, nil
}

func principal(ctx *xhttp.RequestCtx) model.Principal {
	p, _ := ctx.UserValue(principalKey).(model.Principal)
	return p
}
