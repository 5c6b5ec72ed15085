package handlers

import (
	"context"
	"strconv"

	"github.com/fasthttp/router"
	"github.com/nimasrn/debt-ledger/internal/model"
	xhttp "github.com/nimasrn/debt-ledger/pkg/http"
	"github.com/shopspring/decimal"
)

type PendingPaymentService interface {
	Create(ctx context.Context, caller model.Principal, req model.PendingPaymentCreateRequest) (*model.PendingPayment, error)
	Approve(ctx context.Context, admin model.Principal, id int64) (*model.PendingPayment, error)
	Reject(ctx context.Context, admin model.Principal, id int64) (*model.PendingPayment, error)
	Get(ctx context.Context, id int64) (*model.PendingPayment, error)
	List(ctx context.Context, f model.PendingPaymentFilter) ([]*model.PendingPayment, int64, error)
}

type PendingPaymentHandler struct {
	svc PendingPaymentService
}

func RegisterPendingPaymentRoutes(e *router.Group, h *PendingPaymentHandler, auth *Authenticator) {
	e.POST("/pending-payments", auth.Require(h.Create))
	e.GET("/pending-payments", h.List)
	e.GET("/pending-payments/{id}", h.Get)
	e.PATCH("/pending-payments/{id}/approve", auth.Require(h.Approve))
	e.PATCH("/pending-payments/{id}/reject", auth.Require(h.Reject))
}

func NewPendingPaymentHandler(svc PendingPaymentService) *PendingPaymentHandler {
	return &PendingPaymentHandler{
		svc: svc,
	}
}

type createPendingPaymentRequest struct {
	DebtID      uint64            `json:"debt_id"`
	Customer    model.Principal   `json:"customer"`
	Amount      decimal.Decimal   `json:"amount"`
	PaymentType model.PaymentType `json:"payment_type"`
	Notes       string            `json:"notes"`
}

func (h *PendingPaymentHandler) Create(ctx *xhttp.RequestCtx) {
	var req createPendingPaymentRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	p, err := h.svc.Create(ctx, principal(ctx), model.PendingPaymentCreateRequest{
		DebtID:      req.DebtID,
		Customer:    req.Customer,
		Amount:      req.Amount,
		PaymentType: req.PaymentType,
		Notes:       req.Notes,
	})
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, p)
}

func (h *PendingPaymentHandler) List(ctx *xhttp.RequestCtx) {
	var f model.PendingPaymentFilter

	if v := query(ctx, "debt_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(ctx, xhttp.StatusBadRequest, "invalid debt_id")
			return
		}
		f.DebtID = &id
	}
	if v := query(ctx, "customer"); v != "" {
		c := model.Principal(v)
		f.Customer = &c
	}
	if v := query(ctx, "status"); v != "" {
		s := model.PendingPaymentStatus(v)
		f.Status = &s
	}
	f.Limit = queryInt(ctx, "limit")
	f.Offset = queryInt(ctx, "offset")

	items, total, err := h.svc.List(ctx, f)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	if items == nil {
		items = []*model.PendingPayment{}
	}
	writeJSON(ctx, xhttp.StatusOK, listResponse[*model.PendingPayment]{Items: items, Total: total})
}

func (h *PendingPaymentHandler) Get(ctx *xhttp.RequestCtx) {
	id, ok := pendingPaymentID(ctx)
	if !ok {
		return
	}

	p, err := h.svc.Get(ctx, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, p)
}

func (h *PendingPaymentHandler) Approve(ctx *xhttp.RequestCtx) {
	id, ok := pendingPaymentID(ctx)
	if !ok {
		return
	}

	p, err := h.svc.Approve(ctx, principal(ctx), id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, p)
}

func (h *PendingPaymentHandler) Reject(ctx *xhttp.RequestCtx) {
	id, ok := pendingPaymentID(ctx)
	if !ok {
		return
	}

	p, err := h.svc.Reject(ctx, principal(ctx), id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, p)
}

func pendingPaymentID(ctx *xhttp.RequestCtx) (int64, bool) {
	id, err := pathUint(ctx, "id")
	if err != nil || id > 1<<63-1 {
		writeError(ctx, xhttp.StatusBadRequest, "invalid pending payment id")
		return 0, false
	}
	return int64(id), true
}
