package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/nimasrn/debt-ledger/internal/model"
	xhttp "github.com/nimasrn/debt-ledger/pkg/http"
	"github.com/shopspring/decimal"
)

type DebtLedger interface {
	RegisterDebt(ctx context.Context, admin model.Principal, req model.DebtCreateRequest) (*model.Debt, error)
	RegisterPayment(ctx context.Context, admin model.Principal, debtID uint64, amount decimal.Decimal, paymentType model.PaymentType) (bool, error)
	UpdateStatus(ctx context.Context, admin model.Principal, debtID uint64, status model.DebtStatus) (bool, error)
	GetDebt(ctx context.Context, debtID uint64) (*model.Debt, error)
	GetPaymentCount(ctx context.Context, debtID uint64) (uint64, error)
	GetPayment(ctx context.Context, debtID, index uint64) (*model.Payment, error)
	ListPayments(ctx context.Context, debtID uint64) ([]model.Payment, error)
}

type AuditReader interface {
	List(ctx context.Context, f model.AuditFilter) ([]*model.AuditEvent, int64, error)
}

type DebtHandler struct {
	ledger DebtLedger
	audit  AuditReader
}

func RegisterDebtRoutes(e *router.Group, h *DebtHandler, auth *Authenticator) {
	e.POST("/debts", auth.Require(h.RegisterDebt))
	e.GET("/debts/{id}", h.GetDebt)
	e.POST("/debts/{id}/payments", auth.Require(h.RegisterPayment))
	e.GET("/debts/{id}/payments", h.ListPayments)
	e.GET("/debts/{id}/payments/{index}", h.GetPayment)
	e.GET("/debts/{id}/payment-count", h.GetPaymentCount)
	e.PATCH("/debts/{id}/status", auth.Require(h.UpdateStatus))
	e.GET("/debts/{id}/events", h.ListEvents)
}

// NewDebtHandler serves the ledger. audit may be nil when no audit trail is
// configured.
func NewDebtHandler(ledger DebtLedger, audit AuditReader) *DebtHandler {
	return &DebtHandler{
		ledger: ledger,
		audit:  audit,
	}
}

type registerDebtRequest struct {
	DebtID      *uint64         `json:"debt_id"`
	SiteID      uint64          `json:"site_id"`
	Customer    model.Principal `json:"customer"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

type registerPaymentRequest struct {
	Amount      decimal.Decimal   `json:"amount"`
	PaymentType model.PaymentType `json:"payment_type"`
}

type registerPaymentResponse struct {
	OK   bool        `json:"ok"`
	Debt *model.Debt `json:"debt"`
}

type updateStatusRequest struct {
	Status model.DebtStatus `json:"status"`
}

type paymentCountResponse struct {
	DebtID uint64 `json:"debt_id"`
	Count  uint64 `json:"count"`
}

func (h *DebtHandler) RegisterDebt(ctx *xhttp.RequestCtx) {
	var req registerDebtRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.DebtID == nil {
		writeError(ctx, xhttp.StatusBadRequest, "debt_id is required")
		return
	}

	debt, err := h.ledger.RegisterDebt(ctx, principal(ctx), model.DebtCreateRequest{
		DebtID:      *req.DebtID,
		SiteID:      req.SiteID,
		Customer:    req.Customer,
		TotalAmount: req.TotalAmount,
	})
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, debt)
}

func (h *DebtHandler) GetDebt(ctx *xhttp.RequestCtx) {
	id, err := pathUint(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}

	debt, err := h.ledger.GetDebt(ctx, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, debt)
}

func (h *DebtHandler) RegisterPayment(ctx *xhttp.RequestCtx) {
	id, err := pathUint(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}

	var req registerPaymentRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.PaymentType == "" {
		writeError(ctx, xhttp.StatusBadRequest, "payment_type is required")
		return
	}

	ok, err := h.ledger.RegisterPayment(ctx, principal(ctx), id, req.Amount, req.PaymentType)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}

	debt, err := h.ledger.GetDebt(ctx, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, registerPaymentResponse{OK: ok, Debt: debt})
}

func (h *DebtHandler) ListPayments(ctx *xhttp.RequestCtx) {
	id, err := pathUint(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}

	payments, err := h.ledger.ListPayments(ctx, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	if payments == nil {
		payments = []model.Payment{}
	}
	writeJSON(ctx, xhttp.StatusOK, listResponse[model.Payment]{Items: payments, Total: int64(len(payments))})
}

func (h *DebtHandler) GetPayment(ctx *xhttp.RequestCtx) {
	id, err := pathUint(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	index, err := pathUint(ctx, "index")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}

	payment, err := h.ledger.GetPayment(ctx, id, index)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, payment)
}

func (h *DebtHandler) GetPaymentCount(ctx *xhttp.RequestCtx) {
	id, err := pathUint(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}

	count, err := h.ledger.GetPaymentCount(ctx, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, paymentCountResponse{DebtID: id, Count: count})
}

func (h *DebtHandler) UpdateStatus(ctx *xhttp.RequestCtx) {
	id, err := pathUint(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}

	var req updateStatusRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Status == "" {
		writeError(ctx, xhttp.StatusBadRequest, "status is required")
		return
	}

	if _, err := h.ledger.UpdateStatus(ctx, principal(ctx), id, req.Status); err != nil {
		writeServiceError(ctx, err)
		return
	}

	debt, err := h.ledger.GetDebt(ctx, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, debt)
}

func (h *DebtHandler) ListEvents(ctx *xhttp.RequestCtx) {
	if h.audit == nil {
		writeError(ctx, xhttp.StatusNotFound, "audit trail is not enabled")
		return
	}

	id, err := pathUint(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.audit.List(ctx, model.AuditFilter{
		DebtID: id,
		Topic:  query(ctx, "topic"),
		Limit:  queryInt(ctx, "limit"),
		Offset: queryInt(ctx, "offset"),
	})
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	if items == nil {
		items = []*model.AuditEvent{}
	}
	writeJSON(ctx, xhttp.StatusOK, listResponse[*model.AuditEvent]{Items: items, Total: total})
}
