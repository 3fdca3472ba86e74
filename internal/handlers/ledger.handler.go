package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/google/uuid"
	"github.com/nimasrn/smm-storefront/internal/model"
	xhttp "github.com/nimasrn/smm-storefront/pkg/http"
)

type LedgerService interface {
	Deposit(ctx context.Context, session model.Session, req model.DepositRequest) (*model.DepositReceipt, error)
	Record(ctx context.Context, session model.Session, txn model.Transaction) (*model.Transaction, error)
	List(ctx context.Context, session model.Session, limit, offset int) ([]*model.Transaction, int64, error)
	Summary(ctx context.Context, session model.Session) (model.LedgerSummary, error)
	Confirm(ctx context.Context, session model.Session, id uuid.UUID) (*model.Transaction, error)
	Fail(ctx context.Context, session model.Session, id uuid.UUID) (*model.Transaction, error)
}

type LedgerHandler struct {
	svc LedgerService
}

func RegisterLedgerRoutes(e *router.Group, h *LedgerHandler) {
	e.POST("/transactions/deposit", h.Deposit)
	e.GET("/transactions", h.ListTransactions)
	e.GET("/transactions/summary", h.Summary)
}

func RegisterLedgerAdminRoutes(e *router.Group, h *LedgerHandler) {
	e.POST("/transactions", h.Record)
	e.POST("/transactions/{id}/confirm", h.Confirm)
	e.POST("/transactions/{id}/fail", h.Fail)
}

func NewLedgerHandler(ledgerService LedgerService) *LedgerHandler {
	return &LedgerHandler{
		svc: ledgerService,
	}
}

func (h *LedgerHandler) Deposit(ctx *xhttp.RequestCtx) {
	var req model.DepositRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	receipt, err := h.svc.Deposit(ctx, session(ctx), req)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, receipt)
}

func (h *LedgerHandler) Record(ctx *xhttp.RequestCtx) {
	var txn model.Transaction
	if err := readJSON(ctx, &txn); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	created, err := h.svc.Record(ctx, session(ctx), txn)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, created)
}

func (h *LedgerHandler) ListTransactions(ctx *xhttp.RequestCtx) {
	limit, offset := paging(ctx)
	items, total, err := h.svc.List(ctx, session(ctx), limit, offset)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, listResponse[*model.Transaction]{Items: items, Total: total})
}

func (h *LedgerHandler) Summary(ctx *xhttp.RequestCtx) {
	summary, err := h.svc.Summary(ctx, session(ctx))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, summary)
}

func (h *LedgerHandler) Confirm(ctx *xhttp.RequestCtx) {
	h.settle(ctx, h.svc.Confirm)
}

func (h *LedgerHandler) Fail(ctx *xhttp.RequestCtx) {
	h.settle(ctx, h.svc.Fail)
}

func (h *LedgerHandler) settle(ctx *xhttp.RequestCtx, fn func(context.Context, model.Session, uuid.UUID) (*model.Transaction, error)) {
	id, err := pathUUID(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	txn, err := fn(ctx, session(ctx), id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, txn)
}
