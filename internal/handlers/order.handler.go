package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/google/uuid"
	"github.com/nimasrn/smm-storefront/internal/model"
	xhttp "github.com/nimasrn/smm-storefront/pkg/http"
)

type OrderService interface {
	Place(ctx context.Context, session model.Session, req model.OrderCreateRequest) (*model.Order, error)
	List(ctx context.Context, session model.Session, limit, offset int) ([]*model.OrderView, int64, error)
	Get(ctx context.Context, session model.Session, id uuid.UUID) (*model.Order, error)
	ApplyStatus(ctx context.Context, session model.Session, id uuid.UUID, update model.OrderStatusUpdate) (*model.Order, error)
}

type OrderHandler struct {
	svc OrderService
}

// RegisterOrderRoutes wraps order placement in place so that it can be
// rate limited separately from reads.
func RegisterOrderRoutes(e *router.Group, h *OrderHandler, place xhttp.MiddlewareFunc) {
	placeHandler := xhttp.RequestHandler(h.PlaceOrder)
	if place != nil {
		placeHandler = place(placeHandler)
	}
	e.POST("/orders", placeHandler)
	e.GET("/orders", h.ListOrders)
	e.GET("/orders/{id}", h.GetOrder)
}

func RegisterOrderAdminRoutes(e *router.Group, h *OrderHandler) {
	e.PUT("/orders/{id}/status", h.ApplyStatus)
}

func NewOrderHandler(orderService OrderService) *OrderHandler {
	return &OrderHandler{
		svc: orderService,
	}
}

func (h *OrderHandler) PlaceOrder(ctx *xhttp.RequestCtx) {
	var req model.OrderCreateRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	order, err := h.svc.Place(ctx, session(ctx), req)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, order)
}

func (h *OrderHandler) ListOrders(ctx *xhttp.RequestCtx) {
	limit, offset := paging(ctx)
	items, total, err := h.svc.List(ctx, session(ctx), limit, offset)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, listResponse[*model.OrderView]{Items: items, Total: total})
}

func (h *OrderHandler) GetOrder(ctx *xhttp.RequestCtx) {
	id, err := pathUUID(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	order, err := h.svc.Get(ctx, session(ctx), id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, order)
}

func (h *OrderHandler) ApplyStatus(ctx *xhttp.RequestCtx) {
	id, err := pathUUID(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	var req model.OrderStatusUpdate
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	order, err := h.svc.ApplyStatus(ctx, session(ctx), id, req)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, order)
}
