package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/google/uuid"
	"github.com/nimasrn/smm-storefront/internal/model"
	xhttp "github.com/nimasrn/smm-storefront/pkg/http"
)

type CatalogService interface {
	ListActive(ctx context.Context) ([]*model.Service, error)
	ListAll(ctx context.Context, session model.Session) ([]*model.Service, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Service, error)
	Create(ctx context.Context, session model.Session, req model.ServiceUpsertRequest) (*model.Service, error)
	Update(ctx context.Context, session model.Session, id uuid.UUID, req model.ServiceUpsertRequest) (*model.Service, error)
}

type CatalogHandler struct {
	svc CatalogService
}

func RegisterCatalogRoutes(e *router.Group, h *CatalogHandler) {
	e.GET("/services", h.ListActive)
	e.GET("/services/{id}", h.GetService)
}

func RegisterCatalogAdminRoutes(e *router.Group, h *CatalogHandler) {
	e.GET("/services", h.ListAll)
	e.POST("/services", h.CreateService)
	e.PUT("/services/{id}", h.UpdateService)
}

func NewCatalogHandler(catalogService CatalogService) *CatalogHandler {
	return &CatalogHandler{
		svc: catalogService,
	}
}

func (h *CatalogHandler) ListActive(ctx *xhttp.RequestCtx) {
	items, err := h.svc.ListActive(ctx)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, listResponse[*model.Service]{Items: items, Total: int64(len(items))})
}

// GetService hides inactive services from the storefront.
func (h *CatalogHandler) GetService(ctx *xhttp.RequestCtx) {
	id, err := pathUUID(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	svc, err := h.svc.Get(ctx, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	if !svc.Active {
		writeError(ctx, xhttp.StatusNotFound, "service not found")
		return
	}
	writeJSON(ctx, xhttp.StatusOK, svc)
}

func (h *CatalogHandler) ListAll(ctx *xhttp.RequestCtx) {
	items, err := h.svc.ListAll(ctx, session(ctx))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, listResponse[*model.Service]{Items: items, Total: int64(len(items))})
}

func (h *CatalogHandler) CreateService(ctx *xhttp.RequestCtx) {
	var req model.ServiceUpsertRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	svc, err := h.svc.Create(ctx, session(ctx), req)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, svc)
}

func (h *CatalogHandler) UpdateService(ctx *xhttp.RequestCtx) {
	id, err := pathUUID(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	var req model.ServiceUpsertRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	svc, err := h.svc.Update(ctx, session(ctx), id, req)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, svc)
}
