package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"

	"github.com/fasthttp/router"
	"github.com/google/uuid"
	"github.com/nimasrn/smm-storefront/internal/model"
	xhttp "github.com/nimasrn/smm-storefront/pkg/http"
	"github.com/shopspring/decimal"
)

type ProfileService interface {
	Ensure(ctx context.Context, session model.Session, fullName *string) (*model.Profile, error)
	Get(ctx context.Context, session model.Session) (*model.ProfileView, error)
	SetUserBalance(ctx context.Context, session model.Session, target uuid.UUID, balance decimal.Decimal) (*model.Profile, error)
	ListProfiles(ctx context.Context, session model.Session, f model.ProfileFilter) ([]*model.Profile, int64, error)
}

// BalanceParser turns user input into a balance or a validation error.
type BalanceParser func(raw string) (decimal.Decimal, error)

type ProfileHandler struct {
	svc          ProfileService
	parseBalance BalanceParser
}

func RegisterProfileRoutes(e *router.Group, h *ProfileHandler) {
	e.POST("/profile", h.EnsureProfile)
	e.GET("/profile", h.GetProfile)
}

func RegisterProfileAdminRoutes(e *router.Group, h *ProfileHandler) {
	e.GET("/profiles", h.ListProfiles)
	e.PUT("/profiles/{id}/balance", h.SetBalance)
}

func NewProfileHandler(profileService ProfileService, parseBalance BalanceParser) *ProfileHandler {
	return &ProfileHandler{
		svc:          profileService,
		parseBalance: parseBalance,
	}
}

type ensureProfileRequest struct {
	FullName *string `json:"full_name"`
}

// EnsureProfile is called after sign-in; an empty body is fine.
func (h *ProfileHandler) EnsureProfile(ctx *xhttp.RequestCtx) {
	var req ensureProfileRequest
	if len(ctx.PostBody()) > 0 {
		if err := readJSON(ctx, &req); err != nil {
			writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
	}
	if _, err := h.svc.Ensure(ctx, session(ctx), req.FullName); err != nil {
		writeServiceError(ctx, err)
		return
	}
	h.GetProfile(ctx)
}

func (h *ProfileHandler) GetProfile(ctx *xhttp.RequestCtx) {
	view, err := h.svc.Get(ctx, session(ctx))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, view)
}

func (h *ProfileHandler) ListProfiles(ctx *xhttp.RequestCtx) {
	var f model.ProfileFilter
	f.Limit, f.Offset = paging(ctx)
	items, total, err := h.svc.ListProfiles(ctx, session(ctx), f)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, listResponse[*model.Profile]{Items: items, Total: total})
}

type setBalanceRequest struct {
	Balance json.RawMessage `json:"balance"`
}

// SetBalance accepts the balance as a JSON number or string so that values
// such as "NaN" reach the parser and are rejected with a reason.
func (h *ProfileHandler) SetBalance(ctx *xhttp.RequestCtx) {
	id, err := pathUUID(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	var req setBalanceRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	raw := string(bytes.TrimSpace(req.Balance))
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = unquoted
	}
	if raw == "null" {
		raw = ""
	}
	balance, err := h.parseBalance(raw)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	profile, err := h.svc.SetUserBalance(ctx, session(ctx), id, balance)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, profile)
}
