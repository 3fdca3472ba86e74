package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/nimasrn/smm-storefront/internal/model"
	"github.com/nimasrn/smm-storefront/internal/services"
	xhttp "github.com/nimasrn/smm-storefront/pkg/http"
)

type ReferralService interface {
	Resolve(ctx context.Context, code string) (*model.Profile, error)
	Register(ctx context.Context, session model.Session, code string) (*model.ReferralResult, error)
}

type ReferralHandler struct {
	svc ReferralService
}

func RegisterReferralRoutes(e *router.Group, h *ReferralHandler) {
	e.GET("/referrals/{code}", h.CheckCode)
	e.POST("/referrals", h.Register)
}

func NewReferralHandler(referralService ReferralService) *ReferralHandler {
	return &ReferralHandler{
		svc: referralService,
	}
}

type referralCodeResponse struct {
	Code  string `json:"code"`
	Valid bool   `json:"valid"`
}

// CheckCode tells a signup form whether a code exists without exposing the
// referrer.
func (h *ReferralHandler) CheckCode(ctx *xhttp.RequestCtx) {
	code, _ := ctx.UserValue("code").(string)
	_, err := h.svc.Resolve(ctx, code)
	switch {
	case err == nil:
		writeJSON(ctx, xhttp.StatusOK, referralCodeResponse{Code: code, Valid: true})
	case services.KindOf(err) == services.KindNotFound:
		writeJSON(ctx, xhttp.StatusOK, referralCodeResponse{Code: code})
	default:
		writeServiceError(ctx, err)
	}
}

// Register answers 200 for a repeated registration; the result says whether
// a referral was recorded.
func (h *ReferralHandler) Register(ctx *xhttp.RequestCtx) {
	var req model.ReferralRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	result, err := h.svc.Register(ctx, session(ctx), req.Code)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	status := xhttp.StatusOK
	if result.Registered {
		status = xhttp.StatusCreated
	}
	writeJSON(ctx, status, result)
}
