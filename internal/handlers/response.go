package handlers

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/nimasrn/smm-storefront/internal/model"
	"github.com/nimasrn/smm-storefront/internal/services"
	xhttp "github.com/nimasrn/smm-storefront/pkg/http"
	"github.com/nimasrn/smm-storefront/pkg/logger"
)

var errInvalidID = errors.New("invalid id")

type listResponse[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
}

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	return json.Unmarshal(ctx.PostBody(), dst)
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

// writeServiceError maps a service error onto a response by its kind.
func writeServiceError(ctx *xhttp.RequestCtx, err error) {
	switch kind := services.KindOf(err); kind {
	case services.KindValidation:
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
	case services.KindAuthorization:
		if errors.Is(err, services.ErrUnauthenticated) {
			writeError(ctx, xhttp.StatusUnauthorized, err.Error())
			return
		}
		writeError(ctx, xhttp.StatusForbidden, err.Error())
	case services.KindNotFound:
		writeError(ctx, xhttp.StatusNotFound, err.Error())
	case services.KindTransient:
		logger.Warn("request failed on unavailable dependency", "path", string(ctx.Path()), "error", err)
		ctx.Response.Header.Set("Retry-After", "1")
		writeError(ctx, xhttp.StatusServiceUnavailable, services.ErrUnavailable.Error())
	default:
		logger.Error("unhandled service error", "path", string(ctx.Path()), "kind", kind.String(), "error", err)
		writeError(ctx, xhttp.StatusInternalServerError, xhttp.StatusText(xhttp.StatusInternalServerError))
	}
}

// session returns the caller stored by BearerAuth. Anonymous requests get
// the zero session, which every mutating operation rejects.
func session(ctx *xhttp.RequestCtx) model.Session {
	if s, ok := ctx.UserValue(xhttp.SubjectKey).(model.Session); ok {
		return s
	}
	return model.Session{}
}

func pathUUID(ctx *xhttp.RequestCtx, name string) (uuid.UUID, error) {
	raw, _ := ctx.UserValue(name).(string)
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, errInvalidID
	}
	return id, nil
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

// paging reads limit and offset; malformed values fall back to defaults.
func paging(ctx *xhttp.RequestCtx) (limit, offset int) {
	if n, err := strconv.Atoi(query(ctx, "limit")); err == nil {
		limit = n
	}
	if n, err := strconv.Atoi(query(ctx, "offset")); err == nil {
		offset = n
	}
	return limit, offset
}
