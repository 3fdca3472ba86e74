package xhttp

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/nimasrn/smm-storefront/pkg/logger"
	"github.com/valyala/fasthttp"
)

const slowThreshold = 500 * time.Millisecond

var skipPaths = []string{"/health", "/metrics", "/api/v1/health"}

type MiddlewareFunc func(next RequestHandler) RequestHandler
type RequestCtx = fasthttp.RequestCtx
type RequestHandler = fasthttp.RequestHandler

func TimeoutMiddleware(timeout time.Duration) MiddlewareFunc {
	return func(next RequestHandler) RequestHandler {
		return fasthttp.TimeoutWithCodeHandler(next, timeout, StatusText(StatusRequestTimeout), StatusRequestTimeout)
	}
}

func CompressMiddleware(level int) MiddlewareFunc {
	return func(next RequestHandler) RequestHandler {
		return fasthttp.CompressHandlerBrotliLevel(next, level, level)
	}
}

func RecoverMiddleware(next RequestHandler) RequestHandler {
	return func(ctx *RequestCtx) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("[xhttp] panic recovered", "error", err, "path", string(ctx.Path()))
				WriteJSONError(ctx, StatusInternalServerError, StatusText(StatusInternalServerError))
			}
		}()
		next(ctx)
	}
}

func RequestLoggerMiddleware(next RequestHandler) RequestHandler {
	return func(ctx *RequestCtx) {
		path := string(ctx.Path())
		if shouldSkip(path) {
			next(ctx)
			return
		}

		start := time.Now()
		next(ctx)

		latency := time.Since(start)
		status := ctx.Response.StatusCode()
		fields := []any{
			"status", status,
			"method", string(ctx.Method()),
			"path", path,
			"latency", latency.String(),
			"bytes_in", len(ctx.PostBody()),
			"bytes_out", len(ctx.Response.Body()),
			"ip", ctx.RemoteIP().String(),
			"request_id", requestID(ctx),
		}
		if uid := ctx.UserValue(SubjectKey); uid != nil {
			fields = append(fields, "subject", uid)
		}

		switch {
		case status >= 500:
			logger.Error("http_request", fields...)
		case status >= 400 || latency > slowThreshold:
			logger.Warn("http_request", fields...)
		default:
			logger.Info("http_request", fields...)
		}
	}
}

// SubjectKey is the user value under which BearerAuth stores the verified
// token claims.
const SubjectKey = "auth.subject"

// TokenVerifier turns a raw bearer token into claims.
type TokenVerifier func(token string) (any, error)

// BearerAuth verifies the Authorization header when present and stores the
// claims under SubjectKey. Requests without a header pass through so that
// handlers decide which routes need a session.
func BearerAuth(verify TokenVerifier) MiddlewareFunc {
	return func(next RequestHandler) RequestHandler {
		return func(ctx *RequestCtx) {
			raw := ctx.Request.Header.Peek("Authorization")
			if len(raw) == 0 {
				next(ctx)
				return
			}
			token, ok := bearerToken(raw)
			if !ok {
				WriteJSONError(ctx, StatusUnauthorized, "malformed authorization header")
				return
			}
			claims, err := verify(token)
			if err != nil {
				WriteJSONError(ctx, StatusUnauthorized, "invalid token")
				return
			}
			ctx.SetUserValue(SubjectKey, claims)
			next(ctx)
		}
	}
}

func bearerToken(header []byte) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !bytes.EqualFold(header[:len(prefix)], []byte(prefix)) {
		return "", false
	}
	token := strings.TrimSpace(string(header[len(prefix):]))
	return token, token != ""
}

// WriteJSONError writes {"error": msg} with the given status.
func WriteJSONError(ctx *RequestCtx, status int, msg string) {
	body, _ := json.Marshal(map[string]string{"error": msg})
	ctx.Response.Header.SetContentType("application/json; charset=utf-8")
	ctx.SetStatusCode(status)
	ctx.SetBody(body)
}

func shouldSkip(p string) bool {
	for _, sp := range skipPaths {
		if strings.HasPrefix(p, sp) {
			return true
		}
	}
	return false
}

func requestID(ctx *RequestCtx) string {
	if v := ctx.Request.Header.Peek("X-Request-Id"); len(v) > 0 {
		return string(v)
	}
	return ""
}
