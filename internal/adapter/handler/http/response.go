package http

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"fluid-presale/internal/domain"
	"fluid-presale/internal/pkg/apperrors"
)

// requestTimeout bounds the work a handler starts on behalf of a request.
const requestTimeout = 15 * time.Second

// requestContext returns the context for downstream calls made while serving a
// request. It is detached from *fasthttp.RequestCtx, whose Done channel belongs to
// the server.
func requestContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps domain and application errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, apperrors.ErrNotFound):
		return fasthttp.StatusNotFound
	case errors.Is(err, domain.ErrPurchaseInFlight), errors.Is(err, apperrors.ErrConflict):
		return fasthttp.StatusConflict
	case errors.Is(err, domain.ErrGuardRejected):
		return fasthttp.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrWalletNotConnected):
		return fasthttp.StatusPreconditionRequired
	case errors.Is(err, domain.ErrUnknownCurrency), errors.Is(err, apperrors.ErrInvalidInput):
		return fasthttp.StatusBadRequest
	case errors.Is(err, apperrors.ErrRateLimited):
		return fasthttp.StatusTooManyRequests
	case errors.Is(err, apperrors.ErrTimeout):
		return fasthttp.StatusGatewayTimeout
	case errors.Is(err, apperrors.ErrExternalServiceFailure):
		return fasthttp.StatusBadGateway
	default:
		return fasthttp.StatusInternalServerError
	}
}

func writeJSON(ctx *fasthttp.RequestCtx, logger *zap.Logger, status int, payload any) {
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(status)
	if err := json.NewEncoder(ctx).Encode(payload); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
		// Response already started, can't set error code
	}
}

func writeError(ctx *fasthttp.RequestCtx, logger *zap.Logger, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == fasthttp.StatusInternalServerError {
		logger.Error("Request failed", zap.ByteString("uri", ctx.RequestURI()), zap.Error(err))
		message = "Internal Server Error"
	} else {
		logger.Debug("Request rejected", zap.ByteString("uri", ctx.RequestURI()), zap.Int("status", status), zap.Error(err))
	}
	writeJSON(ctx, logger, status, errorResponse{Error: message})
}

// decodeBody unmarshals a JSON request body into dst.
func decodeBody(ctx *fasthttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	if len(body) == 0 {
		return apperrors.ErrInvalidInput
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return errors.Join(apperrors.ErrInvalidInput, err)
	}
	return nil
}
