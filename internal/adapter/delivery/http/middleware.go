package http

import (
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"fluid-presale/internal/observability"
)

// RequestLogging logs every request and records its latency.
func RequestLogging(next fasthttp.RequestHandler, metrics *observability.Metrics, logger *zap.Logger) fasthttp.RequestHandler {
	logger = logger.Named("HTTP")
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		next(ctx)
		took := time.Since(start)
		status := ctx.Response.StatusCode()
		metrics.ObserveRequest(string(ctx.Method()), status, took)
		logger.Info("Request handled",
			zap.ByteString("method", ctx.Method()),
			zap.ByteString("uri", ctx.RequestURI()),
			zap.Int("status", status),
			zap.Duration("took", took))
	}
}
