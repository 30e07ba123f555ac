package http

import (
	"context"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"fluid-presale/internal/application/port"
	"fluid-presale/internal/config"
	"fluid-presale/internal/domain/entity"
	"fluid-presale/internal/pkg/apperrors"
)

const healthPingTimeout = 2 * time.Second

// HealthChecker probes a downstream dependency.
type HealthChecker interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// PresaleHandler serves the catalog, prices, receipts and health endpoints.
type PresaleHandler struct {
	prices  port.PriceFeed
	presale port.PresaleService
	ledger  HealthChecker
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewPresaleHandler creates the handler. On-demand refreshes are limited to
// cfg.RefreshRatePerMinute; ledger may be nil.
func NewPresaleHandler(
	prices port.PriceFeed,
	presale port.PresaleService,
	ledger HealthChecker,
	cfg config.PriceFeedConfig,
	logger *zap.Logger,
) *PresaleHandler {
	limit := rate.Inf
	burst := 1
	if cfg.RefreshRatePerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RefreshRatePerMinute))
		burst = cfg.RefreshRatePerMinute
	}
	return &PresaleHandler{
		prices:  prices,
		presale: presale,
		ledger:  ledger,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.Named("PresaleHandler"),
	}
}

type currenciesResponse struct {
	Currencies []entity.CurrencyView `json:"currencies"`
	Sale       entity.SaleTerms      `json:"sale"`
	Loading    bool                  `json:"loading"`
}

// GetCurrencies lists the accepted currencies with live prices and the sale terms.
func (h *PresaleHandler) GetCurrencies(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, h.logger, fasthttp.StatusOK, currenciesResponse{
		Currencies: h.presale.Currencies(),
		Sale:       h.presale.Terms(),
		Loading:    h.prices.Loading(),
	})
}

// GetPrices returns the current price snapshot.
func (h *PresaleHandler) GetPrices(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, h.logger, fasthttp.StatusOK, h.prices.View())
}

// RefreshPrices runs a fetch cycle on demand, subject to the rate limit.
func (h *PresaleHandler) RefreshPrices(ctx *fasthttp.RequestCtx) {
	if !h.limiter.Allow() {
		writeError(ctx, h.logger, apperrors.ErrRateLimited)
		return
	}
	refreshCtx, cancel := requestContext(requestTimeout)
	defer cancel()
	h.prices.RefreshPrices(refreshCtx)
	writeJSON(ctx, h.logger, fasthttp.StatusOK, h.prices.View())
}

// GetReceipt returns the settlement record of a purchase by transaction hash.
func (h *PresaleHandler) GetReceipt(ctx *fasthttp.RequestCtx) {
	txHash, _ := ctx.UserValue("txHash").(string)
	if strings.TrimSpace(txHash) == "" {
		writeError(ctx, h.logger, apperrors.ErrInvalidInput)
		return
	}
	lookupCtx, cancel := requestContext(requestTimeout)
	defer cancel()
	receipt, err := h.presale.Receipt(lookupCtx, txHash)
	if err != nil {
		writeError(ctx, h.logger, err)
		return
	}
	writeJSON(ctx, h.logger, fasthttp.StatusOK, receipt)
}

type healthResponse struct {
	Status        string `json:"status"`
	Ledger        string `json:"ledger,omitempty"`
	LedgerLatency int64  `json:"ledgerLatencyMs,omitempty"`
	PriceSource   string `json:"priceSource"`
}

// Health reports liveness; a slow or unreachable ledger degrades but does not fail it.
func (h *PresaleHandler) Health(ctx *fasthttp.RequestCtx) {
	resp := healthResponse{Status: "ok", PriceSource: string(h.prices.Snapshot().Source)}
	if h.ledger != nil {
		pingCtx, cancel := requestContext(healthPingTimeout)
		latency, err := h.ledger.Ping(pingCtx)
		cancel()
		if err != nil {
			h.logger.Warn("Ledger health check failed", zap.Error(err))
			resp.Status = "degraded"
			resp.Ledger = "unreachable"
		} else {
			resp.Ledger = "ok"
			resp.LedgerLatency = latency.Milliseconds()
		}
	}
	writeJSON(ctx, h.logger, fasthttp.StatusOK, resp)
}
