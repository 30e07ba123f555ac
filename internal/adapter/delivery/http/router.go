package http

import (
	"github.com/fasthttp/router"
	"go.uber.org/zap"

	handler "fluid-presale/internal/adapter/handler/http"
	"fluid-presale/internal/observability"
)

// Handlers groups the endpoint handlers served by the router.
type Handlers struct {
	Presale *handler.PresaleHandler
	Session *handler.SessionHandler
}

// RegisterRoutes sets up the presale API, health and metrics routes.
func RegisterRoutes(r *router.Router, h Handlers, metrics *observability.Metrics, logger *zap.Logger) {
	logger.Info("Setting up application-specific routes...")

	r.GET("/currencies", h.Presale.GetCurrencies)
	r.GET("/prices", h.Presale.GetPrices)
	r.POST("/prices/refresh", h.Presale.RefreshPrices)
	r.GET("/receipts/{txHash}", h.Presale.GetReceipt)

	r.POST("/sessions", h.Session.CreateSession)
	r.GET("/sessions/{sessionId}", h.Session.GetSession)
	r.DELETE("/sessions/{sessionId}", h.Session.DeleteSession)
	r.PUT("/sessions/{sessionId}/wallet", h.Session.ConnectWallet)
	r.DELETE("/sessions/{sessionId}/wallet", h.Session.DisconnectWallet)
	r.PUT("/sessions/{sessionId}/intent", h.Session.UpdateIntent)
	r.GET("/sessions/{sessionId}/quote", h.Session.GetQuote)
	r.POST("/sessions/{sessionId}/purchase", h.Session.SubmitPurchase)
	r.GET("/sessions/{sessionId}/purchase", h.Session.GetPurchase)
	r.POST("/sessions/{sessionId}/purchase/dismiss", h.Session.DismissPurchase)
	r.GET("/sessions/{sessionId}/raise", h.Session.GetRaise)

	logger.Info("Setting up health check route...")
	r.GET("/health", h.Presale.Health)

	if metrics != nil {
		r.GET("/metrics", metrics.Handler())
	}

	logger.Info("All routes registered.")
}

// NewRouter builds a router with every route registered.
func NewRouter(h Handlers, metrics *observability.Metrics, logger *zap.Logger) *router.Router {
	r := router.New()
	RegisterRoutes(r, h, metrics, logger)
	return r
}
