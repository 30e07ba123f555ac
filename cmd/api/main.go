package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"fluid-presale/internal/adapter/celebration"
	delivery "fluid-presale/internal/adapter/delivery/http"
	handler "fluid-presale/internal/adapter/handler/http"
	"fluid-presale/internal/adapter/ledger"
	"fluid-presale/internal/adapter/rpc"
	"fluid-presale/internal/adapter/storage/binance"
	"fluid-presale/internal/adapter/storage/catalog"
	"fluid-presale/internal/adapter/storage/coingecko"
	"fluid-presale/internal/adapter/storage/memory"
	"fluid-presale/internal/application"
	"fluid-presale/internal/config"
	"fluid-presale/internal/logger"
	"fluid-presale/internal/observability"
)

func main() {
	// --- Configuration ---
	cfgPath := "configs"
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load configuration from %s: %v", cfgPath, err)
	}

	// --- Logger ---
	appLogger, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to setup logger: %v", err)
	}
	defer appLogger.Sync()
	appLogger.Info("Logger initialized", zap.Any("config", cfg.Logger))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Dependency Injection (Manual) ---
	appLogger.Info("Initializing dependencies...")

	currencies, err := catalog.Load(cfg.Catalog.Path, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to load currency catalog", zap.Error(err))
	}
	metrics := observability.NewMetrics("presale")

	// Storage & price providers
	cacheRepo := memory.NewCacheRepository(cfg.Session, appLogger)
	sessionRepo := memory.NewSessionRepository[*application.Session](cfg.Session, appLogger)
	primary := binance.NewSource(cfg.PriceFeed, appLogger)
	secondary := coingecko.NewRepository(cfg.PriceFeed, appLogger)

	// Ledger
	rpcClient, err := rpc.NewClient(cfg.Ledger.Endpoint, cfg.Ledger.RequestTimeout, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to create ledger RPC client", zap.Error(err))
	}
	evmLedger, err := ledger.NewEVMLedger(rpcClient, cfg.Presale, cfg.Ledger, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to create ledger", zap.Error(err))
	}

	// Application services
	priceFeed := application.NewPriceFeedService(currencies, primary, secondary, cacheRepo, cfg.PriceFeed, metrics, appLogger)
	raiseSyncer := application.NewRaiseSyncer(evmLedger, cfg.Ledger, appLogger)
	sessions := application.NewSessionManager(ctx, application.SessionManagerDeps{
		Repo:       sessionRepo,
		Catalog:    currencies,
		Prices:     priceFeed,
		Ledger:     evmLedger,
		Receipts:   cacheRepo,
		Celebrator: celebration.NewLogCelebrator(appLogger),
		OnChain:    raiseSyncer,
		Metrics:    metrics,
	}, cfg.Presale, appLogger)
	presale := application.NewPresaleService(currencies, priceFeed, cacheRepo, cfg.Presale)

	go priceFeed.Run(ctx)
	go raiseSyncer.Run(ctx)

	// Handlers
	handlers := delivery.Handlers{
		Presale: handler.NewPresaleHandler(priceFeed, presale, rpcClient, cfg.PriceFeed, appLogger),
		Session: handler.NewSessionHandler(sessions, appLogger),
	}

	// --- HTTP Router & Server ---
	appLogger.Info("Setting up HTTP router...")
	r := delivery.NewRouter(handlers, metrics, appLogger)

	server := &fasthttp.Server{
		Handler:      delivery.RequestLogging(r.Handler, metrics, appLogger),
		Name:         cfg.App.Name,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	serverAddr := ":" + cfg.Server.Port
	serverErr := make(chan error, 1)
	go func() {
		appLogger.Info("Starting HTTP server", zap.String("address", serverAddr))
		serverErr <- server.ListenAndServe(serverAddr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			appLogger.Fatal("Failed to start server", zap.Error(err))
		}
	case <-ctx.Done():
		appLogger.Info("Shutdown signal received, stopping HTTP server...")
		if err := server.ShutdownWithContext(context.Background()); err != nil {
			appLogger.Error("HTTP server shutdown failed", zap.Error(err))
		}
	}
	appLogger.Info("Server stopped")
}
