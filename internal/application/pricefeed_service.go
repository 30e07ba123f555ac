package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"fluid-presale/internal/application/port"
	"fluid-presale/internal/config"
	"fluid-presale/internal/domain"
	"fluid-presale/internal/domain/entity"
	domainRepo "fluid-presale/internal/domain/repository"
	"fluid-presale/internal/observability"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Compile-time check
var _ port.PriceFeed = (*PriceFeedService)(nil)

// majorFeed binds a catalog currency to its primary provider symbol.
type majorFeed struct {
	currencyID string
	symbol     string
}

// PriceFeedService maintains the process-wide price snapshot. A refresh cycle prices
// every fetched currency from a single provider or leaves the snapshot untouched.
type PriceFeedService struct {
	catalog   *entity.Catalog
	primary   domainRepo.PrimaryPriceSource
	secondary domainRepo.BulkPriceSource
	store     domainRepo.SnapshotRepository
	cfg       config.PriceFeedConfig
	metrics   *observability.Metrics
	logger    *zap.Logger

	majors  []majorFeed
	priced  []entity.Currency // currencies whose price comes from a provider
	initial entity.PriceSnapshot
	loading atomic.Bool
	now     func() time.Time
}

// NewPriceFeedService creates the aggregator and seeds the store with catalog prices.
func NewPriceFeedService(
	catalog *entity.Catalog,
	primary domainRepo.PrimaryPriceSource,
	secondary domainRepo.BulkPriceSource,
	store domainRepo.SnapshotRepository,
	cfg config.PriceFeedConfig,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *PriceFeedService {
	s := &PriceFeedService{
		catalog:   catalog,
		primary:   primary,
		secondary: secondary,
		store:     store,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger.Named("PriceFeedService"),
		now:       time.Now,
	}

	for _, c := range catalog.All() {
		if !c.Fetchable() {
			continue
		}
		symbol := lookupMajor(cfg.Majors, c.ID)
		if symbol != "" {
			s.majors = append(s.majors, majorFeed{currencyID: c.ID, symbol: strings.ToUpper(symbol)})
		}
		if symbol != "" || c.FeedID != "" {
			s.priced = append(s.priced, c)
		}
	}

	s.initial = entity.InitialSnapshot(catalog, s.now())
	if err := store.SetSnapshot(context.Background(), s.initial); err != nil {
		s.logger.Error("Failed to store initial price snapshot", zap.Error(err))
	}

	s.logger.Info("Price feed configured",
		zap.Int("majors", len(s.majors)),
		zap.Int("priced", len(s.priced)),
	)
	return s
}

// lookupMajor matches config keys case-insensitively; viper lowercases map keys.
func lookupMajor(majors map[string]string, currencyID string) string {
	for id, symbol := range majors {
		if strings.EqualFold(id, currencyID) {
			return symbol
		}
	}
	return ""
}

// Snapshot returns the latest stored snapshot without blocking on a refresh.
func (s *PriceFeedService) Snapshot() entity.PriceSnapshot {
	snapshot, found, err := s.store.GetSnapshot(context.Background())
	if err != nil {
		s.logger.Warn("Snapshot store error, serving initial prices", zap.Error(err))
		return s.initial
	}
	if !found {
		return s.initial
	}
	return snapshot
}

// Loading reports whether a refresh cycle is in flight.
func (s *PriceFeedService) Loading() bool {
	return s.loading.Load()
}

// View returns the snapshot together with the loading flag.
func (s *PriceFeedService) View() entity.PriceView {
	snapshot := s.Snapshot()
	return entity.PriceView{
		Prices:    snapshot.Prices(),
		Source:    snapshot.Source,
		FetchedAt: snapshot.FetchedAt,
		Loading:   s.Loading(),
	}
}

// RefreshPrices runs one fetch cycle and returns the resulting snapshot. Failures are
// logged and the previous snapshot is kept. A call made while a cycle is running
// returns the current snapshot immediately.
func (s *PriceFeedService) RefreshPrices(ctx context.Context) entity.PriceSnapshot {
	if !s.loading.CompareAndSwap(false, true) {
		s.logger.Debug("Price refresh already in progress, serving current snapshot")
		return s.Snapshot()
	}
	defer s.loading.Store(false)

	start := s.now()
	previous := s.Snapshot()

	snapshot, err := s.fetchSnapshot(ctx, previous)
	if err != nil {
		if ctx.Err() != nil {
			s.logger.Warn("Price refresh cancelled, keeping previous snapshot", zap.Error(err))
		} else {
			s.logger.Error("Price refresh failed, keeping previous snapshot",
				zap.String("previousSource", string(previous.Source)),
				zap.Error(err),
			)
		}
		s.metrics.ObservePriceRefresh("failed", time.Since(start))
		return previous
	}

	if err := s.store.SetSnapshot(ctx, snapshot); err != nil {
		s.logger.Error("Failed to store refreshed snapshot", zap.Error(err))
		return previous
	}
	s.metrics.ObservePriceRefresh(string(snapshot.Source), time.Since(start))
	s.logger.Debug("Price snapshot refreshed",
		zap.String("source", string(snapshot.Source)),
		zap.Any("prices", snapshot.Prices()),
	)
	return snapshot
}

// fetchSnapshot tries the primary provider, then the secondary one.
func (s *PriceFeedService) fetchSnapshot(ctx context.Context, previous entity.PriceSnapshot) (entity.PriceSnapshot, error) {
	if len(s.priced) == 0 {
		return previous, nil
	}

	primaryPrices, primaryErr := s.fetchPrimary(ctx)
	if primaryErr == nil {
		return s.buildSnapshot(primaryPrices, entity.SourcePrimary), nil
	}
	s.logger.Warn("Primary price source failed, falling back to secondary", zap.Error(primaryErr))

	secondaryPrices, secondaryErr := s.fetchSecondary(ctx)
	if secondaryErr != nil {
		return entity.PriceSnapshot{}, errors.Join(primaryErr, secondaryErr)
	}
	return s.buildSnapshot(secondaryPrices, entity.SourceSecondary), nil
}

// fetchPrimary queries every major concurrently. All must succeed, and the majors
// must cover every priced currency, for the result to be usable.
func (s *PriceFeedService) fetchPrimary(ctx context.Context) (map[string]float64, error) {
	if len(s.majors) == 0 {
		return nil, fmt.Errorf("%w: no primary symbols configured", domain.ErrUpstreamSourceFailure)
	}
	if len(s.majors) < len(s.priced) {
		return nil, fmt.Errorf("%w: primary source covers %d of %d priced currencies",
			domain.ErrUpstreamSourceFailure, len(s.majors), len(s.priced),
		)
	}

	results := make([]float64, len(s.majors))
	g, gctx := errgroup.WithContext(ctx)
	for i, major := range s.majors {
		g.Go(func() error {
			reqCtx, cancel := context.WithTimeout(gctx, s.requestTimeout())
			defer cancel()

			price, err := s.primary.FetchPrice(reqCtx, major.symbol)
			if err != nil {
				return fmt.Errorf("%w: %s: %w", domain.ErrUpstreamSourceFailure, major.symbol, err)
			}
			results[i] = price
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	prices := make(map[string]float64, len(s.majors))
	for i, major := range s.majors {
		prices[major.currencyID] = results[i]
	}
	return prices, nil
}

// fetchSecondary queries the bulk provider for every priced currency in one request.
func (s *PriceFeedService) fetchSecondary(ctx context.Context) (map[string]float64, error) {
	feedIDs := make([]string, 0, len(s.priced))
	for _, c := range s.priced {
		if c.FeedID == "" {
			return nil, fmt.Errorf("%w: currency %s has no secondary feed id", domain.ErrUpstreamSourceFailure, c.ID)
		}
		feedIDs = append(feedIDs, c.FeedID)
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.requestTimeout())
	defer cancel()

	byFeed, err := s.secondary.FetchPrices(reqCtx, feedIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUpstreamSourceFailure, err)
	}

	prices := make(map[string]float64, len(s.priced))
	for _, c := range s.priced {
		price, ok := byFeed[c.FeedID]
		if !ok || price <= 0 {
			return nil, fmt.Errorf("%w: secondary source returned no price for %s (%s)",
				domain.ErrUpstreamSourceFailure, c.ID, c.FeedID,
			)
		}
		prices[c.ID] = price
	}
	return prices, nil
}

func (s *PriceFeedService) requestTimeout() time.Duration {
	if timeout := s.cfg.GetRequestTimeout(); timeout > 0 {
		return timeout
	}
	return 5 * time.Second
}

// buildSnapshot combines fetched prices with the static ones. Pegged currencies are 1.0.
func (s *PriceFeedService) buildSnapshot(fetched map[string]float64, source entity.PriceSource) entity.PriceSnapshot {
	prices := s.initial.Prices()
	for _, c := range s.catalog.All() {
		if c.Pegged {
			prices[c.ID] = 1.0
			continue
		}
		if price, ok := fetched[c.ID]; ok {
			prices[c.ID] = price
		}
	}
	return entity.NewPriceSnapshot(prices, source, s.now())
}

// Run refreshes immediately and then on every interval until ctx is cancelled.
func (s *PriceFeedService) Run(ctx context.Context) {
	interval := s.cfg.GetRefreshInterval()
	s.RefreshPrices(ctx)
	if interval <= 0 {
		s.logger.Info("Periodic price refresh disabled (interval <= 0)")
		return
	}

	s.logger.Info("Starting price refresh loop", zap.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RefreshPrices(ctx)
		case <-ctx.Done():
			s.logger.Info("Price refresh loop stopping due to context cancellation.")
			return
		}
	}
}
