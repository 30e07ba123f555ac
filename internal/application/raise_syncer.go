package application

import (
	"context"
	"sync/atomic"
	"time"

	"fluid-presale/internal/config"
	"fluid-presale/internal/domain/entity"
	domainService "fluid-presale/internal/domain/service"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Compile-time check
var _ OnChainReader = (*RaiseSyncer)(nil)

// RaiseSyncer periodically reads the presale contract's raised counter and keeps the
// latest reading for session trackers to pick up.
type RaiseSyncer struct {
	ledger   domainService.Ledger
	decimals uint8
	interval time.Duration
	timeout  time.Duration
	latest   atomic.Pointer[decimal.Decimal]
	logger   *zap.Logger
}

// NewRaiseSyncer creates a syncer converting the counter with the configured decimals.
func NewRaiseSyncer(ledger domainService.Ledger, cfg config.LedgerConfig, logger *zap.Logger) *RaiseSyncer {
	return &RaiseSyncer{
		ledger:   ledger,
		decimals: cfg.RaisedDecimals,
		interval: cfg.GetRaisedPollInterval(),
		timeout:  cfg.RequestTimeout,
		logger:   logger.Named("RaiseSyncer"),
	}
}

// OnChainRaised returns the last non-zero reading.
func (s *RaiseSyncer) OnChainRaised() (decimal.Decimal, bool) {
	latest := s.latest.Load()
	if latest == nil {
		return decimal.Zero, false
	}
	return *latest, true
}

// Sync reads the counter once. A zero counter is treated as no reading.
func (s *RaiseSyncer) Sync(ctx context.Context) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	raw, err := s.ledger.ReadRaised(ctx)
	if err != nil {
		return err
	}
	if raw == nil || raw.Sign() <= 0 {
		s.logger.Debug("On-chain raised counter is empty")
		return nil
	}
	value := entity.FromUnits(raw, s.decimals)
	s.latest.Store(&value)
	s.logger.Debug("On-chain raised counter updated", zap.String("raised", value.String()))
	return nil
}

// Run syncs immediately and then on every interval until ctx is cancelled. Read
// failures are logged and the previous reading is kept.
func (s *RaiseSyncer) Run(ctx context.Context) {
	if err := s.Sync(ctx); err != nil {
		s.logger.Warn("Initial on-chain raised read failed", zap.Error(err))
	}
	if s.interval <= 0 {
		s.logger.Info("On-chain raised polling disabled (interval <= 0)")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.Sync(ctx); err != nil {
				s.logger.Warn("On-chain raised read failed", zap.Error(err))
			}
		case <-ctx.Done():
			s.logger.Info("Raise syncer stopping due to context cancellation.")
			return
		}
	}
}
