package application

import (
	"context"
	"fmt"
	"sync/atomic"

	"fluid-presale/internal/application/port"
	"fluid-presale/internal/config"
	"fluid-presale/internal/domain"
	"fluid-presale/internal/domain/entity"
	domainRepo "fluid-presale/internal/domain/repository"
	domainService "fluid-presale/internal/domain/service"
	"fluid-presale/internal/observability"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Compile-time check
var _ port.SessionManager = (*SessionManager)(nil)

// SessionManager creates sessions and resolves them by id.
type SessionManager struct {
	rootCtx    context.Context
	repo       domainRepo.SessionRepository[*Session]
	catalog    *entity.Catalog
	prices     port.PriceFeed
	ledger     domainService.Ledger
	receipts   domainRepo.ReceiptRepository
	celebrator domainService.Celebrator
	onChain    OnChainReader
	cfg        config.PresaleConfig
	metrics    *observability.Metrics
	logger     *zap.Logger
	active     atomic.Int64
}

// SessionManagerDeps are the shared collaborators handed to every session.
type SessionManagerDeps struct {
	Repo       domainRepo.SessionRepository[*Session]
	Catalog    *entity.Catalog
	Prices     port.PriceFeed
	Ledger     domainService.Ledger
	Receipts   domainRepo.ReceiptRepository
	Celebrator domainService.Celebrator
	OnChain    *RaiseSyncer // optional
	Metrics    *observability.Metrics
}

// NewSessionManager creates a manager whose sessions end at the latest when rootCtx does.
func NewSessionManager(rootCtx context.Context, deps SessionManagerDeps, cfg config.PresaleConfig, logger *zap.Logger) *SessionManager {
	m := &SessionManager{
		rootCtx:    rootCtx,
		repo:       deps.Repo,
		catalog:    deps.Catalog,
		prices:     deps.Prices,
		ledger:     deps.Ledger,
		receipts:   deps.Receipts,
		celebrator: deps.Celebrator,
		cfg:        cfg,
		metrics:    deps.Metrics,
		logger:     logger.Named("SessionManager"),
	}
	if deps.OnChain != nil {
		m.onChain = deps.OnChain
	}
	return m
}

// Create builds a session, starts its timers and stores it.
func (m *SessionManager) Create(ctx context.Context) (port.Session, error) {
	id := uuid.NewString()
	tracker := NewProgressTracker(m.cfg, m.onChain, m.metrics, m.logger)
	purchase := NewPurchaseService(PurchaseDeps{
		Catalog:       m.catalog,
		Prices:        m.prices,
		Ledger:        m.ledger,
		Contributions: tracker,
		Receipts:      m.receipts,
		Celebrator:    m.celebrator,
		Scheduler:     WallClock(),
		Metrics:       m.metrics,
	}, m.cfg, m.logger.With(zap.String("sessionId", id)))

	session := newSession(m.rootCtx, id, purchase, tracker, m.sessionClosed)
	m.metrics.SetActiveSessions(int(m.active.Add(1)))
	if err := m.repo.SetSession(ctx, id, session); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	session.Start()

	m.logger.Info("Session created", zap.String("sessionId", id))
	return session, nil
}

// Get resolves a live session.
func (m *SessionManager) Get(ctx context.Context, id string) (port.Session, error) {
	session, err := m.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (m *SessionManager) lookup(ctx context.Context, id string) (*Session, error) {
	session, found, err := m.repo.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("session lookup failed: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	return session, nil
}

// Close removes the session; the repository closes it.
func (m *SessionManager) Close(ctx context.Context, id string) error {
	if _, err := m.lookup(ctx, id); err != nil {
		return err
	}
	if err := m.repo.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	m.logger.Info("Session closed", zap.String("sessionId", id))
	return nil
}

func (m *SessionManager) sessionClosed() {
	m.metrics.SetActiveSessions(int(m.active.Add(-1)))
}
