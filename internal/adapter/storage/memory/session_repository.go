package memory

import (
	"context"
	"fmt"
	"io"
	"time"

	"fluid-presale/internal/config"
	domainRepo "fluid-presale/internal/domain/repository"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// SessionRepository keeps sessions in go-cache with a sliding idle TTL. Sessions
// are closed when they expire or are deleted, which releases their timers.
type SessionRepository[S io.Closer] struct {
	cache  *cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewSessionRepository creates a session store from the session configuration.
func NewSessionRepository[S io.Closer](cfg config.SessionConfig, logger *zap.Logger) *SessionRepository[S] {
	ttl := cfg.GetIdleTTL()
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	cleanup := cfg.GetCleanupInterval()

	r := &SessionRepository[S]{
		cache:  cache.New(ttl, cleanup),
		ttl:    ttl,
		logger: logger.Named("MemorySessionStorage"),
	}
	r.cache.OnEvicted(r.onEvicted)

	logger.Info("Initialized go-cache for sessions",
		zap.Duration("idleTTL", ttl),
		zap.Duration("cleanupInterval", cleanup),
	)
	return r
}

// Compile-time check with a representative closer.
var _ domainRepo.SessionRepository[io.Closer] = (*SessionRepository[io.Closer])(nil)

// GetSession returns the session and restarts its idle timer.
func (r *SessionRepository[S]) GetSession(_ context.Context, id string) (S, bool, error) {
	var zero S
	x, found := r.cache.Get(id)
	if !found {
		return zero, false, nil
	}
	session, ok := x.(S)
	if !ok {
		r.logger.Warn("Session cache data type mismatch", zap.String("sessionId", id), zap.String("type", fmt.Sprintf("%T", x)))
		return zero, false, nil
	}
	r.cache.Set(id, session, r.ttl)
	return session, true, nil
}

// SetSession stores a session under id.
func (r *SessionRepository[S]) SetSession(_ context.Context, id string, session S) error {
	r.cache.Set(id, session, r.ttl)
	r.logger.Debug("Session stored", zap.String("sessionId", id), zap.Duration("ttl", r.ttl))
	return nil
}

// DeleteSession removes the session; the eviction hook closes it.
func (r *SessionRepository[S]) DeleteSession(_ context.Context, id string) error {
	r.cache.Delete(id)
	return nil
}

func (r *SessionRepository[S]) onEvicted(id string, x interface{}) {
	closer, ok := x.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		r.logger.Warn("Failed to close evicted session", zap.String("sessionId", id), zap.Error(err))
		return
	}
	r.logger.Debug("Session evicted and closed", zap.String("sessionId", id))
}
