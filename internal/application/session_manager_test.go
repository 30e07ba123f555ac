package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fluid-presale/internal/domain"
)

// sessionStore is a map-backed session repository that closes sessions on delete.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func (s *sessionStore) GetSession(_ context.Context, id string) (*Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	return session, ok, nil
}

func (s *sessionStore) SetSession(_ context.Context, id string, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = session
	return nil
}

func (s *sessionStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	session, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if ok {
		return session.Close()
	}
	return nil
}

func newTestSessionManager(t *testing.T, rootCtx context.Context) *SessionManager {
	t.Helper()
	return NewSessionManager(rootCtx, SessionManagerDeps{
		Repo:     &sessionStore{sessions: map[string]*Session{}},
		Catalog:  testCatalog(t),
		Prices:   newStaticPrices(map[string]float64{"ETH": 3200, "USDT": 1, "BNB": 600, "CARD": 1}),
		Ledger:   newFakeLedger(),
		Receipts: newReceiptStore(),
	}, testPresaleConfig(), zap.NewNop())
}

func TestSessionManager_Lifecycle(t *testing.T) {
	m := newTestSessionManager(t, context.Background())
	ctx := context.Background()

	created, err := m.Create(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID())

	got, err := m.Get(ctx, created.ID())
	require.NoError(t, err)
	assert.Equal(t, created.ID(), got.ID())
	assert.Equal(t, "320,000", func() string {
		got.Purchase().SetAmount("100")
		return got.Purchase().Quote()
	}())

	session, err := m.lookup(ctx, created.ID())
	require.NoError(t, err)

	require.NoError(t, m.Close(ctx, created.ID()))

	select {
	case <-session.Done():
	case <-time.After(time.Second):
		t.Fatal("session timer still running after close")
	}
	assert.Error(t, session.Context().Err())

	_, err = m.Get(ctx, created.ID())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.ErrorIs(t, m.Close(ctx, created.ID()), domain.ErrSessionNotFound)
}

func TestSessionManager_SessionsAreIsolated(t *testing.T) {
	m := newTestSessionManager(t, context.Background())
	ctx := context.Background()

	a, err := m.Create(ctx)
	require.NoError(t, err)
	b, err := m.Create(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())

	a.Purchase().SetAmount("5")
	require.NoError(t, a.Purchase().SelectCurrency("BNB"))

	assert.Empty(t, b.Purchase().State().Intent.Amount)
	assert.Equal(t, "ETH", b.Purchase().State().Intent.CurrencyID)
}

func TestSessionManager_RootCancellationStopsTimers(t *testing.T) {
	rootCtx, cancel := context.WithCancel(context.Background())
	m := newTestSessionManager(t, rootCtx)

	created, err := m.Create(context.Background())
	require.NoError(t, err)
	session, err := m.lookup(context.Background(), created.ID())
	require.NoError(t, err)

	cancel()
	select {
	case <-session.Done():
	case <-time.After(time.Second):
		t.Fatal("session timer survived root cancellation")
	}
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	m := newTestSessionManager(t, context.Background())
	created, err := m.Create(context.Background())
	require.NoError(t, err)
	session, err := m.lookup(context.Background(), created.ID())
	require.NoError(t, err)

	assert.NoError(t, session.Close())
	assert.NoError(t, session.Close())
	assert.Equal(t, int64(0), m.active.Load())
}
