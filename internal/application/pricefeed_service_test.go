package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fluid-presale/internal/config"
	"fluid-presale/internal/domain/entity"
)

type fakePrimary struct {
	mu     sync.Mutex
	prices map[string]float64
	errs   map[string]error
	calls  []string
	block  chan struct{}
}

func (p *fakePrimary) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	p.calls = append(p.calls, symbol)
	block := p.block
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.errs[symbol]; err != nil {
		return 0, err
	}
	return p.prices[symbol], nil
}

type fakeBulk struct {
	mu     sync.Mutex
	prices map[string]float64
	err    error
	calls  [][]string
}

func (b *fakeBulk) FetchPrices(_ context.Context, feedIDs []string) (map[string]float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, append([]string(nil), feedIDs...))
	if b.err != nil {
		return nil, b.err
	}
	out := make(map[string]float64)
	for _, id := range feedIDs {
		if p, ok := b.prices[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (b *fakeBulk) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

func testPriceFeedConfig() config.PriceFeedConfig {
	return config.PriceFeedConfig{
		RefreshInterval: 30 * time.Second,
		RequestTimeout:  time.Second,
		QuoteCurrency:   "usd",
		// keys arrive lowercased from viper
		Majors: map[string]string{"eth": "ethusdt", "bnb": "BNBUSDT"},
	}
}

func newTestPriceFeed(t *testing.T, primary *fakePrimary, bulk *fakeBulk) (*PriceFeedService, *snapshotStore) {
	t.Helper()
	store := &snapshotStore{}
	svc := NewPriceFeedService(testCatalog(t), primary, bulk, store, testPriceFeedConfig(), nil, zap.NewNop())
	return svc, store
}

func price(t *testing.T, snapshot entity.PriceSnapshot, id string) float64 {
	t.Helper()
	p, ok := snapshot.Price(id)
	require.True(t, ok, "no price for %s", id)
	return p
}

func TestPriceFeedService_InitialSnapshot(t *testing.T) {
	svc, _ := newTestPriceFeed(t, &fakePrimary{}, &fakeBulk{})

	snapshot := svc.Snapshot()
	assert.Equal(t, entity.SourceInitial, snapshot.Source)
	assert.Equal(t, 3200.0, price(t, snapshot, "ETH"))
	assert.Equal(t, 1.0, price(t, snapshot, "USDT"))
	assert.Equal(t, 600.0, price(t, snapshot, "BNB"))
	assert.Equal(t, 1.0, price(t, snapshot, "CARD"))
	assert.False(t, svc.Loading())
}

func TestPriceFeedService_PrimarySuccess(t *testing.T) {
	primary := &fakePrimary{prices: map[string]float64{"ETHUSDT": 3500.5, "BNBUSDT": 612.25}}
	bulk := &fakeBulk{}
	svc, _ := newTestPriceFeed(t, primary, bulk)

	snapshot := svc.RefreshPrices(context.Background())

	assert.Equal(t, entity.SourcePrimary, snapshot.Source)
	assert.Equal(t, 3500.5, price(t, snapshot, "ETH"))
	assert.Equal(t, 612.25, price(t, snapshot, "BNB"))
	assert.Equal(t, 1.0, price(t, snapshot, "USDT"))
	assert.Equal(t, 1.0, price(t, snapshot, "CARD"))
	assert.ElementsMatch(t, []string{"ETHUSDT", "BNBUSDT"}, primary.calls)
	assert.Zero(t, bulk.callCount())
	assert.Equal(t, snapshot.Prices(), svc.Snapshot().Prices())
}

func TestPriceFeedService_PartialPrimaryFailureUsesSecondaryForAll(t *testing.T) {
	primary := &fakePrimary{
		prices: map[string]float64{"ETHUSDT": 3500, "BNBUSDT": 612},
		errs:   map[string]error{"BNBUSDT": errors.New("503")},
	}
	bulk := &fakeBulk{prices: map[string]float64{"ethereum": 3333, "binancecoin": 599, "tether": 0.998}}
	svc, _ := newTestPriceFeed(t, primary, bulk)

	snapshot := svc.RefreshPrices(context.Background())

	assert.Equal(t, entity.SourceSecondary, snapshot.Source)
	assert.Equal(t, 3333.0, price(t, snapshot, "ETH"), "primary ETH price must not be mixed in")
	assert.Equal(t, 599.0, price(t, snapshot, "BNB"))
	assert.Equal(t, 1.0, price(t, snapshot, "USDT"))
	require.Equal(t, 1, bulk.callCount())
	assert.ElementsMatch(t, []string{"ethereum", "binancecoin"}, bulk.calls[0])
}

func TestPriceFeedService_StablecoinAlwaysPegged(t *testing.T) {
	primary := &fakePrimary{errs: map[string]error{"ETHUSDT": errors.New("down"), "BNBUSDT": errors.New("down")}}
	bulk := &fakeBulk{prices: map[string]float64{"ethereum": 3000, "binancecoin": 500, "tether": 1.07}}
	svc, _ := newTestPriceFeed(t, primary, bulk)

	for i := 0; i < 3; i++ {
		snapshot := svc.RefreshPrices(context.Background())
		assert.Equal(t, 1.0, price(t, snapshot, "USDT"))
	}
}

func TestPriceFeedService_TotalFailureKeepsPreviousSnapshot(t *testing.T) {
	primary := &fakePrimary{prices: map[string]float64{"ETHUSDT": 3500, "BNBUSDT": 612}}
	bulk := &fakeBulk{err: errors.New("rate limited")}
	svc, _ := newTestPriceFeed(t, primary, bulk)

	good := svc.RefreshPrices(context.Background())
	require.Equal(t, entity.SourcePrimary, good.Source)

	primary.mu.Lock()
	primary.errs = map[string]error{"ETHUSDT": errors.New("down")}
	primary.mu.Unlock()

	got := svc.RefreshPrices(context.Background())
	assert.Equal(t, good.Prices(), got.Prices())
	assert.Equal(t, good.FetchedAt, got.FetchedAt)
	assert.Equal(t, entity.SourcePrimary, svc.Snapshot().Source)
	assert.False(t, svc.Loading())
}

func TestPriceFeedService_IncompleteSecondaryKeepsPreviousSnapshot(t *testing.T) {
	primary := &fakePrimary{errs: map[string]error{"ETHUSDT": errors.New("down")}}
	bulk := &fakeBulk{prices: map[string]float64{"ethereum": 3000}}
	svc, _ := newTestPriceFeed(t, primary, bulk)

	snapshot := svc.RefreshPrices(context.Background())
	assert.Equal(t, entity.SourceInitial, snapshot.Source)
	assert.Equal(t, 3200.0, price(t, snapshot, "ETH"))
}

func TestPriceFeedService_LoadingAndSingleFlight(t *testing.T) {
	block := make(chan struct{})
	primary := &fakePrimary{prices: map[string]float64{"ETHUSDT": 3500, "BNBUSDT": 612}, block: block}
	svc, _ := newTestPriceFeed(t, primary, &fakeBulk{})

	done := make(chan entity.PriceSnapshot)
	go func() { done <- svc.RefreshPrices(context.Background()) }()

	require.Eventually(t, svc.Loading, time.Second, 5*time.Millisecond)

	// A concurrent refresh returns the current snapshot without fetching.
	concurrent := svc.RefreshPrices(context.Background())
	assert.Equal(t, entity.SourceInitial, concurrent.Source)
	assert.True(t, svc.View().Loading)

	close(block)
	result := <-done
	assert.Equal(t, entity.SourcePrimary, result.Source)
	assert.False(t, svc.Loading())

	primary.mu.Lock()
	defer primary.mu.Unlock()
	assert.Len(t, primary.calls, 2)
}

func TestPriceFeedService_RunRefreshesImmediatelyAndStops(t *testing.T) {
	primary := &fakePrimary{prices: map[string]float64{"ETHUSDT": 3500, "BNBUSDT": 612}}
	store := &snapshotStore{}
	cfg := testPriceFeedConfig()
	cfg.RefreshInterval = 10 * time.Millisecond
	svc := NewPriceFeedService(testCatalog(t), primary, &fakeBulk{}, store, cfg, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(stopped)
	}()

	require.Eventually(t, func() bool {
		return svc.Snapshot().Source == entity.SourcePrimary
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		primary.mu.Lock()
		defer primary.mu.Unlock()
		return len(primary.calls) >= 4
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}
