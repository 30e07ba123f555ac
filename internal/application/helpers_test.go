package application

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"fluid-presale/internal/config"
	"fluid-presale/internal/domain/entity"
	domainService "fluid-presale/internal/domain/service"
)

const (
	testPresaleAddress = "0x1111111111111111111111111111111111111111"
	testUSDTAddress    = "0xdAC17F958D2ee523a2206206994597C13D831ec7"
	testWallet         = "0x2222222222222222222222222222222222222222"
)

func testCatalog(t *testing.T) *entity.Catalog {
	t.Helper()

	eth, err := entity.NewNativeCurrency("ETH", "ETH", "ETH", 3200)
	require.NoError(t, err)
	eth.FeedID = "ethereum"

	usdt, err := entity.NewTokenCurrency("USDT", "USDT", "USDT", 1, common.HexToAddress(testUSDTAddress), 6)
	require.NoError(t, err)
	usdt.FeedID = "tether"
	usdt.Pegged = true

	bnb, err := entity.NewNativeCurrency("BNB", "BNB", "BNB", 600)
	require.NoError(t, err)
	bnb.FeedID = "binancecoin"

	card, err := entity.NewFiatCurrency("CARD", "Card", "USD")
	require.NoError(t, err)

	catalog, err := entity.NewCatalog([]entity.Currency{eth, usdt, bnb, card})
	require.NoError(t, err)
	return catalog
}

func testPresaleConfig() config.PresaleConfig {
	return config.PresaleConfig{
		TokenSymbol:           "FLUID",
		TokenPrice:            1.0,
		NextPrice:             1.25,
		TargetRaise:           4500000,
		InitialRaised:         1000,
		Countdown:             config.CountdownSpec{Days: 3, Hours: 19, Minutes: 54, Seconds: 32},
		TickInterval:          time.Second,
		ErrorClearDelay:       5 * time.Second,
		SimulationProbability: 0,
		SimulationMaxStep:     100,
		OnrampURL:             "https://wert.io",
		PresaleContract:       testPresaleAddress,
		NativePurchaseMethod:  "buyTokens",
		TokenPurchaseMethod:   "buyWithUSDT",
		NativeDecimals:        18,
	}
}

// snapshotStore is an in-memory SnapshotRepository.
type snapshotStore struct {
	mu       sync.Mutex
	snapshot *entity.PriceSnapshot
}

func (s *snapshotStore) GetSnapshot(context.Context) (entity.PriceSnapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil {
		return entity.PriceSnapshot{}, false, nil
	}
	return *s.snapshot, true, nil
}

func (s *snapshotStore) SetSnapshot(_ context.Context, snapshot entity.PriceSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = &snapshot
	return nil
}

// staticPrices is a PriceFeed whose snapshot tests set directly.
type staticPrices struct {
	mu       sync.Mutex
	snapshot entity.PriceSnapshot
}

func newStaticPrices(prices map[string]float64) *staticPrices {
	return &staticPrices{snapshot: entity.NewPriceSnapshot(prices, entity.SourcePrimary, time.Now())}
}

func (p *staticPrices) set(prices map[string]float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshot = entity.NewPriceSnapshot(prices, entity.SourcePrimary, time.Now())
}

func (p *staticPrices) RefreshPrices(context.Context) entity.PriceSnapshot { return p.Snapshot() }

func (p *staticPrices) Snapshot() entity.PriceSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot
}

func (p *staticPrices) Loading() bool { return false }

func (p *staticPrices) View() entity.PriceView {
	s := p.Snapshot()
	return entity.PriceView{Prices: s.Prices(), Source: s.Source, FetchedAt: s.FetchedAt}
}

// fakeLedger scripts PrepareCall and Submit per contract method. A gate holds the
// outcome of a method until it is closed.
type fakeLedger struct {
	mu           sync.Mutex
	prepared     []domainService.CallRequest
	submitted    []domainService.PreparedTx
	prepareErr   map[string]error
	preparePanic map[string]bool
	results      map[string]domainService.TxOutcome
	gates        map[string]chan struct{}
	raised       *big.Int
	raisedErr    error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		prepareErr:   map[string]error{},
		preparePanic: map[string]bool{},
		results:      map[string]domainService.TxOutcome{},
		gates:        map[string]chan struct{}{},
	}
}

func (l *fakeLedger) gate(method string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch := make(chan struct{})
	l.gates[method] = ch
	return ch
}

func (l *fakeLedger) ReadRaised(context.Context) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.raised, l.raisedErr
}

func (l *fakeLedger) PrepareCall(_ context.Context, req domainService.CallRequest) (domainService.PreparedTx, error) {
	l.mu.Lock()
	l.prepared = append(l.prepared, req)
	err := l.prepareErr[req.Method]
	panics := l.preparePanic[req.Method]
	l.mu.Unlock()

	if panics {
		panic("encoder exploded")
	}
	if err != nil {
		return domainService.PreparedTx{}, err
	}
	return domainService.PreparedTx{From: req.From, To: req.Contract, Value: req.Value, Method: req.Method}, nil
}

func (l *fakeLedger) Submit(ctx context.Context, tx domainService.PreparedTx) <-chan domainService.TxOutcome {
	l.mu.Lock()
	l.submitted = append(l.submitted, tx)
	res, ok := l.results[tx.Method]
	if !ok {
		res = domainService.TxOutcome{Hash: fmt.Sprintf("0x%s-%d", tx.Method, len(l.submitted))}
	}
	gate := l.gates[tx.Method]
	l.mu.Unlock()

	out := make(chan domainService.TxOutcome, 1)
	go func() {
		defer close(out)
		if gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				out <- domainService.TxOutcome{Err: ctx.Err()}
				return
			}
		}
		out <- res
	}()
	return out
}

func (l *fakeLedger) preparedCalls() []domainService.CallRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domainService.CallRequest(nil), l.prepared...)
}

func (l *fakeLedger) submittedTxs() []domainService.PreparedTx {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domainService.PreparedTx(nil), l.submitted...)
}

// manualScheduler records scheduled callbacks; tests fire them explicitly.
type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	delay   time.Duration
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{delay: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *manualScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// fire runs the i-th callback even if it was stopped, as a timer that already fired would.
func (s *manualScheduler) fire(i int) {
	s.mu.Lock()
	t := s.timers[i]
	s.mu.Unlock()
	t.f()
}

// receiptStore is an in-memory ReceiptRepository.
type receiptStore struct {
	mu       sync.Mutex
	receipts map[string]entity.Receipt
}

func newReceiptStore() *receiptStore {
	return &receiptStore{receipts: map[string]entity.Receipt{}}
}

func (r *receiptStore) SaveReceipt(_ context.Context, receipt entity.Receipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receipts[receipt.TxHash] = receipt
	return nil
}

func (r *receiptStore) GetReceipt(_ context.Context, txHash string) (entity.Receipt, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	receipt, ok := r.receipts[txHash]
	return receipt, ok, nil
}

// celebrations records celebrated receipts.
type celebrations struct {
	mu       sync.Mutex
	receipts []entity.Receipt
}

func (c *celebrations) Celebrate(receipt entity.Receipt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receipts = append(c.receipts, receipt)
}

func (c *celebrations) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.receipts)
}

func waitOutcome(t *testing.T, ch <-chan entity.AttemptOutcome) entity.AttemptOutcome {
	t.Helper()
	select {
	case outcome, ok := <-ch:
		require.True(t, ok, "outcome channel closed without a value")
		return outcome
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for purchase outcome")
		return entity.AttemptOutcome{}
	}
}
