package application

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"fluid-presale/internal/config"
	"fluid-presale/internal/domain/entity"
	"fluid-presale/internal/observability"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OnChainReader provides the latest authoritative raised figure, if any.
type OnChainReader interface {
	OnChainRaised() (decimal.Decimal, bool)
}

// ProgressTracker owns a session's raised counter and sale countdown.
type ProgressTracker struct {
	mu        sync.Mutex
	raised    decimal.Decimal
	target    decimal.Decimal
	onChain   *decimal.Decimal
	countdown entity.Countdown

	reader      OnChainReader
	probability float64
	maxStep     float64
	random      func() float64
	interval    time.Duration
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// NewProgressTracker creates a tracker seeded from the presale configuration.
// reader and metrics may be nil.
func NewProgressTracker(cfg config.PresaleConfig, reader OnChainReader, metrics *observability.Metrics, logger *zap.Logger) *ProgressTracker {
	return &ProgressTracker{
		raised: decimal.NewFromFloat(cfg.InitialRaised),
		target: decimal.NewFromFloat(cfg.TargetRaise),
		countdown: entity.Countdown{
			Days:    cfg.Countdown.Days,
			Hours:   cfg.Countdown.Hours,
			Minutes: cfg.Countdown.Minutes,
			Seconds: cfg.Countdown.Seconds,
		},
		reader:      reader,
		probability: cfg.SimulationProbability,
		maxStep:     cfg.SimulationMaxStep,
		random:      rand.Float64,
		interval:    cfg.GetTickInterval(),
		metrics:     metrics,
		logger:      logger.Named("ProgressTracker"),
	}
}

// AddContribution adds amount × price to the raised total and returns the added value.
func (t *ProgressTracker) AddContribution(amount, price decimal.Decimal) decimal.Decimal {
	value := amount.Mul(price)
	t.AddValue(value)
	return value
}

// AddValue adds a quote-currency value to the raised total. Non-positive values
// are ignored so the counter never decreases.
func (t *ProgressTracker) AddValue(value decimal.Decimal) {
	if !value.IsPositive() {
		return
	}
	t.mu.Lock()
	t.raised = t.raised.Add(value)
	t.publishLocked()
	t.mu.Unlock()
}

// SetOnChainRaised records an authoritative raised figure. Once set, the simulated
// increment no longer runs.
func (t *ProgressTracker) SetOnChainRaised(value decimal.Decimal) {
	t.mu.Lock()
	t.onChain = &value
	t.publishLocked()
	t.mu.Unlock()
}

// Tick advances the countdown by one second and, without an on-chain figure and
// below target, occasionally applies a small random increment.
func (t *ProgressTracker) Tick() {
	if t.reader != nil {
		if value, ok := t.reader.OnChainRaised(); ok {
			t.SetOnChainRaised(value)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.countdown = t.countdown.Tick()

	if t.onChain != nil || !t.raised.LessThan(t.target) {
		return
	}
	if t.random() < t.probability {
		step := decimal.NewFromFloat(t.random() * t.maxStep)
		t.raised = t.raised.Add(step)
		t.publishLocked()
	}
}

func (t *ProgressTracker) publishLocked() {
	effective := t.raised
	if t.onChain != nil {
		effective = *t.onChain
	}
	value, _ := effective.Float64()
	t.metrics.SetRaised(value)
}

// State returns a copy of the current raise state.
func (t *ProgressTracker) State() entity.RaiseState {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := entity.RaiseState{
		Raised:    t.raised,
		Target:    t.target,
		Countdown: t.countdown,
	}
	if t.onChain != nil {
		onChain := *t.onChain
		state.OnChain = &onChain
	}
	return state
}

// Run ticks on the configured interval until ctx is cancelled.
func (t *ProgressTracker) Run(ctx context.Context) {
	interval := t.interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.Tick()
		case <-ctx.Done():
			t.logger.Debug("Progress ticker stopped")
			return
		}
	}
}
