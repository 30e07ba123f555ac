package application

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"fluid-presale/internal/application/port"
	"fluid-presale/internal/config"
	"fluid-presale/internal/domain"
	"fluid-presale/internal/domain/entity"
	domainRepo "fluid-presale/internal/domain/repository"
	domainService "fluid-presale/internal/domain/service"
	"fluid-presale/internal/observability"
	"fluid-presale/internal/pkg/apperrors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Compile-time check
var _ port.Purchase = (*PurchaseService)(nil)

// User-facing failure messages.
const (
	msgNativeFailed    = "Transaction failed. Please try again."
	msgApprovalFailed  = "%s Approval failed."
	msgExecutionFailed = "Purchase failed during execution."
	msgSetupFailed     = "Failed to initiate transaction."
)

// Contributions receives the value of successful purchases.
type Contributions interface {
	AddContribution(amount, price decimal.Decimal) decimal.Decimal
}

// PurchaseDeps are the collaborators of a purchase orchestrator.
type PurchaseDeps struct {
	Catalog       *entity.Catalog
	Prices        port.PriceFeed
	Ledger        domainService.Ledger
	Contributions Contributions
	Receipts      domainRepo.ReceiptRepository
	Celebrator    domainService.Celebrator
	Scheduler     Scheduler
	Metrics       *observability.Metrics
}

// attempt is everything captured when a purchase is submitted.
type attempt struct {
	currency  entity.Currency
	rawAmount string
	amount    decimal.Decimal
	units     *big.Int
	price     decimal.Decimal
	wallet    common.Address
}

// PurchaseService is the purchase state machine of one session:
// Idle -> Approving|Confirming -> Success|Error -> Idle.
type PurchaseService struct {
	deps   PurchaseDeps
	cfg    config.PresaleConfig
	logger *zap.Logger

	mu         sync.Mutex
	status     entity.PurchaseStatus
	txHash     string
	errMsg     string
	errGen     uint64
	clearTimer Timer
	amount     string
	currencyID string
	wallet     *common.Address
	closed     bool
}

// NewPurchaseService creates an idle orchestrator with the catalog's default currency selected.
func NewPurchaseService(deps PurchaseDeps, cfg config.PresaleConfig, logger *zap.Logger) *PurchaseService {
	if deps.Scheduler == nil {
		deps.Scheduler = WallClock()
	}
	return &PurchaseService{
		deps:       deps,
		cfg:        cfg,
		logger:     logger.Named("PurchaseService"),
		status:     entity.StatusIdle,
		currencyID: deps.Catalog.Default().ID,
	}
}

// SelectCurrency changes the pay currency. An attempt in flight keeps the currency
// it was submitted with.
func (s *PurchaseService) SelectCurrency(id string) error {
	if _, ok := s.deps.Catalog.Get(id); !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownCurrency, id)
	}
	s.mu.Lock()
	s.currencyID = id
	s.mu.Unlock()
	return nil
}

// SetAmount stores the pay amount as typed. It is validated on submit.
func (s *PurchaseService) SetAmount(amount string) {
	s.mu.Lock()
	s.amount = amount
	s.mu.Unlock()
}

// ConnectWallet sets the paying wallet address.
func (s *PurchaseService) ConnectWallet(address string) error {
	addr, err := entity.ParseAddress(address)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	s.mu.Lock()
	s.wallet = &addr
	s.mu.Unlock()
	return nil
}

// DisconnectWallet forgets the wallet. An attempt in flight is not affected.
func (s *PurchaseService) DisconnectWallet() {
	s.mu.Lock()
	s.wallet = nil
	s.mu.Unlock()
}

// Affordance returns what the buy control should offer.
func (s *PurchaseService) Affordance() entity.Affordance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.affordanceLocked()
}

func (s *PurchaseService) affordanceLocked() entity.Affordance {
	if !s.status.CanSubmit() {
		return entity.AffordanceProcessing
	}
	currency, _ := s.deps.Catalog.Get(s.currencyID)
	if s.wallet == nil && !currency.IsFiat() {
		return entity.AffordanceConnect
	}
	return entity.AffordanceBuy
}

// Quote returns the receivable token amount for the current intent at the latest price.
func (s *PurchaseService) Quote() string {
	s.mu.Lock()
	intent := entity.PurchaseIntent{Amount: s.amount, CurrencyID: s.currencyID}
	s.mu.Unlock()
	return QuoteFor(intent, s.deps.Prices.Snapshot(), s.cfg.TokenPrice)
}

// State returns a consistent copy of the observable state.
func (s *PurchaseService) State() entity.PurchaseState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := entity.PurchaseState{
		Status:       s.status,
		TxHash:       s.txHash,
		ErrorMessage: s.errMsg,
		Intent:       entity.PurchaseIntent{Amount: s.amount, CurrencyID: s.currencyID},
		Affordance:   s.affordanceLocked(),
	}
	if s.wallet != nil {
		state.Wallet = s.wallet.Hex()
	}
	return state
}

// Submit starts a purchase for the current intent. Fiat currencies return a redirect
// and leave the state untouched. Otherwise the attempt runs in the background under
// ctx and its outcome is delivered on the returned channel.
//
// Rejections (invalid amount, missing wallet, attempt in flight) return an error and
// change nothing.
func (s *PurchaseService) Submit(ctx context.Context) (entity.SubmitResult, error) {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return entity.SubmitResult{}, domain.ErrSessionNotFound
	}
	if !s.status.CanSubmit() {
		s.mu.Unlock()
		return entity.SubmitResult{}, domain.ErrPurchaseInFlight
	}

	amount, ok := entity.PositiveAmount(s.amount)
	if !ok {
		s.mu.Unlock()
		return entity.SubmitResult{}, domain.ErrGuardRejected
	}

	currency, ok := s.deps.Catalog.Get(s.currencyID)
	if !ok {
		s.mu.Unlock()
		return entity.SubmitResult{}, fmt.Errorf("%w: %q", domain.ErrUnknownCurrency, s.currencyID)
	}
	if currency.IsFiat() {
		s.mu.Unlock()
		s.logger.Info("Redirecting fiat purchase to onramp", zap.String("currency", currency.ID))
		s.deps.Metrics.ObservePurchase(string(entity.KindFiat), "redirect")
		return entity.SubmitResult{Redirect: &entity.Redirect{URL: s.cfg.OnrampURL}}, nil
	}

	if s.wallet == nil {
		s.mu.Unlock()
		return entity.SubmitResult{}, domain.ErrWalletNotConnected
	}

	units := s.unitsFor(currency, amount)
	if units.Sign() <= 0 {
		s.mu.Unlock()
		return entity.SubmitResult{}, fmt.Errorf("%w: amount is below the currency's precision", domain.ErrGuardRejected)
	}

	a := attempt{
		currency:  currency,
		rawAmount: s.amount,
		amount:    amount,
		units:     units,
		price:     s.capturePrice(currency),
		wallet:    *s.wallet,
	}

	s.stopClearTimerLocked()
	s.errMsg = ""
	s.txHash = ""
	if currency.IsNative() {
		s.status = entity.StatusConfirming
	} else {
		s.status = entity.StatusApproving
	}
	entered := s.status
	s.mu.Unlock()
	s.deps.Metrics.ObserveTransition(string(currency.Kind()), string(entered))

	s.logger.Info("Purchase submitted",
		zap.String("currency", currency.ID),
		zap.String("amount", amount.String()),
		zap.String("price", a.price.String()),
		zap.String("wallet", a.wallet.Hex()),
	)

	outcome := make(chan entity.AttemptOutcome, 1)
	go func() {
		defer close(outcome)
		if currency.IsNative() {
			outcome <- s.runNative(ctx, a)
			return
		}
		outcome <- s.runToken(ctx, a)
	}()
	return entity.SubmitResult{Outcome: outcome}, nil
}

// Dismiss returns a finished attempt to Idle. It is a no-op while an attempt is in flight.
func (s *PurchaseService) Dismiss() {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.status {
	case entity.StatusSuccess:
		s.status = entity.StatusIdle
	case entity.StatusError:
		s.stopClearTimerLocked()
		s.status = entity.StatusIdle
		s.errMsg = ""
	}
}

// Close cancels the pending error clear. Later submits are rejected.
func (s *PurchaseService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.stopClearTimerLocked()
}

func (s *PurchaseService) unitsFor(currency entity.Currency, amount decimal.Decimal) *big.Int {
	if token, ok := currency.Token(); ok {
		return entity.ToUnits(amount, token.Decimals)
	}
	return entity.ToUnits(amount, s.cfg.NativeDecimals)
}

// capturePrice reads the settlement price once, at submit time.
func (s *PurchaseService) capturePrice(currency entity.Currency) decimal.Decimal {
	if price, ok := s.deps.Prices.Snapshot().Price(currency.ID); ok {
		return decimal.NewFromFloat(price)
	}
	s.logger.Warn("No snapshot price for currency, using catalog price", zap.String("currency", currency.ID))
	return decimal.NewFromFloat(currency.InitialPrice)
}

// runNative sends a single payable purchase carrying the amount as value.
func (s *PurchaseService) runNative(ctx context.Context, a attempt) entity.AttemptOutcome {
	tx, err := s.prepare(ctx, domainService.CallRequest{
		Interface: domainService.InterfacePresale,
		Contract:  s.cfg.PresaleAddress(),
		Method:    s.cfg.NativePurchaseMethod,
		Value:     a.units,
		From:      a.wallet,
	})
	if err != nil {
		return s.fail(a, domain.ErrSetupFailed, msgSetupFailed, err)
	}

	res := s.await(ctx, tx)
	if res.Err != nil {
		return s.fail(a, domain.ErrExecutionFailed, msgNativeFailed, res.Err)
	}
	return s.succeed(a, res.Hash)
}

// runToken grants the allowance, and only once it is confirmed executes the purchase
// with the same fixed-point amount.
func (s *PurchaseService) runToken(ctx context.Context, a attempt) entity.AttemptOutcome {
	token, _ := a.currency.Token()
	presale := s.cfg.PresaleAddress()

	approveTx, err := s.prepare(ctx, domainService.CallRequest{
		Interface: domainService.InterfaceERC20,
		Contract:  token.Address,
		Method:    "approve",
		Args:      []any{presale, a.units},
		From:      a.wallet,
	})
	if err != nil {
		return s.fail(a, domain.ErrSetupFailed, msgSetupFailed, err)
	}

	approval := s.await(ctx, approveTx)
	if approval.Err != nil {
		return s.fail(a, domain.ErrApprovalFailed, fmt.Sprintf(msgApprovalFailed, a.currency.Symbol), approval.Err)
	}
	s.logger.Info("Allowance granted", zap.String("currency", a.currency.ID), zap.String("txHash", approval.Hash))

	s.mu.Lock()
	s.status = entity.StatusConfirming
	s.mu.Unlock()
	s.deps.Metrics.ObserveTransition(string(a.currency.Kind()), string(entity.StatusConfirming))

	buyTx, err := s.prepare(ctx, domainService.CallRequest{
		Interface: domainService.InterfacePresale,
		Contract:  presale,
		Method:    s.cfg.TokenPurchaseMethod,
		Args:      []any{a.units},
		From:      a.wallet,
	})
	if err != nil {
		s.warnAllowanceOutstanding(a, approval.Hash)
		return s.fail(a, domain.ErrExecutionFailed, msgExecutionFailed, err)
	}

	res := s.await(ctx, buyTx)
	if res.Err != nil {
		s.warnAllowanceOutstanding(a, approval.Hash)
		return s.fail(a, domain.ErrExecutionFailed, msgExecutionFailed, res.Err)
	}
	return s.succeed(a, res.Hash)
}

// prepare encodes a call. A panic in the ledger adapter is reported as an error.
func (s *PurchaseService) prepare(ctx context.Context, req domainService.CallRequest) (tx domainService.PreparedTx, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic while preparing %s: %v", apperrors.ErrInternal, req.Method, r)
		}
	}()
	return s.deps.Ledger.PrepareCall(ctx, req)
}

// await waits for the single outcome of a submitted transaction.
func (s *PurchaseService) await(ctx context.Context, tx domainService.PreparedTx) domainService.TxOutcome {
	select {
	case res, ok := <-s.deps.Ledger.Submit(ctx, tx):
		if !ok {
			return domainService.TxOutcome{Err: errors.New("ledger closed the outcome channel without a result")}
		}
		return res
	case <-ctx.Done():
		return domainService.TxOutcome{Err: ctx.Err()}
	}
}

func (s *PurchaseService) warnAllowanceOutstanding(a attempt, approvalHash string) {
	token, _ := a.currency.Token()
	s.logger.Warn("Purchase failed after approval, allowance left outstanding",
		zap.String("currency", a.currency.ID),
		zap.String("token", token.Address.Hex()),
		zap.String("spender", s.cfg.PresaleAddress().Hex()),
		zap.String("units", a.units.String()),
		zap.String("approvalTxHash", approvalHash),
	)
}

// fail enters Error and schedules the auto-clear. The generation guard keeps an
// older timer from clearing a newer error.
func (s *PurchaseService) fail(a attempt, kind error, message string, cause error) entity.AttemptOutcome {
	s.mu.Lock()
	s.stopClearTimerLocked()
	s.status = entity.StatusError
	s.errMsg = message
	s.errGen++
	gen := s.errGen
	if !s.closed {
		s.clearTimer = s.deps.Scheduler.AfterFunc(s.errorClearDelay(), func() { s.clearError(gen) })
	}
	s.mu.Unlock()

	s.logger.Warn("Purchase attempt failed",
		zap.String("currency", a.currency.ID),
		zap.String("message", message),
		zap.Error(cause),
	)
	s.deps.Metrics.ObserveTransition(string(a.currency.Kind()), string(entity.StatusError))
	s.deps.Metrics.ObservePurchase(string(a.currency.Kind()), string(entity.StatusError))

	return entity.AttemptOutcome{
		Status: entity.StatusError,
		Err:    fmt.Errorf("%w: %w", kind, cause),
	}
}

func (s *PurchaseService) clearError(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != entity.StatusError || s.errGen != gen {
		return
	}
	s.status = entity.StatusIdle
	s.errMsg = ""
	s.clearTimer = nil
}

func (s *PurchaseService) stopClearTimerLocked() {
	if s.clearTimer != nil {
		s.clearTimer.Stop()
		s.clearTimer = nil
	}
}

func (s *PurchaseService) errorClearDelay() time.Duration {
	if d := s.cfg.GetErrorClearDelay(); d > 0 {
		return d
	}
	return 5 * time.Second
}

// succeed records the settlement at the price captured on submit.
func (s *PurchaseService) succeed(a attempt, txHash string) entity.AttemptOutcome {
	price, _ := a.price.Float64()
	receipt := entity.Receipt{
		ID:          uuid.NewString(),
		TxHash:      txHash,
		CurrencyID:  a.currency.ID,
		Amount:      a.amount,
		Price:       a.price,
		Contributed: a.amount.Mul(a.price),
		Tokens:      ComputeReceivable(a.rawAmount, price, s.cfg.TokenPrice),
		Wallet:      a.wallet.Hex(),
		At:          time.Now().UTC(),
	}

	s.deps.Contributions.AddContribution(a.amount, a.price)

	s.mu.Lock()
	s.status = entity.StatusSuccess
	s.txHash = txHash
	s.amount = ""
	s.mu.Unlock()

	if s.deps.Receipts != nil {
		if err := s.deps.Receipts.SaveReceipt(context.Background(), receipt); err != nil {
			s.logger.Error("Failed to store purchase receipt", zap.String("txHash", txHash), zap.Error(err))
		}
	}
	if s.deps.Celebrator != nil {
		s.deps.Celebrator.Celebrate(receipt)
	}

	contributed, _ := receipt.Contributed.Float64()
	s.deps.Metrics.ObserveTransition(string(a.currency.Kind()), string(entity.StatusSuccess))
	s.deps.Metrics.ObservePurchase(string(a.currency.Kind()), string(entity.StatusSuccess))
	s.deps.Metrics.AddContributed(contributed)

	return entity.AttemptOutcome{
		Status:  entity.StatusSuccess,
		TxHash:  txHash,
		Receipt: &receipt,
	}
}
