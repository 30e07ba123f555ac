package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"fluid-presale/internal/adapter/rpc"
	"fluid-presale/internal/config"
	domainService "fluid-presale/internal/domain/service"
	"fluid-presale/internal/pkg/apperrors"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
)

// Compile-time check
var _ domainService.Ledger = (*EVMLedger)(nil)

var (
	errReceiptPending = errors.New("transaction receipt not yet available")

	// ErrTxReverted means the transaction was mined with a failed status.
	ErrTxReverted = errors.New("transaction reverted")
)

// EVMLedger talks to an EVM node whose accounts are managed by the wallet provider,
// so transactions are submitted unsigned through eth_sendTransaction.
type EVMLedger struct {
	rpc      rpc.Caller
	contract common.Address
	abis     map[domainService.ContractInterface]abi.ABI
	cfg      config.LedgerConfig
	logger   *zap.Logger
}

// NewEVMLedger creates a ledger bound to the presale contract.
func NewEVMLedger(
	caller rpc.Caller,
	presaleCfg config.PresaleConfig,
	cfg config.LedgerConfig,
	logger *zap.Logger,
) (*EVMLedger, error) {
	presale, err := abi.JSON(strings.NewReader(presaleABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse presale ABI: %w", err)
	}
	erc20, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse erc20 ABI: %w", err)
	}
	return &EVMLedger{
		rpc:      caller,
		contract: presaleCfg.PresaleAddress(),
		abis: map[domainService.ContractInterface]abi.ABI{
			domainService.InterfacePresale: presale,
			domainService.InterfaceERC20:   erc20,
		},
		cfg:    cfg,
		logger: logger.Named("EVMLedger"),
	}, nil
}

// ReadRaised queries weiRaised on the presale contract.
func (l *EVMLedger) ReadRaised(ctx context.Context) (*big.Int, error) {
	presale := l.abis[domainService.InterfacePresale]
	data, err := presale.Pack(raisedMethod)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode %s: %v", apperrors.ErrInternal, raisedMethod, err)
	}

	var out hexutil.Bytes
	if err := l.rpc.Call(ctx, "eth_call", &out, callArgs{To: l.contract, Data: data}, "latest"); err != nil {
		return nil, err
	}

	values, err := presale.Unpack(raisedMethod, out)
	if err != nil || len(values) != 1 {
		return nil, fmt.Errorf("%w: cannot decode %s result %s: %v",
			apperrors.ErrExternalServiceFailure, raisedMethod, hexutil.Encode(out), err,
		)
	}
	raised, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: %s returned %T", apperrors.ErrExternalServiceFailure, raisedMethod, values[0])
	}
	return raised, nil
}

// PrepareCall ABI-encodes the call. Value is only allowed on payable methods.
func (l *EVMLedger) PrepareCall(_ context.Context, req domainService.CallRequest) (domainService.PreparedTx, error) {
	parsed, ok := l.abis[req.Interface]
	if !ok {
		return domainService.PreparedTx{}, fmt.Errorf("%w: unknown contract interface %q", apperrors.ErrInvalidInput, req.Interface)
	}
	method, ok := parsed.Methods[req.Method]
	if !ok {
		return domainService.PreparedTx{}, fmt.Errorf("%w: %s has no method %q", apperrors.ErrInvalidInput, req.Interface, req.Method)
	}

	value := new(big.Int)
	if req.Value != nil {
		if req.Value.Sign() < 0 {
			return domainService.PreparedTx{}, fmt.Errorf("%w: negative value", apperrors.ErrInvalidInput)
		}
		value.Set(req.Value)
	}
	if value.Sign() > 0 && !method.IsPayable() {
		return domainService.PreparedTx{}, fmt.Errorf("%w: %s is not payable", apperrors.ErrInvalidInput, req.Method)
	}

	data, err := parsed.Pack(req.Method, req.Args...)
	if err != nil {
		return domainService.PreparedTx{}, fmt.Errorf("%w: cannot encode %s: %v", apperrors.ErrInvalidInput, req.Method, err)
	}

	return domainService.PreparedTx{
		From:   req.From,
		To:     req.Contract,
		Data:   data,
		Value:  value,
		Method: req.Method,
	}, nil
}

// Submit sends the transaction and waits for its receipt in the background.
func (l *EVMLedger) Submit(ctx context.Context, tx domainService.PreparedTx) <-chan domainService.TxOutcome {
	out := make(chan domainService.TxOutcome, 1)
	go func() {
		defer close(out)
		hash, err := l.send(ctx, tx)
		if err != nil {
			out <- domainService.TxOutcome{Err: err}
			return
		}
		out <- domainService.TxOutcome{Hash: hash, Err: l.awaitReceipt(ctx, tx.Method, hash)}
	}()
	return out
}

func (l *EVMLedger) send(ctx context.Context, tx domainService.PreparedTx) (string, error) {
	from := tx.From
	args := callArgs{From: &from, To: tx.To, Data: tx.Data}
	if tx.Value != nil && tx.Value.Sign() > 0 {
		args.Value = (*hexutil.Big)(tx.Value)
	}

	var hash common.Hash
	if err := l.rpc.Call(ctx, "eth_sendTransaction", &hash, args); err != nil {
		l.logger.Warn("Transaction submission failed", zap.String("method", tx.Method), zap.Error(err))
		return "", err
	}
	l.logger.Info("Transaction submitted", zap.String("method", tx.Method), zap.String("txHash", hash.Hex()))
	return hash.Hex(), nil
}

// awaitReceipt polls for the receipt with exponential backoff until it is mined,
// the receipt timeout elapses or ctx is cancelled.
func (l *EVMLedger) awaitReceipt(ctx context.Context, method, hash string) error {
	policy := backoff.NewExponentialBackOff()
	if l.cfg.ReceiptPollInterval > 0 {
		policy.InitialInterval = l.cfg.ReceiptPollInterval
		policy.MaxInterval = l.cfg.ReceiptPollInterval * 4
	}

	notify := func(err error, next time.Duration) {
		l.logger.Debug("Waiting for receipt", zap.String("txHash", hash), zap.Duration("next", next), zap.Error(err))
	}

	operation := func() (*receiptRaw, error) {
		var receipt *receiptRaw
		if err := l.rpc.Call(ctx, "eth_getTransactionReceipt", &receipt, hash); err != nil {
			return nil, err
		}
		if receipt == nil {
			return nil, errReceiptPending
		}
		return receipt, nil
	}

	opts := []backoff.RetryOption{backoff.WithBackOff(policy), backoff.WithNotify(notify)}
	if timeout := l.cfg.GetReceiptTimeout(); timeout > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(timeout))
	}

	receipt, err := backoff.Retry(ctx, operation, opts...)
	if err != nil {
		if errors.Is(err, errReceiptPending) {
			return fmt.Errorf("%w: no receipt for %s within %v", apperrors.ErrTimeout, hash, l.cfg.GetReceiptTimeout())
		}
		return err
	}

	if receipt.Status == nil || uint64(*receipt.Status) != receiptStatusSuccessful {
		l.logger.Warn("Transaction reverted", zap.String("method", method), zap.String("txHash", hash))
		return fmt.Errorf("%w: %s (%s)", ErrTxReverted, hash, method)
	}
	l.logger.Info("Transaction confirmed", zap.String("method", method), zap.String("txHash", hash))
	return nil
}
