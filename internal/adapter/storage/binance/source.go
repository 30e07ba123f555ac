package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	binanceapi "github.com/adshao/go-binance/v2"
	binancecommon "github.com/adshao/go-binance/v2/common"
	"go.uber.org/zap"

	"fluid-presale/internal/config"
	domainRepo "fluid-presale/internal/domain/repository"
	"fluid-presale/internal/pkg/apperrors"
)

// Compile-time check
var _ domainRepo.PrimaryPriceSource = (*Source)(nil)

const defaultRequestTimeout = 5 * time.Second

// Source implements PrimaryPriceSource with the Binance spot ticker endpoint.
type Source struct {
	client  *binanceapi.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewSource creates a Binance ticker source. An empty primary URL keeps the
// library's default endpoint.
func NewSource(cfg config.PriceFeedConfig, logger *zap.Logger) *Source {
	timeout := cfg.GetRequestTimeout()
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	client := binanceapi.NewClient("", "")
	if base := strings.TrimRight(strings.TrimSpace(cfg.PrimaryURL), "/"); base != "" {
		client.BaseURL = base
	}
	client.HTTPClient = &http.Client{Timeout: timeout}

	return &Source{
		client:  client,
		timeout: timeout,
		logger:  logger.Named("BinanceSource"),
	}
}

// FetchPrice returns the last price of symbol. The call succeeds only when the
// endpoint answers with a success status and a parseable positive price.
func (s *Source) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return 0, fmt.Errorf("%w: empty ticker symbol", apperrors.ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.logger.Debug("Fetching ticker price", zap.String("symbol", symbol))
	prices, err := s.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		var apiErr *binancecommon.APIError
		if errors.As(err, &apiErr) {
			s.logger.Warn("Binance rejected ticker request",
				zap.String("symbol", symbol),
				zap.Int64("code", apiErr.Code),
				zap.String("message", apiErr.Message),
			)
			return 0, fmt.Errorf("%w: binance ticker %s: %d %s",
				apperrors.ErrExternalServiceFailure, symbol, apiErr.Code, apiErr.Message,
			)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, fmt.Errorf("%w: binance ticker %s: %v", apperrors.ErrTimeout, symbol, err)
		}
		s.logger.Warn("Binance ticker request failed", zap.String("symbol", symbol), zap.Error(err))
		return 0, fmt.Errorf("%w: binance ticker %s: %v", apperrors.ErrExternalServiceFailure, symbol, err)
	}

	for _, p := range prices {
		if p == nil || !strings.EqualFold(p.Symbol, symbol) {
			continue
		}
		price, parseErr := strconv.ParseFloat(strings.TrimSpace(p.Price), 64)
		if parseErr != nil || price <= 0 {
			return 0, fmt.Errorf("%w: binance ticker %s returned invalid price %q",
				apperrors.ErrExternalServiceFailure, symbol, p.Price,
			)
		}
		return price, nil
	}

	return 0, fmt.Errorf("%w: binance ticker %s missing from response", apperrors.ErrExternalServiceFailure, symbol)
}
