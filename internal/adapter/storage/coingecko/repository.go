package coingecko

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	dto "fluid-presale/internal/adapter/storage/coingecko/dto"
	"fluid-presale/internal/config"
	domainRepo "fluid-presale/internal/domain/repository"
	"fluid-presale/internal/pkg/apperrors"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// Compile-time check
var _ domainRepo.BulkPriceSource = (*Repository)(nil)

const defaultRequestTimeout = 15 * time.Second

// Repository implements BulkPriceSource against the CoinGecko simple-price API.
type Repository struct {
	client  *fasthttp.Client
	url     string
	quote   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewRepository creates a CoinGecko bulk price source from the price feed configuration.
func NewRepository(cfg config.PriceFeedConfig, logger *zap.Logger) *Repository {
	timeout := cfg.GetRequestTimeout()
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	quote := strings.ToLower(strings.TrimSpace(cfg.QuoteCurrency))
	if quote == "" {
		quote = "usd"
	}
	return &Repository{
		client:  &fasthttp.Client{},
		url:     cfg.SecondaryURL,
		quote:   quote,
		timeout: timeout,
		logger:  logger.Named("CoinGeckoSource"),
	}
}

// FetchPrices requests every feed id in a single batched call.
func (r *Repository) FetchPrices(ctx context.Context, feedIDs []string) (map[string]float64, error) {
	if len(feedIDs) == 0 {
		return map[string]float64{}, nil
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	query := url.Values{}
	query.Set("ids", strings.Join(feedIDs, ","))
	query.Set("vs_currencies", r.quote)
	requestURI := r.url + "?" + query.Encode()

	req.SetRequestURI(requestURI)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	req.Header.Set(fasthttp.HeaderAcceptEncoding, "gzip")

	timeout := r.timeout
	if deadline, hasDeadline := ctx.Deadline(); hasDeadline {
		requestTimeout := time.Until(deadline)
		if requestTimeout <= 0 {
			return nil, fmt.Errorf("%w: coingecko request deadline already passed", apperrors.ErrTimeout)
		}
		if requestTimeout < timeout {
			timeout = requestTimeout
		}
	}

	r.logger.Debug("Fetching prices from CoinGecko",
		zap.String("url", requestURI),
		zap.Duration("timeout", timeout),
	)

	err := r.client.DoTimeout(req, resp, timeout)
	if err != nil {
		r.logger.Warn("Failed to execute request to CoinGecko", zap.Error(err))
		if errors.Is(err, fasthttp.ErrTimeout) {
			return nil, fmt.Errorf("%w: coingecko request timed out after %v", apperrors.ErrTimeout, timeout)
		}
		return nil, fmt.Errorf("%w: failed to execute request to CoinGecko: %v",
			apperrors.ErrExternalServiceFailure, err,
		)
	}

	var body []byte
	contentEncoding := resp.Header.Peek(fasthttp.HeaderContentEncoding)
	if bytes.EqualFold(contentEncoding, []byte("gzip")) {
		body, err = resp.BodyGunzip()
		if err != nil {
			r.logger.Warn("Failed to gunzip CoinGecko response body", zap.Error(err))
			return nil, fmt.Errorf("%w: failed to decompress coingecko response: %v",
				apperrors.ErrExternalServiceFailure, err,
			)
		}
	} else {
		body = resp.Body()
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		var apiErr dto.ErrorRaw
		_ = json.Unmarshal(body, &apiErr)
		r.logger.Warn("CoinGecko returned non-OK status",
			zap.Int("statusCode", resp.StatusCode()),
			zap.String("message", apiErr.Message()),
		)
		return nil, fmt.Errorf("%w: coingecko returned status %d",
			apperrors.ErrExternalServiceFailure, resp.StatusCode(),
		)
	}

	var raw dto.SimplePriceRaw
	if err := json.Unmarshal(body, &raw); err != nil {
		r.logger.Warn("Failed to unmarshal CoinGecko response",
			zap.Error(err), zap.ByteString("bodySample", body[:min(512, len(body))]),
		)
		return nil, fmt.Errorf("%w: failed to parse coingecko response: %v",
			apperrors.ErrExternalServiceFailure, err,
		)
	}

	prices := toDomainPrices(raw, r.quote, r.logger)
	r.logger.Debug("Fetched prices from CoinGecko", zap.Int("requested", len(feedIDs)), zap.Int("received", len(prices)))
	return prices, nil
}
