package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fluid-presale/internal/config"
	"fluid-presale/internal/domain/entity"
	domainRepo "fluid-presale/internal/domain/repository"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Compile-time checks
var (
	_ domainRepo.SnapshotRepository = (*CacheRepository)(nil)
	_ domainRepo.ReceiptRepository  = (*CacheRepository)(nil)
)

// Cache keys
const (
	priceSnapshotKey = "price_snapshot_v1"
	receiptKeyPrefix = "receipt_v1_"
)

// CacheRepository keeps the current price snapshot and recent purchase receipts
// in memory using go-cache. The snapshot never expires: a stale snapshot is
// preferred over none.
type CacheRepository struct {
	cache      *cache.Cache
	logger     *zap.Logger
	receiptTTL time.Duration
}

// NewCacheRepository creates a new in-memory cache repository instance.
func NewCacheRepository(cfg config.SessionConfig, logger *zap.Logger) *CacheRepository {
	receiptTTL := cfg.ReceiptTTL
	if receiptTTL <= 0 {
		receiptTTL = 24 * time.Hour
	}
	cleanupInterval := cfg.GetCleanupInterval()

	c := cache.New(receiptTTL, cleanupInterval)
	logger.Info(
		"Initialized go-cache for memory storage",
		zap.Duration("receiptTTL", receiptTTL),
		zap.Duration("cleanupInterval", cleanupInterval),
	)

	return &CacheRepository{
		cache:      c,
		logger:     logger.Named("MemoryCacheStorage"),
		receiptTTL: receiptTTL,
	}
}

// GetSnapshot retrieves the current price snapshot, returning found status.
func (r *CacheRepository) GetSnapshot(_ context.Context) (entity.PriceSnapshot, bool, error) {
	if x, found := r.cache.Get(priceSnapshotKey); found {
		if snapshot, ok := x.(entity.PriceSnapshot); ok {
			return snapshot, true, nil
		}
		r.logger.Warn(
			"Memory cache data type mismatch for key",
			zap.String("key", priceSnapshotKey), zap.Any("type", fmt.Sprintf("%T", x)),
		)
	}
	r.logger.Debug("Memory cache miss", zap.String("key", priceSnapshotKey))
	return entity.PriceSnapshot{}, false, nil
}

// SetSnapshot replaces the stored snapshot.
func (r *CacheRepository) SetSnapshot(_ context.Context, snapshot entity.PriceSnapshot) error {
	r.cache.Set(priceSnapshotKey, snapshot, cache.NoExpiration)
	r.logger.Debug("Memory cache set",
		zap.String("key", priceSnapshotKey),
		zap.String("source", string(snapshot.Source)),
	)
	return nil
}

// SaveReceipt caches a settlement record under its transaction hash.
func (r *CacheRepository) SaveReceipt(_ context.Context, receipt entity.Receipt) error {
	if receipt.TxHash == "" {
		return fmt.Errorf("receipt %s has no transaction hash", receipt.ID)
	}
	key := r.getReceiptKey(receipt.TxHash)
	r.cache.Set(key, receipt, r.receiptTTL)
	r.logger.Debug("Memory cache set", zap.String("key", key), zap.Duration("ttl", r.receiptTTL))
	return nil
}

// GetReceipt retrieves a cached settlement record, returning found status.
func (r *CacheRepository) GetReceipt(_ context.Context, txHash string) (entity.Receipt, bool, error) {
	key := r.getReceiptKey(txHash)
	if x, found := r.cache.Get(key); found {
		if receipt, ok := x.(entity.Receipt); ok {
			return receipt, true, nil
		}
		r.logger.Warn(
			"Memory cache data type mismatch for key",
			zap.String("key", key),
			zap.Any("type", fmt.Sprintf("%T", x)),
		)
	}
	return entity.Receipt{}, false, nil
}

// getReceiptKey generates the cache key for a receipt. Hashes are case-insensitive hex.
func (r *CacheRepository) getReceiptKey(txHash string) string {
	return receiptKeyPrefix + strings.ToLower(strings.TrimSpace(txHash))
}
