package application

import (
	"context"
	"fmt"

	"fluid-presale/internal/application/port"
	"fluid-presale/internal/config"
	"fluid-presale/internal/domain/entity"
	domainRepo "fluid-presale/internal/domain/repository"
	"fluid-presale/internal/pkg/apperrors"

	"github.com/shopspring/decimal"
)

// Compile-time check
var _ port.PresaleService = (*PresaleService)(nil)

// PresaleService answers catalog, sale terms and receipt queries.
type PresaleService struct {
	catalog  *entity.Catalog
	prices   port.PriceFeed
	receipts domainRepo.ReceiptRepository
	cfg      config.PresaleConfig
}

func NewPresaleService(
	catalog *entity.Catalog,
	prices port.PriceFeed,
	receipts domainRepo.ReceiptRepository,
	cfg config.PresaleConfig,
) *PresaleService {
	return &PresaleService{catalog: catalog, prices: prices, receipts: receipts, cfg: cfg}
}

// Currencies lists the catalog with prices from the current snapshot.
func (s *PresaleService) Currencies() []entity.CurrencyView {
	snapshot := s.prices.Snapshot()
	all := s.catalog.All()
	views := make([]entity.CurrencyView, 0, len(all))
	for _, c := range all {
		price, ok := snapshot.Price(c.ID)
		if !ok {
			price = c.InitialPrice
		}
		views = append(views, c.View(price))
	}
	return views
}

// Terms returns the fixed sale parameters.
func (s *PresaleService) Terms() entity.SaleTerms {
	return entity.SaleTerms{
		TokenSymbol: s.cfg.TokenSymbol,
		TokenPrice:  decimal.NewFromFloat(s.cfg.TokenPrice),
		NextPrice:   decimal.NewFromFloat(s.cfg.NextPrice),
		Target:      decimal.NewFromFloat(s.cfg.TargetRaise),
	}
}

// Receipt returns the settlement record of a successful purchase.
func (s *PresaleService) Receipt(ctx context.Context, txHash string) (entity.Receipt, error) {
	receipt, found, err := s.receipts.GetReceipt(ctx, txHash)
	if err != nil {
		return entity.Receipt{}, fmt.Errorf("receipt lookup failed: %w", err)
	}
	if !found {
		return entity.Receipt{}, fmt.Errorf("%w: no receipt for transaction %s", apperrors.ErrNotFound, txHash)
	}
	return receipt, nil
}
