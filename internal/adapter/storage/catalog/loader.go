package catalog

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	dto "fluid-presale/internal/adapter/storage/catalog/dto"
	"fluid-presale/internal/domain/entity"
	"fluid-presale/internal/pkg/apperrors"
)

// defaultCatalog is used when no catalog file is configured.
const defaultCatalog = `
currencies:
  - id: ETH
    name: ETH
    symbol: ETH
    icon: https://cryptologos.cc/logos/ethereum-eth-logo.png?v=026
    kind: native
    price: 3200
    feed_id: ethereum
  - id: USDT
    name: USDT
    symbol: USDT
    icon: https://cryptologos.cc/logos/tether-usdt-logo.png?v=026
    kind: token
    price: 1
    pegged: true
    feed_id: tether
    address: "0xdAC17F958D2ee523a2206206994597C13D831ec7"
    decimals: 6
  - id: BNB
    name: BNB
    symbol: BNB
    icon: https://cryptologos.cc/logos/bnb-bnb-logo.png?v=026
    kind: native
    price: 600
    feed_id: binancecoin
  - id: CARD
    name: Card
    symbol: USD
    kind: fiat
`

// Load reads the currency catalog from path, or the built-in catalog when path is empty.
func Load(path string, logger *zap.Logger) (*entity.Catalog, error) {
	data := []byte(defaultCatalog)
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read currency catalog %s: %v", apperrors.ErrInvalidInput, path, err)
		}
		data = raw
	}

	catalog, err := Parse(data)
	if err != nil {
		return nil, err
	}

	source := path
	if source == "" {
		source = "built-in"
	}
	logger.Info("Loaded currency catalog",
		zap.String("source", source),
		zap.Int("count", len(catalog.All())),
	)
	return catalog, nil
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) (*entity.Catalog, error) {
	var raw dto.CatalogRaw
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: failed to parse currency catalog: %v", apperrors.ErrInvalidInput, err)
	}

	currencies := make([]entity.Currency, 0, len(raw.Currencies))
	for _, rc := range raw.Currencies {
		c, err := toDomainCurrency(rc)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
		}
		currencies = append(currencies, c)
	}

	catalog, err := entity.NewCatalog(currencies)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	return catalog, nil
}
