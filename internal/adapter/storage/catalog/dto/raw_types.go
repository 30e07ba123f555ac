package catalog_dto

// CatalogRaw is the on-disk layout of the currency catalog.
type CatalogRaw struct {
	Currencies []CurrencyRaw `yaml:"currencies"`
}

// CurrencyRaw is one catalog entry as written in YAML. Kind decides which of the
// optional fields are allowed.
type CurrencyRaw struct {
	ID       string  `yaml:"id"`
	Name     string  `yaml:"name"`
	Symbol   string  `yaml:"symbol"`
	Icon     string  `yaml:"icon,omitempty"`
	Kind     string  `yaml:"kind"`
	Price    float64 `yaml:"price"`
	Pegged   bool    `yaml:"pegged,omitempty"`
	FeedID   string  `yaml:"feed_id,omitempty"`
	Address  string  `yaml:"address,omitempty"`
	Decimals *int    `yaml:"decimals,omitempty"`
}
