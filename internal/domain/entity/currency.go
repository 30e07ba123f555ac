package entity

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// CurrencyKind tells how a currency is paid: as the network's base asset, as a token
// contract that needs an allowance, or off-chain through the fiat onramp.
type CurrencyKind string

// Known currency kinds.
const (
	KindNative CurrencyKind = "native"
	KindToken  CurrencyKind = "token"
	KindFiat   CurrencyKind = "fiat"
)

// MaxTokenDecimals bounds the fixed-point precision accepted for token contracts.
const MaxTokenDecimals = 36

// TokenAsset is the on-chain description of a token currency.
type TokenAsset struct {
	Address  common.Address
	Decimals uint8
}

// Currency is a payment option offered by the presale. The kind and the token
// description are only settable through the constructors, so a token without an
// address or a fiat currency with contract details cannot be built.
type Currency struct {
	ID           string
	Name         string
	Symbol       string
	Icon         string
	FeedID       string  // provider id used by the bulk price source, empty when not fetched
	Pegged       bool    // price pinned to the quote currency (stablecoins)
	InitialPrice float64 // used until the first successful price refresh

	kind  CurrencyKind
	token TokenAsset
}

// NewNativeCurrency builds a currency paid with the network's base asset.
func NewNativeCurrency(id, name, symbol string, initialPrice float64) (Currency, error) {
	c := Currency{ID: id, Name: name, Symbol: symbol, InitialPrice: initialPrice, kind: KindNative}
	return c, c.validateCommon()
}

// NewTokenCurrency builds a currency backed by a fungible token contract.
func NewTokenCurrency(id, name, symbol string, initialPrice float64, address common.Address, decimals uint8) (Currency, error) {
	c := Currency{ID: id, Name: name, Symbol: symbol, InitialPrice: initialPrice, kind: KindToken}
	if err := c.validateCommon(); err != nil {
		return Currency{}, err
	}
	if (address == common.Address{}) {
		return Currency{}, fmt.Errorf("token currency %s requires a contract address", id)
	}
	if decimals > MaxTokenDecimals {
		return Currency{}, fmt.Errorf("token currency %s has unsupported decimals %d", id, decimals)
	}
	c.token = TokenAsset{Address: address, Decimals: decimals}
	return c, nil
}

// NewFiatCurrency builds a currency settled through the external fiat onramp.
// Fiat currencies are always priced 1:1 with the quote currency.
func NewFiatCurrency(id, name, symbol string) (Currency, error) {
	c := Currency{ID: id, Name: name, Symbol: symbol, InitialPrice: 1, Pegged: true, kind: KindFiat}
	return c, c.validateCommon()
}

func (c Currency) validateCommon() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("currency id cannot be empty")
	}
	if c.InitialPrice < 0 {
		return fmt.Errorf("currency %s has negative initial price", c.ID)
	}
	return nil
}

// Kind returns the payment kind of the currency.
func (c Currency) Kind() CurrencyKind {
	return c.kind
}

// IsNative reports whether the currency is the network's base asset.
func (c Currency) IsNative() bool {
	return c.kind == KindNative
}

// IsFiat reports whether the currency is settled off-chain.
func (c Currency) IsFiat() bool {
	return c.kind == KindFiat
}

// Token returns the contract description for token currencies.
func (c Currency) Token() (TokenAsset, bool) {
	if c.kind != KindToken {
		return TokenAsset{}, false
	}
	return c.token, true
}

// Fetchable reports whether the currency's price comes from a price provider.
func (c Currency) Fetchable() bool {
	return !c.Pegged && c.kind != KindFiat
}

// Catalog is the ordered, immutable list of currencies the presale accepts.
type Catalog struct {
	currencies []Currency
	index      map[string]int
}

// NewCatalog indexes the given currencies, rejecting duplicate ids and an empty list.
func NewCatalog(currencies []Currency) (*Catalog, error) {
	if len(currencies) == 0 {
		return nil, fmt.Errorf("currency catalog cannot be empty")
	}
	index := make(map[string]int, len(currencies))
	for i, c := range currencies {
		if _, dup := index[c.ID]; dup {
			return nil, fmt.Errorf("duplicate currency id %q in catalog", c.ID)
		}
		index[c.ID] = i
	}
	copied := make([]Currency, len(currencies))
	copy(copied, currencies)
	return &Catalog{currencies: copied, index: index}, nil
}

// Get looks up a currency by id.
func (c *Catalog) Get(id string) (Currency, bool) {
	i, ok := c.index[id]
	if !ok {
		return Currency{}, false
	}
	return c.currencies[i], true
}

// All returns the currencies in catalog order.
func (c *Catalog) All() []Currency {
	out := make([]Currency, len(c.currencies))
	copy(out, c.currencies)
	return out
}

// Default returns the first currency, which is selected for new sessions.
func (c *Catalog) Default() Currency {
	return c.currencies[0]
}

// CurrencyView is a catalog entry with its current price, as seen by API clients.
type CurrencyView struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Symbol   string       `json:"symbol"`
	Icon     string       `json:"icon,omitempty"`
	Kind     CurrencyKind `json:"kind"`
	Price    float64      `json:"price"`
	Address  string       `json:"address,omitempty"`
	Decimals *uint8       `json:"decimals,omitempty"`
}

// View renders the currency with the given price.
func (c Currency) View(price float64) CurrencyView {
	v := CurrencyView{
		ID:     c.ID,
		Name:   c.Name,
		Symbol: c.Symbol,
		Icon:   c.Icon,
		Kind:   c.kind,
		Price:  price,
	}
	if token, ok := c.Token(); ok {
		decimals := token.Decimals
		v.Address = token.Address.Hex()
		v.Decimals = &decimals
	}
	return v
}
