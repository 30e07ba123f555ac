package entity

import "github.com/shopspring/decimal"

// Countdown is the time left in the current sale stage.
type Countdown struct {
	Days    int `json:"days"`
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
	Seconds int `json:"seconds"`
}

// IsZero reports whether the countdown has run out.
func (c Countdown) IsZero() bool {
	return c.Days <= 0 && c.Hours <= 0 && c.Minutes <= 0 && c.Seconds <= 0
}

// Tick advances the countdown by one second, borrowing from larger units. Once
// every unit is zero the countdown stays at zero.
func (c Countdown) Tick() Countdown {
	if c.IsZero() {
		return Countdown{}
	}
	if c.Seconds > 0 {
		c.Seconds--
		return c
	}
	c.Seconds = 59
	if c.Minutes > 0 {
		c.Minutes--
		return c
	}
	c.Minutes = 59
	if c.Hours > 0 {
		c.Hours--
		return c
	}
	c.Hours = 23
	c.Days--
	return c
}

// RaiseState is the fundraising progress of the sale.
type RaiseState struct {
	Raised    decimal.Decimal  `json:"raised"`
	Target    decimal.Decimal  `json:"target"`
	OnChain   *decimal.Decimal `json:"onChain,omitempty"`
	Countdown Countdown        `json:"countdown"`
}

// Effective returns the on-chain figure when one has been read, otherwise the
// locally tracked total.
func (r RaiseState) Effective() decimal.Decimal {
	if r.OnChain != nil {
		return *r.OnChain
	}
	return r.Raised
}

// Progress returns the effective raised amount over the target as a percentage
// capped at 100.
func (r RaiseState) Progress() float64 {
	if !r.Target.IsPositive() {
		return 0
	}
	pct := r.Effective().Div(r.Target).Mul(decimal.NewFromInt(100))
	if pct.GreaterThan(decimal.NewFromInt(100)) {
		return 100
	}
	f, _ := pct.Float64()
	return f
}

// SaleTerms are the fixed parameters of the current sale stage.
type SaleTerms struct {
	TokenSymbol string          `json:"tokenSymbol"`
	TokenPrice  decimal.Decimal `json:"tokenPrice"`
	NextPrice   decimal.Decimal `json:"nextPrice"`
	Target      decimal.Decimal `json:"target"`
}

// RaiseView is the raise state as seen by API clients.
type RaiseView struct {
	Raised    string    `json:"raised"`
	Target    string    `json:"target"`
	Progress  float64   `json:"progress"`
	OnChain   bool      `json:"onChain"`
	Countdown Countdown `json:"countdown"`
}

// View renders the state with two-decimal amounts.
func (r RaiseState) View() RaiseView {
	return RaiseView{
		Raised:    r.Effective().StringFixed(2),
		Target:    r.Target.StringFixed(2),
		Progress:  r.Progress(),
		OnChain:   r.OnChain != nil,
		Countdown: r.Countdown,
	}
}
