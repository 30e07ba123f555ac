package coingecko_dto

// SimplePriceRaw is the body of the simple-price endpoint: provider id mapped to
// quote currency mapped to price, e.g. {"ethereum":{"usd":3200.5}}.
type SimplePriceRaw map[string]map[string]float64

// ErrorRaw is the error body CoinGecko returns with non-OK statuses.
type ErrorRaw struct {
	Error  string `json:"error,omitempty"`
	Status *struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status,omitempty"`
}

// Message returns the most specific error text present in the body.
func (e ErrorRaw) Message() string {
	if e.Status != nil && e.Status.ErrorMessage != "" {
		return e.Status.ErrorMessage
	}
	return e.Error
}
