package oracle

import "github.com/shopspring/decimal"

// PriceEntry is one mint of a Price API v3 response. Mints the service cannot
// price are omitted from the response object.
type PriceEntry struct {
	USDPrice       decimal.Decimal `json:"usdPrice"`
	BlockID        uint64          `json:"blockId"`
	Decimals       uint8           `json:"decimals"`
	PriceChange24h float64         `json:"priceChange24h"`
}

// PriceResponse is keyed by mint address.
type PriceResponse map[string]*PriceEntry
