package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CommodityGold is the only commodity the engine trades today.
const CommodityGold = "XAU"

// PriceQuote is a single spot-price observation. The price history is
// append-only; quotes are never mutated once recorded.
type PriceQuote struct {
	PricePerGram decimal.Decimal `json:"price_per_gram"`
	Currency     string          `json:"currency"`
	ObservedAt   time.Time       `json:"observed_at"`
}
