package services

import (
	"github.com/shopspring/decimal"

	"github.com/sbilibin2017/gw-gold-wallet/internal/models"
)

// NewAverageCost computes the weighted-average purchase price per gram after
// adding a new lot to an existing holding:
//
//	newAvg = (existingGrams*existingAvg + lotGrams*lotPrice) / (existingGrams + lotGrams)
//
// It returns zero when the combined holding is zero. Weighted-average cost is
// used instead of FIFO/LIFO lot tracking: it needs no per-lot history.
func NewAverageCost(existingGrams, existingAvg, lotGrams, lotPricePerGram decimal.Decimal) decimal.Decimal {
	total := existingGrams.Add(lotGrams)
	if total.IsZero() || total.IsNegative() {
		return decimal.Zero
	}
	cost := existingGrams.Mul(existingAvg).Add(lotGrams.Mul(lotPricePerGram))
	return models.RoundMoney(cost.Div(total))
}

// ApplyPurchase adds a lot to the position and recomputes the average cost.
func ApplyPurchase(pos models.GoldPosition, lotGrams, lotPricePerGram decimal.Decimal) models.GoldPosition {
	return models.GoldPosition{
		Grams:              models.RoundGrams(pos.Grams.Add(lotGrams)),
		AverageCostPerGram: NewAverageCost(pos.Grams, pos.AverageCostPerGram, lotGrams, lotPricePerGram),
	}
}

// ApplySale removes grams from the position. Selling does not change the
// average cost of the remainder. A position driven to or below zero resets
// both grams and average cost to exactly zero so no phantom-short state can
// survive.
func ApplySale(pos models.GoldPosition, soldGrams decimal.Decimal) models.GoldPosition {
	remaining := models.RoundGrams(pos.Grams.Sub(soldGrams))
	if remaining.IsZero() || remaining.IsNegative() {
		return models.GoldPosition{Grams: decimal.Zero, AverageCostPerGram: decimal.Zero}
	}
	return models.GoldPosition{Grams: remaining, AverageCostPerGram: pos.AverageCostPerGram}
}
