package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sbilibin2017/gw-gold-wallet/internal/logger"
	"github.com/sbilibin2017/gw-gold-wallet/internal/models"
)

// GoldTrader defines the engine methods the buy and sell handlers need.
type GoldTrader interface {
	BuyGold(ctx context.Context, userID uuid.UUID, grams decimal.Decimal, currency string, quotedPricePerGram, quotedTotal decimal.Decimal) (*models.Transaction, error)
	SellGold(ctx context.Context, userID uuid.UUID, grams decimal.Decimal, currency string, quotedPricePerGram, quotedTotal decimal.Decimal) (*models.Transaction, error)
}

// GoldTradeRequest represents the JSON body for buying or selling gold
// swagger:model GoldTradeRequest
type GoldTradeRequest struct {
	// Gold weight in grams
	// required: true
	Grams decimal.Decimal `json:"grams"`

	// Settlement currency
	// required: true
	// default: USD
	Currency string `json:"currency"`

	// Price per gram the client was quoted
	// required: true
	QuotedPricePerGram decimal.Decimal `json:"quoted_price_per_gram"`

	// Total the client was quoted, fees included
	// required: true
	QuotedTotal decimal.Decimal `json:"quoted_total"`
}

// GoldTradeResponse represents a completed gold trade
// swagger:model GoldTradeResponse
type GoldTradeResponse struct {
	// Success message
	Message string `json:"message"`

	// Completed transaction
	Transaction *models.Transaction `json:"transaction"`
}

// NewBuyGoldHandler returns an HTTP handler that buys gold at the live spot
// price, validating the client's quote against the drift tolerance.
// @Summary Buy gold
// @Description Buys gold at the current spot price. Rejects when the quoted total drifted more than the tolerance from the authoritative total.
// @Tags gold
// @Accept json
// @Produce json
// @Param request body handlers.GoldTradeRequest true "Buy Request"
// @Success 200 {object} handlers.GoldTradeResponse "Purchase completed"
// @Failure 400 {object} handlers.ErrorResponse "Invalid input, price drift, insufficient balance or limit exceeded"
// @Failure 401 {object} handlers.ErrorResponse "Unauthorized"
// @Router /gold/buy [post]
// @Security BearerAuth
func NewBuyGoldHandler(svc GoldTrader, tokener Tokener) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		claims, ok := claimsFromRequest(w, r, tokener)
		if !ok {
			return
		}

		var req GoldTradeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Log.Errorw("failed to decode buy gold request", "error", err)
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		txn, err := svc.BuyGold(ctx, claims.UserID, req.Grams, req.Currency, req.QuotedPricePerGram, req.QuotedTotal)
		if err != nil {
			logger.Log.Errorw("gold purchase rejected", "userID", claims.UserID, "grams", req.Grams, "error", err)
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, GoldTradeResponse{
			Message:     "Gold purchased successfully",
			Transaction: txn,
		})
	}
}

// NewSellGoldHandler returns an HTTP handler that sells gold at the live spot
// price with the same drift validation as buying.
// @Summary Sell gold
// @Description Sells held gold at the current spot price. The average cost of the remaining holding is unchanged.
// @Tags gold
// @Accept json
// @Produce json
// @Param request body handlers.GoldTradeRequest true "Sell Request"
// @Success 200 {object} handlers.GoldTradeResponse "Sale completed"
// @Failure 400 {object} handlers.ErrorResponse "Invalid input, price drift, insufficient holdings or limit exceeded"
// @Failure 401 {object} handlers.ErrorResponse "Unauthorized"
// @Router /gold/sell [post]
// @Security BearerAuth
func NewSellGoldHandler(svc GoldTrader, tokener Tokener) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		claims, ok := claimsFromRequest(w, r, tokener)
		if !ok {
			return
		}

		var req GoldTradeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Log.Errorw("failed to decode sell gold request", "error", err)
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		txn, err := svc.SellGold(ctx, claims.UserID, req.Grams, req.Currency, req.QuotedPricePerGram, req.QuotedTotal)
		if err != nil {
			logger.Log.Errorw("gold sale rejected", "userID", claims.UserID, "grams", req.Grams, "error", err)
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, GoldTradeResponse{
			Message:     "Gold sold successfully",
			Transaction: txn,
		})
	}
}
