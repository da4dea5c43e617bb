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

// Converter defines the engine methods this handler needs.
type Converter interface {
	Convert(ctx context.Context, userID uuid.UUID, fromCurrency, toCurrency string, amount decimal.Decimal) (*models.Transaction, error)
}

// ExchangeRequest represents the JSON body for currency conversion
// swagger:model ExchangeRequest
type ExchangeRequest struct {
	// Source currency
	// required: true
	// default: USD
	FromCurrency string `json:"from_currency"`

	// Target currency
	// required: true
	// default: EUR
	ToCurrency string `json:"to_currency"`

	// Amount in the source currency
	// required: true
	Amount decimal.Decimal `json:"amount"`
}

// ExchangeResponse represents a completed currency conversion
// swagger:model ExchangeResponse
type ExchangeResponse struct {
	// Success message
	Message string `json:"message"`

	// Completed transaction; metadata carries the rate and target amount
	Transaction *models.Transaction `json:"transaction"`
}

// NewExchangeHandler returns an HTTP handler that converts between two
// currency balances at the current rate. Conversion is internal and not
// subject to daily or lifetime limits.
// @Summary Convert currency
// @Description Converts between two balances at the current exchange rate.
// @Tags wallet
// @Accept json
// @Produce json
// @Param request body handlers.ExchangeRequest true "Exchange Request"
// @Success 200 {object} handlers.ExchangeResponse "Conversion completed"
// @Failure 400 {object} handlers.ErrorResponse "Invalid input or insufficient balance"
// @Failure 401 {object} handlers.ErrorResponse "Unauthorized"
// @Router /exchange [post]
// @Security BearerAuth
func NewExchangeHandler(svc Converter, tokener Tokener) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		claims, ok := claimsFromRequest(w, r, tokener)
		if !ok {
			return
		}

		var req ExchangeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Log.Errorw("failed to decode exchange request", "error", err)
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		txn, err := svc.Convert(ctx, claims.UserID, req.FromCurrency, req.ToCurrency, req.Amount)
		if err != nil {
			logger.Log.Errorw("conversion rejected", "userID", claims.UserID, "from", req.FromCurrency, "to", req.ToCurrency, "error", err)
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, ExchangeResponse{
			Message:     "Currency converted successfully",
			Transaction: txn,
		})
	}
}
