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

// Withdrawer defines the engine methods this handler needs.
type Withdrawer interface {
	Withdraw(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, currency, bankDetails string) (*models.Transaction, error)
}

// WithdrawRequest represents the JSON body for withdrawing funds
// swagger:model WithdrawRequest
type WithdrawRequest struct {
	// Amount to withdraw
	// required: true
	Amount decimal.Decimal `json:"amount"`

	// Currency code
	// required: true
	// default: USD
	Currency string `json:"currency"`

	// Destination bank details
	// required: true
	BankDetails string `json:"bank_details"`
}

// WithdrawResponse represents a successful withdrawal request
// swagger:model WithdrawResponse
type WithdrawResponse struct {
	// Success message
	Message string `json:"message"`

	// Created transaction; the amount is already held
	Transaction *models.Transaction `json:"transaction"`
}

// NewWithdrawHandler returns an HTTP handler that records a pending
// withdrawal. The amount is debited immediately and credited back if the
// withdrawal is later rejected or cancelled.
// @Summary Request a withdrawal
// @Description Debits the balance immediately and creates a pending withdrawal awaiting settlement.
// @Tags wallet
// @Accept json
// @Produce json
// @Param request body handlers.WithdrawRequest true "Withdraw Request"
// @Success 202 {object} handlers.WithdrawResponse "Withdrawal request accepted"
// @Failure 400 {object} handlers.ErrorResponse "Invalid input, insufficient balance or limit exceeded"
// @Failure 401 {object} handlers.ErrorResponse "Unauthorized"
// @Router /wallet/withdraw [post]
// @Security BearerAuth
func NewWithdrawHandler(svc Withdrawer, tokener Tokener) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		claims, ok := claimsFromRequest(w, r, tokener)
		if !ok {
			return
		}

		var req WithdrawRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Log.Errorw("failed to decode withdraw request", "error", err)
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		txn, err := svc.Withdraw(ctx, claims.UserID, req.Amount, req.Currency, req.BankDetails)
		if err != nil {
			logger.Log.Errorw("withdrawal rejected", "userID", claims.UserID, "amount", req.Amount, "currency", req.Currency, "error", err)
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusAccepted, WithdrawResponse{
			Message:     "Withdrawal request accepted, funds held until settlement",
			Transaction: txn,
		})
	}
}
