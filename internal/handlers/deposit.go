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

// Depositor defines the engine methods this handler needs.
type Depositor interface {
	Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, currency, method string) (*models.Transaction, error)
}

// DepositRequest represents the JSON body for depositing funds
// swagger:model DepositRequest
type DepositRequest struct {
	// Amount to deposit
	// required: true
	Amount decimal.Decimal `json:"amount"`

	// Currency code
	// required: true
	// default: USD
	Currency string `json:"currency"`

	// Payment method, e.g. bank_transfer or card
	Method string `json:"method"`
}

// DepositResponse represents a successful deposit request
// swagger:model DepositResponse
type DepositResponse struct {
	// Success message
	Message string `json:"message"`

	// Created transaction, pending until an administrator approves it
	Transaction *models.Transaction `json:"transaction"`
}

// NewDepositHandler returns an HTTP handler that records a pending deposit.
// @Summary Request a deposit
// @Description Creates a pending deposit transaction. The balance is credited when an administrator approves the deposit.
// @Tags wallet
// @Accept json
// @Produce json
// @Param request body handlers.DepositRequest true "Deposit Request"
// @Success 202 {object} handlers.DepositResponse "Deposit request accepted"
// @Failure 400 {object} handlers.ErrorResponse "Invalid amount, currency or limit exceeded"
// @Failure 401 {object} handlers.ErrorResponse "Unauthorized"
// @Router /wallet/deposit [post]
// @Security BearerAuth
func NewDepositHandler(svc Depositor, tokener Tokener) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		claims, ok := claimsFromRequest(w, r, tokener)
		if !ok {
			return
		}

		var req DepositRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Log.Errorw("failed to decode deposit request", "error", err)
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		txn, err := svc.Deposit(ctx, claims.UserID, req.Amount, req.Currency, req.Method)
		if err != nil {
			logger.Log.Errorw("deposit rejected", "userID", claims.UserID, "amount", req.Amount, "currency", req.Currency, "error", err)
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusAccepted, DepositResponse{
			Message:     "Deposit request accepted, awaiting settlement",
			Transaction: txn,
		})
	}
}
