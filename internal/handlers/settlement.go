package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sbilibin2017/gw-gold-wallet/internal/logger"
	"github.com/sbilibin2017/gw-gold-wallet/internal/models"
)

// Settler defines the operator-facing transitions on pending transactions.
type Settler interface {
	ApproveDeposit(ctx context.Context, actor string, txID uuid.UUID) (*models.Transaction, error)
	CompleteWithdrawal(ctx context.Context, actor string, txID uuid.UUID, paymentRef string) (*models.Transaction, error)
	Reject(ctx context.Context, actor string, txID uuid.UUID, reason string) (*models.Transaction, error)
}

// CompleteWithdrawalRequest carries the external payment reference
// swagger:model CompleteWithdrawalRequest
type CompleteWithdrawalRequest struct {
	// Reference of the outgoing payment
	// required: true
	PaymentRef string `json:"payment_ref"`
}

// RejectRequest carries the rejection reason
// swagger:model RejectRequest
type RejectRequest struct {
	// Human-readable reason recorded on the transaction
	// required: true
	Reason string `json:"reason"`
}

// NewApproveDepositHandler returns an HTTP handler for approving a pending
// deposit. The net amount is credited on approval.
// @Summary Approve a pending deposit
// @Description Credits the deposit amount net of fees and marks the transaction completed.
// @Tags admin
// @Produce json
// @Param id path string true "Transaction ID"
// @Success 200 {object} models.Transaction "Completed deposit"
// @Failure 401 {object} handlers.ErrorResponse "Unauthorized"
// @Failure 403 {object} handlers.ErrorResponse "Not permitted"
// @Failure 404 {object} handlers.ErrorResponse "Not found"
// @Failure 409 {object} handlers.ErrorResponse "Not a pending deposit"
// @Router /admin/transactions/{id}/approve [post]
// @Security BearerAuth
func NewApproveDepositHandler(svc Settler, tokener Tokener) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		claims, ok := claimsFromRequest(w, r, tokener)
		if !ok {
			return
		}

		txID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid transaction id")
			return
		}

		txn, err := svc.ApproveDeposit(ctx, claims.UserID.String(), txID)
		if err != nil {
			logger.Log.Errorw("failed to approve deposit", "actor", claims.UserID, "txnID", txID, "error", err)
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, txn)
	}
}

// NewCompleteWithdrawalHandler returns an HTTP handler for completing a
// pending withdrawal after the outgoing payment has been sent.
// @Summary Complete a pending withdrawal
// @Description Marks the withdrawal completed and records the payment reference. Funds were already debited.
// @Tags admin
// @Accept json
// @Produce json
// @Param id path string true "Transaction ID"
// @Param request body handlers.CompleteWithdrawalRequest true "Payment reference"
// @Success 200 {object} models.Transaction "Completed withdrawal"
// @Failure 401 {object} handlers.ErrorResponse "Unauthorized"
// @Failure 403 {object} handlers.ErrorResponse "Not permitted"
// @Failure 404 {object} handlers.ErrorResponse "Not found"
// @Failure 409 {object} handlers.ErrorResponse "Not a pending withdrawal"
// @Router /admin/transactions/{id}/complete [post]
// @Security BearerAuth
func NewCompleteWithdrawalHandler(svc Settler, tokener Tokener) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		claims, ok := claimsFromRequest(w, r, tokener)
		if !ok {
			return
		}

		txID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid transaction id")
			return
		}

		var req CompleteWithdrawalRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(req.PaymentRef) == "" {
			writeError(w, http.StatusBadRequest, "payment_ref is required")
			return
		}

		txn, err := svc.CompleteWithdrawal(ctx, claims.UserID.String(), txID, req.PaymentRef)
		if err != nil {
			logger.Log.Errorw("failed to complete withdrawal", "actor", claims.UserID, "txnID", txID, "error", err)
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, txn)
	}
}

// NewRejectHandler returns an HTTP handler for rejecting a pending
// transaction. Withdrawals and deliveries get their debited funds restored.
// @Summary Reject a pending transaction
// @Description Marks the transaction failed with the given reason and restores any eagerly debited funds.
// @Tags admin
// @Accept json
// @Produce json
// @Param id path string true "Transaction ID"
// @Param request body handlers.RejectRequest true "Rejection reason"
// @Success 200 {object} models.Transaction "Failed transaction"
// @Failure 401 {object} handlers.ErrorResponse "Unauthorized"
// @Failure 403 {object} handlers.ErrorResponse "Not permitted"
// @Failure 404 {object} handlers.ErrorResponse "Not found"
// @Failure 409 {object} handlers.ErrorResponse "Not pending"
// @Router /admin/transactions/{id}/reject [post]
// @Security BearerAuth
func NewRejectHandler(svc Settler, tokener Tokener) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		claims, ok := claimsFromRequest(w, r, tokener)
		if !ok {
			return
		}

		txID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid transaction id")
			return
		}

		var req RejectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(req.Reason) == "" {
			writeError(w, http.StatusBadRequest, "reason is required")
			return
		}

		txn, err := svc.Reject(ctx, claims.UserID.String(), txID, req.Reason)
		if err != nil {
			logger.Log.Errorw("failed to reject transaction", "actor", claims.UserID, "txnID", txID, "error", err)
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, txn)
	}
}
