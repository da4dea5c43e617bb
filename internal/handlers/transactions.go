package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sbilibin2017/gw-gold-wallet/internal/logger"
	"github.com/sbilibin2017/gw-gold-wallet/internal/models"
)

// TransactionLister defines the engine method for reading transaction history.
type TransactionLister interface {
	GetTransactions(ctx context.Context, userID uuid.UUID, filter models.TransactionFilter, page models.Page) ([]models.Transaction, error)
}

// PendingCanceller defines the engine method for cancelling a pending transaction.
type PendingCanceller interface {
	CancelPending(ctx context.Context, userID, txnID uuid.UUID) (*models.Transaction, error)
}

// TransactionListResponse wraps a page of transactions
// swagger:model TransactionListResponse
type TransactionListResponse struct {
	Transactions []models.Transaction `json:"transactions"`
	Limit        int                  `json:"limit"`
	Offset       int                  `json:"offset"`
}

// NewListTransactionsHandler returns an HTTP handler for listing transactions.
// @Summary List transactions
// @Description Returns the user's transactions newest first. Supports filtering by type and status.
// @Tags transactions
// @Produce json
// @Param type query string false "Transaction type filter"
// @Param status query string false "Transaction status filter"
// @Param limit query int false "Page size, max 100"
// @Param offset query int false "Page offset"
// @Success 200 {object} handlers.TransactionListResponse "Transactions"
// @Failure 400 {object} handlers.ErrorResponse "Invalid filter"
// @Failure 401 {object} handlers.ErrorResponse "Unauthorized"
// @Router /transactions [get]
// @Security BearerAuth
func NewListTransactionsHandler(svc TransactionLister, tokener Tokener) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		claims, ok := claimsFromRequest(w, r, tokener)
		if !ok {
			return
		}

		filter, page, err := parseListQuery(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		txns, err := svc.GetTransactions(ctx, claims.UserID, filter, page)
		if err != nil {
			logger.Log.Errorw("failed to list transactions", "userID", claims.UserID, "error", err)
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, TransactionListResponse{
			Transactions: txns,
			Limit:        page.Limit,
			Offset:       page.Offset,
		})
	}
}

func parseListQuery(r *http.Request) (models.TransactionFilter, models.Page, error) {
	var filter models.TransactionFilter
	var page models.Page

	q := r.URL.Query()
	if v := q.Get("type"); v != "" {
		filter.Type = models.TransactionType(v)
	}
	if v := q.Get("status"); v != "" {
		filter.Status = models.TransactionStatus(v)
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, page, err
		}
		page.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, page, err
		}
		page.Offset = n
	}
	page = page.Normalize()
	return filter, page, nil
}

// NewCancelTransactionHandler returns an HTTP handler for cancelling a pending
// transaction. Withdrawals and deliveries restore the debited funds.
// @Summary Cancel a pending transaction
// @Description Cancels the user's own pending transaction and restores any eagerly debited funds.
// @Tags transactions
// @Produce json
// @Param id path string true "Transaction ID"
// @Success 200 {object} models.Transaction "Cancelled transaction"
// @Failure 401 {object} handlers.ErrorResponse "Unauthorized"
// @Failure 404 {object} handlers.ErrorResponse "Not found"
// @Failure 409 {object} handlers.ErrorResponse "Not pending"
// @Router /transactions/{id}/cancel [post]
// @Security BearerAuth
func NewCancelTransactionHandler(svc PendingCanceller, tokener Tokener) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		claims, ok := claimsFromRequest(w, r, tokener)
		if !ok {
			return
		}

		txnID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid transaction id")
			return
		}

		txn, err := svc.CancelPending(ctx, claims.UserID, txnID)
		if err != nil {
			logger.Log.Errorw("failed to cancel transaction", "userID", claims.UserID, "txnID", txnID, "error", err)
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, txn)
	}
}
