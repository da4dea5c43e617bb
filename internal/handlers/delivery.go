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

// DeliveryRequester defines the engine methods this handler needs.
type DeliveryRequester interface {
	RequestDelivery(ctx context.Context, userID uuid.UUID, grams decimal.Decimal, address string, method models.DeliveryMethod) (*models.Transaction, error)
}

// DeliveryRequest represents the JSON body for requesting physical delivery
// swagger:model DeliveryRequest
type DeliveryRequest struct {
	// Gold weight in grams to deliver
	// required: true
	Grams decimal.Decimal `json:"grams"`

	// Shipping address
	// required: true
	Address string `json:"address"`

	// Delivery method: standard, express or insured
	// required: true
	// default: standard
	Method models.DeliveryMethod `json:"method"`
}

// DeliveryResponse represents an accepted delivery request
// swagger:model DeliveryResponse
type DeliveryResponse struct {
	// Success message
	Message string `json:"message"`

	// Created transaction; metadata carries the fee and estimated date
	Transaction *models.Transaction `json:"transaction"`
}

// NewDeliveryHandler returns an HTTP handler that requests physical delivery
// of held gold. Requires KYC verification; grams and the delivery fee are
// debited immediately and restored if the request is rejected or cancelled.
// @Summary Request physical delivery
// @Description Creates a pending delivery request for held gold. Grams and the delivery fee are held until settlement.
// @Tags gold
// @Accept json
// @Produce json
// @Param request body handlers.DeliveryRequest true "Delivery Request"
// @Success 202 {object} handlers.DeliveryResponse "Delivery request accepted"
// @Failure 400 {object} handlers.ErrorResponse "Invalid input, insufficient holdings or balance"
// @Failure 401 {object} handlers.ErrorResponse "Unauthorized"
// @Failure 403 {object} handlers.ErrorResponse "KYC verification required"
// @Router /gold/delivery [post]
// @Security BearerAuth
func NewDeliveryHandler(svc DeliveryRequester, tokener Tokener) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		claims, ok := claimsFromRequest(w, r, tokener)
		if !ok {
			return
		}

		var req DeliveryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Log.Errorw("failed to decode delivery request", "error", err)
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		txn, err := svc.RequestDelivery(ctx, claims.UserID, req.Grams, req.Address, req.Method)
		if err != nil {
			logger.Log.Errorw("delivery request rejected", "userID", claims.UserID, "grams", req.Grams, "error", err)
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusAccepted, DeliveryResponse{
			Message:     "Delivery request accepted, awaiting settlement",
			Transaction: txn,
		})
	}
}
