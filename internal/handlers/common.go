package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sbilibin2017/gw-gold-wallet/internal/jwt"
	"github.com/sbilibin2017/gw-gold-wallet/internal/logger"
	"github.com/sbilibin2017/gw-gold-wallet/internal/models"
)

// Tokener extracts and parses the caller's JWT.
type Tokener interface {
	GetTokenFromRequest(ctx context.Context, r *http.Request) (string, error)
	GetClaims(ctx context.Context, tokenString string) (*jwt.Claims, error)
}

// ErrorResponse is the JSON error body shared by all handlers.
// swagger:model ErrorResponse
type ErrorResponse struct {
	// Error message
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeDomainError maps the engine's error taxonomy to HTTP statuses. Every
// rejection carries the specific limiting factor so the user can act on it.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidInput),
		errors.Is(err, models.ErrInsufficientBalance),
		errors.Is(err, models.ErrInsufficientHoldings),
		errors.Is(err, models.ErrPriceDrift):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrKYCRequired),
		errors.Is(err, models.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrInvalidStateTransition),
		errors.Is(err, models.ErrPersistenceConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		if _, ok := models.IsLimitExceeded(err); ok {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// claimsFromRequest authenticates the request and returns the caller's
// claims, writing the 401 itself on failure.
func claimsFromRequest(w http.ResponseWriter, r *http.Request, tokener Tokener) (*jwt.Claims, bool) {
	ctx := r.Context()

	tokenStr, err := tokener.GetTokenFromRequest(ctx, r)
	if err != nil {
		logger.Log.Errorw("failed to get token from request", "error", err)
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return nil, false
	}

	claims, err := tokener.GetClaims(ctx, tokenStr)
	if err != nil {
		logger.Log.Errorw("failed to get claims from token", "error", err)
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return nil, false
	}
	return claims, true
}
