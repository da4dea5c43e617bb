package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sbilibin2017/gw-gold-wallet/internal/logger"
	"github.com/sbilibin2017/gw-gold-wallet/internal/models"
	"github.com/sbilibin2017/gw-gold-wallet/internal/services"
)

// BalanceReader defines the engine methods the read handlers need.
type BalanceReader interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (map[string]decimal.Decimal, error)
	GetHoldings(ctx context.Context, userID uuid.UUID) (*services.Holdings, error)
	GetUsage(ctx context.Context, userID uuid.UUID) (*services.Usage, error)
}

// BalanceResponse represents the user's balances per currency
// swagger:model BalanceResponse
type BalanceResponse struct {
	// Balance per currency code
	Balances map[string]decimal.Decimal `json:"balances"`
}

// HoldingsResponse represents the user's gold position with its valuation
// swagger:model HoldingsResponse
type HoldingsResponse struct {
	// Held grams
	Grams decimal.Decimal `json:"grams"`

	// Weighted-average purchase price per gram
	AverageCostPerGram decimal.Decimal `json:"average_cost_per_gram"`

	// Current spot price per gram in the reference currency; omitted when the oracle is unreachable
	CurrentPrice *decimal.Decimal `json:"current_price,omitempty"`

	// Current value of the position
	CurrentValue *decimal.Decimal `json:"current_value,omitempty"`

	// Unrealized profit or loss against the average cost
	UnrealizedPnL *decimal.Decimal `json:"unrealized_pnl,omitempty"`

	// When the price was observed
	ObservedAt *time.Time `json:"observed_at,omitempty"`
}

// UsageResponse represents limit consumption in the reference currency
// swagger:model UsageResponse
type UsageResponse struct {
	Daily          map[models.OperationKind]decimal.Decimal `json:"daily_usage"`
	DailyLimits    map[models.OperationKind]decimal.Decimal `json:"daily_limits"`
	Lifetime       map[models.OperationKind]decimal.Decimal `json:"lifetime_usage"`
	LifetimeLimits map[models.OperationKind]decimal.Decimal `json:"lifetime_limits"`
	LastDailyReset time.Time                                `json:"last_daily_reset"`
}

// NewGetBalanceHandler returns an HTTP handler for reading balances.
// @Summary Get balances
// @Description Returns the user's balance in every supported currency.
// @Tags wallet
// @Produce json
// @Success 200 {object} handlers.BalanceResponse "Balances"
// @Failure 401 {object} handlers.ErrorResponse "Unauthorized"
// @Router /balance [get]
// @Security BearerAuth
func NewGetBalanceHandler(svc BalanceReader, tokener Tokener) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		claims, ok := claimsFromRequest(w, r, tokener)
		if !ok {
			return
		}

		balances, err := svc.GetBalance(ctx, claims.UserID)
		if err != nil {
			logger.Log.Errorw("failed to get balances", "userID", claims.UserID, "error", err)
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, BalanceResponse{Balances: balances})
	}
}

// NewGetHoldingsHandler returns an HTTP handler for reading the gold position.
// @Summary Get gold holdings
// @Description Returns the gold position with its live valuation when the price oracle is reachable.
// @Tags gold
// @Produce json
// @Success 200 {object} handlers.HoldingsResponse "Holdings"
// @Failure 401 {object} handlers.ErrorResponse "Unauthorized"
// @Router /gold/holdings [get]
// @Security BearerAuth
func NewGetHoldingsHandler(svc BalanceReader, tokener Tokener) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		claims, ok := claimsFromRequest(w, r, tokener)
		if !ok {
			return
		}

		holdings, err := svc.GetHoldings(ctx, claims.UserID)
		if err != nil {
			logger.Log.Errorw("failed to get holdings", "userID", claims.UserID, "error", err)
			writeDomainError(w, err)
			return
		}

		resp := HoldingsResponse{
			Grams:              holdings.Position.Grams,
			AverageCostPerGram: holdings.Position.AverageCostPerGram,
		}
		if !holdings.ValuationFailed {
			resp.CurrentPrice = &holdings.CurrentPrice
			resp.CurrentValue = &holdings.CurrentValue
			resp.UnrealizedPnL = &holdings.UnrealizedPnL
			resp.ObservedAt = &holdings.ObservedAt
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// NewGetUsageHandler returns an HTTP handler for reading limit usage.
// @Summary Get limit usage
// @Description Returns daily and lifetime usage against the configured limits, in the reference currency.
// @Tags wallet
// @Produce json
// @Success 200 {object} handlers.UsageResponse "Usage"
// @Failure 401 {object} handlers.ErrorResponse "Unauthorized"
// @Router /usage [get]
// @Security BearerAuth
func NewGetUsageHandler(svc BalanceReader, tokener Tokener) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		claims, ok := claimsFromRequest(w, r, tokener)
		if !ok {
			return
		}

		usage, err := svc.GetUsage(ctx, claims.UserID)
		if err != nil {
			logger.Log.Errorw("failed to get usage", "userID", claims.UserID, "error", err)
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, UsageResponse{
			Daily:          usage.Daily,
			DailyLimits:    usage.DailyLimits,
			Lifetime:       usage.Lifetime,
			LifetimeLimits: usage.LifetimeLimits,
			LastDailyReset: usage.LastDailyReset,
		})
	}
}
