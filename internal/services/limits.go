package services

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sbilibin2017/gw-gold-wallet/internal/models"
)

// dailyResetInterval is how long daily usage counters live before the lazy
// reset zeroes them.
const dailyResetInterval = 24 * time.Hour

// CheckAndReserve verifies the operation against the wallet's daily and
// lifetime limits and, on success, increments both usage counters in place.
// The caller persists the wallet in the same atomic unit as the balance
// mutation, so a rejected check leaves no trace.
//
// amount must already be converted to the reference currency. A zero or
// absent limit for the kind means the kind is unlimited.
func CheckAndReserve(w *models.Wallet, kind models.OperationKind, amount decimal.Decimal, now time.Time) error {
	maybeResetDaily(w, now)

	if limit, ok := w.DailyLimits[kind]; ok && limit.IsPositive() {
		used := w.DailyUsage[kind]
		if used.Add(amount).GreaterThan(limit) {
			return &models.LimitExceededError{
				Scope:     models.ScopeDaily,
				Kind:      kind,
				Remaining: models.RoundMoney(limit.Sub(used)),
			}
		}
	}

	if limit, ok := w.LifetimeLimits[kind]; ok && limit.IsPositive() {
		used := w.LifetimeUsage[kind]
		if used.Add(amount).GreaterThan(limit) {
			return &models.LimitExceededError{
				Scope:     models.ScopeLifetime,
				Kind:      kind,
				Remaining: models.RoundMoney(limit.Sub(used)),
			}
		}
	}

	w.DailyUsage[kind] = models.RoundMoney(w.DailyUsage[kind].Add(amount))
	w.LifetimeUsage[kind] = models.RoundMoney(w.LifetimeUsage[kind].Add(amount))
	return nil
}

// ReleaseReservation returns previously reserved usage to the wallet when a
// pending operation is rejected or cancelled, so only completed transactions
// count against the limits. Counters floor at zero: a daily counter may
// already have been reset since the reservation.
func ReleaseReservation(w *models.Wallet, kind models.OperationKind, amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}
	w.DailyUsage[kind] = floorZero(models.RoundMoney(w.DailyUsage[kind].Sub(amount)))
	w.LifetimeUsage[kind] = floorZero(models.RoundMoney(w.LifetimeUsage[kind].Sub(amount)))
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// maybeResetDaily zeroes the daily usage counters when a full interval has
// passed since the last reset. There is no background job; the reset happens
// lazily on the first check after expiry.
func maybeResetDaily(w *models.Wallet, now time.Time) {
	if now.Sub(w.LastDailyReset) < dailyResetInterval {
		return
	}
	for kind := range w.DailyUsage {
		w.DailyUsage[kind] = decimal.Zero
	}
	w.LastDailyReset = now
}
