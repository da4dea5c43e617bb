package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Supported currency codes
const (
	USD = "USD"
	EUR = "EUR"
	RUB = "RUB"
)

// ReferenceCurrency is the currency all limit and usage comparisons are
// normalized into.
const ReferenceCurrency = USD

// SupportedCurrencies is the fixed set of currency codes a wallet may hold.
var SupportedCurrencies = []string{USD, EUR, RUB}

// IsSupportedCurrency reports whether the given code is a supported currency.
func IsSupportedCurrency(code string) bool {
	for _, c := range SupportedCurrencies {
		if c == code {
			return true
		}
	}
	return false
}

// OperationKind identifies a limited money-movement operation.
type OperationKind string

const (
	KindDeposit      OperationKind = "deposit"
	KindWithdrawal   OperationKind = "withdrawal"
	KindGoldPurchase OperationKind = "gold_purchase"
	KindGoldSale     OperationKind = "gold_sale"
)

// LimitedKinds lists every operation kind subject to daily/lifetime limits.
var LimitedKinds = []OperationKind{KindDeposit, KindWithdrawal, KindGoldPurchase, KindGoldSale}

// KindForType maps a transaction type to its limited operation kind. The
// second return is false for types that are not limit-checked, such as
// conversions and deliveries.
func KindForType(t TransactionType) (OperationKind, bool) {
	switch t {
	case TypeDeposit:
		return KindDeposit, true
	case TypeWithdrawal:
		return KindWithdrawal, true
	case TypeGoldBuy:
		return KindGoldPurchase, true
	case TypeGoldSell:
		return KindGoldSale, true
	}
	return "", false
}

// GoldPosition is a wallet's gold holding with its weighted-average cost.
type GoldPosition struct {
	Grams              decimal.Decimal `json:"grams"`
	AverageCostPerGram decimal.Decimal `json:"average_cost_per_gram"`
}

// Wallet holds a user's currency balances, gold position and usage counters.
// Balances and gold grams are never negative at rest; an operation that would
// drive them negative is rejected, not clamped.
type Wallet struct {
	UserID         uuid.UUID                         `json:"user_id"`
	Balances       map[string]decimal.Decimal        `json:"balances"`
	Gold           GoldPosition                      `json:"gold"`
	DailyUsage     map[OperationKind]decimal.Decimal `json:"daily_usage"`
	DailyLimits    map[OperationKind]decimal.Decimal `json:"daily_limits"`
	LifetimeUsage  map[OperationKind]decimal.Decimal `json:"lifetime_usage"`
	LifetimeLimits map[OperationKind]decimal.Decimal `json:"lifetime_limits"`
	LastDailyReset time.Time                         `json:"last_daily_reset"`

	// Version is the optimistic-concurrency token checked by the ledger
	// repository on save.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Default limits applied to freshly created wallets, in the reference currency.
var (
	DefaultDailyLimits = map[OperationKind]decimal.Decimal{
		KindDeposit:      decimal.NewFromInt(10000),
		KindWithdrawal:   decimal.NewFromInt(5000),
		KindGoldPurchase: decimal.NewFromInt(20000),
		KindGoldSale:     decimal.NewFromInt(20000),
	}
	DefaultLifetimeLimits = map[OperationKind]decimal.Decimal{
		KindDeposit:      decimal.NewFromInt(1000000),
		KindWithdrawal:   decimal.NewFromInt(500000),
		KindGoldPurchase: decimal.NewFromInt(2000000),
		KindGoldSale:     decimal.NewFromInt(2000000),
	}
)

// NewWallet creates an empty wallet with default limits for the given user.
func NewWallet(userID uuid.UUID) *Wallet {
	now := time.Now().UTC()
	w := &Wallet{
		UserID:         userID,
		Balances:       make(map[string]decimal.Decimal, len(SupportedCurrencies)),
		DailyUsage:     make(map[OperationKind]decimal.Decimal, len(LimitedKinds)),
		DailyLimits:    make(map[OperationKind]decimal.Decimal, len(LimitedKinds)),
		LifetimeUsage:  make(map[OperationKind]decimal.Decimal, len(LimitedKinds)),
		LifetimeLimits: make(map[OperationKind]decimal.Decimal, len(LimitedKinds)),
		LastDailyReset: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, kind := range LimitedKinds {
		w.DailyLimits[kind] = DefaultDailyLimits[kind]
		w.LifetimeLimits[kind] = DefaultLifetimeLimits[kind]
	}
	return w
}

// Balance returns the wallet's balance in the given currency; an absent key
// means zero.
func (w *Wallet) Balance(currency string) decimal.Decimal {
	if b, ok := w.Balances[currency]; ok {
		return b
	}
	return decimal.Zero
}

// Credit increases the balance in the given currency, rounded to money
// precision.
func (w *Wallet) Credit(currency string, amount decimal.Decimal) {
	w.Balances[currency] = RoundMoney(w.Balance(currency).Add(amount))
}

// Debit decreases the balance in the given currency. It returns false without
// mutating when the balance is insufficient.
func (w *Wallet) Debit(currency string, amount decimal.Decimal) bool {
	next := RoundMoney(w.Balance(currency).Sub(amount))
	if next.IsNegative() {
		return false
	}
	w.Balances[currency] = next
	return true
}

// Clone returns a deep copy of the wallet. Repositories hand out clones so
// callers never mutate shared state.
func (w *Wallet) Clone() *Wallet {
	cp := *w
	cp.Balances = make(map[string]decimal.Decimal, len(w.Balances))
	for k, v := range w.Balances {
		cp.Balances[k] = v
	}
	cp.DailyUsage = cloneKindMap(w.DailyUsage)
	cp.DailyLimits = cloneKindMap(w.DailyLimits)
	cp.LifetimeUsage = cloneKindMap(w.LifetimeUsage)
	cp.LifetimeLimits = cloneKindMap(w.LifetimeLimits)
	return &cp
}

func cloneKindMap(m map[OperationKind]decimal.Decimal) map[OperationKind]decimal.Decimal {
	cp := make(map[OperationKind]decimal.Decimal, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// Monetary amounts round to 2 decimal places after every arithmetic step,
// gold grams to 6, so drift never accumulates across repeated operations.
const (
	MoneyPrecision = 2
	GramsPrecision = 6
)

// RoundMoney rounds a monetary amount to money precision.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPrecision)
}

// RoundGrams rounds a gold weight to grams precision.
func RoundGrams(d decimal.Decimal) decimal.Decimal {
	return d.Round(GramsPrecision)
}
