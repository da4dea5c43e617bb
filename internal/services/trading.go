package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/sbilibin2017/gw-gold-wallet/internal/logger"
	"github.com/sbilibin2017/gw-gold-wallet/internal/models"
)

// LedgerRepository is the transactional persistence contract for wallets and
// transactions. SaveWalletAndAppendTransaction and
// SaveWalletAndUpdateTransaction persist the wallet and the transaction as one
// atomic unit and return models.ErrPersistenceConflict when the wallet's
// version no longer matches.
type LedgerRepository interface {
	LoadWalletForUpdate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	SaveWalletAndAppendTransaction(ctx context.Context, wallet *models.Wallet, txn *models.Transaction) error
	SaveWalletAndUpdateTransaction(ctx context.Context, wallet *models.Wallet, txn *models.Transaction) error
	UpdateTransaction(ctx context.Context, txn *models.Transaction) error
	AppendStatusOnly(ctx context.Context, txID uuid.UUID, status models.TransactionStatus, reason string) error
	GetTransaction(ctx context.Context, txID uuid.UUID) (*models.Transaction, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, filter models.TransactionFilter, page models.Page) ([]models.Transaction, error)
}

// PriceOracle supplies the current spot price for a commodity in the given
// currency and records observations into the append-only price history.
type PriceOracle interface {
	SpotPrice(ctx context.Context, commodity, currency string) (decimal.Decimal, time.Time, error)
}

// RateProvider supplies exchange rates between supported currencies.
type RateProvider interface {
	Rate(ctx context.Context, fromCurrency, toCurrency string) (decimal.Decimal, error)
}

// ConfigStore supplies tunable engine parameters by key.
type ConfigStore interface {
	Get(ctx context.Context, key string) (*models.ConfigValue, error)
}

// KYCVerifier reports whether a user passed KYC verification. Consumed only
// by RequestDelivery.
type KYCVerifier interface {
	IsVerified(ctx context.Context, userID uuid.UUID) (bool, error)
}

// KafkaWriter defines a Kafka writer abstraction.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// maxConflictRetries bounds the optimistic-concurrency retry loop before
// models.ErrPersistenceConflict is surfaced to the caller.
const maxConflictRetries = 3

// TradingService orchestrates every wallet operation: it validates input,
// enforces limits, mutates balances and gold under one atomic wallet update
// and appends the transaction record.
type TradingService struct {
	ledger      LedgerRepository
	oracle      PriceOracle
	rates       RateProvider
	config      ConfigStore
	kyc         KYCVerifier
	kafkaWriter KafkaWriter
}

// NewTradingService creates a TradingService.
func NewTradingService(
	ledger LedgerRepository,
	oracle PriceOracle,
	rates RateProvider,
	config ConfigStore,
	kyc KYCVerifier,
	kafkaWriter KafkaWriter,
) *TradingService {
	return &TradingService{
		ledger:      ledger,
		oracle:      oracle,
		rates:       rates,
		config:      config,
		kyc:         kyc,
		kafkaWriter: kafkaWriter,
	}
}

// publishEvent publishes a wallet event to Kafka, fire and forget.
func (s *TradingService) publishEvent(ctx context.Context, event models.WalletEvent) {
	publishEvent(ctx, s.kafkaWriter, event)
}

func publishEvent(ctx context.Context, writer KafkaWriter, event models.WalletEvent) {
	if writer == nil {
		logger.Log.Warnw("Kafka writer not configured, skipping publishing", "transaction_id", event.TransactionID)
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		logger.Log.Errorw("Failed to marshal wallet event for Kafka", "transaction_id", event.TransactionID, "error", err)
		return
	}

	msg := kafka.Message{
		Key:   []byte(event.TransactionID),
		Value: data,
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		logger.Log.Errorw("Failed to publish wallet event to Kafka", "transaction_id", event.TransactionID, "error", err)
	} else {
		logger.Log.Infow("Wallet event published to Kafka", "transaction_id", event.TransactionID, "action", event.Action)
	}
}

func transactionEvent(txn *models.Transaction, action string, before models.TransactionStatus, actor, reason string) models.WalletEvent {
	return models.WalletEvent{
		EventID:       uuid.NewString(),
		UserID:        txn.UserID.String(),
		TransactionID: txn.ID.String(),
		Action:        action,
		Type:          txn.Type,
		BeforeStatus:  before,
		AfterStatus:   txn.Status,
		Amount:        txn.Amount.StringFixed(models.MoneyPrecision),
		Currency:      txn.Currency,
		Actor:         actor,
		Reason:        reason,
		Timestamp:     time.Now().Unix(),
	}
}

// withWallet runs mutate against a freshly loaded wallet and persists wallet
// plus the returned transaction as one atomic unit, retrying on optimistic
// concurrency conflicts. A mutate error aborts without persisting anything.
func (s *TradingService) withWallet(ctx context.Context, userID uuid.UUID, mutate func(w *models.Wallet) (*models.Transaction, error)) (*models.Transaction, error) {
	var lastErr error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		wallet, err := s.ledger.LoadWalletForUpdate(ctx, userID)
		if err != nil {
			return nil, err
		}

		txn, err := mutate(wallet)
		if err != nil {
			return nil, err
		}

		if err := s.ledger.SaveWalletAndAppendTransaction(ctx, wallet, txn); err != nil {
			if errors.Is(err, models.ErrPersistenceConflict) {
				lastErr = err
				logger.Log.Warnw("wallet version conflict, retrying", "userID", userID, "attempt", attempt+1)
				continue
			}
			return nil, err
		}
		return txn, nil
	}
	return nil, lastErr
}

// toReference converts an amount into the reference currency for limit checks.
func (s *TradingService) toReference(ctx context.Context, amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	if currency == models.ReferenceCurrency {
		return amount, nil
	}
	rate, err := s.rates.Rate(ctx, currency, models.ReferenceCurrency)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s->%s: %w", models.ErrRateUnavailable, currency, models.ReferenceCurrency, err)
	}
	return models.RoundMoney(amount.Mul(rate)), nil
}

// configNumber reads a numeric config value, falling back to the compiled-in
// default when the store has no entry for the key.
func (s *TradingService) configNumber(ctx context.Context, key string) (decimal.Decimal, error) {
	cv, err := s.config.Get(ctx, key)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			def, ok := models.ConfigDefaults[key]
			if !ok {
				return decimal.Zero, fmt.Errorf("no default for config key %s", key)
			}
			return def.Number()
		}
		return decimal.Zero, err
	}
	return cv.Number()
}

// spotPriceIn returns the current gold price per gram in the given currency,
// converting from the oracle's reference-currency quote when needed.
func (s *TradingService) spotPriceIn(ctx context.Context, currency string) (decimal.Decimal, error) {
	price, _, err := s.oracle.SpotPrice(ctx, models.CommodityGold, models.ReferenceCurrency)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %w", models.ErrPriceUnavailable, err)
	}
	if currency == models.ReferenceCurrency {
		return price, nil
	}
	rate, err := s.rates.Rate(ctx, models.ReferenceCurrency, currency)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s->%s: %w", models.ErrRateUnavailable, models.ReferenceCurrency, currency, err)
	}
	return models.RoundMoney(price.Mul(rate)), nil
}

// checkDrift rejects the trade when the authoritative total deviates from the
// client's quoted total by more than the configured tolerance, in either
// direction.
func checkDrift(authoritative, quoted, tolerance decimal.Decimal) error {
	if quoted.IsZero() {
		return fmt.Errorf("%w: quoted total must be positive", models.ErrInvalidInput)
	}
	drift := authoritative.Sub(quoted).Abs()
	if drift.GreaterThan(tolerance.Mul(quoted)) {
		return fmt.Errorf("%w: quoted %s, current %s", models.ErrPriceDrift,
			quoted.StringFixed(models.MoneyPrecision), authoritative.StringFixed(models.MoneyPrecision))
	}
	return nil
}

// Deposit records a pending deposit. The balance is credited only when an
// administrator approves the deposit; usage counters are reserved now.
func (s *TradingService) Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, currency, method string) (*models.Transaction, error) {
	if err := validateAmountCurrency(amount, currency); err != nil {
		return nil, err
	}
	minAmount, err := s.configNumber(ctx, models.ConfigKeyMinDeposit)
	if err != nil {
		return nil, err
	}
	if amount.LessThan(minAmount) {
		return nil, fmt.Errorf("%w: minimum deposit is %s", models.ErrInvalidInput, minAmount.StringFixed(models.MoneyPrecision))
	}

	amount = models.RoundMoney(amount)
	refAmount, err := s.toReference(ctx, amount, currency)
	if err != nil {
		return nil, err
	}

	txn, err := s.withWallet(ctx, userID, func(w *models.Wallet) (*models.Transaction, error) {
		if err := CheckAndReserve(w, models.KindDeposit, refAmount, time.Now().UTC()); err != nil {
			return nil, err
		}
		return models.NewTransaction(userID, models.TypeDeposit, amount, currency, models.StatusPending,
			models.TransactionMetadata{Method: method, ReferenceAmount: refAmount}), nil
	})
	if err != nil {
		logger.Log.Errorw("deposit failed", "userID", userID, "amount", amount, "currency", currency, "error", err)
		return nil, err
	}

	s.publishEvent(ctx, transactionEvent(txn, models.ActionTransactionCreated, "", "", ""))
	return txn, nil
}

// Withdraw debits the balance immediately (the funds are held, not merely
// reserved) and records a pending withdrawal awaiting settlement. A later
// rejection credits the held amount back.
func (s *TradingService) Withdraw(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, currency, bankDetails string) (*models.Transaction, error) {
	if err := validateAmountCurrency(amount, currency); err != nil {
		return nil, err
	}
	if strings.TrimSpace(bankDetails) == "" {
		return nil, fmt.Errorf("%w: bank details required", models.ErrInvalidInput)
	}
	minAmount, err := s.configNumber(ctx, models.ConfigKeyMinWithdrawal)
	if err != nil {
		return nil, err
	}
	if amount.LessThan(minAmount) {
		return nil, fmt.Errorf("%w: minimum withdrawal is %s", models.ErrInvalidInput, minAmount.StringFixed(models.MoneyPrecision))
	}

	amount = models.RoundMoney(amount)
	refAmount, err := s.toReference(ctx, amount, currency)
	if err != nil {
		return nil, err
	}

	txn, err := s.withWallet(ctx, userID, func(w *models.Wallet) (*models.Transaction, error) {
		if err := CheckAndReserve(w, models.KindWithdrawal, refAmount, time.Now().UTC()); err != nil {
			return nil, err
		}
		if !w.Debit(currency, amount) {
			return nil, fmt.Errorf("%w: %s available %s", models.ErrInsufficientBalance,
				currency, w.Balance(currency).StringFixed(models.MoneyPrecision))
		}
		return models.NewTransaction(userID, models.TypeWithdrawal, amount, currency, models.StatusPending,
			models.TransactionMetadata{BankDetails: bankDetails, ReferenceAmount: refAmount}), nil
	})
	if err != nil {
		logger.Log.Errorw("withdrawal failed", "userID", userID, "amount", amount, "currency", currency, "error", err)
		return nil, err
	}

	s.publishEvent(ctx, transactionEvent(txn, models.ActionTransactionCreated, "", "", ""))
	return txn, nil
}

// BuyGold buys gold at the live spot price. The client's quoted total is
// validated against the recomputed authoritative total within the configured
// drift tolerance; the purchase settles synchronously.
func (s *TradingService) BuyGold(ctx context.Context, userID uuid.UUID, grams decimal.Decimal, currency string, quotedPricePerGram, quotedTotal decimal.Decimal) (*models.Transaction, error) {
	if err := s.validateTradeInput(ctx, grams, currency, quotedPricePerGram, quotedTotal); err != nil {
		return nil, err
	}
	grams = models.RoundGrams(grams)

	price, err := s.spotPriceIn(ctx, currency)
	if err != nil {
		return nil, err
	}
	feePct, err := s.configNumber(ctx, models.ConfigKeyBuyFeePct)
	if err != nil {
		return nil, err
	}
	tolerance, err := s.configNumber(ctx, models.ConfigKeyDriftTolerance)
	if err != nil {
		return nil, err
	}

	subtotal := models.RoundMoney(grams.Mul(price))
	fee := models.RoundMoney(subtotal.Mul(feePct))
	total := models.RoundMoney(subtotal.Add(fee))

	if err := checkDrift(total, models.RoundMoney(quotedTotal), tolerance); err != nil {
		return nil, err
	}

	refAmount, err := s.toReference(ctx, total, currency)
	if err != nil {
		return nil, err
	}

	txn, err := s.withWallet(ctx, userID, func(w *models.Wallet) (*models.Transaction, error) {
		if err := CheckAndReserve(w, models.KindGoldPurchase, refAmount, time.Now().UTC()); err != nil {
			return nil, err
		}
		if !w.Debit(currency, total) {
			return nil, fmt.Errorf("%w: %s available %s, need %s", models.ErrInsufficientBalance,
				currency, w.Balance(currency).StringFixed(models.MoneyPrecision), total.StringFixed(models.MoneyPrecision))
		}
		w.Gold = ApplyPurchase(w.Gold, grams, price)
		return models.NewTransaction(userID, models.TypeGoldBuy, total, currency, models.StatusCompleted,
			models.TransactionMetadata{Grams: grams, PricePerGram: price, Fee: fee, FeePercentage: feePct}), nil
	})
	if err != nil {
		logger.Log.Errorw("gold purchase failed", "userID", userID, "grams", grams, "currency", currency, "error", err)
		return nil, err
	}

	s.publishEvent(ctx, transactionEvent(txn, models.ActionTransactionCreated, "", "", ""))
	return txn, nil
}

// SellGold sells gold at the live spot price. The sell fee is lower than the
// buy fee (asymmetric spread); proceeds are validated against the quoted
// total with the same drift tolerance. The average cost of the remaining
// holding is unchanged by a sale.
func (s *TradingService) SellGold(ctx context.Context, userID uuid.UUID, grams decimal.Decimal, currency string, quotedPricePerGram, quotedTotal decimal.Decimal) (*models.Transaction, error) {
	if err := s.validateTradeInput(ctx, grams, currency, quotedPricePerGram, quotedTotal); err != nil {
		return nil, err
	}
	grams = models.RoundGrams(grams)

	price, err := s.spotPriceIn(ctx, currency)
	if err != nil {
		return nil, err
	}
	feePct, err := s.configNumber(ctx, models.ConfigKeySellFeePct)
	if err != nil {
		return nil, err
	}
	tolerance, err := s.configNumber(ctx, models.ConfigKeyDriftTolerance)
	if err != nil {
		return nil, err
	}

	gross := models.RoundMoney(grams.Mul(price))
	fee := models.RoundMoney(gross.Mul(feePct))
	proceeds := models.RoundMoney(gross.Sub(fee))

	if err := checkDrift(proceeds, models.RoundMoney(quotedTotal), tolerance); err != nil {
		return nil, err
	}

	refAmount, err := s.toReference(ctx, proceeds, currency)
	if err != nil {
		return nil, err
	}

	txn, err := s.withWallet(ctx, userID, func(w *models.Wallet) (*models.Transaction, error) {
		if w.Gold.Grams.LessThan(grams) {
			return nil, fmt.Errorf("%w: holding %s g, requested %s g", models.ErrInsufficientHoldings,
				w.Gold.Grams.StringFixed(models.GramsPrecision), grams.StringFixed(models.GramsPrecision))
		}
		if err := CheckAndReserve(w, models.KindGoldSale, refAmount, time.Now().UTC()); err != nil {
			return nil, err
		}
		w.Gold = ApplySale(w.Gold, grams)
		w.Credit(currency, proceeds)
		return models.NewTransaction(userID, models.TypeGoldSell, proceeds, currency, models.StatusCompleted,
			models.TransactionMetadata{Grams: grams, PricePerGram: price, Fee: fee, FeePercentage: feePct}), nil
	})
	if err != nil {
		logger.Log.Errorw("gold sale failed", "userID", userID, "grams", grams, "currency", currency, "error", err)
		return nil, err
	}

	s.publishEvent(ctx, transactionEvent(txn, models.ActionTransactionCreated, "", "", ""))
	return txn, nil
}

// Convert exchanges between two balances at the current rate. Internal
// conversion moves no money in or out, so it is not subject to daily or
// lifetime limits; it settles synchronously.
func (s *TradingService) Convert(ctx context.Context, userID uuid.UUID, fromCurrency, toCurrency string, amount decimal.Decimal) (*models.Transaction, error) {
	if err := validateAmountCurrency(amount, fromCurrency); err != nil {
		return nil, err
	}
	if !models.IsSupportedCurrency(toCurrency) {
		return nil, fmt.Errorf("%w: unsupported currency %q", models.ErrInvalidInput, toCurrency)
	}
	if fromCurrency == toCurrency {
		return nil, fmt.Errorf("%w: cannot convert %s to itself", models.ErrInvalidInput, fromCurrency)
	}

	rate, err := s.rates.Rate(ctx, fromCurrency, toCurrency)
	if err != nil {
		return nil, fmt.Errorf("%w: %s->%s: %w", models.ErrRateUnavailable, fromCurrency, toCurrency, err)
	}

	amount = models.RoundMoney(amount)
	converted := models.RoundMoney(amount.Mul(rate))

	txn, err := s.withWallet(ctx, userID, func(w *models.Wallet) (*models.Transaction, error) {
		if !w.Debit(fromCurrency, amount) {
			return nil, fmt.Errorf("%w: %s available %s", models.ErrInsufficientBalance,
				fromCurrency, w.Balance(fromCurrency).StringFixed(models.MoneyPrecision))
		}
		w.Credit(toCurrency, converted)
		return models.NewTransaction(userID, models.TypeConversion, amount, fromCurrency, models.StatusCompleted,
			models.TransactionMetadata{Rate: rate, ToCurrency: toCurrency, ToAmount: converted}), nil
	})
	if err != nil {
		logger.Log.Errorw("conversion failed", "userID", userID, "from", fromCurrency, "to", toCurrency, "amount", amount, "error", err)
		return nil, err
	}

	s.publishEvent(ctx, transactionEvent(txn, models.ActionTransactionCreated, "", "", ""))
	return txn, nil
}

// RequestDelivery requests physical delivery of held gold. It requires a
// KYC-verified user, debits the grams and the delivery fee eagerly and
// records a pending transaction with an estimated delivery date. The debited
// grams and fee are credited back if the request is rejected or cancelled.
func (s *TradingService) RequestDelivery(ctx context.Context, userID uuid.UUID, grams decimal.Decimal, address string, method models.DeliveryMethod) (*models.Transaction, error) {
	if !grams.IsPositive() {
		return nil, fmt.Errorf("%w: grams must be positive", models.ErrInvalidInput)
	}
	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("%w: delivery address required", models.ErrInvalidInput)
	}
	daysKey, ok := deliveryDaysKey(method)
	if !ok {
		return nil, fmt.Errorf("%w: unknown delivery method %q", models.ErrInvalidInput, method)
	}

	verified, err := s.kyc.IsVerified(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("kyc check: %w", err)
	}
	if !verified {
		return nil, models.ErrKYCRequired
	}

	grams = models.RoundGrams(grams)

	flatFee, err := s.configNumber(ctx, models.ConfigKeyDeliveryFlatFee)
	if err != nil {
		return nil, err
	}
	fee := flatFee
	var insuredPrice decimal.Decimal
	if method == models.DeliveryInsured {
		surchargePct, err := s.configNumber(ctx, models.ConfigKeyInsuredSurchargePct)
		if err != nil {
			return nil, err
		}
		insuredPrice, err = s.spotPriceIn(ctx, models.ReferenceCurrency)
		if err != nil {
			return nil, err
		}
		insuredValue := models.RoundMoney(grams.Mul(insuredPrice))
		fee = models.RoundMoney(fee.Add(models.RoundMoney(insuredValue.Mul(surchargePct))))
	}

	days, err := s.configNumber(ctx, daysKey)
	if err != nil {
		return nil, err
	}
	estimated := time.Now().UTC().Add(time.Duration(days.IntPart()) * 24 * time.Hour)

	txn, err := s.withWallet(ctx, userID, func(w *models.Wallet) (*models.Transaction, error) {
		if w.Gold.Grams.LessThan(grams) {
			return nil, fmt.Errorf("%w: holding %s g, requested %s g", models.ErrInsufficientHoldings,
				w.Gold.Grams.StringFixed(models.GramsPrecision), grams.StringFixed(models.GramsPrecision))
		}
		// Remember the average cost at debit time so a rejection or
		// cancellation can restore the grams at the same basis.
		avgAtDebit := w.Gold.AverageCostPerGram
		if !w.Debit(models.ReferenceCurrency, fee) {
			return nil, fmt.Errorf("%w: delivery fee %s %s", models.ErrInsufficientBalance,
				fee.StringFixed(models.MoneyPrecision), models.ReferenceCurrency)
		}
		w.Gold = ApplySale(w.Gold, grams)
		return models.NewTransaction(userID, models.TypeDelivery, fee, models.ReferenceCurrency, models.StatusPending,
			models.TransactionMetadata{
				Grams:          grams,
				PricePerGram:   avgAtDebit,
				Fee:            fee,
				Address:        address,
				DeliveryMethod: method,
				EstimatedAt:    &estimated,
			}), nil
	})
	if err != nil {
		logger.Log.Errorw("delivery request failed", "userID", userID, "grams", grams, "method", method, "error", err)
		return nil, err
	}

	s.publishEvent(ctx, transactionEvent(txn, models.ActionTransactionCreated, "", "", ""))
	return txn, nil
}

// CancelPending cancels a pending transaction owned by the calling user.
// Withdrawals and deliveries receive the same compensating credit as a
// settlement rejection; deposits get their reserved limit usage back.
func (s *TradingService) CancelPending(ctx context.Context, userID, txID uuid.UUID) (*models.Transaction, error) {
	txn, err := s.ledger.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	if txn.UserID != userID {
		return nil, models.ErrNotFound
	}
	if txn.Status != models.StatusPending {
		return nil, fmt.Errorf("%w: transaction is %s", models.ErrInvalidStateTransition, txn.Status)
	}

	before := txn.Status
	switch txn.Type {
	case models.TypeDeposit, models.TypeWithdrawal, models.TypeDelivery:
		if err := compensateAndTerminate(ctx, s.ledger, txn, models.StatusCancelled, "cancelled by user"); err != nil {
			return nil, err
		}
	default:
		txn.Status = models.StatusCancelled
		if err := s.ledger.AppendStatusOnly(ctx, txID, models.StatusCancelled, "cancelled by user"); err != nil {
			return nil, err
		}
	}

	s.publishEvent(ctx, transactionEvent(txn, models.ActionCancelled, before, userID.String(), "cancelled by user"))
	return txn, nil
}

// compensateAndTerminate credits held funds (and grams, for deliveries) back
// to the wallet, releases the limit usage reserved at request time and moves
// the transaction to the given terminal status, all as one atomic unit with
// conflict retry. Shared by user cancellation and settlement rejection, which
// apply the same compensation. Deposits hold no funds, so only their
// reservation is returned.
func compensateAndTerminate(ctx context.Context, ledger LedgerRepository, txn *models.Transaction, status models.TransactionStatus, reason string) error {
	var lastErr error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		wallet, err := ledger.LoadWalletForUpdate(ctx, txn.UserID)
		if err != nil {
			return err
		}

		switch txn.Type {
		case models.TypeWithdrawal:
			wallet.Credit(txn.Currency, txn.Amount)
		case models.TypeDelivery:
			wallet.Credit(txn.Currency, txn.Metadata.Fee)
			wallet.Gold = ApplyPurchase(wallet.Gold, txn.Metadata.Grams, txn.Metadata.PricePerGram)
		}
		if kind, ok := models.KindForType(txn.Type); ok {
			ReleaseReservation(wallet, kind, txn.Metadata.ReferenceAmount)
		}

		now := time.Now().UTC()
		txn.Status = status
		if status == models.StatusFailed {
			txn.FailedAt = &now
			txn.ErrorMessage = reason
		}

		if err := ledger.SaveWalletAndUpdateTransaction(ctx, wallet, txn); err != nil {
			if errors.Is(err, models.ErrPersistenceConflict) {
				lastErr = err
				continue
			}
			return err
		}
		return nil
	}
	return lastErr
}

// GetBalance returns the wallet's balances for every supported currency.
func (s *TradingService) GetBalance(ctx context.Context, userID uuid.UUID) (map[string]decimal.Decimal, error) {
	wallet, err := s.ledger.LoadWalletForUpdate(ctx, userID)
	if err != nil {
		return nil, err
	}
	balances := make(map[string]decimal.Decimal, len(models.SupportedCurrencies))
	for _, c := range models.SupportedCurrencies {
		balances[c] = wallet.Balance(c)
	}
	return balances, nil
}

// Holdings is the gold position with its live valuation.
type Holdings struct {
	Position        models.GoldPosition
	CurrentPrice    decimal.Decimal
	CurrentValue    decimal.Decimal
	UnrealizedPnL   decimal.Decimal
	ObservedAt      time.Time
	ValuationFailed bool
}

// GetHoldings returns the gold position and, when the oracle is reachable,
// its current valuation and unrealized profit or loss. An unreachable oracle
// degrades the valuation instead of failing the read.
func (s *TradingService) GetHoldings(ctx context.Context, userID uuid.UUID) (*Holdings, error) {
	wallet, err := s.ledger.LoadWalletForUpdate(ctx, userID)
	if err != nil {
		return nil, err
	}

	h := &Holdings{Position: wallet.Gold}
	price, observedAt, err := s.oracle.SpotPrice(ctx, models.CommodityGold, models.ReferenceCurrency)
	if err != nil {
		logger.Log.Warnw("holdings valuation unavailable", "userID", userID, "error", err)
		h.ValuationFailed = true
		return h, nil
	}

	h.CurrentPrice = price
	h.ObservedAt = observedAt
	h.CurrentValue = models.RoundMoney(wallet.Gold.Grams.Mul(price))
	cost := models.RoundMoney(wallet.Gold.Grams.Mul(wallet.Gold.AverageCostPerGram))
	h.UnrealizedPnL = models.RoundMoney(h.CurrentValue.Sub(cost))
	return h, nil
}

// GetTransactions lists the user's transactions, newest first.
func (s *TradingService) GetTransactions(ctx context.Context, userID uuid.UUID, filter models.TransactionFilter, page models.Page) ([]models.Transaction, error) {
	return s.ledger.ListTransactions(ctx, userID, filter, page.Normalize())
}

// Usage is the view of a wallet's limit consumption in the reference currency.
type Usage struct {
	Daily          map[models.OperationKind]decimal.Decimal
	DailyLimits    map[models.OperationKind]decimal.Decimal
	Lifetime       map[models.OperationKind]decimal.Decimal
	LifetimeLimits map[models.OperationKind]decimal.Decimal
	LastDailyReset time.Time
}

// GetUsage returns current daily and lifetime usage against the configured
// limits. Counters older than the reset interval are reported as zero even
// though the lazy reset has not persisted yet.
func (s *TradingService) GetUsage(ctx context.Context, userID uuid.UUID) (*Usage, error) {
	wallet, err := s.ledger.LoadWalletForUpdate(ctx, userID)
	if err != nil {
		return nil, err
	}
	maybeResetDaily(wallet, time.Now().UTC())
	return &Usage{
		Daily:          wallet.DailyUsage,
		DailyLimits:    wallet.DailyLimits,
		Lifetime:       wallet.LifetimeUsage,
		LifetimeLimits: wallet.LifetimeLimits,
		LastDailyReset: wallet.LastDailyReset,
	}, nil
}

func (s *TradingService) validateTradeInput(ctx context.Context, grams decimal.Decimal, currency string, quotedPricePerGram, quotedTotal decimal.Decimal) error {
	if !grams.IsPositive() {
		return fmt.Errorf("%w: grams must be positive", models.ErrInvalidInput)
	}
	if !models.IsSupportedCurrency(currency) {
		return fmt.Errorf("%w: unsupported currency %q", models.ErrInvalidInput, currency)
	}
	if !quotedPricePerGram.IsPositive() || !quotedTotal.IsPositive() {
		return fmt.Errorf("%w: quoted price and total must be positive", models.ErrInvalidInput)
	}
	minGrams, err := s.configNumber(ctx, models.ConfigKeyMinTradeGrams)
	if err != nil {
		return err
	}
	if grams.LessThan(minGrams) {
		return fmt.Errorf("%w: minimum trade is %s g", models.ErrInvalidInput, minGrams.StringFixed(models.GramsPrecision))
	}
	return nil
}

func validateAmountCurrency(amount decimal.Decimal, currency string) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", models.ErrInvalidInput)
	}
	if !models.IsSupportedCurrency(currency) {
		return fmt.Errorf("%w: unsupported currency %q", models.ErrInvalidInput, currency)
	}
	return nil
}

func deliveryDaysKey(method models.DeliveryMethod) (string, bool) {
	switch method {
	case models.DeliveryStandard:
		return models.ConfigKeyStandardDays, true
	case models.DeliveryExpress:
		return models.ConfigKeyExpressDays, true
	case models.DeliveryInsured:
		return models.ConfigKeyInsuredDays, true
	}
	return "", false
}
