package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/sbilibin2017/gw-gold-wallet/internal/logger"
	"github.com/sbilibin2017/gw-gold-wallet/internal/models"
)

// LedgerRepository is the Postgres adapter for wallet and transaction
// persistence. Per-wallet atomicity comes from two guards: the wallet row is
// locked with SELECT ... FOR UPDATE inside the per-request transaction, and
// every save checks the wallet's version column, so a concurrent writer that
// slipped past the lock surfaces as models.ErrPersistenceConflict instead of
// a lost update.
type LedgerRepository struct {
	db       *sqlx.DB
	txGetter func(ctx context.Context) *sqlx.Tx
}

// NewLedgerRepository creates a ledger repository. txGetter extracts the
// per-request transaction from the context; it may be nil in tests.
func NewLedgerRepository(db *sqlx.DB, txGetter func(ctx context.Context) *sqlx.Tx) *LedgerRepository {
	return &LedgerRepository{db: db, txGetter: txGetter}
}

func (r *LedgerRepository) executor(ctx context.Context) sqlx.ExtContext {
	if r.txGetter != nil {
		if tx := r.txGetter(ctx); tx != nil {
			return tx
		}
	}
	return r.db
}

// walletRow mirrors the wallets table; map-valued fields are stored as JSONB.
type walletRow struct {
	UserID         uuid.UUID       `db:"user_id"`
	Balances       []byte          `db:"balances"`
	GoldGrams      decimal.Decimal `db:"gold_grams"`
	GoldAvgCost    decimal.Decimal `db:"gold_avg_cost"`
	DailyUsage     []byte          `db:"daily_usage"`
	DailyLimits    []byte          `db:"daily_limits"`
	LifetimeUsage  []byte          `db:"lifetime_usage"`
	LifetimeLimits []byte          `db:"lifetime_limits"`
	LastDailyReset time.Time       `db:"last_daily_reset"`
	Version        int64           `db:"version"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

func (row *walletRow) toModel() (*models.Wallet, error) {
	w := &models.Wallet{
		UserID: row.UserID,
		Gold: models.GoldPosition{
			Grams:              row.GoldGrams,
			AverageCostPerGram: row.GoldAvgCost,
		},
		LastDailyReset: row.LastDailyReset,
		Version:        row.Version,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
	for col, pair := range map[string]struct {
		raw []byte
		dst any
	}{
		"balances":        {row.Balances, &w.Balances},
		"daily_usage":     {row.DailyUsage, &w.DailyUsage},
		"daily_limits":    {row.DailyLimits, &w.DailyLimits},
		"lifetime_usage":  {row.LifetimeUsage, &w.LifetimeUsage},
		"lifetime_limits": {row.LifetimeLimits, &w.LifetimeLimits},
	} {
		if err := json.Unmarshal(pair.raw, pair.dst); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", col, err)
		}
	}
	return w, nil
}

func marshalWallet(w *models.Wallet) (balances, dailyUsage, dailyLimits, lifetimeUsage, lifetimeLimits []byte, err error) {
	if balances, err = json.Marshal(w.Balances); err != nil {
		return
	}
	if dailyUsage, err = json.Marshal(w.DailyUsage); err != nil {
		return
	}
	if dailyLimits, err = json.Marshal(w.DailyLimits); err != nil {
		return
	}
	if lifetimeUsage, err = json.Marshal(w.LifetimeUsage); err != nil {
		return
	}
	lifetimeLimits, err = json.Marshal(w.LifetimeLimits)
	return
}

// LoadWalletForUpdate loads the user's wallet with a row lock, creating an
// empty wallet with default limits on first use.
func (r *LedgerRepository) LoadWalletForUpdate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	const selectQuery = `
		SELECT user_id, balances, gold_grams, gold_avg_cost,
		       daily_usage, daily_limits, lifetime_usage, lifetime_limits,
		       last_daily_reset, version, created_at, updated_at
		FROM wallets
		WHERE user_id = $1
		FOR UPDATE
	`

	executor := r.executor(ctx)

	var row walletRow
	err := sqlx.GetContext(ctx, executor, &row, selectQuery, userID)
	if errors.Is(err, sql.ErrNoRows) {
		if err = r.insertDefault(ctx, executor, userID); err != nil {
			return nil, err
		}
		err = sqlx.GetContext(ctx, executor, &row, selectQuery, userID)
	}

	logger.Log.Infow(
		"query", strings.Join(strings.Fields(selectQuery), " "),
		"args", []any{userID},
		"error", err,
	)
	if err != nil {
		return nil, err
	}
	return row.toModel()
}

func (r *LedgerRepository) insertDefault(ctx context.Context, executor sqlx.ExtContext, userID uuid.UUID) error {
	const insertQuery = `
		INSERT INTO wallets (user_id, balances, gold_grams, gold_avg_cost,
		                     daily_usage, daily_limits, lifetime_usage, lifetime_limits,
		                     last_daily_reset, version, created_at, updated_at)
		VALUES ($1, $2, 0, 0, $3, $4, $5, $6, NOW(), 0, NOW(), NOW())
		ON CONFLICT (user_id) DO NOTHING
	`
	w := models.NewWallet(userID)
	balances, dailyUsage, dailyLimits, lifetimeUsage, lifetimeLimits, err := marshalWallet(w)
	if err != nil {
		return err
	}
	_, err = executor.ExecContext(ctx, insertQuery, userID, balances, dailyUsage, dailyLimits, lifetimeUsage, lifetimeLimits)
	return err
}

func (r *LedgerRepository) saveWallet(ctx context.Context, executor sqlx.ExtContext, w *models.Wallet) error {
	const updateQuery = `
		UPDATE wallets
		SET balances = $2, gold_grams = $3, gold_avg_cost = $4,
		    daily_usage = $5, daily_limits = $6, lifetime_usage = $7, lifetime_limits = $8,
		    last_daily_reset = $9, version = version + 1, updated_at = NOW()
		WHERE user_id = $1 AND version = $10
	`
	balances, dailyUsage, dailyLimits, lifetimeUsage, lifetimeLimits, err := marshalWallet(w)
	if err != nil {
		return err
	}

	res, err := executor.ExecContext(ctx, updateQuery,
		w.UserID, balances, w.Gold.Grams, w.Gold.AverageCostPerGram,
		dailyUsage, dailyLimits, lifetimeUsage, lifetimeLimits,
		w.LastDailyReset, w.Version,
	)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: wallet %s version %d", models.ErrPersistenceConflict, w.UserID, w.Version)
	}
	w.Version++
	return nil
}

func (r *LedgerRepository) insertTransaction(ctx context.Context, executor sqlx.ExtContext, txn *models.Transaction) error {
	const query = `
		INSERT INTO transactions (transaction_id, user_id, type, amount, currency, status,
		                          created_at, completed_at, failed_at, error_message, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	meta, err := json.Marshal(txn.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = executor.ExecContext(ctx, query,
		txn.ID, txn.UserID, txn.Type, txn.Amount, txn.Currency, txn.Status,
		txn.CreatedAt, txn.CompletedAt, txn.FailedAt, nullableString(txn.ErrorMessage), meta,
	)
	return err
}

// updateTransaction transitions a still-pending transaction. The status guard
// makes terminal states immutable at the storage layer: once a concurrent
// approve, reject or cancel has won, the loser's update matches zero rows and
// surfaces as models.ErrInvalidStateTransition.
func (r *LedgerRepository) updateTransaction(ctx context.Context, executor sqlx.ExtContext, txn *models.Transaction) error {
	const query = `
		UPDATE transactions
		SET status = $2, completed_at = $3, failed_at = $4, error_message = $5, metadata = $6
		WHERE transaction_id = $1 AND status = 'pending'
	`
	meta, err := json.Marshal(txn.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	res, err := executor.ExecContext(ctx, query,
		txn.ID, txn.Status, txn.CompletedAt, txn.FailedAt, nullableString(txn.ErrorMessage), meta,
	)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, getErr := r.GetTransaction(ctx, txn.ID); errors.Is(getErr, models.ErrNotFound) {
			return getErr
		}
		return fmt.Errorf("%w: transaction %s is not pending", models.ErrInvalidStateTransition, txn.ID)
	}
	return nil
}

// SaveWalletAndAppendTransaction persists the mutated wallet and appends the
// new transaction record. The caller's context transaction makes the pair
// atomic; the version check rejects concurrent writers.
func (r *LedgerRepository) SaveWalletAndAppendTransaction(ctx context.Context, wallet *models.Wallet, txn *models.Transaction) error {
	executor := r.executor(ctx)
	if err := r.saveWallet(ctx, executor, wallet); err != nil {
		return err
	}
	if err := r.insertTransaction(ctx, executor, txn); err != nil {
		return err
	}
	logger.Log.Infow("wallet saved with transaction",
		"user_id", wallet.UserID, "transaction_id", txn.ID, "type", txn.Type, "status", txn.Status)
	return nil
}

// SaveWalletAndUpdateTransaction persists the mutated wallet and transitions a
// still-pending transaction record, used by settlement and compensating flows.
// When the transaction already reached a terminal state the update fails with
// models.ErrInvalidStateTransition; the caller's context transaction rolls the
// wallet save back with it.
func (r *LedgerRepository) SaveWalletAndUpdateTransaction(ctx context.Context, wallet *models.Wallet, txn *models.Transaction) error {
	executor := r.executor(ctx)
	if err := r.saveWallet(ctx, executor, wallet); err != nil {
		return err
	}
	if err := r.updateTransaction(ctx, executor, txn); err != nil {
		return err
	}
	logger.Log.Infow("wallet saved with transaction update",
		"user_id", wallet.UserID, "transaction_id", txn.ID, "status", txn.Status)
	return nil
}

// UpdateTransaction transitions a still-pending transaction record without
// touching the wallet.
func (r *LedgerRepository) UpdateTransaction(ctx context.Context, txn *models.Transaction) error {
	return r.updateTransaction(ctx, r.executor(ctx), txn)
}

// AppendStatusOnly transitions a still-pending transaction to the given
// status. A transaction already in a terminal state yields
// models.ErrInvalidStateTransition.
func (r *LedgerRepository) AppendStatusOnly(ctx context.Context, txID uuid.UUID, status models.TransactionStatus, reason string) error {
	const query = `
		UPDATE transactions
		SET status = $2,
		    completed_at = CASE WHEN $2 = 'completed' THEN NOW() ELSE completed_at END,
		    failed_at    = CASE WHEN $2 = 'failed' THEN NOW() ELSE failed_at END,
		    error_message = COALESCE($3, error_message)
		WHERE transaction_id = $1 AND status = 'pending'
	`
	res, err := r.executor(ctx).ExecContext(ctx, query, txID, status, nullableString(reason))
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, getErr := r.GetTransaction(ctx, txID); errors.Is(getErr, models.ErrNotFound) {
			return getErr
		}
		return fmt.Errorf("%w: transaction %s is not pending", models.ErrInvalidStateTransition, txID)
	}
	return nil
}

// transactionRow mirrors the transactions table.
type transactionRow struct {
	ID           uuid.UUID       `db:"transaction_id"`
	UserID       uuid.UUID       `db:"user_id"`
	Type         string          `db:"type"`
	Amount       decimal.Decimal `db:"amount"`
	Currency     string          `db:"currency"`
	Status       string          `db:"status"`
	CreatedAt    time.Time       `db:"created_at"`
	CompletedAt  *time.Time      `db:"completed_at"`
	FailedAt     *time.Time      `db:"failed_at"`
	ErrorMessage *string         `db:"error_message"`
	Metadata     []byte          `db:"metadata"`
}

func (row *transactionRow) toModel() (*models.Transaction, error) {
	txn := &models.Transaction{
		ID:          row.ID,
		UserID:      row.UserID,
		Type:        models.TransactionType(row.Type),
		Amount:      row.Amount,
		Currency:    row.Currency,
		Status:      models.TransactionStatus(row.Status),
		CreatedAt:   row.CreatedAt,
		CompletedAt: row.CompletedAt,
		FailedAt:    row.FailedAt,
	}
	if row.ErrorMessage != nil {
		txn.ErrorMessage = *row.ErrorMessage
	}
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &txn.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return txn, nil
}

// GetTransaction fetches a single transaction by id.
func (r *LedgerRepository) GetTransaction(ctx context.Context, txID uuid.UUID) (*models.Transaction, error) {
	const query = `
		SELECT transaction_id, user_id, type, amount, currency, status,
		       created_at, completed_at, failed_at, error_message, metadata
		FROM transactions
		WHERE transaction_id = $1
	`
	var row transactionRow
	err := sqlx.GetContext(ctx, r.executor(ctx), &row, query, txID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: transaction %s", models.ErrNotFound, txID)
	}
	if err != nil {
		return nil, err
	}
	return row.toModel()
}

// ListTransactions lists a user's transactions, newest first, optionally
// filtered by type and status.
func (r *LedgerRepository) ListTransactions(ctx context.Context, userID uuid.UUID, filter models.TransactionFilter, page models.Page) ([]models.Transaction, error) {
	query := `
		SELECT transaction_id, user_id, type, amount, currency, status,
		       created_at, completed_at, failed_at, error_message, metadata
		FROM transactions
		WHERE user_id = $1
	`
	args := []any{userID}
	if filter.Type != "" {
		args = append(args, filter.Type)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	args = append(args, page.Limit, page.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	var rows []transactionRow
	if err := sqlx.SelectContext(ctx, r.executor(ctx), &rows, query, args...); err != nil {
		return nil, err
	}

	txns := make([]models.Transaction, 0, len(rows))
	for i := range rows {
		txn, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		txns = append(txns, *txn)
	}
	return txns, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
