package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sbilibin2017/gw-gold-wallet/internal/models"
)

// InMemoryLedgerRepository is the non-durable ledger adapter used in tests
// and local development. Atomicity per wallet comes from optimistic
// concurrency: loads hand out clones carrying the stored version, and saves
// compare-and-swap on that version under the repository mutex, returning
// models.ErrPersistenceConflict when another writer got there first.
type InMemoryLedgerRepository struct {
	mu           sync.Mutex
	wallets      map[uuid.UUID]*models.Wallet
	transactions map[uuid.UUID]*models.Transaction
}

// NewInMemoryLedgerRepository creates an empty in-memory ledger.
func NewInMemoryLedgerRepository() *InMemoryLedgerRepository {
	return &InMemoryLedgerRepository{
		wallets:      make(map[uuid.UUID]*models.Wallet),
		transactions: make(map[uuid.UUID]*models.Transaction),
	}
}

// LoadWalletForUpdate returns a clone of the user's wallet, creating an empty
// wallet with default limits on first use.
func (r *InMemoryLedgerRepository) LoadWalletForUpdate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.wallets[userID]
	if !ok {
		w = models.NewWallet(userID)
		r.wallets[userID] = w
	}
	return w.Clone(), nil
}

func (r *InMemoryLedgerRepository) casWallet(wallet *models.Wallet) error {
	stored, ok := r.wallets[wallet.UserID]
	if !ok {
		return fmt.Errorf("%w: wallet %s", models.ErrNotFound, wallet.UserID)
	}
	if stored.Version != wallet.Version {
		return fmt.Errorf("%w: wallet %s version %d, stored %d",
			models.ErrPersistenceConflict, wallet.UserID, wallet.Version, stored.Version)
	}
	next := wallet.Clone()
	next.Version++
	next.UpdatedAt = time.Now().UTC()
	r.wallets[wallet.UserID] = next
	wallet.Version = next.Version
	return nil
}

// SaveWalletAndAppendTransaction stores the wallet and appends the
// transaction as one atomic unit under the repository mutex.
func (r *InMemoryLedgerRepository) SaveWalletAndAppendTransaction(ctx context.Context, wallet *models.Wallet, txn *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.casWallet(wallet); err != nil {
		return err
	}
	cp := *txn
	r.transactions[txn.ID] = &cp
	return nil
}

// stillPending returns the stored transaction if it has not reached a terminal
// state. Checked before any wallet mutation so a settlement that lost the race
// to a concurrent approve or cancel leaves no trace.
func (r *InMemoryLedgerRepository) stillPending(txID uuid.UUID) (*models.Transaction, error) {
	stored, ok := r.transactions[txID]
	if !ok {
		return nil, fmt.Errorf("%w: transaction %s", models.ErrNotFound, txID)
	}
	if stored.Status != models.StatusPending {
		return nil, fmt.Errorf("%w: transaction %s is %s", models.ErrInvalidStateTransition, txID, stored.Status)
	}
	return stored, nil
}

// SaveWalletAndUpdateTransaction stores the wallet and transitions a
// still-pending transaction record as one atomic unit.
func (r *InMemoryLedgerRepository) SaveWalletAndUpdateTransaction(ctx context.Context, wallet *models.Wallet, txn *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.stillPending(txn.ID); err != nil {
		return err
	}
	if err := r.casWallet(wallet); err != nil {
		return err
	}
	cp := *txn
	r.transactions[txn.ID] = &cp
	return nil
}

// UpdateTransaction transitions a still-pending transaction record.
func (r *InMemoryLedgerRepository) UpdateTransaction(ctx context.Context, txn *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.stillPending(txn.ID); err != nil {
		return err
	}
	cp := *txn
	r.transactions[txn.ID] = &cp
	return nil
}

// AppendStatusOnly transitions a still-pending transaction to the given
// status without touching any wallet.
func (r *InMemoryLedgerRepository) AppendStatusOnly(ctx context.Context, txID uuid.UUID, status models.TransactionStatus, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	txn, err := r.stillPending(txID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	txn.Status = status
	switch status {
	case models.StatusCompleted:
		txn.CompletedAt = &now
	case models.StatusFailed:
		txn.FailedAt = &now
		txn.ErrorMessage = reason
	case models.StatusCancelled:
		if reason != "" {
			txn.ErrorMessage = reason
		}
	}
	return nil
}

// GetTransaction fetches a copy of a transaction by id.
func (r *InMemoryLedgerRepository) GetTransaction(ctx context.Context, txID uuid.UUID) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	txn, ok := r.transactions[txID]
	if !ok {
		return nil, fmt.Errorf("%w: transaction %s", models.ErrNotFound, txID)
	}
	cp := *txn
	return &cp, nil
}

// ListTransactions lists a user's transactions, newest first.
func (r *InMemoryLedgerRepository) ListTransactions(ctx context.Context, userID uuid.UUID, filter models.TransactionFilter, page models.Page) ([]models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var txns []models.Transaction
	for _, txn := range r.transactions {
		if txn.UserID != userID {
			continue
		}
		if filter.Type != "" && txn.Type != filter.Type {
			continue
		}
		if filter.Status != "" && txn.Status != filter.Status {
			continue
		}
		txns = append(txns, *txn)
	}
	sort.Slice(txns, func(i, j int) bool { return txns[i].CreatedAt.After(txns[j].CreatedAt) })

	page = page.Normalize()
	if page.Offset >= len(txns) {
		return []models.Transaction{}, nil
	}
	end := page.Offset + page.Limit
	if end > len(txns) {
		end = len(txns)
	}
	return txns[page.Offset:end], nil
}
