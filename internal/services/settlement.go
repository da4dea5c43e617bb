package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sbilibin2017/gw-gold-wallet/internal/logger"
	"github.com/sbilibin2017/gw-gold-wallet/internal/models"
)

// Settlement actions checked against the permission collaborator.
const (
	ActionApproveDeposit     = "settlement:approve_deposit"
	ActionCompleteWithdrawal = "settlement:complete_withdrawal"
	ActionReject             = "settlement:reject"
)

// PermissionChecker authorizes an actor for a settlement action. Supplied by
// the external permission collaborator.
type PermissionChecker interface {
	Authorize(ctx context.Context, actor, action string) (bool, error)
}

// SettlementService drives pending deposits and withdrawals to their terminal
// state under an authorized administrator, with compensating balance
// adjustments on rejection. Every transition is published as an audit event.
type SettlementService struct {
	ledger      LedgerRepository
	permissions PermissionChecker
	kafkaWriter KafkaWriter
}

// NewSettlementService creates a SettlementService.
func NewSettlementService(ledger LedgerRepository, permissions PermissionChecker, kafkaWriter KafkaWriter) *SettlementService {
	return &SettlementService{
		ledger:      ledger,
		permissions: permissions,
		kafkaWriter: kafkaWriter,
	}
}

func (s *SettlementService) authorize(ctx context.Context, actor, action string) error {
	ok, err := s.permissions.Authorize(ctx, actor, action)
	if err != nil {
		return fmt.Errorf("authorize %s for %s: %w", actor, action, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s may not %s", models.ErrPermissionDenied, actor, action)
	}
	return nil
}

// pendingOfType loads the transaction and verifies it is still pending and of
// the expected type. A transaction in a terminal state yields
// models.ErrInvalidStateTransition, which makes repeated settlement calls
// idempotent failures rather than double mutations.
func (s *SettlementService) pendingOfType(ctx context.Context, txID uuid.UUID, typ models.TransactionType) (*models.Transaction, error) {
	txn, err := s.ledger.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	if txn.Type != typ {
		return nil, fmt.Errorf("%w: %s is a %s, expected %s", models.ErrInvalidStateTransition, txID, txn.Type, typ)
	}
	if txn.Status != models.StatusPending {
		return nil, fmt.Errorf("%w: transaction is %s", models.ErrInvalidStateTransition, txn.Status)
	}
	return txn, nil
}

// ApproveDeposit credits the pending deposit's net amount to the wallet and
// completes the transaction, atomically.
func (s *SettlementService) ApproveDeposit(ctx context.Context, actor string, txID uuid.UUID) (*models.Transaction, error) {
	if err := s.authorize(ctx, actor, ActionApproveDeposit); err != nil {
		return nil, err
	}

	txn, err := s.pendingOfType(ctx, txID, models.TypeDeposit)
	if err != nil {
		return nil, err
	}

	netAmount := models.RoundMoney(txn.Amount.Sub(txn.Metadata.Fee))

	var lastErr error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		wallet, err := s.ledger.LoadWalletForUpdate(ctx, txn.UserID)
		if err != nil {
			return nil, err
		}
		wallet.Credit(txn.Currency, netAmount)

		now := time.Now().UTC()
		txn.Status = models.StatusCompleted
		txn.CompletedAt = &now

		if err := s.ledger.SaveWalletAndUpdateTransaction(ctx, wallet, txn); err != nil {
			if errors.Is(err, models.ErrPersistenceConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		return nil, lastErr
	}

	logger.Log.Infow("deposit approved", "transaction_id", txID, "actor", actor, "net_amount", netAmount)
	publishEvent(ctx, s.kafkaWriter, transactionEvent(txn, models.ActionDepositApproved, models.StatusPending, actor, ""))
	return txn, nil
}

// CompleteWithdrawal marks a pending withdrawal as completed. The balance was
// already debited when the withdrawal was requested, so no further wallet
// mutation happens here.
func (s *SettlementService) CompleteWithdrawal(ctx context.Context, actor string, txID uuid.UUID, paymentRef string) (*models.Transaction, error) {
	if err := s.authorize(ctx, actor, ActionCompleteWithdrawal); err != nil {
		return nil, err
	}

	txn, err := s.pendingOfType(ctx, txID, models.TypeWithdrawal)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	txn.Status = models.StatusCompleted
	txn.CompletedAt = &now
	txn.Metadata.PaymentRef = paymentRef

	if err := s.ledger.UpdateTransaction(ctx, txn); err != nil {
		return nil, err
	}

	logger.Log.Infow("withdrawal completed", "transaction_id", txID, "actor", actor, "payment_ref", paymentRef)
	publishEvent(ctx, s.kafkaWriter, transactionEvent(txn, models.ActionWithdrawalDone, models.StatusPending, actor, ""))
	return txn, nil
}

// Reject fails a pending transaction. Withdrawals get their held amount
// credited back and deliveries get both the fee and the grams restored, since
// both debit eagerly at request time. Deposits never credited anything, but
// rejection still returns the limit usage reserved when the deposit was
// accepted.
func (s *SettlementService) Reject(ctx context.Context, actor string, txID uuid.UUID, reason string) (*models.Transaction, error) {
	if err := s.authorize(ctx, actor, ActionReject); err != nil {
		return nil, err
	}

	txn, err := s.ledger.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	if txn.Status != models.StatusPending {
		return nil, fmt.Errorf("%w: transaction is %s", models.ErrInvalidStateTransition, txn.Status)
	}

	switch txn.Type {
	case models.TypeDeposit, models.TypeWithdrawal, models.TypeDelivery:
		if err := compensateAndTerminate(ctx, s.ledger, txn, models.StatusFailed, reason); err != nil {
			return nil, err
		}
	default:
		now := time.Now().UTC()
		txn.Status = models.StatusFailed
		txn.FailedAt = &now
		txn.ErrorMessage = reason
		if err := s.ledger.UpdateTransaction(ctx, txn); err != nil {
			return nil, err
		}
	}

	logger.Log.Infow("transaction rejected", "transaction_id", txID, "actor", actor, "reason", reason)
	publishEvent(ctx, s.kafkaWriter, transactionEvent(txn, models.ActionRejected, models.StatusPending, actor, reason))
	return txn, nil
}
