package models

// Event actions emitted to the notifier topic.
const (
	ActionTransactionCreated = "transaction_created"
	ActionDepositApproved    = "deposit_approved"
	ActionWithdrawalDone     = "withdrawal_completed"
	ActionRejected           = "rejected"
	ActionCancelled          = "cancelled"
)

// WalletEvent is the fire-and-forget message published after a ledger
// mutation: transaction lifecycle events and settlement audit entries share
// this shape. Publishing failures never roll back the mutation.
type WalletEvent struct {
	EventID       string            `json:"event_id"`
	UserID        string            `json:"user_id"`
	TransactionID string            `json:"transaction_id"`
	Action        string            `json:"action"`
	Type          TransactionType   `json:"type"`
	BeforeStatus  TransactionStatus `json:"before_status,omitempty"`
	AfterStatus   TransactionStatus `json:"after_status"`
	Amount        string            `json:"amount"`
	Currency      string            `json:"currency"`
	Actor         string            `json:"actor,omitempty"`
	Reason        string            `json:"reason,omitempty"`
	Timestamp     int64             `json:"timestamp"`
}
