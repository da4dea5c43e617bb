package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType identifies the operation a transaction records.
type TransactionType string

const (
	TypeDeposit    TransactionType = "deposit"
	TypeWithdrawal TransactionType = "withdrawal"
	TypeGoldBuy    TransactionType = "gold_purchase"
	TypeGoldSell   TransactionType = "gold_sale"
	TypeDelivery   TransactionType = "delivery"
	TypeConversion TransactionType = "conversion"
)

// TransactionStatus is the lifecycle state of a transaction.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
	StatusCancelled TransactionStatus = "cancelled"
)

// IsTerminal reports whether the status permits no further transitions.
func (s TransactionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// DeliveryMethod identifies how physical gold is shipped.
type DeliveryMethod string

const (
	DeliveryStandard DeliveryMethod = "standard"
	DeliveryExpress  DeliveryMethod = "express"
	DeliveryInsured  DeliveryMethod = "insured"
)

// TransactionMetadata carries the type-specific details of a transaction.
// Only the fields relevant to the transaction's type are set.
type TransactionMetadata struct {
	// ReferenceAmount is the reference-currency amount reserved against the
	// daily and lifetime limits when the operation was accepted. Compensation
	// paths release exactly this amount.
	ReferenceAmount decimal.Decimal `json:"reference_amount,omitempty"`

	Grams          decimal.Decimal `json:"grams,omitempty"`
	PricePerGram   decimal.Decimal `json:"price_per_gram,omitempty"`
	Fee            decimal.Decimal `json:"fee,omitempty"`
	FeePercentage  decimal.Decimal `json:"fee_percentage,omitempty"`
	Rate           decimal.Decimal `json:"rate,omitempty"`
	ToCurrency     string          `json:"to_currency,omitempty"`
	ToAmount       decimal.Decimal `json:"to_amount,omitempty"`
	Method         string          `json:"method,omitempty"`
	BankDetails    string          `json:"bank_details,omitempty"`
	PaymentRef     string          `json:"payment_ref,omitempty"`
	Address        string          `json:"address,omitempty"`
	DeliveryMethod DeliveryMethod  `json:"delivery_method,omitempty"`
	EstimatedAt    *time.Time      `json:"estimated_at,omitempty"`
}

// Transaction is the append-mostly ledger record of a single operation.
// CompletedAt and FailedAt are set exactly once, by the transition that
// terminated the transaction.
type Transaction struct {
	ID           uuid.UUID           `json:"transaction_id"`
	UserID       uuid.UUID           `json:"user_id"`
	Type         TransactionType     `json:"type"`
	Amount       decimal.Decimal     `json:"amount"`
	Currency     string              `json:"currency"`
	Status       TransactionStatus   `json:"status"`
	CreatedAt    time.Time           `json:"created_at"`
	CompletedAt  *time.Time          `json:"completed_at,omitempty"`
	FailedAt     *time.Time          `json:"failed_at,omitempty"`
	ErrorMessage string              `json:"error_message,omitempty"`
	Metadata     TransactionMetadata `json:"metadata"`
}

// NewTransaction creates a transaction record in the given initial status.
// Synchronous operations pass StatusCompleted directly; settlement-mediated
// ones pass StatusPending.
func NewTransaction(userID uuid.UUID, typ TransactionType, amount decimal.Decimal, currency string, status TransactionStatus, meta TransactionMetadata) *Transaction {
	now := time.Now().UTC()
	txn := &Transaction{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      typ,
		Amount:    amount,
		Currency:  currency,
		Status:    status,
		CreatedAt: now,
		Metadata:  meta,
	}
	if status == StatusCompleted {
		txn.CompletedAt = &now
	}
	return txn
}

// TransactionFilter narrows ListTransactions results. Zero values match all.
type TransactionFilter struct {
	Type   TransactionType
	Status TransactionStatus
}

// Page is a limit/offset pagination request.
type Page struct {
	Limit  int
	Offset int
}

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 || p.Limit > 100 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
