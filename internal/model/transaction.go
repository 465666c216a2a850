package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "DEPOSIT"
	TransactionTypeWithdrawal TransactionType = "WITHDRAWAL"
	TransactionTypePurchase   TransactionType = "PURCHASE"
	TransactionTypeRefund     TransactionType = "REFUND"
	TransactionTypeReferral   TransactionType = "REFERRAL"
	TransactionTypePromocode  TransactionType = "PROMOCODE"
	TransactionTypeBonus      TransactionType = "BONUS"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdrawal, TransactionTypePurchase,
		TransactionTypeRefund, TransactionTypeReferral, TransactionTypePromocode, TransactionTypeBonus:
		return true
	}
	return false
}

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
	TransactionStatusCancelled TransactionStatus = "CANCELLED"
)

// IsTerminal reports whether no further status change is allowed.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusFailed || s == TransactionStatusCancelled
}

// Transaction is a ledger entry. Rows are immutable except for the
// PENDING -> terminal status flip of provider deposits.
type Transaction struct {
	ID            uuid.UUID         `json:"id" db:"id"`
	UserID        int64             `json:"user_id" db:"user_id"`
	Type          TransactionType   `json:"type" db:"type"`
	Amount        decimal.Decimal   `json:"amount" db:"amount"` // positive = credit, negative = debit
	BalanceBefore decimal.Decimal   `json:"balance_before" db:"balance_before"`
	BalanceAfter  decimal.Decimal   `json:"balance_after" db:"balance_after"`
	Status        TransactionStatus `json:"status" db:"status"`
	Description   *string           `json:"description,omitempty" db:"description"`
	PaymentMethod *string           `json:"payment_method,omitempty" db:"payment_method"`
	PaymentID     *string           `json:"payment_id,omitempty" db:"payment_id"`

	// Typed tags used for dedup and audit lookups.
	ReferredUserID       *int64     `json:"referred_user_id,omitempty" db:"referred_user_id"`
	CertificateID        *uuid.UUID `json:"certificate_id,omitempty" db:"certificate_id"`
	RelatedTransactionID *uuid.UUID `json:"related_transaction_id,omitempty" db:"related_transaction_id"`

	Metadata  types.JSONText `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

// TransactionFilter narrows ledger listings.
type TransactionFilter struct {
	UserID int64
	Type   *TransactionType
	Status *TransactionStatus
	Limit  int
	Offset int
}
