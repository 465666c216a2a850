package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type WithdrawalStatus string

const (
	WithdrawalStatusPending    WithdrawalStatus = "PENDING"
	WithdrawalStatusProcessing WithdrawalStatus = "PROCESSING"
	WithdrawalStatusCompleted  WithdrawalStatus = "COMPLETED"
	WithdrawalStatusRejected   WithdrawalStatus = "REJECTED"
)

type WithdrawalRequest struct {
	ID            uuid.UUID        `json:"id" db:"id"`
	UserID        int64            `json:"user_id" db:"user_id"`
	Amount        decimal.Decimal  `json:"amount" db:"amount"`
	Method        string           `json:"method" db:"method"`
	Details       string           `json:"details" db:"details"`
	Status        WithdrawalStatus `json:"status" db:"status"`
	AdminNote     *string          `json:"admin_note,omitempty" db:"admin_note"`
	ProcessedBy   *int64           `json:"processed_by,omitempty" db:"processed_by"`
	TransactionID *uuid.UUID       `json:"transaction_id,omitempty" db:"transaction_id"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at" db:"updated_at"`
}

// WithdrawalUpdate carries the fields stamped on a status transition.
type WithdrawalUpdate struct {
	AdminID       *int64
	Note          *string
	TransactionID *uuid.UUID
}

type WithdrawalFilter struct {
	UserID *int64
	Status *WithdrawalStatus
	Limit  int
	Offset int
}
