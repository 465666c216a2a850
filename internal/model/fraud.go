package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
)

type FraudAlertType string

const (
	FraudAlertVelocity          FraudAlertType = "VELOCITY"
	FraudAlertSuspiciousPayment FraudAlertType = "SUSPICIOUS_PAYMENT"
	FraudAlertMultipleAccounts  FraudAlertType = "MULTIPLE_ACCOUNTS"
)

type FraudSeverity string

const (
	FraudSeverityLow    FraudSeverity = "LOW"
	FraudSeverityMedium FraudSeverity = "MEDIUM"
	FraudSeverityHigh   FraudSeverity = "HIGH"
)

type FraudAlertStatus string

const (
	FraudAlertStatusOpen      FraudAlertStatus = "OPEN"
	FraudAlertStatusResolved  FraudAlertStatus = "RESOLVED"
	FraudAlertStatusDismissed FraudAlertStatus = "DISMISSED"
)

type FraudAlert struct {
	ID          uuid.UUID        `json:"id" db:"id"`
	UserID      *int64           `json:"user_id,omitempty" db:"user_id"`
	Type        FraudAlertType   `json:"type" db:"type"`
	Severity    FraudSeverity    `json:"severity" db:"severity"`
	Status      FraudAlertStatus `json:"status" db:"status"`
	Description string           `json:"description" db:"description"`
	IPAddress   *string          `json:"ip_address,omitempty" db:"ip_address"`
	Metadata    types.JSONText   `json:"metadata,omitempty" db:"metadata"`
	ResolvedBy  *int64           `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolvedAt  *time.Time       `json:"resolved_at,omitempty" db:"resolved_at"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
}

// VelocityHit is a user with a burst of ledger activity.
type VelocityHit struct {
	UserID           int64 `db:"user_id"`
	TransactionCount int   `db:"transaction_count"`
}
