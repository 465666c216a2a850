package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type GiftCertificate struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	Code         string          `json:"code" db:"code"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	Balance      decimal.Decimal `json:"balance" db:"balance"`
	IsActive     bool            `json:"is_active" db:"is_active"`
	RedeemedByID *int64          `json:"redeemed_by_id,omitempty" db:"redeemed_by_id"`
	RedeemedAt   *time.Time      `json:"redeemed_at,omitempty" db:"redeemed_at"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty" db:"expires_at"`
	CreatedBy    *int64          `json:"created_by,omitempty" db:"created_by"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// IsExpired checks if the certificate has passed its expiry
func (g *GiftCertificate) IsExpired(now time.Time) bool {
	return g.ExpiresAt != nil && now.After(*g.ExpiresAt)
}
