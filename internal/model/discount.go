package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// VolumeDiscount is one spend tier.
type VolumeDiscount struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	Name            string          `json:"name" db:"name"`
	MinAmount       decimal.Decimal `json:"min_amount" db:"min_amount"`
	DiscountPercent decimal.Decimal `json:"discount_percent" db:"discount_percent"`
	IsActive        bool            `json:"is_active" db:"is_active"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// UserDiscount caches the tier a user has reached.
type UserDiscount struct {
	UserID          int64           `json:"user_id" db:"user_id"`
	TotalSpent      decimal.Decimal `json:"total_spent" db:"total_spent"`
	DiscountPercent decimal.Decimal `json:"discount_percent" db:"discount_percent"`
	DiscountTier    *uuid.UUID      `json:"discount_tier,omitempty" db:"discount_tier"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}
