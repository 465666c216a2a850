package model

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type User struct {
	ID           int64           `json:"id" db:"id"`
	Email        *string         `json:"email,omitempty" db:"email"`
	Username     *string         `json:"username,omitempty" db:"username"`
	TelegramID   *int64          `json:"telegram_id,omitempty" db:"telegram_id"`
	ReferralCode string          `json:"referral_code" db:"referral_code"`
	ReferredBy   *int64          `json:"referred_by,omitempty" db:"referred_by"`
	Balance      decimal.Decimal `json:"balance" db:"balance"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// UserIP is one (user, address) pair seen on an authenticated request.
type UserIP struct {
	UserID    int64     `json:"user_id" db:"user_id"`
	IPAddress string    `json:"ip_address" db:"ip_address"`
	FirstSeen time.Time `json:"first_seen" db:"first_seen"`
	LastSeen  time.Time `json:"last_seen" db:"last_seen"`
}

// SharedIP groups distinct users seen behind the same address.
type SharedIP struct {
	IPAddress string        `json:"ip_address" db:"ip_address"`
	UserCount int           `json:"user_count" db:"user_count"`
	UserIDs   pq.Int64Array `json:"user_ids" db:"user_ids"`
}
