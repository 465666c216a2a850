package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ReferralStatus string

const (
	ReferralStatusPending  ReferralStatus = "pending"
	ReferralStatusCredited ReferralStatus = "credited"
)

type Referral struct {
	ID          uuid.UUID        `json:"id" db:"id"`
	ReferrerID  int64            `json:"referrer_id" db:"referrer_id"`
	ReferredID  int64            `json:"referred_id" db:"referred_id"`
	BonusAmount *decimal.Decimal `json:"bonus_amount,omitempty" db:"bonus_amount"`
	Status      ReferralStatus   `json:"status" db:"status"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	CreditedAt  *time.Time       `json:"credited_at,omitempty" db:"credited_at"`
}

type ReferralStats struct {
	TotalReferrals   int             `json:"total_referrals"`
	PendingReferrals int             `json:"pending_referrals"`
	CreditedBonus    decimal.Decimal `json:"credited_bonus"`
}

// Referral bonus: percent of the first purchase, clamped to [min, max].
const (
	DefaultReferralBonusPercent = 10
	ReferralBonusMin            = 50
	ReferralBonusMax            = 500
)
