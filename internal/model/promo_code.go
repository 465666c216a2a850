package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type PromoCodeType string

const (
	PromoCodeTypePercent PromoCodeType = "PERCENT" // Percent off the order total
	PromoCodeTypeFixed   PromoCodeType = "FIXED"   // Flat amount off the order total
	PromoCodeTypeBalance PromoCodeType = "BALANCE" // Credited to balance on apply
)

func (t PromoCodeType) Valid() bool {
	return t == PromoCodeTypePercent || t == PromoCodeTypeFixed || t == PromoCodeTypeBalance
}

type PromoCode struct {
	ID             uuid.UUID        `json:"id" db:"id"`
	Code           string           `json:"code" db:"code"`
	Type           PromoCodeType    `json:"type" db:"type"`
	Value          decimal.Decimal  `json:"value" db:"value"`
	MinAmount      *decimal.Decimal `json:"min_amount,omitempty" db:"min_amount"`
	MaxUses        *int             `json:"max_uses,omitempty" db:"max_uses"`
	MaxUsesPerUser int              `json:"max_uses_per_user" db:"max_uses_per_user"`
	UsedCount      int              `json:"used_count" db:"used_count"`
	ValidFrom      *time.Time       `json:"valid_from,omitempty" db:"valid_from"`
	ValidUntil     *time.Time       `json:"valid_until,omitempty" db:"valid_until"`
	PlanTypes      pq.StringArray   `json:"plan_types" db:"plan_types"`
	IsActive       bool             `json:"is_active" db:"is_active"`
	Description    *string          `json:"description,omitempty" db:"description"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
}

// AppliesToPlan reports whether the code is usable for planType.
// An empty PlanTypes list means every plan type.
func (p *PromoCode) AppliesToPlan(planType string) bool {
	if len(p.PlanTypes) == 0 || planType == "" {
		return true
	}
	for _, t := range p.PlanTypes {
		if t == planType {
			return true
		}
	}
	return false
}

type PromoCodeUse struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	PromoCodeID uuid.UUID       `json:"promo_code_id" db:"promo_code_id"`
	UserID      int64           `json:"user_id" db:"user_id"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}
