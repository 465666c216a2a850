package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type SpendingLimit struct {
	UserID       int64            `json:"user_id" db:"user_id"`
	DailyLimit   *decimal.Decimal `json:"daily_limit,omitempty" db:"daily_limit"`
	MonthlyLimit *decimal.Decimal `json:"monthly_limit,omitempty" db:"monthly_limit"`
	AlertAt      int              `json:"alert_at" db:"alert_at"` // percent of a limit
	IsEnabled    bool             `json:"is_enabled" db:"is_enabled"`
	UpdatedAt    time.Time        `json:"updated_at" db:"updated_at"`
}

type SpendingStats struct {
	Limit          *SpendingLimit   `json:"limit,omitempty"`
	SpentToday     decimal.Decimal  `json:"spent_today"`
	SpentMonth     decimal.Decimal  `json:"spent_month"`
	DailyPercent   *decimal.Decimal `json:"daily_percent,omitempty"`
	MonthlyPercent *decimal.Decimal `json:"monthly_percent,omitempty"`
}
