package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PlanType string

const (
	PlanTypeGame PlanType = "GAME"
	PlanTypeVPS  PlanType = "VPS"
)

type Plan struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description" db:"description"`
	Type        PlanType        `json:"type" db:"type"`
	Price       decimal.Decimal `json:"price" db:"price"`
	CPU         int             `json:"cpu" db:"cpu"`
	RAMMB       int             `json:"ram_mb" db:"ram_mb"`
	DiskGB      int             `json:"disk_gb" db:"disk_gb"`
	IsActive    bool            `json:"is_active" db:"is_active"`
	SortOrder   int             `json:"sort_order" db:"sort_order"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}
