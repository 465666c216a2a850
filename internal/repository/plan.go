package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
)

var ErrPlanNotFound = errors.New("plan not found")

func (r *Repository) GetPlan(ctx context.Context, id uuid.UUID) (*model.Plan, error) {
	var plan model.Plan
	err := r.get(ctx, &plan, "SELECT * FROM plans WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return &plan, nil
}

func (r *Repository) ListPlans(ctx context.Context, activeOnly bool) ([]model.Plan, error) {
	var plans []model.Plan
	query := "SELECT * FROM plans ORDER BY sort_order ASC"
	if activeOnly {
		query = "SELECT * FROM plans WHERE is_active = true ORDER BY sort_order ASC"
	}
	err := r.selectAll(ctx, &plans, query)
	return plans, err
}

// CreatePlan creates a new plan
func (r *Repository) CreatePlan(ctx context.Context, plan *model.Plan) error {
	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	query := `
		INSERT INTO plans (id, name, description, type, price, cpu, ram_mb, disk_gb, is_active, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`

	return r.q.QueryRowxContext(ctx, query,
		plan.ID, plan.Name, plan.Description, plan.Type, plan.Price,
		plan.CPU, plan.RAMMB, plan.DiskGB, plan.IsActive, plan.SortOrder,
	).Scan(&plan.CreatedAt)
}

// UpdatePlan writes every mutable column of plan
func (r *Repository) UpdatePlan(ctx context.Context, plan *model.Plan) error {
	query := `
		UPDATE plans SET
			name = $2,
			description = $3,
			type = $4,
			price = $5,
			cpu = $6,
			ram_mb = $7,
			disk_gb = $8,
			is_active = $9,
			sort_order = $10
		WHERE id = $1`

	return r.execOne(ctx, ErrPlanNotFound, query,
		plan.ID,
		plan.Name,
		plan.Description,
		plan.Type,
		plan.Price,
		plan.CPU,
		plan.RAMMB,
		plan.DiskGB,
		plan.IsActive,
		plan.SortOrder,
	)
}
