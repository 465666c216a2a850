package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/repository"
)

type PlanService struct {
	store  repository.Store
	logger *zap.Logger
}

func NewPlanService(store repository.Store, logger *zap.Logger) *PlanService {
	return &PlanService{store: store, logger: logger.Named("plan")}
}

func (s *PlanService) GetPlan(ctx context.Context, id uuid.UUID) (*model.Plan, error) {
	plan, err := s.store.GetPlan(ctx, id)
	if errors.Is(err, repository.ErrPlanNotFound) {
		return nil, ErrPlanNotFound
	}
	return plan, err
}

func (s *PlanService) GetActivePlans(ctx context.Context) ([]model.Plan, error) {
	return s.store.ListPlans(ctx, true)
}

func (s *PlanService) GetAllPlans(ctx context.Context) ([]model.Plan, error) {
	return s.store.ListPlans(ctx, false)
}

// PlanParams is the admin form for creating or updating a plan. Nil
// fields are left unchanged on update.
type PlanParams struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Type        *model.PlanType  `json:"type"`
	Price       *decimal.Decimal `json:"price"`
	CPU         *int             `json:"cpu"`
	RAMMB       *int             `json:"ram_mb"`
	DiskGB      *int             `json:"disk_gb"`
	IsActive    *bool            `json:"is_active"`
	SortOrder   *int             `json:"sort_order"`
}

func (p PlanParams) apply(plan *model.Plan) error {
	if p.Name != nil {
		plan.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		plan.Description = *p.Description
	}
	if p.Type != nil {
		plan.Type = *p.Type
	}
	if p.Price != nil {
		plan.Price = money(*p.Price)
	}
	if p.CPU != nil {
		plan.CPU = *p.CPU
	}
	if p.RAMMB != nil {
		plan.RAMMB = *p.RAMMB
	}
	if p.DiskGB != nil {
		plan.DiskGB = *p.DiskGB
	}
	if p.IsActive != nil {
		plan.IsActive = *p.IsActive
	}
	if p.SortOrder != nil {
		plan.SortOrder = *p.SortOrder
	}

	if plan.Name == "" {
		return validationf("plan name is required")
	}
	if plan.Type != model.PlanTypeGame && plan.Type != model.PlanTypeVPS {
		return validationf("plan type must be %s or %s", model.PlanTypeGame, model.PlanTypeVPS)
	}
	if plan.Price.IsNegative() {
		return validationf("plan price must not be negative")
	}
	return nil
}

func (s *PlanService) CreatePlan(ctx context.Context, params PlanParams) (*model.Plan, error) {
	plan := &model.Plan{IsActive: true}
	if err := params.apply(plan); err != nil {
		return nil, err
	}
	if err := s.store.CreatePlan(ctx, plan); err != nil {
		return nil, err
	}
	s.logger.Info("plan created", zap.String("plan_id", plan.ID.String()), zap.String("name", plan.Name))
	return plan, nil
}

func (s *PlanService) UpdatePlan(ctx context.Context, id uuid.UUID, params PlanParams) (*model.Plan, error) {
	plan, err := s.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := params.apply(plan); err != nil {
		return nil, err
	}
	if err := s.store.UpdatePlan(ctx, plan); err != nil {
		if errors.Is(err, repository.ErrPlanNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return plan, nil
}

// DeletePlan soft-deletes a plan (sets is_active = false)
func (s *PlanService) DeletePlan(ctx context.Context, id uuid.UUID) error {
	inactive := false
	_, err := s.UpdatePlan(ctx, id, PlanParams{IsActive: &inactive})
	return err
}
