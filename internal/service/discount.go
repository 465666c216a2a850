package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/repository"
)

// DiscountService derives volume discount tiers from completed deposits
// and caches the result per user.
type DiscountService struct {
	store  repository.Store
	logger *zap.Logger
}

func NewDiscountService(store repository.Store, logger *zap.Logger) *DiscountService {
	return &DiscountService{store: store, logger: logger.Named("discount")}
}

// GetUserDiscount returns the cached tier, computing it on first access.
func (s *DiscountService) GetUserDiscount(ctx context.Context, userID int64) (*model.UserDiscount, error) {
	d, err := s.store.GetUserDiscount(ctx, userID)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, repository.ErrUserDiscountNotFound) {
		return nil, err
	}
	return s.Refresh(ctx, userID)
}

// Refresh recomputes the user's tier. It runs after every completed deposit.
func (s *DiscountService) Refresh(ctx context.Context, userID int64) (*model.UserDiscount, error) {
	return refreshDiscount(ctx, s.store, userID)
}

func refreshDiscount(ctx context.Context, st repository.Store, userID int64) (*model.UserDiscount, error) {
	total, err := st.SumCompleted(ctx, userID, model.TransactionTypeDeposit, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("sum deposits: %w", err)
	}
	tiers, err := st.ListVolumeDiscounts(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list tiers: %w", err)
	}

	d := &model.UserDiscount{UserID: userID, TotalSpent: total, DiscountPercent: decimal.Zero}
	if tier := tierFor(tiers, total); tier != nil {
		d.DiscountPercent = tier.DiscountPercent
		d.DiscountTier = &tier.ID
	}
	if err := st.UpsertUserDiscount(ctx, d); err != nil {
		return nil, fmt.Errorf("cache discount: %w", err)
	}
	return d, nil
}

// tierFor picks the tier with the highest MinAmount not above total.
func tierFor(tiers []model.VolumeDiscount, total decimal.Decimal) *model.VolumeDiscount {
	var best *model.VolumeDiscount
	for i := range tiers {
		t := &tiers[i]
		if t.MinAmount.GreaterThan(total) {
			continue
		}
		if best == nil || t.MinAmount.GreaterThan(best.MinAmount) {
			best = t
		}
	}
	return best
}

func (s *DiscountService) ListTiers(ctx context.Context, activeOnly bool) ([]model.VolumeDiscount, error) {
	return s.store.ListVolumeDiscounts(ctx, activeOnly)
}

type VolumeTierInput struct {
	Name            string          `json:"name"`
	MinAmount       decimal.Decimal `json:"min_amount"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
}

func (s *DiscountService) CreateTier(ctx context.Context, in VolumeTierInput) (*model.VolumeDiscount, error) {
	if in.Name == "" {
		return nil, validationf("tier name is required")
	}
	if in.MinAmount.IsNegative() {
		return nil, validationf("min_amount cannot be negative")
	}
	if !in.DiscountPercent.IsPositive() || in.DiscountPercent.GreaterThan(decimal.NewFromInt(100)) {
		return nil, validationf("discount_percent must be in (0, 100]")
	}

	tier := &model.VolumeDiscount{
		Name:            in.Name,
		MinAmount:       in.MinAmount,
		DiscountPercent: in.DiscountPercent,
		IsActive:        true,
	}
	if err := s.store.CreateVolumeDiscount(ctx, tier); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrVolumeTierExists
		}
		return nil, err
	}
	return tier, nil
}

func (s *DiscountService) DeleteTier(ctx context.Context, id uuid.UUID) error {
	err := s.store.DeleteVolumeDiscount(ctx, id)
	if errors.Is(err, repository.ErrVolumeDiscountNotFound) {
		return ErrVolumeTierNotFound
	}
	return err
}
