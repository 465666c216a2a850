package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
)

var (
	ErrVolumeDiscountNotFound = errors.New("volume discount not found")
	ErrUserDiscountNotFound   = errors.New("user discount not cached")
)

func (r *Repository) ListVolumeDiscounts(ctx context.Context, activeOnly bool) ([]model.VolumeDiscount, error) {
	var tiers []model.VolumeDiscount
	query := "SELECT * FROM volume_discounts ORDER BY min_amount ASC"
	if activeOnly {
		query = "SELECT * FROM volume_discounts WHERE is_active = true ORDER BY min_amount ASC"
	}
	err := r.selectAll(ctx, &tiers, query)
	return tiers, err
}

func (r *Repository) CreateVolumeDiscount(ctx context.Context, d *model.VolumeDiscount) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	err := r.q.QueryRowxContext(ctx, `
		INSERT INTO volume_discounts (id, name, min_amount, discount_percent, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`, d.ID, d.Name, d.MinAmount, d.DiscountPercent, d.IsActive).Scan(&d.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *Repository) DeleteVolumeDiscount(ctx context.Context, id uuid.UUID) error {
	return r.execOne(ctx, ErrVolumeDiscountNotFound, "DELETE FROM volume_discounts WHERE id = $1", id)
}

func (r *Repository) GetUserDiscount(ctx context.Context, userID int64) (*model.UserDiscount, error) {
	var d model.UserDiscount
	err := r.get(ctx, &d, "SELECT * FROM user_discounts WHERE user_id = $1", userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserDiscountNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *Repository) UpsertUserDiscount(ctx context.Context, d *model.UserDiscount) error {
	return r.q.QueryRowxContext(ctx, `
		INSERT INTO user_discounts (user_id, total_spent, discount_percent, discount_tier, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			total_spent = EXCLUDED.total_spent,
			discount_percent = EXCLUDED.discount_percent,
			discount_tier = EXCLUDED.discount_tier,
			updated_at = NOW()
		RETURNING updated_at`, d.UserID, d.TotalSpent, d.DiscountPercent, d.DiscountTier).Scan(&d.UpdatedAt)
}
