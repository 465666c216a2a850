package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
)

var (
	ErrPromoCodeNotFound  = errors.New("promo code not found")
	ErrPromoCodeExhausted = errors.New("promo code usage limit reached")
)

// GetPromoCodeByCode retrieves a promo code by its code string
func (r *Repository) GetPromoCodeByCode(ctx context.Context, code string) (*model.PromoCode, error) {
	var promo model.PromoCode
	err := r.get(ctx, &promo, `
		SELECT * FROM promo_codes WHERE code = $1`, strings.ToUpper(code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPromoCodeNotFound
		}
		return nil, err
	}
	return &promo, nil
}

// LockPromoCode serializes redemptions of one code for the rest of the transaction.
func (r *Repository) LockPromoCode(ctx context.Context, id uuid.UUID) (*model.PromoCode, error) {
	var promo model.PromoCode
	err := r.get(ctx, &promo, `
		SELECT * FROM promo_codes WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPromoCodeNotFound
		}
		return nil, err
	}
	return &promo, nil
}

// CountPromoCodeUses counts how many times a user redeemed a promo code
func (r *Repository) CountPromoCodeUses(ctx context.Context, promoCodeID uuid.UUID, userID int64) (int, error) {
	var count int
	err := r.get(ctx, &count, `
		SELECT COUNT(*) FROM promo_code_uses
		WHERE promo_code_id = $1 AND user_id = $2`, promoCodeID, userID)
	return count, err
}

// IncrementPromoCodeUsage bumps used_count only while it is below max_uses.
func (r *Repository) IncrementPromoCodeUsage(ctx context.Context, id uuid.UUID) error {
	return r.execOne(ctx, ErrPromoCodeExhausted, `
		UPDATE promo_codes SET used_count = used_count + 1
		WHERE id = $1 AND (max_uses IS NULL OR used_count < max_uses)`, id)
}

func (r *Repository) InsertPromoCodeUse(ctx context.Context, use *model.PromoCodeUse) error {
	if use.ID == uuid.Nil {
		use.ID = uuid.New()
	}
	err := r.q.QueryRowxContext(ctx, `
		INSERT INTO promo_code_uses (id, promo_code_id, user_id, amount)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`, use.ID, use.PromoCodeID, use.UserID, use.Amount).Scan(&use.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record promo code use: %w", err)
	}
	return nil
}

// CreatePromoCode creates a new promo code (for admin use)
func (r *Repository) CreatePromoCode(ctx context.Context, promo *model.PromoCode) error {
	if promo.ID == uuid.Nil {
		promo.ID = uuid.New()
	}
	promo.Code = strings.ToUpper(promo.Code)
	if promo.PlanTypes == nil {
		promo.PlanTypes = []string{}
	}
	err := r.q.QueryRowxContext(ctx, `
		INSERT INTO promo_codes (id, code, type, value, min_amount, max_uses, max_uses_per_user,
			valid_from, valid_until, plan_types, is_active, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING used_count, created_at`,
		promo.ID, promo.Code, promo.Type, promo.Value, promo.MinAmount, promo.MaxUses, promo.MaxUsesPerUser,
		promo.ValidFrom, promo.ValidUntil, promo.PlanTypes, promo.IsActive, promo.Description,
	).Scan(&promo.UsedCount, &promo.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// ListPromoCodes lists all promo codes (for admin use)
func (r *Repository) ListPromoCodes(ctx context.Context, limit, offset int) ([]model.PromoCode, error) {
	var promos []model.PromoCode
	err := r.selectAll(ctx, &promos, `
		SELECT * FROM promo_codes
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	return promos, err
}

// DeactivatePromoCode deactivates a promo code
func (r *Repository) DeactivatePromoCode(ctx context.Context, code string) error {
	return r.execOne(ctx, ErrPromoCodeNotFound, `
		UPDATE promo_codes SET is_active = false WHERE code = $1`, strings.ToUpper(code))
}
