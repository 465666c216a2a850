package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
)

var ErrReferralNotFound = errors.New("referral not found")

func (r *Repository) CreateReferral(ctx context.Context, referral *model.Referral) error {
	if referral.ID == uuid.Nil {
		referral.ID = uuid.New()
	}
	if referral.Status == "" {
		referral.Status = model.ReferralStatusPending
	}
	query := `
		INSERT INTO referrals (id, referrer_id, referred_id, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	err := r.q.QueryRowxContext(ctx, query,
		referral.ID,
		referral.ReferrerID,
		referral.ReferredID,
		referral.Status,
	).Scan(&referral.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *Repository) GetReferralByReferredID(ctx context.Context, referredID int64) (*model.Referral, error) {
	var referral model.Referral
	query := "SELECT * FROM referrals WHERE referred_id = $1"
	err := r.get(ctx, &referral, query, referredID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReferralNotFound
		}
		return nil, err
	}
	return &referral, nil
}

func (r *Repository) CreditReferral(ctx context.Context, id uuid.UUID, bonus decimal.Decimal) error {
	query := `UPDATE referrals SET status = 'credited', bonus_amount = $2, credited_at = NOW() WHERE id = $1`
	return r.execOne(ctx, ErrReferralNotFound, query, id, bonus)
}

func (r *Repository) GetReferralStats(ctx context.Context, referrerID int64) (*model.ReferralStats, error) {
	stats := &model.ReferralStats{}

	err := r.get(ctx, &stats.TotalReferrals,
		"SELECT COUNT(*) FROM referrals WHERE referrer_id = $1", referrerID)
	if err != nil {
		return nil, err
	}

	err = r.get(ctx, &stats.PendingReferrals,
		"SELECT COUNT(*) FROM referrals WHERE referrer_id = $1 AND status = 'pending'", referrerID)
	if err != nil {
		return nil, err
	}

	err = r.get(ctx, &stats.CreditedBonus,
		"SELECT COALESCE(SUM(bonus_amount), 0) FROM referrals WHERE referrer_id = $1 AND status = 'credited'",
		referrerID)
	if err != nil {
		return nil, err
	}

	return stats, nil
}
