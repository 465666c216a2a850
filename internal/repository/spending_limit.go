package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
)

var ErrSpendingLimitNotFound = errors.New("spending limit not set")

func (r *Repository) GetSpendingLimit(ctx context.Context, userID int64) (*model.SpendingLimit, error) {
	var limit model.SpendingLimit
	err := r.get(ctx, &limit, "SELECT * FROM spending_limits WHERE user_id = $1", userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSpendingLimitNotFound
		}
		return nil, err
	}
	return &limit, nil
}

func (r *Repository) UpsertSpendingLimit(ctx context.Context, limit *model.SpendingLimit) error {
	return r.q.QueryRowxContext(ctx, `
		INSERT INTO spending_limits (user_id, daily_limit, monthly_limit, alert_at, is_enabled, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			daily_limit = EXCLUDED.daily_limit,
			monthly_limit = EXCLUDED.monthly_limit,
			alert_at = EXCLUDED.alert_at,
			is_enabled = EXCLUDED.is_enabled,
			updated_at = NOW()
		RETURNING updated_at`,
		limit.UserID, limit.DailyLimit, limit.MonthlyLimit, limit.AlertAt, limit.IsEnabled,
	).Scan(&limit.UpdatedAt)
}
