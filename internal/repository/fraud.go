package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
)

var ErrFraudAlertNotFound = errors.New("fraud alert not found")

func (r *Repository) HasRecentFraudAlert(ctx context.Context, userID int64, alertType model.FraudAlertType, since time.Time) (bool, error) {
	var exists bool
	err := r.get(ctx, &exists, `
		SELECT EXISTS(
			SELECT 1 FROM fraud_alerts
			WHERE user_id = $1 AND type = $2 AND created_at >= $3
		)`, userID, alertType, since)
	return exists, err
}

func (r *Repository) HasFraudAlertForIP(ctx context.Context, alertType model.FraudAlertType, ip string) (bool, error) {
	var exists bool
	err := r.get(ctx, &exists, `
		SELECT EXISTS(SELECT 1 FROM fraud_alerts WHERE type = $1 AND ip_address = $2)`, alertType, ip)
	return exists, err
}

func (r *Repository) CreateFraudAlert(ctx context.Context, alert *model.FraudAlert) error {
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	if alert.Status == "" {
		alert.Status = model.FraudAlertStatusOpen
	}
	if alert.Metadata == nil {
		alert.Metadata = []byte("{}")
	}
	return r.q.QueryRowxContext(ctx, `
		INSERT INTO fraud_alerts (id, user_id, type, severity, status, description, ip_address, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		alert.ID, alert.UserID, alert.Type, alert.Severity, alert.Status, alert.Description, alert.IPAddress, alert.Metadata,
	).Scan(&alert.CreatedAt)
}

func (r *Repository) ListFraudAlerts(ctx context.Context, status *model.FraudAlertStatus, limit, offset int) ([]model.FraudAlert, error) {
	var alerts []model.FraudAlert
	if status != nil {
		err := r.selectAll(ctx, &alerts, `
			SELECT * FROM fraud_alerts WHERE status = $1
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3`, *status, limit, offset)
		return alerts, err
	}
	err := r.selectAll(ctx, &alerts, `
		SELECT * FROM fraud_alerts
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	return alerts, err
}

func (r *Repository) ResolveFraudAlert(ctx context.Context, id uuid.UUID, status model.FraudAlertStatus, adminID int64) error {
	return r.execOne(ctx, ErrFraudAlertNotFound, `
		UPDATE fraud_alerts SET status = $2, resolved_by = $3, resolved_at = NOW()
		WHERE id = $1`, id, status, adminID)
}
