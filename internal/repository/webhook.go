package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
)

var ErrWebhookNotFound = errors.New("webhook not found")

func (r *Repository) CreateWebhook(ctx context.Context, w *model.Webhook) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return r.q.QueryRowxContext(ctx, `
		INSERT INTO webhooks (id, user_id, url, events, secret, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING fail_count, created_at, updated_at`,
		w.ID, w.UserID, w.URL, w.Events, w.Secret, w.IsActive,
	).Scan(&w.FailCount, &w.CreatedAt, &w.UpdatedAt)
}

func (r *Repository) GetWebhook(ctx context.Context, id uuid.UUID) (*model.Webhook, error) {
	var w model.Webhook
	err := r.get(ctx, &w, "SELECT * FROM webhooks WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWebhookNotFound
		}
		return nil, err
	}
	return &w, nil
}

func (r *Repository) ListWebhooks(ctx context.Context, userID int64) ([]model.Webhook, error) {
	var hooks []model.Webhook
	err := r.selectAll(ctx, &hooks, `
		SELECT * FROM webhooks WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	return hooks, err
}

func (r *Repository) ListActiveWebhooksForEvent(ctx context.Context, userID int64, event string) ([]model.Webhook, error) {
	var hooks []model.Webhook
	err := r.selectAll(ctx, &hooks, `
		SELECT * FROM webhooks
		WHERE user_id = $1 AND is_active = true AND $2 = ANY(events)`, userID, event)
	return hooks, err
}

func (r *Repository) DeleteWebhook(ctx context.Context, id uuid.UUID, userID int64) error {
	return r.execOne(ctx, ErrWebhookNotFound,
		"DELETE FROM webhooks WHERE id = $1 AND user_id = $2", id, userID)
}

func (r *Repository) RecordWebhookSuccess(ctx context.Context, id uuid.UUID) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE webhooks SET fail_count = 0, last_error = NULL, updated_at = NOW()
		WHERE id = $1`, id)
	return err
}

// RecordWebhookFailure bumps fail_count and deactivates the subscription once
// it reaches disableAt. It reports whether the subscription is now disabled.
func (r *Repository) RecordWebhookFailure(ctx context.Context, id uuid.UUID, reason string, disableAt int) (bool, error) {
	var active bool
	err := r.q.QueryRowxContext(ctx, `
		UPDATE webhooks SET
			fail_count = fail_count + 1,
			is_active = CASE WHEN fail_count + 1 >= $3 THEN false ELSE is_active END,
			last_error = $2,
			updated_at = NOW()
		WHERE id = $1
		RETURNING is_active`, id, reason, disableAt).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrWebhookNotFound
	}
	return !active, err
}

func (r *Repository) InsertWebhookLog(ctx context.Context, log *model.WebhookLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	return r.q.QueryRowxContext(ctx, `
		INSERT INTO webhook_logs (id, webhook_id, event, payload, response_code, response_body, success)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		log.ID, log.WebhookID, log.Event, log.Payload, log.ResponseCode, log.ResponseBody, log.Success,
	).Scan(&log.CreatedAt)
}

func (r *Repository) ListWebhookLogs(ctx context.Context, webhookID uuid.UUID, limit int) ([]model.WebhookLog, error) {
	var logs []model.WebhookLog
	err := r.selectAll(ctx, &logs, `
		SELECT * FROM webhook_logs
		WHERE webhook_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, webhookID, limit)
	return logs, err
}
