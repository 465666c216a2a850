package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
)

// IsAdmin checks if a user is an admin
func (r *Repository) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	var count int
	err := r.get(ctx, &count, `SELECT COUNT(*) FROM admins WHERE user_id = $1`, userID)
	return count > 0, err
}

// BanUser records a ban by user id, IP address or both
func (r *Repository) BanUser(ctx context.Context, ban *model.BannedUser) error {
	if ban.ID == uuid.Nil {
		ban.ID = uuid.New()
	}
	ban.IsActive = true
	return r.q.QueryRowxContext(ctx, `
		INSERT INTO banned_users (id, user_id, ip_address, reason, banned_by, expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, true)
		RETURNING banned_at`,
		ban.ID, ban.UserID, ban.IPAddress, ban.Reason, ban.BannedBy, ban.ExpiresAt).Scan(&ban.BannedAt)
}

// UnbanUser unbans a user
func (r *Repository) UnbanUser(ctx context.Context, userID int64) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE banned_users SET is_active = false
		WHERE user_id = $1 AND is_active = true`, userID)
	return err
}

// UnbanIP unbans an IP address
func (r *Repository) UnbanIP(ctx context.Context, ip string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE banned_users SET is_active = false
		WHERE ip_address = $1 AND is_active = true`, ip)
	return err
}

// IsUserBanned checks if a user is banned
func (r *Repository) IsUserBanned(ctx context.Context, userID int64) (bool, error) {
	return r.activeBan(ctx, "user_id", userID)
}

// IsIPBanned checks if an IP address is banned
func (r *Repository) IsIPBanned(ctx context.Context, ip string) (bool, error) {
	return r.activeBan(ctx, "ip_address", ip)
}

func (r *Repository) activeBan(ctx context.Context, column string, value interface{}) (bool, error) {
	var ban model.BannedUser
	err := r.get(ctx, &ban, `
		SELECT * FROM banned_users
		WHERE `+column+` = $1 AND is_active = true
		ORDER BY banned_at DESC LIMIT 1`, value)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if ban.IsExpired() {
		// Deactivate expired ban
		_, _ = r.q.ExecContext(ctx, `UPDATE banned_users SET is_active = false WHERE id = $1`, ban.ID)
		return false, nil
	}
	return true, nil
}

// ListBannedUsers lists all active bans
func (r *Repository) ListBannedUsers(ctx context.Context, limit, offset int) ([]model.BannedUser, error) {
	var bans []model.BannedUser
	err := r.selectAll(ctx, &bans, `
		SELECT * FROM banned_users
		WHERE is_active = true
		ORDER BY banned_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	return bans, err
}

// CreateAdminLog creates an admin action log entry
func (r *Repository) CreateAdminLog(ctx context.Context, log *model.AdminLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.Details == nil {
		log.Details = []byte("{}")
	}
	return r.q.QueryRowxContext(ctx, `
		INSERT INTO admin_logs (id, admin_id, action, target_user_id, success, details)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		log.ID, log.AdminID, log.Action, log.TargetUserID, log.Success, log.Details).Scan(&log.CreatedAt)
}

// GetAdminLogs retrieves admin action logs
func (r *Repository) GetAdminLogs(ctx context.Context, limit, offset int) ([]model.AdminLog, error) {
	var logs []model.AdminLog
	err := r.selectAll(ctx, &logs, `
		SELECT * FROM admin_logs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	return logs, err
}

// GetAdminStats returns dashboard counters in one round trip
func (r *Repository) GetAdminStats(ctx context.Context) (*model.AdminStats, error) {
	var stats model.AdminStats
	startOfDay := time.Now().UTC().Truncate(24 * time.Hour)
	err := r.get(ctx, &stats, `
		SELECT
			(SELECT COUNT(*) FROM users) AS total_users,
			(SELECT COALESCE(SUM(balance), 0) FROM users) AS total_balance,
			(SELECT COALESCE(SUM(amount), 0) FROM transactions
				WHERE type = 'DEPOSIT' AND status = 'COMPLETED' AND created_at >= $1) AS deposits_today,
			(SELECT COUNT(*) FROM withdrawal_requests WHERE status IN ('PENDING', 'PROCESSING')) AS pending_withdrawals,
			(SELECT COUNT(*) FROM fraud_alerts WHERE status = 'OPEN') AS open_fraud_alerts,
			(SELECT COUNT(*) FROM banned_users WHERE is_active = true) AS banned_users,
			(SELECT COUNT(*) FROM promo_codes WHERE is_active = true) AS active_promo_codes`, startOfDay)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
