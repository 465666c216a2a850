package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrAlreadyReferred = errors.New("user already has a referrer")
)

func (r *Repository) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return r.getUserBy(ctx, "SELECT * FROM users WHERE id = $1", id)
}

func (r *Repository) GetUserByReferralCode(ctx context.Context, code string) (*model.User, error) {
	return r.getUserBy(ctx, "SELECT * FROM users WHERE referral_code = $1", code)
}

func (r *Repository) GetUserByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	return r.getUserBy(ctx, "SELECT * FROM users WHERE telegram_id = $1", telegramID)
}

func (r *Repository) getUserBy(ctx context.Context, query string, arg interface{}) (*model.User, error) {
	var user model.User
	err := r.get(ctx, &user, query, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// SetReferredBy stores the referrer once; later calls fail with ErrAlreadyReferred.
func (r *Repository) SetReferredBy(ctx context.Context, userID, referrerID int64) error {
	return r.execOne(ctx, ErrAlreadyReferred, `
		UPDATE users SET referred_by = $2, updated_at = NOW()
		WHERE id = $1 AND referred_by IS NULL`, userID, referrerID)
}

// ListUsers lists users with pagination and optional search
func (r *Repository) ListUsers(ctx context.Context, limit, offset int, search string) ([]model.User, int, error) {
	var users []model.User
	var total int

	if search != "" {
		searchPattern := "%" + search + "%"
		err := r.get(ctx, &total, `
			SELECT COUNT(*) FROM users
			WHERE username ILIKE $1 OR email ILIKE $1 OR CAST(id AS TEXT) LIKE $1`, searchPattern)
		if err != nil {
			return nil, 0, err
		}
		err = r.selectAll(ctx, &users, `
			SELECT * FROM users
			WHERE username ILIKE $1 OR email ILIKE $1 OR CAST(id AS TEXT) LIKE $1
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3`, searchPattern, limit, offset)
		return users, total, err
	}

	if err := r.get(ctx, &total, `SELECT COUNT(*) FROM users`); err != nil {
		return nil, 0, err
	}
	err := r.selectAll(ctx, &users, `
		SELECT * FROM users
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	return users, total, err
}

func (r *Repository) ListUserIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.selectAll(ctx, &ids, "SELECT id FROM users ORDER BY id")
	return ids, err
}

// TouchUserIP records that userID was seen behind ip.
func (r *Repository) TouchUserIP(ctx context.Context, userID int64, ip string) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO user_ips (user_id, ip_address, first_seen, last_seen)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (user_id, ip_address) DO UPDATE SET last_seen = NOW()`, userID, ip)
	return err
}

// ListSharedIPs returns addresses used by at least minUsers distinct users since the given time.
func (r *Repository) ListSharedIPs(ctx context.Context, since time.Time, minUsers int) ([]model.SharedIP, error) {
	var shared []model.SharedIP
	err := r.selectAll(ctx, &shared, `
		SELECT ip_address, COUNT(DISTINCT user_id) AS user_count, ARRAY_AGG(DISTINCT user_id ORDER BY user_id) AS user_ids
		FROM user_ips
		WHERE last_seen >= $1
		GROUP BY ip_address
		HAVING COUNT(DISTINCT user_id) >= $2
		ORDER BY user_count DESC`, since, minUsers)
	return shared, err
}
