package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
)

var ErrGiftCertificateNotFound = errors.New("gift certificate not found")

func (r *Repository) LockGiftCertificateByCode(ctx context.Context, code string) (*model.GiftCertificate, error) {
	var g model.GiftCertificate
	err := r.get(ctx, &g, `
		SELECT * FROM gift_certificates WHERE code = $1 FOR UPDATE`, strings.ToUpper(code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGiftCertificateNotFound
		}
		return nil, err
	}
	return &g, nil
}

// MarkGiftCertificateRedeemed zeroes the remaining balance and stamps the redeemer.
func (r *Repository) MarkGiftCertificateRedeemed(ctx context.Context, id uuid.UUID, userID int64, at time.Time) error {
	return r.execOne(ctx, ErrGiftCertificateNotFound, `
		UPDATE gift_certificates
		SET balance = 0, redeemed_by_id = $2, redeemed_at = $3
		WHERE id = $1`, id, userID, at)
}

func (r *Repository) CreateGiftCertificate(ctx context.Context, g *model.GiftCertificate) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	g.Code = strings.ToUpper(g.Code)
	err := r.q.QueryRowxContext(ctx, `
		INSERT INTO gift_certificates (id, code, amount, balance, is_active, redeemed_by_id, expires_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		g.ID, g.Code, g.Amount, g.Balance, g.IsActive, g.RedeemedByID, g.ExpiresAt, g.CreatedBy,
	).Scan(&g.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *Repository) ListGiftCertificates(ctx context.Context, limit, offset int) ([]model.GiftCertificate, error) {
	var certs []model.GiftCertificate
	err := r.selectAll(ctx, &certs, `
		SELECT * FROM gift_certificates
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	return certs, err
}
