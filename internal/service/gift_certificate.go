package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/repository"
)

type GiftCertificateService struct {
	store  repository.Store
	logger *zap.Logger
	now    func() time.Time
}

func NewGiftCertificateService(store repository.Store, logger *zap.Logger) *GiftCertificateService {
	return &GiftCertificateService{store: store, logger: logger.Named("gift"), now: time.Now}
}

type RedeemResult struct {
	Amount     decimal.Decimal `json:"amount"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// Redeem credits the whole remaining certificate balance to userID and
// zeroes the certificate. A second redemption by the same user fails with
// ErrGiftAlreadyRedeemed, by anyone else with ErrGiftRedeemedByOther.
func (s *GiftCertificateService) Redeem(ctx context.Context, code string, userID int64) (*RedeemResult, error) {
	var result *RedeemResult
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		cert, err := tx.LockGiftCertificateByCode(ctx, normalizeCode(code))
		if err != nil {
			if errors.Is(err, repository.ErrGiftCertificateNotFound) {
				return ErrGiftNotFound
			}
			return fmt.Errorf("lock gift certificate: %w", err)
		}

		now := s.now()
		switch {
		case !cert.IsActive:
			return ErrGiftInactive
		case cert.RedeemedByID != nil && *cert.RedeemedByID != userID:
			return ErrGiftRedeemedByOther
		case !cert.Balance.IsPositive():
			return ErrGiftAlreadyRedeemed
		case cert.IsExpired(now):
			return ErrGiftExpired
		}

		t, err := appendEntry(ctx, tx, Entry{
			UserID:        userID,
			Type:          model.TransactionTypeBonus,
			Amount:        cert.Balance,
			Description:   fmt.Sprintf("Gift certificate %s", cert.Code),
			CertificateID: &cert.ID,
		})
		if err != nil {
			return err
		}
		if err := tx.MarkGiftCertificateRedeemed(ctx, cert.ID, userID, now); err != nil {
			return fmt.Errorf("mark certificate redeemed: %w", err)
		}

		result = &RedeemResult{Amount: t.Amount, NewBalance: t.BalanceAfter}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("gift certificate redeemed",
		zap.Int64("user_id", userID), zap.String("amount", result.Amount.String()))
	return result, nil
}

// GiftCertificateInput is the admin form for issuing a certificate. An
// empty Code is generated.
type GiftCertificateInput struct {
	Code      string          `json:"code"`
	Amount    decimal.Decimal `json:"amount"`
	ExpiresAt *time.Time      `json:"expires_at"`
}

func (s *GiftCertificateService) Create(ctx context.Context, adminID int64, in GiftCertificateInput) (*model.GiftCertificate, error) {
	if !in.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if in.ExpiresAt != nil && in.ExpiresAt.Before(s.now()) {
		return nil, validationf("expires_at is in the past")
	}

	code := normalizeCode(in.Code)
	if code == "" {
		a, err := randomCode(4)
		if err != nil {
			return nil, err
		}
		b, err := randomCode(4)
		if err != nil {
			return nil, err
		}
		code = "GIFT-" + a + "-" + b
	}

	cert := &model.GiftCertificate{
		Code:      code,
		Amount:    money(in.Amount),
		Balance:   money(in.Amount),
		IsActive:  true,
		ExpiresAt: in.ExpiresAt,
		CreatedBy: &adminID,
	}
	if err := s.store.CreateGiftCertificate(ctx, cert); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrGiftCodeExists
		}
		return nil, err
	}
	return cert, nil
}

func (s *GiftCertificateService) List(ctx context.Context, limit, offset int) ([]model.GiftCertificate, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListGiftCertificates(ctx, limit, offset)
}
