package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/repository"
)

type ReferralService struct {
	store    repository.Store
	logger   *zap.Logger
	notifier Notifier
}

func NewReferralService(store repository.Store, logger *zap.Logger) *ReferralService {
	return &ReferralService{store: store, logger: logger.Named("referral")}
}

// SetNotifier sets the notifier for sending notifications
func (s *ReferralService) SetNotifier(notifier Notifier) {
	s.notifier = notifier
}

// ApplyCode links userID to the owner of code. It is allowed once, and
// only before the user's first purchase.
func (s *ReferralService) ApplyCode(ctx context.Context, userID int64, code string) error {
	referrer, err := s.store.GetUserByReferralCode(ctx, normalizeCode(code))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrReferralCodeNotFound
		}
		return err
	}
	if referrer.ID == userID {
		return ErrSelfReferral
	}

	return s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		purchases, err := tx.CountCompleted(ctx, userID, model.TransactionTypePurchase)
		if err != nil {
			return err
		}
		if purchases > 0 {
			return ErrReferralAfterPurchase
		}

		if err := tx.SetReferredBy(ctx, userID, referrer.ID); err != nil {
			switch {
			case errors.Is(err, repository.ErrAlreadyReferred):
				return ErrAlreadyReferred
			case errors.Is(err, repository.ErrUserNotFound):
				return ErrUserNotFound
			}
			return err
		}
		err = tx.CreateReferral(ctx, &model.Referral{
			ReferrerID: referrer.ID,
			ReferredID: userID,
			Status:     model.ReferralStatusPending,
		})
		if errors.Is(err, repository.ErrDuplicate) {
			return ErrAlreadyReferred
		}
		return err
	})
}

// ReferralBonus is clamp(amount * percent / 100, 50, 500).
func ReferralBonus(amount, percent decimal.Decimal) decimal.Decimal {
	bonus := percentOf(amount, percent)
	lo := decimal.NewFromInt(model.ReferralBonusMin)
	hi := decimal.NewFromInt(model.ReferralBonusMax)
	if bonus.LessThan(lo) {
		return lo
	}
	if bonus.GreaterThan(hi) {
		return hi
	}
	return bonus
}

// ProcessPurchase pays the referrer of userID when orderAmount belongs to
// the user's first completed purchase. It returns the bonus paid, or nil.
func (s *ReferralService) ProcessPurchase(ctx context.Context, userID int64, orderAmount decimal.Decimal) (*decimal.Decimal, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if user.ReferredBy == nil {
		return nil, nil
	}

	purchases, err := s.store.CountCompleted(ctx, userID, model.TransactionTypePurchase)
	if err != nil {
		return nil, err
	}
	if purchases != 1 {
		return nil, nil
	}

	bonus := ReferralBonus(orderAmount.Abs(), s.bonusPercent(ctx))
	referrerID := *user.ReferredBy

	var paid bool
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		// The referrer's balance lock serializes concurrent triggers for the
		// same purchase before the duplicate check.
		if _, err := tx.LockUserBalance(ctx, referrerID); err != nil {
			return fmt.Errorf("lock referrer balance: %w", err)
		}
		exists, err := tx.HasReferralBonus(ctx, userID)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}

		if _, err := appendEntry(ctx, tx, Entry{
			UserID:         referrerID,
			Type:           model.TransactionTypeReferral,
			Amount:         bonus,
			Description:    fmt.Sprintf("Referral bonus for user #%d", userID),
			ReferredUserID: &userID,
		}); err != nil {
			return err
		}

		referral, err := tx.GetReferralByReferredID(ctx, userID)
		switch {
		case err == nil:
			if err := tx.CreditReferral(ctx, referral.ID, bonus); err != nil {
				return err
			}
		case !errors.Is(err, repository.ErrReferralNotFound):
			return err
		}
		paid = true
		return nil
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !paid {
		return nil, nil
	}

	s.logger.Info("referral bonus credited",
		zap.Int64("referrer_id", referrerID),
		zap.Int64("referred_id", userID),
		zap.String("bonus", bonus.String()))
	notifyUser(ctx, s.store, s.notifier, s.logger, referrerID, func(n Notifier, chatID int64) error {
		return n.SendReferralBonus(chatID, bonus)
	})
	return &bonus, nil
}

func (s *ReferralService) bonusPercent(ctx context.Context) decimal.Decimal {
	def := decimal.NewFromInt(model.DefaultReferralBonusPercent)
	raw, err := s.store.GetSetting(ctx, repository.SettingReferralBonusPercent)
	if err != nil {
		return def
	}
	pct, err := decimal.NewFromString(raw)
	if err != nil || pct.IsNegative() {
		s.logger.Warn("invalid referral bonus percent setting", zap.String("value", raw))
		return def
	}
	return pct
}

// ReferralInfo is the user's view of the referral program.
type ReferralInfo struct {
	ReferralCode string `json:"referral_code"`
	ReferredBy   *int64 `json:"referred_by,omitempty"`
	model.ReferralStats
}

func (s *ReferralService) GetReferralStats(ctx context.Context, userID int64) (*ReferralInfo, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	stats, err := s.store.GetReferralStats(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &ReferralInfo{
		ReferralCode:  user.ReferralCode,
		ReferredBy:    user.ReferredBy,
		ReferralStats: *stats,
	}, nil
}
