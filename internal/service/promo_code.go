package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/repository"
)

type PromoCodeService struct {
	store  repository.Store
	logger *zap.Logger
	now    func() time.Time
}

func NewPromoCodeService(store repository.Store, logger *zap.Logger) *PromoCodeService {
	return &PromoCodeService{store: store, logger: logger.Named("promo"), now: time.Now}
}

// PromoValidation is the answer to a validation request. Error is set
// when Valid is false.
type PromoValidation struct {
	Valid     bool             `json:"valid"`
	Error     string           `json:"error,omitempty"`
	PromoCode *model.PromoCode `json:"promo_code,omitempty"`
	Discount  decimal.Decimal  `json:"discount"`
}

// Validate runs the promo code rules for userID without redeeming it.
// A failed rule is reported in the result, not as an error.
func (s *PromoCodeService) Validate(ctx context.Context, code string, userID int64, orderAmount *decimal.Decimal, planType string) (*PromoValidation, error) {
	promo, err := s.store.GetPromoCodeByCode(ctx, normalizeCode(code))
	if err == nil {
		err = s.check(ctx, s.store, promo, userID, orderAmount, planType)
	} else if errors.Is(err, repository.ErrPromoCodeNotFound) {
		err = ErrPromoCodeNotFound
	}

	if err != nil {
		switch KindOf(err) {
		case KindValidation, KindNotFound:
			return &PromoValidation{Valid: false, Error: err.Error(), Discount: decimal.Zero}, nil
		}
		return nil, err
	}

	return &PromoValidation{
		Valid:     true,
		PromoCode: promo,
		Discount:  promoDiscount(promo, orderAmount),
	}, nil
}

// check applies the rules in order and stops at the first failure.
func (s *PromoCodeService) check(ctx context.Context, st repository.Store, promo *model.PromoCode, userID int64, orderAmount *decimal.Decimal, planType string) error {
	now := s.now()

	if !promo.IsActive {
		return ErrPromoCodeInactive
	}
	if promo.ValidFrom != nil && now.Before(*promo.ValidFrom) {
		return ErrPromoCodeNotStarted
	}
	if promo.ValidUntil != nil && now.After(*promo.ValidUntil) {
		return ErrPromoCodeExpired
	}
	if promo.MaxUses != nil && promo.UsedCount >= *promo.MaxUses {
		return ErrPromoCodeUsageLimit
	}

	uses, err := st.CountPromoCodeUses(ctx, promo.ID, userID)
	if err != nil {
		return fmt.Errorf("count promo uses: %w", err)
	}
	perUser := promo.MaxUsesPerUser
	if perUser <= 0 {
		perUser = 1
	}
	if uses >= perUser {
		return ErrPromoCodeAlreadyUsed
	}

	if orderAmount != nil && promo.MinAmount != nil && orderAmount.LessThan(*promo.MinAmount) {
		return fmt.Errorf("%w: minimum amount is %s", ErrPromoCodeMinAmount, promo.MinAmount.StringFixed(2))
	}
	if !promo.AppliesToPlan(planType) {
		return ErrPromoCodeWrongPlan
	}
	return nil
}

// promoDiscount is FIXED -> min(value, order), PERCENT -> order*value/100,
// BALANCE -> value.
func promoDiscount(promo *model.PromoCode, orderAmount *decimal.Decimal) decimal.Decimal {
	switch promo.Type {
	case model.PromoCodeTypeFixed:
		if orderAmount == nil {
			return promo.Value
		}
		return decimal.Min(promo.Value, *orderAmount)
	case model.PromoCodeTypePercent:
		if orderAmount == nil {
			return decimal.Zero
		}
		return percentOf(*orderAmount, promo.Value)
	case model.PromoCodeTypeBalance:
		return promo.Value
	}
	return decimal.Zero
}

// ApplyResult holds the result of applying a promo code
type ApplyResult struct {
	Type       model.PromoCodeType `json:"type"`
	Value      decimal.Decimal     `json:"value"`
	Discount   decimal.Decimal     `json:"discount"`
	NewBalance *decimal.Decimal    `json:"new_balance,omitempty"`
	Message    string              `json:"message"`
}

// Apply redeems a BALANCE code immediately. PERCENT and FIXED codes are
// only validated here; they are redeemed with the purchase they discount.
func (s *PromoCodeService) Apply(ctx context.Context, code string, userID int64, orderAmount *decimal.Decimal, planType string) (*ApplyResult, error) {
	code = normalizeCode(code)
	promo, err := s.store.GetPromoCodeByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrPromoCodeNotFound) {
			return nil, ErrPromoCodeNotFound
		}
		return nil, err
	}

	if promo.Type != model.PromoCodeTypeBalance {
		if err := s.check(ctx, s.store, promo, userID, orderAmount, planType); err != nil {
			return nil, err
		}
		discount := promoDiscount(promo, orderAmount)
		return &ApplyResult{
			Type:     promo.Type,
			Value:    promo.Value,
			Discount: discount,
			Message:  "Promo code is valid and will be applied at checkout",
		}, nil
	}

	var t *model.Transaction
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		redeemed, amount, err := s.redeem(ctx, tx, code, userID, nil, "")
		if err != nil {
			return err
		}
		t, err = appendEntry(ctx, tx, Entry{
			UserID:      userID,
			Type:        model.TransactionTypePromocode,
			Amount:      amount,
			Description: fmt.Sprintf("Promo code %s", redeemed.Code),
			Metadata:    map[string]interface{}{"promo_code_id": redeemed.ID.String()},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("balance promo code applied",
		zap.Int64("user_id", userID), zap.String("code", code), zap.String("amount", t.Amount.String()))

	return &ApplyResult{
		Type:       promo.Type,
		Value:      promo.Value,
		Discount:   t.Amount,
		NewBalance: &t.BalanceAfter,
		Message:    fmt.Sprintf("%s credited to your balance", t.Amount.StringFixed(2)),
	}, nil
}

// redeem locks the code, re-runs the rules under the lock, takes one use
// from the global counter and records the per-user use. It must run
// inside WithTx. The returned amount is the discount (or credit).
func (s *PromoCodeService) redeem(ctx context.Context, tx repository.Store, code string, userID int64, orderAmount *decimal.Decimal, planType string) (*model.PromoCode, decimal.Decimal, error) {
	found, err := tx.GetPromoCodeByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrPromoCodeNotFound) {
			return nil, decimal.Zero, ErrPromoCodeNotFound
		}
		return nil, decimal.Zero, err
	}
	promo, err := tx.LockPromoCode(ctx, found.ID)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("lock promo code: %w", err)
	}

	if err := s.check(ctx, tx, promo, userID, orderAmount, planType); err != nil {
		return nil, decimal.Zero, err
	}

	if err := tx.IncrementPromoCodeUsage(ctx, promo.ID); err != nil {
		if errors.Is(err, repository.ErrPromoCodeExhausted) {
			return nil, decimal.Zero, ErrPromoCodeUsageLimit
		}
		return nil, decimal.Zero, fmt.Errorf("increment promo usage: %w", err)
	}

	amount := promoDiscount(promo, orderAmount)
	if err := tx.InsertPromoCodeUse(ctx, &model.PromoCodeUse{
		PromoCodeID: promo.ID,
		UserID:      userID,
		Amount:      amount,
	}); err != nil {
		return nil, decimal.Zero, fmt.Errorf("record promo use: %w", err)
	}
	return promo, amount, nil
}

// PromoCodeInput is the admin form for a new code.
type PromoCodeInput struct {
	Code           string              `json:"code"`
	Type           model.PromoCodeType `json:"type"`
	Value          decimal.Decimal     `json:"value"`
	MinAmount      *decimal.Decimal    `json:"min_amount"`
	MaxUses        *int                `json:"max_uses"`
	MaxUsesPerUser int                 `json:"max_uses_per_user"`
	ValidFrom      *time.Time          `json:"valid_from"`
	ValidUntil     *time.Time          `json:"valid_until"`
	PlanTypes      []string            `json:"plan_types"`
	Description    string              `json:"description"`
}

func (in PromoCodeInput) toModel() (*model.PromoCode, error) {
	code := normalizeCode(in.Code)
	if code == "" || len(code) > 50 {
		return nil, validationf("promo code must be 1-50 characters")
	}
	if !in.Type.Valid() {
		return nil, validationf("unknown promo code type %q", in.Type)
	}
	if !in.Value.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if in.Type == model.PromoCodeTypePercent && in.Value.GreaterThan(decimal.NewFromInt(100)) {
		return nil, validationf("percent discount cannot exceed 100")
	}
	if in.MaxUses != nil && *in.MaxUses <= 0 {
		return nil, validationf("max_uses must be positive")
	}
	if in.ValidFrom != nil && in.ValidUntil != nil && in.ValidUntil.Before(*in.ValidFrom) {
		return nil, validationf("valid_until is before valid_from")
	}
	for _, t := range in.PlanTypes {
		if t != string(model.PlanTypeGame) && t != string(model.PlanTypeVPS) {
			return nil, validationf("unknown plan type %q", t)
		}
	}

	perUser := in.MaxUsesPerUser
	if perUser <= 0 {
		perUser = 1
	}
	return &model.PromoCode{
		Code:           code,
		Type:           in.Type,
		Value:          in.Value,
		MinAmount:      in.MinAmount,
		MaxUses:        in.MaxUses,
		MaxUsesPerUser: perUser,
		ValidFrom:      in.ValidFrom,
		ValidUntil:     in.ValidUntil,
		PlanTypes:      in.PlanTypes,
		IsActive:       true,
		Description:    optString(in.Description),
	}, nil
}

// CreatePromoCode creates a new promo code (admin function)
func (s *PromoCodeService) CreatePromoCode(ctx context.Context, in PromoCodeInput) (*model.PromoCode, error) {
	promo, err := in.toModel()
	if err != nil {
		return nil, err
	}
	if err := s.store.CreatePromoCode(ctx, promo); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrPromoCodeExists
		}
		return nil, err
	}
	return promo, nil
}

// CreateBulk generates count codes of the form PREFIX-XXXXXXXX sharing
// the template's terms.
func (s *PromoCodeService) CreateBulk(ctx context.Context, prefix string, count int, template PromoCodeInput) ([]model.PromoCode, error) {
	if count <= 0 || count > 1000 {
		return nil, validationf("count must be between 1 and 1000")
	}
	prefix = normalizeCode(prefix)

	codes := make([]model.PromoCode, 0, count)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		for len(codes) < count {
			suffix, err := randomCode(8)
			if err != nil {
				return err
			}
			in := template
			in.Code = suffix
			if prefix != "" {
				in.Code = prefix + "-" + suffix
			}
			promo, err := in.toModel()
			if err != nil {
				return err
			}
			// A failed insert aborts a PostgreSQL transaction, so collisions
			// are found by lookup before inserting.
			if _, err := tx.GetPromoCodeByCode(ctx, promo.Code); err == nil {
				continue
			} else if !errors.Is(err, repository.ErrPromoCodeNotFound) {
				return err
			}
			if err := tx.CreatePromoCode(ctx, promo); err != nil {
				if errors.Is(err, repository.ErrDuplicate) {
					continue
				}
				return err
			}
			codes = append(codes, *promo)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return codes, nil
}

// ListPromoCodes lists all promo codes (admin function)
func (s *PromoCodeService) ListPromoCodes(ctx context.Context, limit, offset int) ([]model.PromoCode, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListPromoCodes(ctx, limit, offset)
}

// DeactivatePromoCode deactivates a promo code (admin function)
func (s *PromoCodeService) DeactivatePromoCode(ctx context.Context, code string) error {
	err := s.store.DeactivatePromoCode(ctx, normalizeCode(code))
	if errors.Is(err, repository.ErrPromoCodeNotFound) {
		return ErrPromoCodeNotFound
	}
	return err
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func randomCode(n int) (string, error) {
	var b strings.Builder
	size := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		b.WriteByte(codeAlphabet[idx.Int64()])
	}
	return b.String(), nil
}

