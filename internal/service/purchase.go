package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/repository"
)

// PurchaseService charges plan orders against the balance.
type PurchaseService struct {
	store     repository.Store
	logger    *zap.Logger
	plans     *PlanService
	discounts *DiscountService
	promos    *PromoCodeService
	limits    *SpendingLimitService
	referrals *ReferralService
	webhooks  *WebhookService
}

func NewPurchaseService(
	store repository.Store,
	logger *zap.Logger,
	plans *PlanService,
	discounts *DiscountService,
	promos *PromoCodeService,
	limits *SpendingLimitService,
	referrals *ReferralService,
) *PurchaseService {
	return &PurchaseService{
		store:     store,
		logger:    logger.Named("purchase"),
		plans:     plans,
		discounts: discounts,
		promos:    promos,
		limits:    limits,
		referrals: referrals,
	}
}

// SetWebhookService sets the webhook dispatcher (to avoid circular deps)
func (s *PurchaseService) SetWebhookService(webhooks *WebhookService) {
	s.webhooks = webhooks
}

type PurchaseRequest struct {
	PlanID    uuid.UUID `json:"plan_id"`
	PromoCode string    `json:"promo_code"`
}

type PurchaseResult struct {
	OrderID        uuid.UUID          `json:"order_id"`
	Plan           *model.Plan        `json:"plan"`
	Price          decimal.Decimal    `json:"price"`
	VolumeDiscount decimal.Decimal    `json:"volume_discount"`
	PromoDiscount  decimal.Decimal    `json:"promo_discount"`
	Total          decimal.Decimal    `json:"total"`
	Transaction    *model.Transaction `json:"transaction"`
	NewBalance     decimal.Decimal    `json:"new_balance"`
}

// Purchase prices the plan, applies the volume tier and then the promo
// code to the discounted price, and debits the total. Promo usage, the
// spending-limit check and the debit commit together.
func (s *PurchaseService) Purchase(ctx context.Context, userID int64, req PurchaseRequest) (*PurchaseResult, error) {
	plan, err := s.plans.GetPlan(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, ErrPlanInactive
	}

	res := &PurchaseResult{
		OrderID: uuid.New(),
		Plan:    plan,
		Price:   plan.Price,
	}

	discount, err := s.discounts.GetUserDiscount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load volume discount: %w", err)
	}
	if discount.DiscountPercent.IsPositive() {
		res.VolumeDiscount = percentOf(plan.Price, discount.DiscountPercent)
	}
	afterVolume := plan.Price.Sub(res.VolumeDiscount)

	code := normalizeCode(req.PromoCode)
	var alert *SpendingAlert
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		res.PromoDiscount = decimal.Zero
		var promoID *uuid.UUID
		if code != "" {
			promo, err := tx.GetPromoCodeByCode(ctx, code)
			if err == nil && promo.Type == model.PromoCodeTypeBalance {
				return ErrPromoCodeNotForOrders
			}
			redeemed, amount, err := s.promos.redeem(ctx, tx, code, userID, &afterVolume, string(plan.Type))
			if err != nil {
				return err
			}
			promoID = &redeemed.ID
			res.PromoDiscount = amount
		}

		res.Total = money(decimal.Max(decimal.Zero, afterVolume.Sub(res.PromoDiscount)))

		var err error
		alert, err = s.limits.guard(ctx, tx, userID, res.Total)
		if err != nil {
			return err
		}

		metadata := map[string]interface{}{
			"order_id":        res.OrderID.String(),
			"plan_id":         plan.ID.String(),
			"price":           res.Price.StringFixed(2),
			"volume_discount": res.VolumeDiscount.StringFixed(2),
			"promo_discount":  res.PromoDiscount.StringFixed(2),
		}
		if promoID != nil {
			metadata["promo_code_id"] = promoID.String()
		}
		res.Transaction, err = appendEntry(ctx, tx, Entry{
			UserID:      userID,
			Type:        model.TransactionTypePurchase,
			Amount:      res.Total.Neg(),
			Description: fmt.Sprintf("Purchase: %s", plan.Name),
			Metadata:    metadata,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	res.NewBalance = res.Transaction.BalanceAfter

	s.logger.Info("purchase completed",
		zap.Int64("user_id", userID),
		zap.String("plan_id", plan.ID.String()),
		zap.String("total", res.Total.String()),
		zap.String("promo_code", code))

	s.limits.raise(ctx, userID, alert)

	if _, err := s.referrals.ProcessPurchase(ctx, userID, res.Total); err != nil {
		s.logger.Error("referral bonus", zap.Int64("user_id", userID), zap.Error(err))
	}

	if s.webhooks != nil {
		s.webhooks.Trigger(ctx, userID, model.EventOrderCreated, map[string]interface{}{
			"order_id":       res.OrderID,
			"plan_id":        plan.ID,
			"plan_name":      plan.Name,
			"amount":         res.Total,
			"transaction_id": res.Transaction.ID,
			"created_at":     res.Transaction.CreatedAt.Format(time.RFC3339),
		})
	}
	return res, nil
}
