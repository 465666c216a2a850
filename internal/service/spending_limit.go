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

const defaultAlertAt = 80

type SpendingLimitService struct {
	store    repository.Store
	logger   *zap.Logger
	notifier Notifier
	webhooks *WebhookService
	now      func() time.Time
}

func NewSpendingLimitService(store repository.Store, logger *zap.Logger) *SpendingLimitService {
	return &SpendingLimitService{store: store, logger: logger.Named("spending"), now: time.Now}
}

// SetNotifier sets the notifier for sending notifications
func (s *SpendingLimitService) SetNotifier(notifier Notifier) {
	s.notifier = notifier
}

// SetWebhookService sets the webhook dispatcher (to avoid circular deps)
func (s *SpendingLimitService) SetWebhookService(webhooks *WebhookService) {
	s.webhooks = webhooks
}

// SpendingAlert reports that a purchase pushed usage of a limit past the
// user's alert threshold.
type SpendingAlert struct {
	Period  string          `json:"period"` // "daily" or "monthly"
	Spent   decimal.Decimal `json:"spent"`
	Limit   decimal.Decimal `json:"limit"`
	Percent decimal.Decimal `json:"percent"`
}

// Get returns the user's limit or a disabled default.
func (s *SpendingLimitService) Get(ctx context.Context, userID int64) (*model.SpendingLimit, error) {
	limit, err := s.store.GetSpendingLimit(ctx, userID)
	if errors.Is(err, repository.ErrSpendingLimitNotFound) {
		return &model.SpendingLimit{UserID: userID, AlertAt: defaultAlertAt}, nil
	}
	return limit, err
}

type SpendingLimitInput struct {
	DailyLimit   *decimal.Decimal `json:"daily_limit"`
	MonthlyLimit *decimal.Decimal `json:"monthly_limit"`
	AlertAt      int              `json:"alert_at"`
	IsEnabled    bool             `json:"is_enabled"`
}

func (s *SpendingLimitService) Set(ctx context.Context, userID int64, in SpendingLimitInput) (*model.SpendingLimit, error) {
	if in.DailyLimit != nil && !in.DailyLimit.IsPositive() {
		return nil, fmt.Errorf("%w: daily limit must be positive", ErrInvalidSpendingLimit)
	}
	if in.MonthlyLimit != nil && !in.MonthlyLimit.IsPositive() {
		return nil, fmt.Errorf("%w: monthly limit must be positive", ErrInvalidSpendingLimit)
	}
	if in.DailyLimit != nil && in.MonthlyLimit != nil && in.MonthlyLimit.LessThan(*in.DailyLimit) {
		return nil, fmt.Errorf("%w: monthly limit is below daily limit", ErrInvalidSpendingLimit)
	}
	if in.AlertAt == 0 {
		in.AlertAt = defaultAlertAt
	}
	if in.AlertAt < 1 || in.AlertAt > 100 {
		return nil, fmt.Errorf("%w: alert_at must be between 1 and 100", ErrInvalidSpendingLimit)
	}

	limit := &model.SpendingLimit{
		UserID:       userID,
		DailyLimit:   in.DailyLimit,
		MonthlyLimit: in.MonthlyLimit,
		AlertAt:      in.AlertAt,
		IsEnabled:    in.IsEnabled,
	}
	if err := s.store.UpsertSpendingLimit(ctx, limit); err != nil {
		return nil, err
	}
	return limit, nil
}

// Stats reports spend against the user's limits.
func (s *SpendingLimitService) Stats(ctx context.Context, userID int64) (*model.SpendingStats, error) {
	limit, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	today, month, err := spentSoFar(ctx, s.store, userID, s.now())
	if err != nil {
		return nil, err
	}

	stats := &model.SpendingStats{Limit: limit, SpentToday: today, SpentMonth: month}
	if limit.DailyLimit != nil {
		p := usagePercent(today, *limit.DailyLimit)
		stats.DailyPercent = &p
	}
	if limit.MonthlyLimit != nil {
		p := usagePercent(month, *limit.MonthlyLimit)
		stats.MonthlyPercent = &p
	}
	return stats, nil
}

// guard checks a pending purchase of amount against the user's limits and
// must run in the purchase's transaction. It returns the alert to raise
// once the purchase commits, if any.
func (s *SpendingLimitService) guard(ctx context.Context, tx repository.Store, userID int64, amount decimal.Decimal) (*SpendingAlert, error) {
	limit, err := tx.GetSpendingLimit(ctx, userID)
	if errors.Is(err, repository.ErrSpendingLimitNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load spending limit: %w", err)
	}
	if !limit.IsEnabled {
		return nil, nil
	}

	today, month, err := spentSoFar(ctx, tx, userID, s.now())
	if err != nil {
		return nil, err
	}

	if limit.DailyLimit != nil && today.Add(amount).GreaterThan(*limit.DailyLimit) {
		return nil, ErrDailyLimitExceeded
	}
	if limit.MonthlyLimit != nil && month.Add(amount).GreaterThan(*limit.MonthlyLimit) {
		return nil, ErrMonthlyLimitExceeded
	}

	threshold := decimal.NewFromInt(int64(limit.AlertAt))
	crossed := func(period string, spent decimal.Decimal, ceiling *decimal.Decimal) *SpendingAlert {
		if ceiling == nil {
			return nil
		}
		before := usagePercent(spent, *ceiling)
		after := usagePercent(spent.Add(amount), *ceiling)
		if before.LessThan(threshold) && !after.LessThan(threshold) {
			return &SpendingAlert{Period: period, Spent: spent.Add(amount), Limit: *ceiling, Percent: after}
		}
		return nil
	}
	if alert := crossed("daily", today, limit.DailyLimit); alert != nil {
		return alert, nil
	}
	return crossed("monthly", month, limit.MonthlyLimit), nil
}

// raise delivers an alert after the purchase has committed.
func (s *SpendingLimitService) raise(ctx context.Context, userID int64, alert *SpendingAlert) {
	if alert == nil {
		return
	}
	s.logger.Info("spending alert",
		zap.Int64("user_id", userID),
		zap.String("period", alert.Period),
		zap.String("percent", alert.Percent.String()))

	notifyUser(ctx, s.store, s.notifier, s.logger, userID, func(n Notifier, chatID int64) error {
		return n.SendSpendingAlert(chatID, *alert)
	})
	if s.webhooks != nil {
		s.webhooks.Trigger(ctx, userID, model.EventSpendingAlert, alert)
	}
}

// spentSoFar sums completed purchases since the start of the UTC day and
// of the UTC month.
func spentSoFar(ctx context.Context, st repository.LedgerStore, userID int64, now time.Time) (decimal.Decimal, decimal.Decimal, error) {
	now = now.UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	today, err := st.SumCompleted(ctx, userID, model.TransactionTypePurchase, dayStart)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("sum daily spend: %w", err)
	}
	month, err := st.SumCompleted(ctx, userID, model.TransactionTypePurchase, monthStart)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("sum monthly spend: %w", err)
	}
	return today.Abs(), month.Abs(), nil
}

func usagePercent(spent, limit decimal.Decimal) decimal.Decimal {
	if !limit.IsPositive() {
		return decimal.Zero
	}
	return spent.Mul(decimal.NewFromInt(100)).Div(limit).Round(2)
}
