package service

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/repository"
)

// Notifier interface for sending notifications (implemented by telegram.Bot)
type Notifier interface {
	SendBalanceTopUp(chatID int64, amount, newBalance decimal.Decimal) error
	SendReferralBonus(chatID int64, bonus decimal.Decimal) error
	SendWithdrawalUpdate(chatID int64, amount decimal.Decimal, status model.WithdrawalStatus) error
	SendSpendingAlert(chatID int64, alert SpendingAlert) error
}

// notifyUser resolves the user's chat and calls send. Notification
// failures are logged and never returned.
func notifyUser(ctx context.Context, store repository.UserStore, n Notifier, logger *zap.Logger, userID int64, send func(n Notifier, chatID int64) error) {
	if n == nil {
		return
	}
	user, err := store.GetUser(ctx, userID)
	if err != nil {
		logger.Warn("notify: load user", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	if user.TelegramID == nil {
		return
	}
	if err := send(n, *user.TelegramID); err != nil {
		logger.Warn("notify: send failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}
