package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/config"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/metrics"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/payment"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/repository"
)

type PaymentService struct {
	store       repository.Store
	cfg         config.PaymentsConfig
	providers   *payment.Registry
	logger      *zap.Logger
	discountSvc *DiscountService
	webhooks    *WebhookService
	notifier    Notifier
	now         func() time.Time
}

func NewPaymentService(store repository.Store, cfg config.PaymentsConfig, providers *payment.Registry, logger *zap.Logger) *PaymentService {
	return &PaymentService{
		store:     store,
		cfg:       cfg,
		providers: providers,
		logger:    logger.Named("payment"),
		now:       time.Now,
	}
}

// SetDiscountService sets the discount service (to avoid circular deps)
func (s *PaymentService) SetDiscountService(discountSvc *DiscountService) {
	s.discountSvc = discountSvc
}

// SetWebhookService sets the webhook dispatcher (to avoid circular deps)
func (s *PaymentService) SetWebhookService(webhooks *WebhookService) {
	s.webhooks = webhooks
}

// SetNotifier sets the notifier for sending notifications
func (s *PaymentService) SetNotifier(notifier Notifier) {
	s.notifier = notifier
}

// TopUp is a pending deposit waiting for the provider. PaymentID must be
// passed to the provider as correlation metadata.
type TopUp struct {
	TransactionID uuid.UUID             `json:"transaction_id"`
	PaymentID     string                `json:"payment_id"`
	Provider      model.PaymentProvider `json:"provider"`
	Amount        decimal.Decimal       `json:"amount"`
	Status        string                `json:"status"`
}

// CreateTopUp records a PENDING DEPOSIT. The balance moves only when the
// provider confirms it.
func (s *PaymentService) CreateTopUp(ctx context.Context, userID int64, amount decimal.Decimal, provider model.PaymentProvider) (*TopUp, error) {
	if !provider.IsExternal() {
		return nil, ErrInvalidPaymentProvider
	}
	amount = money(amount)
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if amount.LessThan(s.cfg.MinTopUp) || amount.GreaterThan(s.cfg.MaxTopUp) {
		return nil, validationf("amount must be between %s and %s", s.cfg.MinTopUp.StringFixed(2), s.cfg.MaxTopUp.StringFixed(2))
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	paymentID := uuid.NewString()
	method := string(provider)
	description := fmt.Sprintf("Top-up via %s", provider)
	t := &model.Transaction{
		UserID:        userID,
		Type:          model.TransactionTypeDeposit,
		Amount:        amount,
		BalanceBefore: decimal.Zero,
		BalanceAfter:  decimal.Zero,
		Status:        model.TransactionStatusPending,
		Description:   &description,
		PaymentMethod: &method,
		PaymentID:     &paymentID,
	}
	if err := s.store.InsertTransaction(ctx, t); err != nil {
		return nil, fmt.Errorf("create pending deposit: %w", err)
	}

	s.logger.Info("top-up created",
		zap.Int64("user_id", userID),
		zap.String("provider", method),
		zap.String("payment_id", paymentID),
		zap.String("amount", amount.String()))

	return &TopUp{
		TransactionID: t.ID,
		PaymentID:     paymentID,
		Provider:      provider,
		Amount:        amount,
		Status:        string(t.Status),
	}, nil
}

// ConfirmResult describes a confirmation. AlreadyProcessed is set when the
// deposit had been completed by an earlier callback.
type ConfirmResult struct {
	Transaction      *model.Transaction `json:"transaction"`
	Bonus            *model.Transaction `json:"bonus,omitempty"`
	AlreadyProcessed bool               `json:"already_processed"`
}

// Confirm completes the pending deposit matched by (provider, paymentID)
// and credits the balance. Repeated calls credit once.
//
// A success for a deposit that was already FAILED or CANCELLED is not
// credited; it raises a HIGH alert for manual review and returns
// ErrLatePayment.
func (s *PaymentService) Confirm(ctx context.Context, provider model.PaymentProvider, paymentID, externalID string, amount *decimal.Decimal) (*ConfirmResult, error) {
	result := &ConfirmResult{}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		t, err := tx.LockTransactionByPaymentID(ctx, provider, paymentID)
		if err != nil {
			if errors.Is(err, repository.ErrTransactionNotFound) {
				return ErrPaymentNotFound
			}
			return fmt.Errorf("lock payment: %w", err)
		}
		result.Transaction = t

		switch t.Status {
		case model.TransactionStatusCompleted:
			result.AlreadyProcessed = true
			return nil
		case model.TransactionStatusFailed, model.TransactionStatusCancelled:
			return ErrLatePayment
		}
		if amount != nil && !money(*amount).Equal(t.Amount) {
			s.logger.Warn("payment amount mismatch",
				zap.String("payment_id", paymentID),
				zap.String("expected", t.Amount.String()),
				zap.String("got", amount.String()))
			return ErrPaymentAmountMismatch
		}

		before, err := tx.LockUserBalance(ctx, t.UserID)
		if err != nil {
			return fmt.Errorf("lock balance: %w", err)
		}
		after := before.Add(t.Amount)

		metadata, err := json.Marshal(map[string]string{"external_id": externalID})
		if err != nil {
			return err
		}
		if err := tx.CompleteTransaction(ctx, t.ID, before, after, metadata); err != nil {
			return fmt.Errorf("complete payment: %w", err)
		}
		if err := tx.SetUserBalance(ctx, t.UserID, after); err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
		t.Status = model.TransactionStatusCompleted
		t.BalanceBefore, t.BalanceAfter = before, after
		metrics.LedgerTransactions.WithLabelValues(string(t.Type)).Inc()

		bonus, err := s.topUpBonus(ctx, tx, t)
		if err != nil {
			return err
		}
		result.Bonus = bonus
		return nil
	})
	if errors.Is(err, ErrLatePayment) {
		s.recordLatePayment(ctx, provider, paymentID, externalID, result.Transaction)
	}
	if err != nil {
		return nil, err
	}
	if result.AlreadyProcessed {
		s.logger.Info("payment already confirmed", zap.String("payment_id", paymentID))
		return result, nil
	}

	t := result.Transaction
	newBalance := t.BalanceAfter
	if result.Bonus != nil {
		newBalance = result.Bonus.BalanceAfter
	}
	s.logger.Info("payment confirmed",
		zap.Int64("user_id", t.UserID),
		zap.String("payment_id", paymentID),
		zap.String("amount", t.Amount.String()),
		zap.String("balance", newBalance.String()))

	if s.discountSvc != nil {
		if _, err := s.discountSvc.Refresh(ctx, t.UserID); err != nil {
			s.logger.Error("refresh volume discount", zap.Int64("user_id", t.UserID), zap.Error(err))
		}
	}
	notifyUser(ctx, s.store, s.notifier, s.logger, t.UserID, func(n Notifier, chatID int64) error {
		return n.SendBalanceTopUp(chatID, t.Amount, newBalance)
	})
	if s.webhooks != nil {
		s.webhooks.Trigger(ctx, t.UserID, model.EventPaymentCompleted, map[string]interface{}{
			"transaction_id": t.ID,
			"payment_id":     paymentID,
			"provider":       provider,
			"amount":         t.Amount,
		})
		s.webhooks.Trigger(ctx, t.UserID, model.EventBalanceCredited, map[string]interface{}{
			"amount":      t.Amount,
			"new_balance": newBalance,
		})
	}
	return result, nil
}

// recordLatePayment leaves a trace of money the provider collected for a
// deposit that is no longer open. Failures here are only logged.
func (s *PaymentService) recordLatePayment(ctx context.Context, provider model.PaymentProvider, paymentID, externalID string, t *model.Transaction) {
	s.logger.Error("payment succeeded for closed deposit",
		zap.Int64("user_id", t.UserID),
		zap.String("transaction_id", t.ID.String()),
		zap.String("payment_id", paymentID),
		zap.String("provider", string(provider)),
		zap.String("status", string(t.Status)),
		zap.String("amount", t.Amount.String()))

	metadata, err := encodeMetadata(map[string]interface{}{
		"transaction_id": t.ID,
		"payment_id":     paymentID,
		"external_id":    externalID,
		"provider":       provider,
		"status":         t.Status,
		"amount":         t.Amount,
	})
	if err != nil {
		s.logger.Error("encode late payment metadata", zap.Error(err))
		return
	}
	userID := t.UserID
	alert := &model.FraudAlert{
		UserID:      &userID,
		Type:        model.FraudAlertSuspiciousPayment,
		Severity:    model.FraudSeverityHigh,
		Status:      model.FraudAlertStatusOpen,
		Description: fmt.Sprintf("Payment %s of %s succeeded after the deposit was %s; balance not credited", paymentID, t.Amount.StringFixed(2), strings.ToLower(string(t.Status))),
		Metadata:    metadata,
	}
	if err := s.store.CreateFraudAlert(ctx, alert); err != nil {
		s.logger.Error("create late payment alert", zap.String("payment_id", paymentID), zap.Error(err))
		return
	}
	metrics.FraudAlerts.WithLabelValues(string(alert.Type)).Inc()
}

// topUpBonus appends the configured percentage of a confirmed deposit as
// a BONUS entry. It runs inside the confirmation transaction.
func (s *PaymentService) topUpBonus(ctx context.Context, tx repository.Store, deposit *model.Transaction) (*model.Transaction, error) {
	raw, err := tx.GetSetting(ctx, repository.SettingTopupBonusPercent)
	if err != nil {
		if errors.Is(err, repository.ErrSettingNotFound) {
			return nil, nil
		}
		return nil, err
	}
	percent, err := decimal.NewFromString(raw)
	if err != nil || !percent.IsPositive() {
		return nil, nil
	}

	bonus := percentOf(deposit.Amount, percent)
	if !bonus.IsPositive() {
		return nil, nil
	}
	return appendEntry(ctx, tx, Entry{
		UserID:               deposit.UserID,
		Type:                 model.TransactionTypeBonus,
		Amount:               bonus,
		Description:          fmt.Sprintf("Top-up bonus %s%%", percent.String()),
		RelatedTransactionID: &deposit.ID,
	})
}

// Fail moves a pending deposit to FAILED (or CANCELLED) without touching
// the balance. A deposit already in a terminal state is left as is.
func (s *PaymentService) Fail(ctx context.Context, provider model.PaymentProvider, paymentID, reason string, cancelled bool) error {
	to := model.TransactionStatusFailed
	if cancelled {
		to = model.TransactionStatusCancelled
	}

	var t *model.Transaction
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		var err error
		t, err = tx.LockTransactionByPaymentID(ctx, provider, paymentID)
		if err != nil {
			if errors.Is(err, repository.ErrTransactionNotFound) {
				return ErrPaymentNotFound
			}
			return fmt.Errorf("lock payment: %w", err)
		}
		if t.Status != model.TransactionStatusPending {
			return ErrPaymentNotPending
		}
		return tx.SetTransactionStatus(ctx, t.ID, model.TransactionStatusPending, to)
	})
	if err != nil {
		return err
	}

	s.logger.Info("payment failed",
		zap.Int64("user_id", t.UserID),
		zap.String("payment_id", paymentID),
		zap.String("status", string(to)),
		zap.String("reason", reason))
	if s.webhooks != nil {
		s.webhooks.Trigger(ctx, t.UserID, model.EventPaymentFailed, map[string]interface{}{
			"transaction_id": t.ID,
			"payment_id":     paymentID,
			"provider":       provider,
			"status":         to,
			"reason":         reason,
		})
	}
	return nil
}

// HandleCallback authenticates a provider callback and applies it.
func (s *PaymentService) HandleCallback(ctx context.Context, provider model.PaymentProvider, req *payment.Request) (*model.PaymentEvent, error) {
	p, err := s.providers.Get(provider)
	if err != nil {
		return nil, ErrInvalidPaymentProvider
	}
	if err := p.Verify(req); err != nil {
		metrics.PaymentWebhooks.WithLabelValues(string(provider), "rejected").Inc()
		s.logger.Warn("payment callback rejected",
			zap.String("provider", string(provider)),
			zap.String("ip", req.RemoteIP),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	ev, err := p.Parse(req.Body)
	if err != nil {
		metrics.PaymentWebhooks.WithLabelValues(string(provider), "malformed").Inc()
		return nil, validationf("%v", err)
	}

	err = s.Apply(ctx, ev)
	outcome := string(ev.Outcome)
	switch {
	case errors.Is(err, ErrLatePayment):
		outcome = "late"
	case err != nil && KindOf(err) != KindAlreadyProcessed:
		outcome = "error"
	}
	metrics.PaymentWebhooks.WithLabelValues(string(provider), outcome).Inc()
	return ev, err
}

// Apply routes a decoded provider event to Confirm or Fail.
func (s *PaymentService) Apply(ctx context.Context, ev *model.PaymentEvent) error {
	switch ev.Outcome {
	case model.PaymentOutcomeSucceeded:
		_, err := s.Confirm(ctx, ev.Provider, ev.PaymentID, ev.ExternalID, ev.Amount)
		return err
	case model.PaymentOutcomeFailed:
		return s.Fail(ctx, ev.Provider, ev.PaymentID, ev.Reason, false)
	case model.PaymentOutcomeCancelled:
		return s.Fail(ctx, ev.Provider, ev.PaymentID, ev.Reason, true)
	}
	s.logger.Debug("payment event ignored", zap.String("provider", string(ev.Provider)))
	return nil
}

// ExpireStale cancels pending deposits older than the configured TTL and
// returns how many were cancelled.
func (s *PaymentService) ExpireStale(ctx context.Context) (int, error) {
	stale, err := s.store.ListStalePending(ctx, model.TransactionTypeDeposit, s.now().Add(-s.cfg.PendingTTL))
	if err != nil {
		return 0, fmt.Errorf("list stale payments: %w", err)
	}

	expired := 0
	for _, t := range stale {
		err := s.store.SetTransactionStatus(ctx, t.ID, model.TransactionStatusPending, model.TransactionStatusCancelled)
		if errors.Is(err, repository.ErrTransactionNotPending) {
			continue
		}
		if err != nil {
			s.logger.Error("expire payment", zap.String("transaction_id", t.ID.String()), zap.Error(err))
			continue
		}
		expired++
	}
	if expired > 0 {
		s.logger.Info("expired stale payments", zap.Int("count", expired))
	}
	return expired, nil
}
