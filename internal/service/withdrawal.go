package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/repository"
)

type WithdrawalService struct {
	store    repository.Store
	logger   *zap.Logger
	notifier Notifier
	webhooks *WebhookService
}

func NewWithdrawalService(store repository.Store, logger *zap.Logger) *WithdrawalService {
	return &WithdrawalService{store: store, logger: logger.Named("withdrawal")}
}

// SetNotifier sets the notifier for sending notifications
func (s *WithdrawalService) SetNotifier(notifier Notifier) {
	s.notifier = notifier
}

// SetWebhookService sets the webhook dispatcher (to avoid circular deps)
func (s *WithdrawalService) SetWebhookService(webhooks *WebhookService) {
	s.webhooks = webhooks
}

type WithdrawalInput struct {
	Amount  decimal.Decimal `json:"amount"`
	Method  string          `json:"method"`
	Details string          `json:"details"`
}

// Create files a PENDING request. Nothing is reserved; the balance is
// checked again on completion.
func (s *WithdrawalService) Create(ctx context.Context, userID int64, in WithdrawalInput) (*model.WithdrawalRequest, error) {
	amount := money(in.Amount)
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	method := strings.TrimSpace(in.Method)
	if method == "" {
		return nil, validationf("withdrawal method is required")
	}

	balance, err := s.store.GetUserBalance(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if balance.LessThan(amount) {
		return nil, ErrInsufficientFunds
	}

	w := &model.WithdrawalRequest{
		UserID:  userID,
		Amount:  amount,
		Method:  method,
		Details: strings.TrimSpace(in.Details),
		Status:  model.WithdrawalStatusPending,
	}
	if err := s.store.CreateWithdrawal(ctx, w); err != nil {
		return nil, fmt.Errorf("create withdrawal: %w", err)
	}
	s.logger.Info("withdrawal requested",
		zap.Int64("user_id", userID),
		zap.String("withdrawal_id", w.ID.String()),
		zap.String("amount", amount.String()))
	return w, nil
}

func (s *WithdrawalService) List(ctx context.Context, userID int64, limit, offset int) ([]model.WithdrawalRequest, error) {
	return s.store.ListWithdrawals(ctx, model.WithdrawalFilter{UserID: &userID, Limit: pageLimit(limit), Offset: offset})
}

func (s *WithdrawalService) ListAll(ctx context.Context, status *model.WithdrawalStatus, limit, offset int) ([]model.WithdrawalRequest, error) {
	return s.store.ListWithdrawals(ctx, model.WithdrawalFilter{Status: status, Limit: pageLimit(limit), Offset: offset})
}

// Process moves a PENDING request to PROCESSING.
func (s *WithdrawalService) Process(ctx context.Context, adminID int64, id uuid.UUID) (*model.WithdrawalRequest, error) {
	var w *model.WithdrawalRequest
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		var err error
		w, err = s.lock(ctx, tx, id)
		if err != nil {
			return err
		}
		if w.Status != model.WithdrawalStatusPending {
			return ErrWithdrawalConflict
		}
		if err := s.transition(ctx, tx, w, model.WithdrawalStatusProcessing, model.WithdrawalUpdate{AdminID: &adminID}); err != nil {
			return err
		}
		w.ProcessedBy = &adminID
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, w)
	return w, nil
}

// Complete debits the request amount and marks it COMPLETED. The status
// transition and the debit commit together, so the balance moves once.
func (s *WithdrawalService) Complete(ctx context.Context, adminID int64, id uuid.UUID, note string) (*model.WithdrawalRequest, error) {
	var w *model.WithdrawalRequest
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		var err error
		w, err = s.lock(ctx, tx, id)
		if err != nil {
			return err
		}
		switch w.Status {
		case model.WithdrawalStatusCompleted:
			return ErrWithdrawalDone
		case model.WithdrawalStatusRejected:
			return ErrWithdrawalConflict
		}

		balance, err := tx.LockUserBalance(ctx, w.UserID)
		if err != nil {
			return fmt.Errorf("lock balance: %w", err)
		}
		if balance.LessThan(w.Amount) {
			return ErrInsufficientFunds
		}

		t, err := subtractEntry(ctx, tx, Entry{
			UserID:      w.UserID,
			Type:        model.TransactionTypeWithdrawal,
			Amount:      w.Amount,
			Description: fmt.Sprintf("Withdrawal via %s", w.Method),
			Metadata:    map[string]interface{}{"withdrawal_id": w.ID.String()},
		})
		if err != nil {
			return err
		}

		update := model.WithdrawalUpdate{AdminID: &adminID, Note: optString(note), TransactionID: &t.ID}
		if err := s.transition(ctx, tx, w, model.WithdrawalStatusCompleted, update); err != nil {
			return err
		}
		w.ProcessedBy = &adminID
		w.AdminNote = update.Note
		w.TransactionID = &t.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("withdrawal completed",
		zap.Int64("user_id", w.UserID),
		zap.String("withdrawal_id", w.ID.String()),
		zap.String("amount", w.Amount.String()))
	s.notify(ctx, w)
	if s.webhooks != nil {
		s.webhooks.Trigger(ctx, w.UserID, model.EventWithdrawalCompleted, w)
	}
	return w, nil
}

// Reject closes a PENDING or PROCESSING request without touching the balance.
func (s *WithdrawalService) Reject(ctx context.Context, adminID int64, id uuid.UUID, note string) (*model.WithdrawalRequest, error) {
	var w *model.WithdrawalRequest
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		var err error
		w, err = s.lock(ctx, tx, id)
		if err != nil {
			return err
		}
		if w.Status == model.WithdrawalStatusCompleted || w.Status == model.WithdrawalStatusRejected {
			return ErrWithdrawalConflict
		}
		update := model.WithdrawalUpdate{AdminID: &adminID, Note: optString(note)}
		if err := s.transition(ctx, tx, w, model.WithdrawalStatusRejected, update); err != nil {
			return err
		}
		w.ProcessedBy = &adminID
		w.AdminNote = update.Note
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("withdrawal rejected", zap.String("withdrawal_id", w.ID.String()), zap.String("note", note))
	s.notify(ctx, w)
	if s.webhooks != nil {
		s.webhooks.Trigger(ctx, w.UserID, model.EventWithdrawalRejected, w)
	}
	return w, nil
}

func (s *WithdrawalService) lock(ctx context.Context, tx repository.Store, id uuid.UUID) (*model.WithdrawalRequest, error) {
	w, err := tx.LockWithdrawal(ctx, id)
	if errors.Is(err, repository.ErrWithdrawalNotFound) {
		return nil, ErrWithdrawalNotFound
	}
	return w, err
}

// transition flips w.Status and updates the in-memory copy on success.
func (s *WithdrawalService) transition(ctx context.Context, tx repository.Store, w *model.WithdrawalRequest, to model.WithdrawalStatus, update model.WithdrawalUpdate) error {
	err := tx.TransitionWithdrawal(ctx, w.ID, w.Status, to, update)
	if errors.Is(err, repository.ErrWithdrawalConflict) {
		return ErrWithdrawalConflict
	}
	if err != nil {
		return err
	}
	w.Status = to
	return nil
}

func (s *WithdrawalService) notify(ctx context.Context, w *model.WithdrawalRequest) {
	notifyUser(ctx, s.store, s.notifier, s.logger, w.UserID, func(n Notifier, chatID int64) error {
		return n.SendWithdrawalUpdate(chatID, w.Amount, w.Status)
	})
}

// pageLimit clamps list sizes to 1..100, defaulting to 20.
func pageLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
