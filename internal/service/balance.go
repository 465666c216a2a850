package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/metrics"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/repository"
)

// Entry describes one ledger append.
type Entry struct {
	UserID        int64
	Type          model.TransactionType
	Amount        decimal.Decimal
	Description   string
	PaymentMethod string
	PaymentID     string
	Metadata      map[string]interface{}

	ReferredUserID       *int64
	CertificateID        *uuid.UUID
	RelatedTransactionID *uuid.UUID
}

type BalanceService struct {
	store  repository.Store
	logger *zap.Logger
}

func NewBalanceService(store repository.Store, logger *zap.Logger) *BalanceService {
	return &BalanceService{store: store, logger: logger.Named("balance")}
}

// Append writes a COMPLETED ledger entry and moves the balance by its
// amount in one database transaction. A debit larger than the balance
// fails with ErrInsufficientFunds.
func (s *BalanceService) Append(ctx context.Context, e Entry) (*model.Transaction, error) {
	var t *model.Transaction
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		var err error
		t, err = appendEntry(ctx, tx, e)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("ledger entry appended",
		zap.Int64("user_id", e.UserID),
		zap.String("type", string(e.Type)),
		zap.String("amount", e.Amount.String()),
		zap.String("balance_after", t.BalanceAfter.String()))
	return t, nil
}

// Subtract debits up to amount, never taking the balance below zero, and
// records the amount actually taken as a WITHDRAWAL entry.
func (s *BalanceService) Subtract(ctx context.Context, userID int64, amount decimal.Decimal, description string) (*model.Transaction, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	var t *model.Transaction
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		var err error
		t, err = subtractEntry(ctx, tx, Entry{
			UserID:      userID,
			Type:        model.TransactionTypeWithdrawal,
			Amount:      amount,
			Description: description,
		})
		return err
	})
	return t, err
}

func (s *BalanceService) GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	balance, err := s.store.GetUserBalance(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return decimal.Zero, ErrUserNotFound
	}
	return balance, err
}

// GetTransactions returns ledger history, newest first
func (s *BalanceService) GetTransactions(ctx context.Context, filter model.TransactionFilter) ([]model.Transaction, error) {
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}
	if filter.Type != nil && !filter.Type.Valid() {
		return nil, validationf("unknown transaction type %q", *filter.Type)
	}
	return s.store.ListTransactions(ctx, filter)
}

// Reconciliation compares the stored balance with the ledger.
type Reconciliation struct {
	UserID     int64           `json:"user_id"`
	Balance    decimal.Decimal `json:"balance"`
	LedgerSum  decimal.Decimal `json:"ledger_sum"`
	Difference decimal.Decimal `json:"difference"`
	Consistent bool            `json:"consistent"`
}

func (s *BalanceService) Reconcile(ctx context.Context, userID int64) (*Reconciliation, error) {
	balance, err := s.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	sum, err := s.store.SumLedger(ctx, userID)
	if err != nil {
		return nil, err
	}
	r := &Reconciliation{
		UserID:     userID,
		Balance:    balance,
		LedgerSum:  sum,
		Difference: balance.Sub(sum),
		Consistent: balance.Equal(sum),
	}
	if !r.Consistent {
		s.logger.Warn("ledger mismatch",
			zap.Int64("user_id", userID),
			zap.String("balance", balance.String()),
			zap.String("ledger_sum", sum.String()))
	}
	return r, nil
}

// appendEntry must run inside WithTx. The balance row is locked before it
// is read so concurrent appends for one user serialize.
func appendEntry(ctx context.Context, tx repository.Store, e Entry) (*model.Transaction, error) {
	if !e.Type.Valid() {
		return nil, validationf("unknown transaction type %q", e.Type)
	}

	before, err := tx.LockUserBalance(ctx, e.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lock balance: %w", err)
	}

	after := before.Add(e.Amount)
	if after.IsNegative() {
		return nil, ErrInsufficientFunds
	}
	return insertEntry(ctx, tx, e, before, after)
}

// subtractEntry is the clamped debit: e.Amount is the requested positive
// amount, the entry records what was actually taken.
func subtractEntry(ctx context.Context, tx repository.Store, e Entry) (*model.Transaction, error) {
	before, err := tx.LockUserBalance(ctx, e.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lock balance: %w", err)
	}

	after := decimal.Max(decimal.Zero, before.Sub(e.Amount))
	e.Amount = after.Sub(before)
	return insertEntry(ctx, tx, e, before, after)
}

func insertEntry(ctx context.Context, tx repository.Store, e Entry, before, after decimal.Decimal) (*model.Transaction, error) {
	metadata, err := encodeMetadata(e.Metadata)
	if err != nil {
		return nil, err
	}

	t := &model.Transaction{
		ID:                   uuid.New(),
		UserID:               e.UserID,
		Type:                 e.Type,
		Amount:               e.Amount,
		BalanceBefore:        before,
		BalanceAfter:         after,
		Status:               model.TransactionStatusCompleted,
		Description:          optString(e.Description),
		PaymentMethod:        optString(e.PaymentMethod),
		PaymentID:            optString(e.PaymentID),
		ReferredUserID:       e.ReferredUserID,
		CertificateID:        e.CertificateID,
		RelatedTransactionID: e.RelatedTransactionID,
		Metadata:             metadata,
	}
	if err := tx.InsertTransaction(ctx, t); err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	if err := tx.SetUserBalance(ctx, e.UserID, after); err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}

	metrics.LedgerTransactions.WithLabelValues(string(e.Type)).Inc()
	return t, nil
}

func encodeMetadata(m map[string]interface{}) (types.JSONText, error) {
	if len(m) == 0 {
		return types.JSONText("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return types.JSONText(b), nil
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// money rounds to the two decimal places stored by the ledger.
func money(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func percentOf(amount, percent decimal.Decimal) decimal.Decimal {
	return money(amount.Mul(percent).Div(decimal.NewFromInt(100)))
}
