package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
)

var (
	ErrTransactionNotFound   = errors.New("transaction not found")
	ErrTransactionNotPending = errors.New("transaction is not pending")
)

// LockUserBalance reads the balance and holds the user row until the
// surrounding transaction ends.
func (r *Repository) LockUserBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.get(ctx, &balance, "SELECT balance FROM users WHERE id = $1 FOR UPDATE", userID)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, ErrUserNotFound
	}
	return balance, err
}

func (r *Repository) GetUserBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.get(ctx, &balance, "SELECT balance FROM users WHERE id = $1", userID)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, ErrUserNotFound
	}
	return balance, err
}

func (r *Repository) SetUserBalance(ctx context.Context, userID int64, balance decimal.Decimal) error {
	return r.execOne(ctx, ErrUserNotFound,
		"UPDATE users SET balance = $1, updated_at = NOW() WHERE id = $2", balance, userID)
}

func (r *Repository) InsertTransaction(ctx context.Context, t *model.Transaction) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Metadata == nil {
		t.Metadata = []byte("{}")
	}
	err := r.q.QueryRowxContext(ctx, `
		INSERT INTO transactions (
			id, user_id, type, amount, balance_before, balance_after, status,
			description, payment_method, payment_id,
			referred_user_id, certificate_id, related_transaction_id, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at`,
		t.ID, t.UserID, t.Type, t.Amount, t.BalanceBefore, t.BalanceAfter, t.Status,
		t.Description, t.PaymentMethod, t.PaymentID,
		t.ReferredUserID, t.CertificateID, t.RelatedTransactionID, t.Metadata,
	).Scan(&t.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *Repository) GetTransaction(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	var t model.Transaction
	err := r.get(ctx, &t, "SELECT * FROM transactions WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *Repository) LockTransactionByPaymentID(ctx context.Context, provider model.PaymentProvider, paymentID string) (*model.Transaction, error) {
	var t model.Transaction
	err := r.get(ctx, &t, `
		SELECT * FROM transactions
		WHERE payment_method = $1 AND payment_id = $2
		FOR UPDATE`, string(provider), paymentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &t, nil
}

// CompleteTransaction flips a PENDING row to COMPLETED and stamps the
// balance snapshots taken at completion time.
func (r *Repository) CompleteTransaction(ctx context.Context, id uuid.UUID, balanceBefore, balanceAfter decimal.Decimal, metadata []byte) error {
	if metadata == nil {
		metadata = []byte("{}")
	}
	return r.execOne(ctx, ErrTransactionNotPending, `
		UPDATE transactions
		SET status = 'COMPLETED', balance_before = $2, balance_after = $3, metadata = metadata || $4::jsonb
		WHERE id = $1 AND status = 'PENDING'`, id, balanceBefore, balanceAfter, string(metadata))
}

func (r *Repository) SetTransactionStatus(ctx context.Context, id uuid.UUID, from, to model.TransactionStatus) error {
	return r.execOne(ctx, ErrTransactionNotPending,
		"UPDATE transactions SET status = $3 WHERE id = $1 AND status = $2", id, from, to)
}

func (r *Repository) ListTransactions(ctx context.Context, filter model.TransactionFilter) ([]model.Transaction, error) {
	where := []string{"user_id = $1"}
	args := []interface{}{filter.UserID}
	if filter.Type != nil {
		args = append(args, *filter.Type)
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	args = append(args, filter.Limit, filter.Offset)

	query := fmt.Sprintf(`
		SELECT * FROM transactions
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, strings.Join(where, " AND "), len(args)-1, len(args))

	var transactions []model.Transaction
	err := r.selectAll(ctx, &transactions, query, args...)
	return transactions, err
}

func (r *Repository) CountCompleted(ctx context.Context, userID int64, txType model.TransactionType) (int, error) {
	var count int
	err := r.get(ctx, &count, `
		SELECT COUNT(*) FROM transactions
		WHERE user_id = $1 AND type = $2 AND status = 'COMPLETED'`, userID, txType)
	return count, err
}

// SumCompleted sums COMPLETED amounts of one type created at or after since.
// A zero since sums the whole history.
func (r *Repository) SumCompleted(ctx context.Context, userID int64, txType model.TransactionType, since time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.get(ctx, &sum, `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE user_id = $1 AND type = $2 AND status = 'COMPLETED' AND created_at >= $3`,
		userID, txType, since)
	return sum, err
}

// SumLedger is the balance reconstructed from COMPLETED rows.
func (r *Repository) SumLedger(ctx context.Context, userID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.get(ctx, &sum, `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE user_id = $1 AND status = 'COMPLETED'`, userID)
	return sum, err
}

func (r *Repository) SumRefunds(ctx context.Context, originalID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.get(ctx, &sum, `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE related_transaction_id = $1 AND type = 'REFUND' AND status = 'COMPLETED'`, originalID)
	return sum, err
}

func (r *Repository) HasReferralBonus(ctx context.Context, referredUserID int64) (bool, error) {
	var exists bool
	err := r.get(ctx, &exists, `
		SELECT EXISTS(SELECT 1 FROM transactions WHERE type = 'REFERRAL' AND referred_user_id = $1)`,
		referredUserID)
	return exists, err
}

func (r *Repository) ListStalePending(ctx context.Context, txType model.TransactionType, olderThan time.Time) ([]model.Transaction, error) {
	var transactions []model.Transaction
	err := r.selectAll(ctx, &transactions, `
		SELECT * FROM transactions
		WHERE type = $1 AND status = 'PENDING' AND created_at < $2
		ORDER BY created_at ASC`, txType, olderThan)
	return transactions, err
}

// ListVelocityHits returns users with more than moreThan ledger rows since the given time.
func (r *Repository) ListVelocityHits(ctx context.Context, since time.Time, moreThan int) ([]model.VelocityHit, error) {
	var hits []model.VelocityHit
	err := r.selectAll(ctx, &hits, `
		SELECT user_id, COUNT(*) AS transaction_count FROM transactions
		WHERE created_at >= $1
		GROUP BY user_id
		HAVING COUNT(*) > $2
		ORDER BY transaction_count DESC`, since, moreThan)
	return hits, err
}

func (r *Repository) ListLargeDeposits(ctx context.Context, since time.Time, minAmount decimal.Decimal) ([]model.Transaction, error) {
	var transactions []model.Transaction
	err := r.selectAll(ctx, &transactions, `
		SELECT * FROM transactions
		WHERE type = 'DEPOSIT' AND status = 'COMPLETED' AND created_at >= $1 AND amount >= $2
		ORDER BY amount DESC`, since, minAmount)
	return transactions, err
}
