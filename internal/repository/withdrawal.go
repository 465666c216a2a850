package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
)

var (
	ErrWithdrawalNotFound = errors.New("withdrawal request not found")
	ErrWithdrawalConflict = errors.New("withdrawal request changed state")
)

func (r *Repository) CreateWithdrawal(ctx context.Context, w *model.WithdrawalRequest) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	if w.Status == "" {
		w.Status = model.WithdrawalStatusPending
	}
	return r.q.QueryRowxContext(ctx, `
		INSERT INTO withdrawal_requests (id, user_id, amount, method, details, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		w.ID, w.UserID, w.Amount, w.Method, w.Details, w.Status,
	).Scan(&w.CreatedAt, &w.UpdatedAt)
}

func (r *Repository) LockWithdrawal(ctx context.Context, id uuid.UUID) (*model.WithdrawalRequest, error) {
	var w model.WithdrawalRequest
	err := r.get(ctx, &w, "SELECT * FROM withdrawal_requests WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, err
	}
	return &w, nil
}

// TransitionWithdrawal moves a request from one status to another and fails
// with ErrWithdrawalConflict if it is no longer in the expected status.
func (r *Repository) TransitionWithdrawal(ctx context.Context, id uuid.UUID, from, to model.WithdrawalStatus, update model.WithdrawalUpdate) error {
	return r.execOne(ctx, ErrWithdrawalConflict, `
		UPDATE withdrawal_requests SET
			status = $3,
			processed_by = COALESCE($4, processed_by),
			admin_note = COALESCE($5, admin_note),
			transaction_id = COALESCE($6, transaction_id),
			updated_at = NOW()
		WHERE id = $1 AND status = $2`,
		id, from, to, update.AdminID, update.Note, update.TransactionID)
}

func (r *Repository) ListWithdrawals(ctx context.Context, filter model.WithdrawalFilter) ([]model.WithdrawalRequest, error) {
	where := []string{"TRUE"}
	var args []interface{}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	args = append(args, filter.Limit, filter.Offset)

	query := fmt.Sprintf(`
		SELECT * FROM withdrawal_requests
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, strings.Join(where, " AND "), len(args)-1, len(args))

	var requests []model.WithdrawalRequest
	err := r.selectAll(ctx, &requests, query, args...)
	return requests, err
}
