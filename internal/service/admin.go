package service

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/repository"
)

var (
	ErrAlreadyBanned  = newError(KindConflict, "user is already banned")
	ErrNotBanned      = newError(KindNotFound, "user is not banned")
	ErrInvalidIP      = newError(KindValidation, "invalid IP address")
	ErrUnknownSetting = newError(KindValidation, "unknown setting")
)

// AdminService holds operator actions. Every mutating call writes an
// admin_logs row, also when it fails.
type AdminService struct {
	store  repository.Store
	logger *zap.Logger
}

func NewAdminService(store repository.Store, logger *zap.Logger) *AdminService {
	return &AdminService{store: store, logger: logger.Named("admin")}
}

// IsAdmin checks if user is an admin
func (s *AdminService) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	return s.store.IsAdmin(ctx, userID)
}

// Audited runs fn and records action with its outcome. It is the wrapper
// for admin actions implemented by other services.
func (s *AdminService) Audited(ctx context.Context, adminID int64, action string, target *int64, details map[string]interface{}, fn func() error) error {
	err := fn()
	if details == nil {
		details = map[string]interface{}{}
	}
	if err != nil {
		details["error"] = err.Error()
	}
	writeAdminLog(ctx, s.store, s.logger, &adminID, action, target, err == nil, details)
	return err
}

// --- Users ---

func (s *AdminService) ListUsers(ctx context.Context, limit, offset int, search string) ([]model.User, int, error) {
	return s.store.ListUsers(ctx, pageLimit(limit), offset, strings.TrimSpace(search))
}

func (s *AdminService) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

func (s *AdminService) Stats(ctx context.Context) (*model.AdminStats, error) {
	return s.store.GetAdminStats(ctx)
}

// --- Balance ---

// AddBalance credits (or, for a negative amount, debits) the user through
// the ledger.
func (s *AdminService) AddBalance(ctx context.Context, adminID, userID int64, amount decimal.Decimal, reason string) (*model.Transaction, error) {
	amount = money(amount)
	details := map[string]interface{}{"amount": amount.StringFixed(2), "reason": reason}

	var t *model.Transaction
	err := s.Audited(ctx, adminID, model.AdminActionAddBalance, &userID, details, func() error {
		if amount.IsZero() {
			return ErrInvalidAmount
		}
		var err error
		t, err = s.adjust(ctx, adminID, userID, amount, reason)
		return err
	})
	return t, err
}

// SetBalance moves the balance to target with one adjusting entry. The
// delta is computed under the balance row lock.
func (s *AdminService) SetBalance(ctx context.Context, adminID, userID int64, target decimal.Decimal) (*model.Transaction, error) {
	target = money(target)
	details := map[string]interface{}{"new_balance": target.StringFixed(2)}

	var t *model.Transaction
	err := s.Audited(ctx, adminID, model.AdminActionSetBalance, &userID, details, func() error {
		if target.IsNegative() {
			return validationf("balance must not be negative")
		}
		return s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
			current, err := tx.LockUserBalance(ctx, userID)
			if err != nil {
				if errors.Is(err, repository.ErrUserNotFound) {
					return ErrUserNotFound
				}
				return fmt.Errorf("lock balance: %w", err)
			}
			details["old_balance"] = current.StringFixed(2)
			delta := target.Sub(current)
			if delta.IsZero() {
				return nil
			}
			t, err = insertEntry(ctx, tx, adjustment(adminID, userID, delta, "Balance set by admin"), current, target)
			return err
		})
	})
	return t, err
}

func (s *AdminService) adjust(ctx context.Context, adminID, userID int64, delta decimal.Decimal, reason string) (*model.Transaction, error) {
	var t *model.Transaction
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		var err error
		t, err = appendEntry(ctx, tx, adjustment(adminID, userID, delta, reason))
		return err
	})
	return t, err
}

func adjustment(adminID, userID int64, delta decimal.Decimal, reason string) Entry {
	txType := model.TransactionTypeBonus
	if delta.IsNegative() {
		txType = model.TransactionTypeWithdrawal
	}
	if reason == "" {
		reason = fmt.Sprintf("Admin adjustment by %d", adminID)
	}
	return Entry{
		UserID:      userID,
		Type:        txType,
		Amount:      delta,
		Description: reason,
		Metadata:    map[string]interface{}{"admin_id": adminID},
	}
}

// --- Refunds ---

type RefundResult struct {
	Refund  *model.Transaction `json:"refund"`
	Message string             `json:"message"`
}

// Refund credits back part or all of a completed transaction. All refunds
// of one transaction together never exceed |original.amount|. A nil amount
// refunds whatever is left.
func (s *AdminService) Refund(ctx context.Context, adminID int64, txID uuid.UUID, amount *decimal.Decimal, reason string) (*RefundResult, error) {
	details := map[string]interface{}{"transaction_id": txID.String(), "reason": reason}
	if amount != nil {
		details["requested"] = amount.StringFixed(2)
	}

	var result *RefundResult
	var target *int64
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		original, err := tx.GetTransaction(ctx, txID)
		if err != nil {
			if errors.Is(err, repository.ErrTransactionNotFound) {
				return ErrTransactionNotFound
			}
			return err
		}
		target = &original.UserID
		if original.Status != model.TransactionStatusCompleted || original.Type == model.TransactionTypeRefund {
			return ErrNotRefundable
		}

		// Serializes refunds of this user's transactions.
		if _, err := tx.LockUserBalance(ctx, original.UserID); err != nil {
			return fmt.Errorf("lock balance: %w", err)
		}
		refunded, err := tx.SumRefunds(ctx, original.ID)
		if err != nil {
			return err
		}
		remaining := original.Amount.Abs().Sub(refunded)
		if !remaining.IsPositive() {
			return ErrRefundExhausted
		}

		credit := remaining
		if amount != nil {
			requested := money(*amount)
			if !requested.IsPositive() {
				return ErrInvalidAmount
			}
			credit = decimal.Min(requested, remaining)
		}

		description := fmt.Sprintf("Refund of %s", original.ID)
		if reason != "" {
			description = fmt.Sprintf("Refund: %s", reason)
		}
		refund, err := appendEntry(ctx, tx, Entry{
			UserID:               original.UserID,
			Type:                 model.TransactionTypeRefund,
			Amount:               credit,
			Description:          description,
			RelatedTransactionID: &original.ID,
			Metadata:             map[string]interface{}{"admin_id": adminID},
		})
		if err != nil {
			return err
		}

		message := fmt.Sprintf("Refunded %s", credit.StringFixed(2))
		if amount != nil && credit.LessThan(money(*amount)) {
			message = fmt.Sprintf("Refunded %s, capped at the remaining refundable amount", credit.StringFixed(2))
		}
		result = &RefundResult{Refund: refund, Message: message}

		details["amount"] = credit.StringFixed(2)
		return writeAdminLogTx(ctx, tx, &adminID, model.AdminActionRefund, target, true, details)
	})
	if err != nil {
		details["error"] = err.Error()
		writeAdminLog(ctx, s.store, s.logger, &adminID, model.AdminActionRefund, target, false, details)
		return nil, err
	}

	s.logger.Info("refund issued",
		zap.Int64("admin_id", adminID),
		zap.String("transaction_id", txID.String()),
		zap.String("amount", result.Refund.Amount.String()))
	return result, nil
}

// --- Mass bonus ---

type MassBonusResult struct {
	Success     int             `json:"success"`
	Failed      int             `json:"failed"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

// MassBonus credits amount to each user in userIDs, or to every user when
// the list is empty. Users are credited independently; one failure does
// not stop the rest.
func (s *AdminService) MassBonus(ctx context.Context, adminID int64, userIDs []int64, amount decimal.Decimal, description string) (*MassBonusResult, error) {
	amount = money(amount)
	result := &MassBonusResult{TotalAmount: decimal.Zero}
	details := map[string]interface{}{"amount": amount.StringFixed(2)}

	err := s.Audited(ctx, adminID, model.AdminActionMassBonus, nil, details, func() error {
		if !amount.IsPositive() {
			return ErrInvalidAmount
		}
		if len(userIDs) == 0 {
			var err error
			if userIDs, err = s.store.ListUserIDs(ctx); err != nil {
				return err
			}
		}
		if description == "" {
			description = "Bonus"
		}

		for _, userID := range userIDs {
			err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
				_, err := appendEntry(ctx, tx, Entry{
					UserID:      userID,
					Type:        model.TransactionTypeBonus,
					Amount:      amount,
					Description: description,
					Metadata:    map[string]interface{}{"admin_id": adminID, "mass_bonus": true},
				})
				return err
			})
			if err != nil {
				s.logger.Warn("mass bonus credit failed", zap.Int64("user_id", userID), zap.Error(err))
				result.Failed++
				continue
			}
			result.Success++
			result.TotalAmount = result.TotalAmount.Add(amount)
		}
		details["success"] = result.Success
		details["failed"] = result.Failed
		details["total_amount"] = result.TotalAmount.StringFixed(2)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// --- Bans ---

func (s *AdminService) BanUser(ctx context.Context, adminID, userID int64, reason string, expiresAt *time.Time) error {
	details := map[string]interface{}{"reason": reason, "expires_at": expiresAt}
	return s.Audited(ctx, adminID, model.AdminActionBanUser, &userID, details, func() error {
		banned, err := s.store.IsUserBanned(ctx, userID)
		if err != nil {
			return err
		}
		if banned {
			return ErrAlreadyBanned
		}
		return s.store.BanUser(ctx, &model.BannedUser{
			UserID:    &userID,
			Reason:    optString(reason),
			BannedBy:  &adminID,
			ExpiresAt: expiresAt,
		})
	})
}

func (s *AdminService) BanIP(ctx context.Context, adminID int64, ip, reason string, expiresAt *time.Time) error {
	details := map[string]interface{}{"ip": ip, "reason": reason, "expires_at": expiresAt}
	return s.Audited(ctx, adminID, model.AdminActionBanIP, nil, details, func() error {
		addr, err := netip.ParseAddr(strings.TrimSpace(ip))
		if err != nil {
			return ErrInvalidIP
		}
		normalized := addr.String()
		return s.store.BanUser(ctx, &model.BannedUser{
			IPAddress: &normalized,
			Reason:    optString(reason),
			BannedBy:  &adminID,
			ExpiresAt: expiresAt,
		})
	})
}

func (s *AdminService) UnbanUser(ctx context.Context, adminID, userID int64) error {
	return s.Audited(ctx, adminID, model.AdminActionUnbanUser, &userID, nil, func() error {
		banned, err := s.store.IsUserBanned(ctx, userID)
		if err != nil {
			return err
		}
		if !banned {
			return ErrNotBanned
		}
		return s.store.UnbanUser(ctx, userID)
	})
}

func (s *AdminService) UnbanIP(ctx context.Context, adminID int64, ip string) error {
	return s.Audited(ctx, adminID, model.AdminActionUnbanIP, nil, map[string]interface{}{"ip": ip}, func() error {
		return s.store.UnbanIP(ctx, strings.TrimSpace(ip))
	})
}

func (s *AdminService) ListBans(ctx context.Context, limit, offset int) ([]model.BannedUser, error) {
	return s.store.ListBannedUsers(ctx, pageLimit(limit), offset)
}

// IsBanned reports whether the user or the address carries an active ban.
func (s *AdminService) IsBanned(ctx context.Context, userID int64, ip string) (bool, error) {
	banned, err := s.store.IsUserBanned(ctx, userID)
	if err != nil || banned {
		return banned, err
	}
	if ip == "" {
		return false, nil
	}
	return s.store.IsIPBanned(ctx, ip)
}

// --- Logs ---

func (s *AdminService) Logs(ctx context.Context, limit, offset int) ([]model.AdminLog, error) {
	return s.store.GetAdminLogs(ctx, pageLimit(limit), offset)
}

// --- Settings ---

// settingRanges lists the editable settings and their inclusive bounds.
var settingRanges = map[string][2]int64{
	repository.SettingTopupBonusPercent:    {0, 10},
	repository.SettingReferralBonusPercent: {0, 100},
}

func (s *AdminService) GetSettings(ctx context.Context) (map[string]string, error) {
	return s.store.GetAllSettings(ctx)
}

func (s *AdminService) SetSetting(ctx context.Context, adminID int64, key, value string) error {
	details := map[string]interface{}{"key": key, "value": value}
	return s.Audited(ctx, adminID, model.AdminActionSetSetting, nil, details, func() error {
		bounds, ok := settingRanges[key]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownSetting, key)
		}
		d, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return validationf("%s must be a number", key)
		}
		if d.LessThan(decimal.NewFromInt(bounds[0])) || d.GreaterThan(decimal.NewFromInt(bounds[1])) {
			return validationf("%s must be between %d and %d", key, bounds[0], bounds[1])
		}
		return s.store.SetSetting(ctx, key, d.String())
	})
}

// writeAdminLog records an admin action. A failed write is logged and
// never fails the action itself.
func writeAdminLog(ctx context.Context, st repository.AdminStore, logger *zap.Logger, adminID *int64, action string, target *int64, success bool, details map[string]interface{}) {
	if err := writeAdminLogTx(ctx, st, adminID, action, target, success, details); err != nil {
		logger.Error("write admin log", zap.String("action", action), zap.Error(err))
	}
}

func writeAdminLogTx(ctx context.Context, st repository.AdminStore, adminID *int64, action string, target *int64, success bool, details map[string]interface{}) error {
	encoded, err := encodeMetadata(details)
	if err != nil {
		return err
	}
	return st.CreateAdminLog(ctx, &model.AdminLog{
		AdminID:      adminID,
		Action:       action,
		TargetUserID: target,
		Success:      success,
		Details:      encoded,
	})
}
