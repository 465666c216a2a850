package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
)

type AdminRole string

const (
	AdminRoleAdmin      AdminRole = "admin"
	AdminRoleSuperAdmin AdminRole = "superadmin"
)

type Admin struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	Role      AdminRole `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	CreatedBy *int64    `json:"created_by,omitempty" db:"created_by"`
}

type BannedUser struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	UserID    *int64     `json:"user_id,omitempty" db:"user_id"`
	IPAddress *string    `json:"ip_address,omitempty" db:"ip_address"`
	Reason    *string    `json:"reason,omitempty" db:"reason"`
	BannedAt  time.Time  `json:"banned_at" db:"banned_at"`
	BannedBy  *int64     `json:"banned_by,omitempty" db:"banned_by"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	IsActive  bool       `json:"is_active" db:"is_active"`
}

// IsExpired checks if ban has expired
func (b *BannedUser) IsExpired() bool {
	if b.ExpiresAt == nil {
		return false // Permanent ban
	}
	return time.Now().After(*b.ExpiresAt)
}

// AdminLog is the audit trail of operator actions. AdminID is nil for
// system-initiated runs such as scheduled fraud scans.
type AdminLog struct {
	ID           uuid.UUID      `json:"id" db:"id"`
	AdminID      *int64         `json:"admin_id,omitempty" db:"admin_id"`
	Action       string         `json:"action" db:"action"`
	TargetUserID *int64         `json:"target_user_id,omitempty" db:"target_user_id"`
	Success      bool           `json:"success" db:"success"`
	Details      types.JSONText `json:"details,omitempty" db:"details"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
}

// Admin action constants
const (
	AdminActionSetBalance         = "set_balance"
	AdminActionAddBalance         = "add_balance"
	AdminActionBanUser            = "ban_user"
	AdminActionBanIP              = "ban_ip"
	AdminActionUnbanUser          = "unban_user"
	AdminActionUnbanIP            = "unban_ip"
	AdminActionCreatePromoCode    = "create_promo_code"
	AdminActionDeactivatePromo    = "deactivate_promo_code"
	AdminActionCreateGift         = "create_gift_certificate"
	AdminActionCreateVolumeTier   = "create_volume_discount"
	AdminActionDeleteVolumeTier   = "delete_volume_discount"
	AdminActionCreatePlan         = "create_plan"
	AdminActionUpdatePlan         = "update_plan"
	AdminActionDeletePlan         = "delete_plan"
	AdminActionRefund             = "refund"
	AdminActionMassBonus          = "mass_bonus"
	AdminActionFraudScan          = "fraud_scan"
	AdminActionResolveAlert       = "resolve_fraud_alert"
	AdminActionProcessWithdrawal  = "process_withdrawal"
	AdminActionCompleteWithdrawal = "complete_withdrawal"
	AdminActionRejectWithdrawal   = "reject_withdrawal"
	AdminActionSetSetting         = "set_setting"
)

type AdminStats struct {
	TotalUsers         int             `json:"total_users" db:"total_users"`
	TotalBalance       decimal.Decimal `json:"total_balance" db:"total_balance"`
	DepositsToday      decimal.Decimal `json:"deposits_today" db:"deposits_today"`
	PendingWithdrawals int             `json:"pending_withdrawals" db:"pending_withdrawals"`
	OpenFraudAlerts    int             `json:"open_fraud_alerts" db:"open_fraud_alerts"`
	BannedUsers        int             `json:"banned_users" db:"banned_users"`
	ActivePromoCodes   int             `json:"active_promo_codes" db:"active_promo_codes"`
}
