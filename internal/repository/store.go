package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
)

// Store is the persistence contract the services run against.
// Lock* methods take a row lock and are only meaningful inside WithTx.
type Store interface {
	// WithTx runs fn in one database transaction. A Store that is already
	// bound to a transaction runs fn inline.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	UserStore
	LedgerStore
	PromoCodeStore
	DiscountStore
	GiftCertificateStore
	ReferralStore
	SpendingLimitStore
	WithdrawalStore
	WebhookStore
	FraudStore
	AdminStore
	PlanStore
	SettingsStore
}

type UserStore interface {
	GetUser(ctx context.Context, id int64) (*model.User, error)
	GetUserByReferralCode(ctx context.Context, code string) (*model.User, error)
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
	SetReferredBy(ctx context.Context, userID, referrerID int64) error
	ListUsers(ctx context.Context, limit, offset int, search string) ([]model.User, int, error)
	ListUserIDs(ctx context.Context) ([]int64, error)
	TouchUserIP(ctx context.Context, userID int64, ip string) error
	ListSharedIPs(ctx context.Context, since time.Time, minUsers int) ([]model.SharedIP, error)
}

type LedgerStore interface {
	LockUserBalance(ctx context.Context, userID int64) (decimal.Decimal, error)
	GetUserBalance(ctx context.Context, userID int64) (decimal.Decimal, error)
	SetUserBalance(ctx context.Context, userID int64, balance decimal.Decimal) error
	InsertTransaction(ctx context.Context, t *model.Transaction) error
	GetTransaction(ctx context.Context, id uuid.UUID) (*model.Transaction, error)
	LockTransactionByPaymentID(ctx context.Context, provider model.PaymentProvider, paymentID string) (*model.Transaction, error)
	CompleteTransaction(ctx context.Context, id uuid.UUID, balanceBefore, balanceAfter decimal.Decimal, metadata []byte) error
	SetTransactionStatus(ctx context.Context, id uuid.UUID, from, to model.TransactionStatus) error
	ListTransactions(ctx context.Context, filter model.TransactionFilter) ([]model.Transaction, error)
	CountCompleted(ctx context.Context, userID int64, txType model.TransactionType) (int, error)
	SumCompleted(ctx context.Context, userID int64, txType model.TransactionType, since time.Time) (decimal.Decimal, error)
	SumLedger(ctx context.Context, userID int64) (decimal.Decimal, error)
	SumRefunds(ctx context.Context, originalID uuid.UUID) (decimal.Decimal, error)
	HasReferralBonus(ctx context.Context, referredUserID int64) (bool, error)
	ListStalePending(ctx context.Context, txType model.TransactionType, olderThan time.Time) ([]model.Transaction, error)
	ListVelocityHits(ctx context.Context, since time.Time, moreThan int) ([]model.VelocityHit, error)
	ListLargeDeposits(ctx context.Context, since time.Time, minAmount decimal.Decimal) ([]model.Transaction, error)
}

type PromoCodeStore interface {
	GetPromoCodeByCode(ctx context.Context, code string) (*model.PromoCode, error)
	LockPromoCode(ctx context.Context, id uuid.UUID) (*model.PromoCode, error)
	CountPromoCodeUses(ctx context.Context, promoCodeID uuid.UUID, userID int64) (int, error)
	IncrementPromoCodeUsage(ctx context.Context, id uuid.UUID) error
	InsertPromoCodeUse(ctx context.Context, use *model.PromoCodeUse) error
	CreatePromoCode(ctx context.Context, promo *model.PromoCode) error
	ListPromoCodes(ctx context.Context, limit, offset int) ([]model.PromoCode, error)
	DeactivatePromoCode(ctx context.Context, code string) error
}

type DiscountStore interface {
	ListVolumeDiscounts(ctx context.Context, activeOnly bool) ([]model.VolumeDiscount, error)
	CreateVolumeDiscount(ctx context.Context, d *model.VolumeDiscount) error
	DeleteVolumeDiscount(ctx context.Context, id uuid.UUID) error
	GetUserDiscount(ctx context.Context, userID int64) (*model.UserDiscount, error)
	UpsertUserDiscount(ctx context.Context, d *model.UserDiscount) error
}

type GiftCertificateStore interface {
	LockGiftCertificateByCode(ctx context.Context, code string) (*model.GiftCertificate, error)
	MarkGiftCertificateRedeemed(ctx context.Context, id uuid.UUID, userID int64, at time.Time) error
	CreateGiftCertificate(ctx context.Context, g *model.GiftCertificate) error
	ListGiftCertificates(ctx context.Context, limit, offset int) ([]model.GiftCertificate, error)
}

type ReferralStore interface {
	CreateReferral(ctx context.Context, referral *model.Referral) error
	GetReferralByReferredID(ctx context.Context, referredID int64) (*model.Referral, error)
	CreditReferral(ctx context.Context, id uuid.UUID, bonus decimal.Decimal) error
	GetReferralStats(ctx context.Context, referrerID int64) (*model.ReferralStats, error)
}

type SpendingLimitStore interface {
	GetSpendingLimit(ctx context.Context, userID int64) (*model.SpendingLimit, error)
	UpsertSpendingLimit(ctx context.Context, limit *model.SpendingLimit) error
}

type WithdrawalStore interface {
	CreateWithdrawal(ctx context.Context, w *model.WithdrawalRequest) error
	LockWithdrawal(ctx context.Context, id uuid.UUID) (*model.WithdrawalRequest, error)
	TransitionWithdrawal(ctx context.Context, id uuid.UUID, from, to model.WithdrawalStatus, update model.WithdrawalUpdate) error
	ListWithdrawals(ctx context.Context, filter model.WithdrawalFilter) ([]model.WithdrawalRequest, error)
}

type WebhookStore interface {
	CreateWebhook(ctx context.Context, w *model.Webhook) error
	GetWebhook(ctx context.Context, id uuid.UUID) (*model.Webhook, error)
	ListWebhooks(ctx context.Context, userID int64) ([]model.Webhook, error)
	ListActiveWebhooksForEvent(ctx context.Context, userID int64, event string) ([]model.Webhook, error)
	DeleteWebhook(ctx context.Context, id uuid.UUID, userID int64) error
	RecordWebhookSuccess(ctx context.Context, id uuid.UUID) error
	RecordWebhookFailure(ctx context.Context, id uuid.UUID, reason string, disableAt int) (bool, error)
	InsertWebhookLog(ctx context.Context, log *model.WebhookLog) error
	ListWebhookLogs(ctx context.Context, webhookID uuid.UUID, limit int) ([]model.WebhookLog, error)
}

type FraudStore interface {
	HasRecentFraudAlert(ctx context.Context, userID int64, alertType model.FraudAlertType, since time.Time) (bool, error)
	HasFraudAlertForIP(ctx context.Context, alertType model.FraudAlertType, ip string) (bool, error)
	CreateFraudAlert(ctx context.Context, alert *model.FraudAlert) error
	ListFraudAlerts(ctx context.Context, status *model.FraudAlertStatus, limit, offset int) ([]model.FraudAlert, error)
	ResolveFraudAlert(ctx context.Context, id uuid.UUID, status model.FraudAlertStatus, adminID int64) error
}

type AdminStore interface {
	IsAdmin(ctx context.Context, userID int64) (bool, error)
	CreateAdminLog(ctx context.Context, log *model.AdminLog) error
	GetAdminLogs(ctx context.Context, limit, offset int) ([]model.AdminLog, error)
	BanUser(ctx context.Context, ban *model.BannedUser) error
	UnbanUser(ctx context.Context, userID int64) error
	UnbanIP(ctx context.Context, ip string) error
	IsUserBanned(ctx context.Context, userID int64) (bool, error)
	IsIPBanned(ctx context.Context, ip string) (bool, error)
	ListBannedUsers(ctx context.Context, limit, offset int) ([]model.BannedUser, error)
	GetAdminStats(ctx context.Context) (*model.AdminStats, error)
}

type PlanStore interface {
	GetPlan(ctx context.Context, id uuid.UUID) (*model.Plan, error)
	ListPlans(ctx context.Context, activeOnly bool) ([]model.Plan, error)
	CreatePlan(ctx context.Context, plan *model.Plan) error
	UpdatePlan(ctx context.Context, plan *model.Plan) error
}

type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	GetAllSettings(ctx context.Context) (map[string]string, error)
}
