package service

import (
	"errors"
	"fmt"
)

// Kind classifies a domain error for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindAuthorization
	KindInsufficientFunds
	KindLimitExceeded
	KindConflict
	// KindAlreadyProcessed marks an idempotent no-op. Callers answer it
	// with a success-shaped response so retries settle.
	KindAlreadyProcessed
	KindInvalidSignature
	KindExternalService
)

type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Err: errors.New(msg)}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// validationf builds a one-off validation error.
func validationf(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Err: fmt.Errorf(format, args...)}
}

var (
	ErrUserNotFound      = newError(KindNotFound, "user not found")
	ErrInvalidAmount     = newError(KindValidation, "amount must be positive")
	ErrInsufficientFunds = newError(KindInsufficientFunds, "insufficient funds")
	ErrForbidden         = newError(KindAuthorization, "access denied")

	ErrTransactionNotFound = newError(KindNotFound, "transaction not found")

	ErrPromoCodeNotFound     = newError(KindNotFound, "promo code not found")
	ErrPromoCodeInactive     = newError(KindValidation, "promo code is inactive")
	ErrPromoCodeNotStarted   = newError(KindValidation, "promo code is not valid yet")
	ErrPromoCodeExpired      = newError(KindValidation, "promo code has expired")
	ErrPromoCodeUsageLimit   = newError(KindValidation, "promo code usage limit reached")
	ErrPromoCodeAlreadyUsed  = newError(KindValidation, "you have already used this promo code")
	ErrPromoCodeMinAmount    = newError(KindValidation, "order is below the promo code minimum amount")
	ErrPromoCodeWrongPlan    = newError(KindValidation, "promo code does not apply to this plan type")
	ErrPromoCodeNotForOrders = newError(KindValidation, "balance promo codes cannot be used at checkout")
	ErrPromoCodeExists       = newError(KindConflict, "promo code already exists")

	ErrGiftNotFound        = newError(KindNotFound, "gift certificate not found")
	ErrGiftInactive        = newError(KindValidation, "gift certificate is inactive")
	ErrGiftExpired         = newError(KindValidation, "gift certificate has expired")
	ErrGiftAlreadyRedeemed = newError(KindAlreadyProcessed, "gift certificate already redeemed")
	ErrGiftRedeemedByOther = newError(KindValidation, "gift certificate already redeemed")
	ErrGiftCodeExists      = newError(KindConflict, "gift certificate code already exists")

	ErrReferralCodeNotFound   = newError(KindNotFound, "referral code not found")
	ErrSelfReferral           = newError(KindValidation, "you cannot refer yourself")
	ErrAlreadyReferred        = newError(KindConflict, "referrer already set")
	ErrReferralAfterPurchase  = newError(KindValidation, "referral codes can only be applied before the first purchase")
	ErrVolumeTierNotFound     = newError(KindNotFound, "volume discount tier not found")
	ErrVolumeTierExists       = newError(KindConflict, "a tier with this minimum amount already exists")
	ErrDailyLimitExceeded     = newError(KindLimitExceeded, "daily spending limit exceeded")
	ErrMonthlyLimitExceeded   = newError(KindLimitExceeded, "monthly spending limit exceeded")
	ErrInvalidSpendingLimit   = newError(KindValidation, "invalid spending limit")
	ErrPlanNotFound           = newError(KindNotFound, "plan not found")
	ErrPlanInactive           = newError(KindValidation, "plan is not available")
	ErrInvalidPaymentProvider = newError(KindValidation, "unsupported payment provider")
	ErrPaymentNotFound        = newError(KindNotFound, "payment not found")
	ErrPaymentNotPending      = newError(KindAlreadyProcessed, "payment is no longer pending")
	ErrLatePayment            = newError(KindAlreadyProcessed, "payment succeeded after the deposit was closed")
	ErrPaymentAmountMismatch  = newError(KindValidation, "payment amount does not match")
	ErrInvalidSignature       = newError(KindInvalidSignature, "invalid webhook signature")

	ErrWithdrawalNotFound = newError(KindNotFound, "withdrawal request not found")
	ErrWithdrawalConflict = newError(KindConflict, "withdrawal request is not in a valid state for this action")
	ErrWithdrawalDone     = newError(KindAlreadyProcessed, "withdrawal request already completed")

	ErrWebhookNotFound    = newError(KindNotFound, "webhook not found")
	ErrInvalidWebhookURL  = newError(KindValidation, "webhook url must be an absolute http(s) url")
	ErrWebhookTarget      = newError(KindValidation, "webhook url must not point to a private or loopback address")
	ErrWebhookDisabled    = newError(KindValidation, "webhook is disabled")
	ErrInvalidEvents      = newError(KindValidation, "unknown or empty webhook event list")
	ErrFraudAlertNotFound = newError(KindNotFound, "fraud alert not found")
	ErrRefundExhausted    = newError(KindValidation, "transaction has already been fully refunded")
	ErrNotRefundable      = newError(KindValidation, "only completed transactions can be refunded")
)
