package model

import (
	"github.com/shopspring/decimal"
)

type PaymentProvider string

const (
	PaymentProviderYooKassa  PaymentProvider = "yookassa"
	PaymentProviderStripe    PaymentProvider = "stripe"
	PaymentProviderPayPal    PaymentProvider = "paypal"
	PaymentProviderCryptoPay PaymentProvider = "cryptopay"
	PaymentProviderBalance   PaymentProvider = "balance"
)

// External providers a top-up can be created for.
var TopUpProviders = []PaymentProvider{
	PaymentProviderYooKassa,
	PaymentProviderStripe,
	PaymentProviderPayPal,
	PaymentProviderCryptoPay,
}

func (p PaymentProvider) IsExternal() bool {
	for _, e := range TopUpProviders {
		if e == p {
			return true
		}
	}
	return false
}

type PaymentOutcome string

const (
	PaymentOutcomeSucceeded PaymentOutcome = "succeeded"
	PaymentOutcomeFailed    PaymentOutcome = "failed"
	PaymentOutcomeCancelled PaymentOutcome = "cancelled"
	PaymentOutcomeIgnored   PaymentOutcome = "ignored" // event we do not act on
)

// PaymentEvent is a provider callback reduced to what the ledger needs.
type PaymentEvent struct {
	Provider   PaymentProvider
	PaymentID  string // our correlation id, echoed back by the provider
	ExternalID string // provider-side id, kept for support lookups
	Outcome    PaymentOutcome
	Amount     *decimal.Decimal
	Reason     string
}
