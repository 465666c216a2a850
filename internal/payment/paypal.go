package payment

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
)

// PayPal callbacks are authenticated by a shared token in the webhook URL.
type PayPal struct {
	token string
}

func NewPayPal(token string) *PayPal {
	return &PayPal{token: token}
}

func (p *PayPal) Name() model.PaymentProvider { return model.PaymentProviderPayPal }

func (p *PayPal) Verify(r *Request) error {
	if p.token == "" {
		return ErrNotConfigured
	}
	if subtle.ConstantTimeCompare([]byte(r.Query.Get("token")), []byte(p.token)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

type paypalEvent struct {
	EventType string `json:"event_type"`
	Resource  struct {
		ID       string `json:"id"`
		CustomID string `json:"custom_id"`
		Status   string `json:"status"`
		Amount   *struct {
			Value string `json:"value"`
		} `json:"amount"`
	} `json:"resource"`
}

func (p *PayPal) Parse(body []byte) (*model.PaymentEvent, error) {
	var e paypalEvent
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	ev := &model.PaymentEvent{
		Provider:   model.PaymentProviderPayPal,
		PaymentID:  e.Resource.CustomID,
		ExternalID: e.Resource.ID,
		Outcome:    model.PaymentOutcomeIgnored,
	}
	if e.Resource.Amount != nil && e.Resource.Amount.Value != "" {
		amount, err := decimal.NewFromString(e.Resource.Amount.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: amount %q", ErrMalformed, e.Resource.Amount.Value)
		}
		ev.Amount = &amount
	}

	switch e.EventType {
	case "PAYMENT.CAPTURE.COMPLETED":
		ev.Outcome = model.PaymentOutcomeSucceeded
	case "PAYMENT.CAPTURE.DENIED", "PAYMENT.CAPTURE.DECLINED":
		ev.Outcome = model.PaymentOutcomeFailed
		ev.Reason = e.Resource.Status
	}
	return checked(ev)
}
