package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
)

const StripeTolerance = 5 * time.Minute

type Stripe struct {
	secret string
	now    func() time.Time
}

func NewStripe(secret string) *Stripe {
	return &Stripe{secret: secret, now: time.Now}
}

func (s *Stripe) Name() model.PaymentProvider { return model.PaymentProviderStripe }

// Verify checks the Stripe-Signature header: t=<unix>,v1=<hex hmac of "t.body">.
func (s *Stripe) Verify(r *Request) error {
	if s.secret == "" {
		return ErrNotConfigured
	}
	header := r.Header.Get("Stripe-Signature")
	if header == "" {
		return ErrInvalidSignature
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			timestamp = v
		case "v1":
			signatures = append(signatures, v)
		}
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil || len(signatures) == 0 {
		return ErrInvalidSignature
	}
	age := s.now().Sub(time.Unix(ts, 0))
	if age > StripeTolerance || age < -StripeTolerance {
		return ErrInvalidSignature
	}

	expected := SignStripe(s.secret, ts, r.Body)
	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// SignStripe computes the v1 signature for body sent at ts.
func SignStripe(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

type stripeEvent struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID               string            `json:"id"`
			PaymentStatus    string            `json:"payment_status"`
			Metadata         map[string]string `json:"metadata"`
			AmountTotal      *int64            `json:"amount_total"`
			Amount           *int64            `json:"amount"`
			LastPaymentError *struct {
				Message string `json:"message"`
			} `json:"last_payment_error"`
		} `json:"object"`
	} `json:"data"`
}

func (s *Stripe) Parse(body []byte) (*model.PaymentEvent, error) {
	var e stripeEvent
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	obj := e.Data.Object

	ev := &model.PaymentEvent{
		Provider:   model.PaymentProviderStripe,
		PaymentID:  obj.Metadata["payment_id"],
		ExternalID: obj.ID,
		Outcome:    model.PaymentOutcomeIgnored,
	}

	cents := obj.AmountTotal
	if cents == nil {
		cents = obj.Amount
	}
	if cents != nil {
		amount := decimal.New(*cents, -2)
		ev.Amount = &amount
	}

	switch e.Type {
	case "checkout.session.completed":
		if obj.PaymentStatus == "" || obj.PaymentStatus == "paid" {
			ev.Outcome = model.PaymentOutcomeSucceeded
		}
	case "checkout.session.async_payment_succeeded", "payment_intent.succeeded":
		ev.Outcome = model.PaymentOutcomeSucceeded
	case "checkout.session.async_payment_failed", "payment_intent.payment_failed":
		ev.Outcome = model.PaymentOutcomeFailed
		if obj.LastPaymentError != nil {
			ev.Reason = obj.LastPaymentError.Message
		}
	case "checkout.session.expired", "payment_intent.canceled":
		ev.Outcome = model.PaymentOutcomeCancelled
		ev.Reason = e.Type
	}
	return checked(ev)
}
