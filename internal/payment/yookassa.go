package payment

import (
	"encoding/json"
	"fmt"
	"net/netip"

	"github.com/shopspring/decimal"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
)

// YooKassa does not sign notifications; they are accepted only from the
// provider's published networks.
type YooKassa struct {
	trusted []netip.Prefix
}

func NewYooKassa(networks []string) (*YooKassa, error) {
	y := &YooKassa{}
	for _, n := range networks {
		p, err := netip.ParsePrefix(n)
		if err != nil {
			return nil, fmt.Errorf("yookassa trusted network %q: %w", n, err)
		}
		y.trusted = append(y.trusted, p.Masked())
	}
	return y, nil
}

func (y *YooKassa) Name() model.PaymentProvider { return model.PaymentProviderYooKassa }

func (y *YooKassa) Verify(r *Request) error {
	if len(y.trusted) == 0 {
		return ErrNotConfigured
	}
	addr, err := netip.ParseAddr(r.RemoteIP)
	if err != nil {
		return ErrInvalidSignature
	}
	addr = addr.Unmap()
	for _, p := range y.trusted {
		if p.Contains(addr) {
			return nil
		}
	}
	return ErrInvalidSignature
}

type yookassaNotification struct {
	Event  string `json:"event"`
	Object struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Amount struct {
			Value    string `json:"value"`
			Currency string `json:"currency"`
		} `json:"amount"`
		Metadata            map[string]string `json:"metadata"`
		CancellationDetails *struct {
			Party  string `json:"party"`
			Reason string `json:"reason"`
		} `json:"cancellation_details"`
	} `json:"object"`
}

func (y *YooKassa) Parse(body []byte) (*model.PaymentEvent, error) {
	var n yookassaNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	ev := &model.PaymentEvent{
		Provider:   model.PaymentProviderYooKassa,
		PaymentID:  n.Object.Metadata["payment_id"],
		ExternalID: n.Object.ID,
		Outcome:    model.PaymentOutcomeIgnored,
	}
	if n.Object.Amount.Value != "" {
		amount, err := decimal.NewFromString(n.Object.Amount.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: amount %q", ErrMalformed, n.Object.Amount.Value)
		}
		ev.Amount = &amount
	}

	switch n.Event {
	case "payment.succeeded":
		ev.Outcome = model.PaymentOutcomeSucceeded
	case "payment.canceled":
		ev.Outcome = model.PaymentOutcomeCancelled
		if d := n.Object.CancellationDetails; d != nil {
			ev.Reason = d.Reason
		}
	}
	return checked(ev)
}
