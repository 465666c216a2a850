// Package payment verifies and decodes payment-provider callbacks into
// model.PaymentEvent values.
package payment

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
)

var (
	ErrInvalidSignature = errors.New("invalid callback signature")
	ErrNotConfigured    = errors.New("provider is not configured")
	ErrMalformed        = errors.New("malformed callback payload")
	ErrUnknownProvider  = errors.New("unknown payment provider")
)

// Request is the transport-neutral view of an inbound callback.
type Request struct {
	Body     []byte
	Header   http.Header
	Query    url.Values
	RemoteIP string
}

type Provider interface {
	Name() model.PaymentProvider
	// Verify authenticates the callback. It returns ErrInvalidSignature
	// or ErrNotConfigured on rejection.
	Verify(r *Request) error
	Parse(body []byte) (*model.PaymentEvent, error)
}

type Registry struct {
	providers map[model.PaymentProvider]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[model.PaymentProvider]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

func (r *Registry) Get(name model.PaymentProvider) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return p, nil
}

// checked rejects events that need a correlation id but carry none.
func checked(ev *model.PaymentEvent) (*model.PaymentEvent, error) {
	if ev.Outcome != model.PaymentOutcomeIgnored && ev.PaymentID == "" {
		return nil, ErrMalformed
	}
	return ev, nil
}
