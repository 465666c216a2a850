package handler

import (
	"net/http"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/payment"
)

// PaymentWebhook receives a provider notification. Redeliveries of an
// already applied event are answered with 200 so the provider stops
// retrying.
func (h *Handler) PaymentWebhook(c *fiber.Ctx) error {
	provider := model.PaymentProvider(c.Params("provider"))

	req := &payment.Request{
		Body:     append([]byte(nil), c.Body()...),
		Header:   http.Header{},
		Query:    url.Values{},
		RemoteIP: c.IP(),
	}
	c.Request().Header.VisitAll(func(k, v []byte) {
		req.Header.Add(string(k), string(v))
	})
	c.Request().URI().QueryArgs().VisitAll(func(k, v []byte) {
		req.Query.Add(string(k), string(v))
	})

	ev, err := h.svc.Payments.HandleCallback(c.Context(), provider, req)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	h.logger.Info("payment callback applied",
		zap.String("provider", string(provider)),
		zap.String("payment_id", ev.PaymentID),
		zap.String("outcome", string(ev.Outcome)))
	return c.JSON(fiber.Map{
		"success": true,
		"outcome": ev.Outcome,
	})
}
