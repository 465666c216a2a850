package handler

import (
	"github.com/gofiber/fiber/v2"
)

// CronFraudScan runs the heuristics once. The scan is logged as a
// system action.
func (h *Handler) CronFraudScan(c *fiber.Ctx) error {
	created, err := h.svc.Fraud.Scan(c.Context(), nil)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(fiber.Map{
		"status":         "ok",
		"alerts_created": created,
	})
}

func (h *Handler) CronExpirePayments(c *fiber.Ctx) error {
	expired, err := h.svc.Payments.ExpireStale(c.Context())
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(fiber.Map{
		"status":  "ok",
		"expired": expired,
	})
}
