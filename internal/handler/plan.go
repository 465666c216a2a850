package handler

import (
	"github.com/gofiber/fiber/v2"
)

func (h *Handler) GetPlans(c *fiber.Ctx) error {
	plans, err := h.svc.Plans.GetActivePlans(c.Context())
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(fiber.Map{
		"plans": plans,
	})
}
