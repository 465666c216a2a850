package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/middleware"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/service"
)

func (h *Handler) GetSpendingLimit(c *fiber.Ctx) error {
	limit, err := h.svc.SpendingLimits.Get(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(limit)
}

func (h *Handler) SetSpendingLimit(c *fiber.Ctx) error {
	var req service.SpendingLimitInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	limit, err := h.svc.SpendingLimits.Set(c.Context(), middleware.GetUserID(c), req)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(limit)
}

func (h *Handler) GetSpendingStats(c *fiber.Ctx) error {
	stats, err := h.svc.SpendingLimits.Stats(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(stats)
}
