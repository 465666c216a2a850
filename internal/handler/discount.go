package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/middleware"
)

func (h *Handler) GetDiscount(c *fiber.Ctx) error {
	discount, err := h.svc.Discounts.GetUserDiscount(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(discount)
}

func (h *Handler) GetDiscountTiers(c *fiber.Ctx) error {
	tiers, err := h.svc.Discounts.ListTiers(c.Context(), true)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(fiber.Map{
		"tiers": tiers,
	})
}
