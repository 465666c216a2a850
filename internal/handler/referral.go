package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/middleware"
)

type ApplyReferralRequest struct {
	Code string `json:"code"`
}

func (h *Handler) GetReferralStats(c *fiber.Ctx) error {
	stats, err := h.svc.Referrals.GetReferralStats(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(stats)
}

func (h *Handler) ApplyReferralCode(c *fiber.Ctx) error {
	var req ApplyReferralRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Code == "" {
		return badRequest(c, "code is required")
	}

	if err := h.svc.Referrals.ApplyCode(c.Context(), middleware.GetUserID(c), req.Code); err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
	})
}
