package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/middleware"
)

type PromoCodeRequest struct {
	Code     string           `json:"code"`
	Amount   *decimal.Decimal `json:"amount"`
	PlanType string           `json:"plan_type"`
}

// ValidatePromoCode checks a code against an optional order without
// redeeming it.
func (h *Handler) ValidatePromoCode(c *fiber.Ctx) error {
	var req PromoCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Code == "" {
		return badRequest(c, "code is required")
	}

	result, err := h.svc.PromoCodes.Validate(c.Context(), req.Code, middleware.GetUserID(c), req.Amount, req.PlanType)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(result)
}

// ApplyPromoCode redeems a balance code or previews an order discount.
func (h *Handler) ApplyPromoCode(c *fiber.Ctx) error {
	var req PromoCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Code == "" {
		return badRequest(c, "code is required")
	}

	result, err := h.svc.PromoCodes.Apply(c.Context(), req.Code, middleware.GetUserID(c), req.Amount, req.PlanType)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(result)
}

func (h *Handler) RedeemGift(c *fiber.Ctx) error {
	var req struct {
		Code string `json:"code"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Code == "" {
		return badRequest(c, "code is required")
	}

	result, err := h.svc.Gifts.Redeem(c.Context(), req.Code, middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(result)
}
