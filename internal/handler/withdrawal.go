package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/middleware"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/service"
)

func (h *Handler) ListWithdrawals(c *fiber.Ctx) error {
	limit, offset := pagination(c)
	requests, err := h.svc.Withdrawals.List(c.Context(), middleware.GetUserID(c), limit, offset)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(fiber.Map{
		"withdrawals": requests,
	})
}

func (h *Handler) CreateWithdrawal(c *fiber.Ctx) error {
	var req service.WithdrawalInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	request, err := h.svc.Withdrawals.Create(c.Context(), middleware.GetUserID(c), req)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(request)
}
