package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/middleware"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/service"
)

type TopUpRequest struct {
	Amount   decimal.Decimal       `json:"amount"`
	Provider model.PaymentProvider `json:"provider"`
}

// GetBalance returns user's current balance
func (h *Handler) GetBalance(c *fiber.Ctx) error {
	balance, err := h.svc.Balance.GetBalance(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(fiber.Map{
		"balance": balance,
	})
}

// GetBalanceTransactions returns balance history, optionally filtered by
// type and status.
func (h *Handler) GetBalanceTransactions(c *fiber.Ctx) error {
	limit, offset := pagination(c)
	filter := model.TransactionFilter{
		UserID: middleware.GetUserID(c),
		Limit:  limit,
		Offset: offset,
	}
	if v := c.Query("type"); v != "" {
		t := model.TransactionType(strings.ToUpper(v))
		filter.Type = &t
	}
	if v := c.Query("status"); v != "" {
		s := model.TransactionStatus(strings.ToUpper(v))
		filter.Status = &s
	}

	transactions, err := h.svc.Balance.GetTransactions(c.Context(), filter)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(fiber.Map{
		"transactions": transactions,
	})
}

// TopUp creates a pending deposit to be paid through an external provider.
func (h *Handler) TopUp(c *fiber.Ctx) error {
	var req TopUpRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	topUp, err := h.svc.Payments.CreateTopUp(c.Context(), middleware.GetUserID(c), req.Amount, req.Provider)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(topUp)
}

// Purchase buys a plan from the balance.
func (h *Handler) Purchase(c *fiber.Ctx) error {
	var req service.PurchaseRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	result, err := h.svc.Purchases.Purchase(c.Context(), middleware.GetUserID(c), req)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(result)
}
