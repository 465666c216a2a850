package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/middleware"
)

type CreateWebhookRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

func (h *Handler) ListWebhooks(c *fiber.Ctx) error {
	hooks, err := h.svc.Webhooks.List(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(fiber.Map{
		"webhooks": hooks,
	})
}

// CreateWebhook registers an endpoint. The signing secret is only
// returned here.
func (h *Handler) CreateWebhook(c *fiber.Ctx) error {
	var req CreateWebhookRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	hook, err := h.svc.Webhooks.Create(c.Context(), middleware.GetUserID(c), req.URL, req.Events)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(hook)
}

func (h *Handler) DeleteWebhook(c *fiber.Ctx) error {
	id, ok := uuidParam(c, "id")
	if !ok {
		return badRequest(c, "invalid webhook id")
	}
	if err := h.svc.Webhooks.Delete(c.Context(), middleware.GetUserID(c), id); err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
	})
}

func (h *Handler) GetWebhookLogs(c *fiber.Ctx) error {
	id, ok := uuidParam(c, "id")
	if !ok {
		return badRequest(c, "invalid webhook id")
	}
	logs, err := h.svc.Webhooks.Logs(c.Context(), middleware.GetUserID(c), id, c.QueryInt("limit", 50))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(fiber.Map{
		"logs": logs,
	})
}

// TestWebhook sends a signed ping synchronously and returns the delivery
// log entry.
func (h *Handler) TestWebhook(c *fiber.Ctx) error {
	id, ok := uuidParam(c, "id")
	if !ok {
		return badRequest(c, "invalid webhook id")
	}
	entry, err := h.svc.Webhooks.Test(c.Context(), middleware.GetUserID(c), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(entry)
}
