package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/middleware"
)

func (h *Handler) GetMe(c *fiber.Ctx) error {
	user, err := h.svc.Users.GetUser(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(user)
}
