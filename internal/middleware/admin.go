package middleware

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const AdminIDKey = "admin_id"

// AdminChecker reports whether a user may use the admin API.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID int64) (bool, error)
}

// BanChecker reports whether a user or an address is banned.
type BanChecker interface {
	IsBanned(ctx context.Context, userID int64, ip string) (bool, error)
}

// IPTracker records the address a user was seen from.
type IPTracker interface {
	TrackIP(ctx context.Context, userID int64, ip string) error
}

// AdminAuth middleware checks if the authenticated user is an admin
func AdminAuth(admins AdminChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := GetUserID(c)
		if userID == 0 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unauthorized",
			})
		}

		isAdmin, err := admins.IsAdmin(c.Context(), userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to check admin status",
			})
		}

		if !isAdmin {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "access denied",
			})
		}

		c.Locals(AdminIDKey, userID)
		return c.Next()
	}
}

// BanCheck rejects requests from banned users or banned addresses.
func BanCheck(bans BanChecker, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		banned, err := bans.IsBanned(c.Context(), GetUserID(c), c.IP())
		if err != nil {
			logger.Error("ban check failed", zap.Int64("user_id", GetUserID(c)), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "internal error",
			})
		}
		if banned {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "access denied: banned",
			})
		}
		return c.Next()
	}
}

// TrackIP records the caller's address for the shared-IP heuristic.
// Failures are logged and never block the request.
func TrackIP(tracker IPTracker, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if userID := GetUserID(c); userID != 0 {
			if err := tracker.TrackIP(c.Context(), userID, c.IP()); err != nil {
				logger.Warn("track ip failed", zap.Int64("user_id", userID), zap.Error(err))
			}
		}
		return c.Next()
	}
}

// GetAdminID returns the admin user ID from context
func GetAdminID(c *fiber.Ctx) int64 {
	adminID, ok := c.Locals(AdminIDKey).(int64)
	if !ok {
		return 0
	}
	return adminID
}
