package handler

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/config"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/service"
)

// Services bundles the domain services the HTTP layer calls into.
type Services struct {
	Users          *service.UserService
	Plans          *service.PlanService
	Balance        *service.BalanceService
	Payments       *service.PaymentService
	Purchases      *service.PurchaseService
	PromoCodes     *service.PromoCodeService
	Gifts          *service.GiftCertificateService
	Discounts      *service.DiscountService
	Referrals      *service.ReferralService
	SpendingLimits *service.SpendingLimitService
	Withdrawals    *service.WithdrawalService
	Webhooks       *service.WebhookService
	Fraud          *service.FraudService
	Admin          *service.AdminService
}

// Handler serves the user-facing, provider and cron endpoints.
type Handler struct {
	svc    Services
	logger *zap.Logger
}

func New(svc Services, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
	})
}

// respondError maps a service error to its HTTP status. Internal errors
// are logged and answered with a generic message.
func respondError(c *fiber.Ctx, logger *zap.Logger, err error) error {
	status := fiber.StatusInternalServerError
	switch service.KindOf(err) {
	case service.KindAlreadyProcessed:
		return c.JSON(fiber.Map{
			"success":           true,
			"already_processed": true,
			"message":           err.Error(),
		})
	case service.KindValidation, service.KindInsufficientFunds, service.KindLimitExceeded:
		status = fiber.StatusBadRequest
	case service.KindNotFound:
		status = fiber.StatusNotFound
	case service.KindAuthorization:
		status = fiber.StatusForbidden
	case service.KindConflict:
		status = fiber.StatusConflict
	case service.KindInvalidSignature:
		status = fiber.StatusUnauthorized
	case service.KindExternalService:
		status = fiber.StatusBadGateway
	}

	if status >= fiber.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err))
		return c.Status(status).JSON(fiber.Map{
			"error": "internal error",
		})
	}
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// AppConfig returns the fiber settings for the API server. The client IP
// is read from cfg.ProxyHeader only when the peer is a trusted proxy.
func AppConfig(cfg config.ServerConfig, logger *zap.Logger) fiber.Config {
	c := fiber.Config{
		ErrorHandler: ErrorHandler(logger),
	}
	if cfg.ProxyHeader != "" {
		c.ProxyHeader = cfg.ProxyHeader
		c.EnableTrustedProxyCheck = true
		c.TrustedProxies = cfg.TrustedProxies
	}
	return c
}

// ErrorHandler is the fiber fallback for errors returned by handlers and
// middleware.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{
				"error": fe.Message,
			})
		}
		return respondError(c, logger, err)
	}
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
	})
}

func uuidParam(c *fiber.Ctx, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params(name))
	return id, err == nil
}

func userIDParam(c *fiber.Ctx) (int64, bool) {
	id, err := strconv.ParseInt(c.Params("user_id"), 10, 64)
	return id, err == nil && id > 0
}

func pagination(c *fiber.Ctx) (limit, offset int) {
	limit = c.QueryInt("limit", 20)
	offset = c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
