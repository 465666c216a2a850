package handler

import (
	"github.com/gofiber/fiber/v2"
)

// Guards are the middleware chains for each route group.
type Guards struct {
	// User runs on every /api request: authentication, ban check and IP
	// tracking, in that order.
	User  []fiber.Handler
	Admin fiber.Handler
	Cron  fiber.Handler
}

// Register mounts every route on app.
func Register(app *fiber.App, h *Handler, admin *AdminHandler, g Guards) {
	app.Get("/health", h.Health)

	// Payment provider callbacks authenticate themselves.
	app.Post("/webhook/payments/:provider", h.PaymentWebhook)

	api := app.Group("/api", g.User...)

	api.Get("/me", h.GetMe)
	api.Get("/plans", h.GetPlans)

	// Balance
	api.Get("/balance", h.GetBalance)
	api.Get("/balance/transactions", h.GetBalanceTransactions)
	api.Post("/balance/topup", h.TopUp)
	api.Post("/purchase", h.Purchase)

	// Promotions
	api.Post("/promo/validate", h.ValidatePromoCode)
	api.Post("/promo/apply", h.ApplyPromoCode)
	api.Post("/gift/redeem", h.RedeemGift)
	api.Get("/discount", h.GetDiscount)
	api.Get("/discount/tiers", h.GetDiscountTiers)

	// Referrals
	api.Get("/referral/stats", h.GetReferralStats)
	api.Post("/referral/apply", h.ApplyReferralCode)

	// Spending limits
	api.Get("/spending-limit", h.GetSpendingLimit)
	api.Put("/spending-limit", h.SetSpendingLimit)
	api.Get("/spending-limit/stats", h.GetSpendingStats)

	// Withdrawals
	api.Get("/withdrawals", h.ListWithdrawals)
	api.Post("/withdrawals", h.CreateWithdrawal)

	// Outbound webhooks
	api.Get("/webhooks", h.ListWebhooks)
	api.Post("/webhooks", h.CreateWebhook)
	api.Delete("/webhooks/:id", h.DeleteWebhook)
	api.Get("/webhooks/:id/logs", h.GetWebhookLogs)
	api.Post("/webhooks/:id/test", h.TestWebhook)

	// Admin panel routes (user chain + admin check)
	adm := api.Group("/admin", g.Admin)
	adm.Get("/stats", admin.GetStats)

	// Admin - User management
	adm.Get("/users", admin.ListUsers)
	adm.Get("/users/:user_id", admin.GetUser)
	adm.Get("/users/:user_id/transactions", admin.GetUserTransactions)
	adm.Get("/users/:user_id/reconcile", admin.Reconcile)
	adm.Post("/users/:user_id/balance/set", admin.SetBalance)
	adm.Post("/users/:user_id/balance/add", admin.AddBalance)
	adm.Post("/transactions/:id/refund", admin.Refund)
	adm.Post("/bonus/mass", admin.MassBonus)

	// Admin - Ban management
	adm.Get("/bans", admin.ListBans)
	adm.Post("/users/:user_id/ban", admin.BanUser)
	adm.Post("/users/:user_id/unban", admin.UnbanUser)
	adm.Post("/bans/ip", admin.BanIP)
	adm.Post("/bans/ip/unban", admin.UnbanIP)

	// Admin - Promotions
	adm.Get("/promo", admin.ListPromoCodes)
	adm.Post("/promo", admin.CreatePromoCode)
	adm.Post("/promo/bulk", admin.CreateBulkPromoCodes)
	adm.Post("/promo/deactivate", admin.DeactivatePromoCode)
	adm.Get("/gifts", admin.ListGiftCertificates)
	adm.Post("/gifts", admin.CreateGiftCertificate)
	adm.Get("/volume-discounts", admin.ListVolumeDiscounts)
	adm.Post("/volume-discounts", admin.CreateVolumeDiscount)
	adm.Delete("/volume-discounts/:id", admin.DeleteVolumeDiscount)

	// Admin - Plans
	adm.Get("/plans", admin.ListPlans)
	adm.Post("/plans", admin.CreatePlan)
	adm.Put("/plans/:plan_id", admin.UpdatePlan)
	adm.Delete("/plans/:plan_id", admin.DeletePlan)

	// Admin - Fraud
	adm.Post("/fraud/scan", admin.FraudScan)
	adm.Get("/fraud/alerts", admin.ListFraudAlerts)
	adm.Post("/fraud/alerts/:id/resolve", admin.ResolveFraudAlert)

	// Admin - Withdrawals
	adm.Get("/withdrawals", admin.ListWithdrawals)
	adm.Post("/withdrawals/:id/process", admin.ProcessWithdrawal)
	adm.Post("/withdrawals/:id/complete", admin.CompleteWithdrawal)
	adm.Post("/withdrawals/:id/reject", admin.RejectWithdrawal)

	// Admin - Logs and settings
	adm.Get("/logs", admin.GetLogs)
	adm.Get("/settings", admin.GetSettings)
	adm.Post("/settings", admin.SetSetting)

	// Internal endpoints (for cron jobs)
	internal := app.Group("/internal", g.Cron)
	internal.Post("/cron/fraud-scan", h.CronFraudScan)
	internal.Post("/cron/expire-payments", h.CronExpirePayments)
}
