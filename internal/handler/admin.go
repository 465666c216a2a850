package handler

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/middleware"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/service"
)

// AdminHandler handles admin panel requests. Mutations of services that
// do not audit themselves go through AdminService.Audited.
type AdminHandler struct {
	svc    Services
	logger *zap.Logger
}

func NewAdminHandler(svc Services, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{svc: svc, logger: logger}
}

func (h *AdminHandler) fail(c *fiber.Ctx, err error) error {
	return respondError(c, h.logger, err)
}

// --- Stats ---

func (h *AdminHandler) GetStats(c *fiber.Ctx) error {
	stats, err := h.svc.Admin.Stats(c.Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(stats)
}

// --- User Management ---

type ListUsersResponse struct {
	Users []model.User `json:"users"`
	Total int          `json:"total"`
}

func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	limit, offset := pagination(c)
	users, total, err := h.svc.Admin.ListUsers(c.Context(), limit, offset, c.Query("search"))
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(ListUsersResponse{
		Users: users,
		Total: total,
	})
}

func (h *AdminHandler) GetUser(c *fiber.Ctx) error {
	userID, ok := userIDParam(c)
	if !ok {
		return badRequest(c, "invalid user_id")
	}

	user, err := h.svc.Admin.GetUser(c.Context(), userID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(user)
}

func (h *AdminHandler) GetUserTransactions(c *fiber.Ctx) error {
	userID, ok := userIDParam(c)
	if !ok {
		return badRequest(c, "invalid user_id")
	}
	limit, offset := pagination(c)

	transactions, err := h.svc.Balance.GetTransactions(c.Context(), model.TransactionFilter{
		UserID: userID,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"transactions": transactions,
	})
}

// Reconcile compares the stored balance with the sum of completed ledger
// entries.
func (h *AdminHandler) Reconcile(c *fiber.Ctx) error {
	userID, ok := userIDParam(c)
	if !ok {
		return badRequest(c, "invalid user_id")
	}

	report, err := h.svc.Balance.Reconcile(c.Context(), userID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(report)
}

// --- Balance Management ---

type SetBalanceRequest struct {
	Balance decimal.Decimal `json:"balance"`
}

func (h *AdminHandler) SetBalance(c *fiber.Ctx) error {
	userID, ok := userIDParam(c)
	if !ok {
		return badRequest(c, "invalid user_id")
	}

	var req SetBalanceRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	tx, err := h.svc.Admin.SetBalance(c.Context(), middleware.GetAdminID(c), userID, req.Balance)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"success":     true,
		"transaction": tx,
	})
}

type AddBalanceRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

func (h *AdminHandler) AddBalance(c *fiber.Ctx) error {
	userID, ok := userIDParam(c)
	if !ok {
		return badRequest(c, "invalid user_id")
	}

	var req AddBalanceRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	tx, err := h.svc.Admin.AddBalance(c.Context(), middleware.GetAdminID(c), userID, req.Amount, req.Reason)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"success":     true,
		"transaction": tx,
	})
}

type RefundRequest struct {
	Amount *decimal.Decimal `json:"amount"`
	Reason string           `json:"reason"`
}

func (h *AdminHandler) Refund(c *fiber.Ctx) error {
	txID, ok := uuidParam(c, "id")
	if !ok {
		return badRequest(c, "invalid transaction id")
	}

	var req RefundRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
	}

	result, err := h.svc.Admin.Refund(c.Context(), middleware.GetAdminID(c), txID, req.Amount, req.Reason)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(result)
}

type MassBonusRequest struct {
	UserIDs     []int64         `json:"user_ids"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

func (h *AdminHandler) MassBonus(c *fiber.Ctx) error {
	var req MassBonusRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	result, err := h.svc.Admin.MassBonus(c.Context(), middleware.GetAdminID(c), req.UserIDs, req.Amount, req.Description)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(result)
}

// --- Ban Management ---

type BanRequest struct {
	IP        string     `json:"ip"`
	Reason    string     `json:"reason"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (h *AdminHandler) ListBans(c *fiber.Ctx) error {
	limit, offset := pagination(c)
	bans, err := h.svc.Admin.ListBans(c.Context(), limit, offset)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"bans": bans,
	})
}

func (h *AdminHandler) BanUser(c *fiber.Ctx) error {
	userID, ok := userIDParam(c)
	if !ok {
		return badRequest(c, "invalid user_id")
	}

	var req BanRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
	}

	if err := h.svc.Admin.BanUser(c.Context(), middleware.GetAdminID(c), userID, req.Reason, req.ExpiresAt); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (h *AdminHandler) UnbanUser(c *fiber.Ctx) error {
	userID, ok := userIDParam(c)
	if !ok {
		return badRequest(c, "invalid user_id")
	}

	if err := h.svc.Admin.UnbanUser(c.Context(), middleware.GetAdminID(c), userID); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (h *AdminHandler) BanIP(c *fiber.Ctx) error {
	var req BanRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	if err := h.svc.Admin.BanIP(c.Context(), middleware.GetAdminID(c), req.IP, req.Reason, req.ExpiresAt); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (h *AdminHandler) UnbanIP(c *fiber.Ctx) error {
	var req BanRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.IP == "" {
		return badRequest(c, "ip is required")
	}

	if err := h.svc.Admin.UnbanIP(c.Context(), middleware.GetAdminID(c), req.IP); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// --- Promo Codes ---

func (h *AdminHandler) ListPromoCodes(c *fiber.Ctx) error {
	limit, offset := pagination(c)
	codes, err := h.svc.PromoCodes.ListPromoCodes(c.Context(), limit, offset)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"promo_codes": codes,
	})
}

func (h *AdminHandler) CreatePromoCode(c *fiber.Ctx) error {
	var req service.PromoCodeInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	var promo *model.PromoCode
	details := map[string]interface{}{"code": req.Code, "type": req.Type, "value": req.Value.String()}
	err := h.svc.Admin.Audited(c.Context(), middleware.GetAdminID(c), model.AdminActionCreatePromoCode, nil, details, func() error {
		var err error
		promo, err = h.svc.PromoCodes.CreatePromoCode(c.Context(), req)
		return err
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(promo)
}

type BulkPromoCodesRequest struct {
	Prefix string `json:"prefix"`
	Count  int    `json:"count"`
	service.PromoCodeInput
}

func (h *AdminHandler) CreateBulkPromoCodes(c *fiber.Ctx) error {
	var req BulkPromoCodesRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	var codes []model.PromoCode
	details := map[string]interface{}{"prefix": req.Prefix, "count": req.Count, "type": req.Type}
	err := h.svc.Admin.Audited(c.Context(), middleware.GetAdminID(c), model.AdminActionCreatePromoCode, nil, details, func() error {
		var err error
		codes, err = h.svc.PromoCodes.CreateBulk(c.Context(), req.Prefix, req.Count, req.PromoCodeInput)
		return err
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"promo_codes": codes,
		"count":       len(codes),
	})
}

func (h *AdminHandler) DeactivatePromoCode(c *fiber.Ctx) error {
	var req struct {
		Code string `json:"code"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	err := h.svc.Admin.Audited(c.Context(), middleware.GetAdminID(c), model.AdminActionDeactivatePromo, nil,
		map[string]interface{}{"code": req.Code}, func() error {
			return h.svc.PromoCodes.DeactivatePromoCode(c.Context(), req.Code)
		})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// --- Gift Certificates ---

func (h *AdminHandler) ListGiftCertificates(c *fiber.Ctx) error {
	limit, offset := pagination(c)
	gifts, err := h.svc.Gifts.List(c.Context(), limit, offset)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"gift_certificates": gifts,
	})
}

func (h *AdminHandler) CreateGiftCertificate(c *fiber.Ctx) error {
	var req service.GiftCertificateInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	adminID := middleware.GetAdminID(c)
	var gift *model.GiftCertificate
	details := map[string]interface{}{"amount": req.Amount.String()}
	err := h.svc.Admin.Audited(c.Context(), adminID, model.AdminActionCreateGift, nil, details, func() error {
		var err error
		gift, err = h.svc.Gifts.Create(c.Context(), adminID, req)
		if err == nil {
			details["code"] = gift.Code
		}
		return err
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(gift)
}

// --- Volume Discounts ---

func (h *AdminHandler) ListVolumeDiscounts(c *fiber.Ctx) error {
	tiers, err := h.svc.Discounts.ListTiers(c.Context(), false)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"tiers": tiers,
	})
}

func (h *AdminHandler) CreateVolumeDiscount(c *fiber.Ctx) error {
	var req service.VolumeTierInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	var tier *model.VolumeDiscount
	details := map[string]interface{}{
		"name":             req.Name,
		"min_amount":       req.MinAmount.String(),
		"discount_percent": req.DiscountPercent.String(),
	}
	err := h.svc.Admin.Audited(c.Context(), middleware.GetAdminID(c), model.AdminActionCreateVolumeTier, nil, details, func() error {
		var err error
		tier, err = h.svc.Discounts.CreateTier(c.Context(), req)
		return err
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(tier)
}

func (h *AdminHandler) DeleteVolumeDiscount(c *fiber.Ctx) error {
	id, ok := uuidParam(c, "id")
	if !ok {
		return badRequest(c, "invalid tier id")
	}

	err := h.svc.Admin.Audited(c.Context(), middleware.GetAdminID(c), model.AdminActionDeleteVolumeTier, nil,
		map[string]interface{}{"tier_id": id.String()}, func() error {
			return h.svc.Discounts.DeleteTier(c.Context(), id)
		})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// --- Plans ---

func (h *AdminHandler) ListPlans(c *fiber.Ctx) error {
	plans, err := h.svc.Plans.GetAllPlans(c.Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"plans": plans,
	})
}

func (h *AdminHandler) CreatePlan(c *fiber.Ctx) error {
	var req service.PlanParams
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	var plan *model.Plan
	err := h.svc.Admin.Audited(c.Context(), middleware.GetAdminID(c), model.AdminActionCreatePlan, nil, nil, func() error {
		var err error
		plan, err = h.svc.Plans.CreatePlan(c.Context(), req)
		return err
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(plan)
}

func (h *AdminHandler) UpdatePlan(c *fiber.Ctx) error {
	id, ok := uuidParam(c, "plan_id")
	if !ok {
		return badRequest(c, "invalid plan_id")
	}

	var req service.PlanParams
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	var plan *model.Plan
	err := h.svc.Admin.Audited(c.Context(), middleware.GetAdminID(c), model.AdminActionUpdatePlan, nil,
		map[string]interface{}{"plan_id": id.String()}, func() error {
			var err error
			plan, err = h.svc.Plans.UpdatePlan(c.Context(), id, req)
			return err
		})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(plan)
}

func (h *AdminHandler) DeletePlan(c *fiber.Ctx) error {
	id, ok := uuidParam(c, "plan_id")
	if !ok {
		return badRequest(c, "invalid plan_id")
	}

	err := h.svc.Admin.Audited(c.Context(), middleware.GetAdminID(c), model.AdminActionDeletePlan, nil,
		map[string]interface{}{"plan_id": id.String()}, func() error {
			return h.svc.Plans.DeletePlan(c.Context(), id)
		})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// --- Fraud ---

func (h *AdminHandler) FraudScan(c *fiber.Ctx) error {
	adminID := middleware.GetAdminID(c)
	created, err := h.svc.Fraud.Scan(c.Context(), &adminID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"alerts_created": created,
	})
}

func (h *AdminHandler) ListFraudAlerts(c *fiber.Ctx) error {
	var status *model.FraudAlertStatus
	if v := c.Query("status"); v != "" {
		s := model.FraudAlertStatus(strings.ToUpper(v))
		status = &s
	}
	limit, offset := pagination(c)

	alerts, err := h.svc.Fraud.ListAlerts(c.Context(), status, limit, offset)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"alerts": alerts,
	})
}

func (h *AdminHandler) ResolveFraudAlert(c *fiber.Ctx) error {
	id, ok := uuidParam(c, "id")
	if !ok {
		return badRequest(c, "invalid alert id")
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	status := model.FraudAlertStatus(strings.ToUpper(req.Status))
	if err := h.svc.Fraud.Resolve(c.Context(), middleware.GetAdminID(c), id, status); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// --- Withdrawals ---

type WithdrawalActionRequest struct {
	Note string `json:"note"`
}

func (h *AdminHandler) ListWithdrawals(c *fiber.Ctx) error {
	var status *model.WithdrawalStatus
	if v := c.Query("status"); v != "" {
		s := model.WithdrawalStatus(strings.ToUpper(v))
		status = &s
	}
	limit, offset := pagination(c)

	requests, err := h.svc.Withdrawals.ListAll(c.Context(), status, limit, offset)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"withdrawals": requests,
	})
}

func (h *AdminHandler) ProcessWithdrawal(c *fiber.Ctx) error {
	return h.withdrawalAction(c, model.AdminActionProcessWithdrawal,
		func(adminID int64, id uuid.UUID, _ string) (*model.WithdrawalRequest, error) {
			return h.svc.Withdrawals.Process(c.Context(), adminID, id)
		})
}

func (h *AdminHandler) CompleteWithdrawal(c *fiber.Ctx) error {
	return h.withdrawalAction(c, model.AdminActionCompleteWithdrawal,
		func(adminID int64, id uuid.UUID, note string) (*model.WithdrawalRequest, error) {
			return h.svc.Withdrawals.Complete(c.Context(), adminID, id, note)
		})
}

func (h *AdminHandler) RejectWithdrawal(c *fiber.Ctx) error {
	return h.withdrawalAction(c, model.AdminActionRejectWithdrawal,
		func(adminID int64, id uuid.UUID, note string) (*model.WithdrawalRequest, error) {
			return h.svc.Withdrawals.Reject(c.Context(), adminID, id, note)
		})
}

func (h *AdminHandler) withdrawalAction(c *fiber.Ctx, action string, fn func(adminID int64, id uuid.UUID, note string) (*model.WithdrawalRequest, error)) error {
	id, ok := uuidParam(c, "id")
	if !ok {
		return badRequest(c, "invalid withdrawal id")
	}

	var req WithdrawalActionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
	}

	adminID := middleware.GetAdminID(c)
	var request *model.WithdrawalRequest
	details := map[string]interface{}{"withdrawal_id": id.String(), "note": req.Note}
	err := h.svc.Admin.Audited(c.Context(), adminID, action, nil, details, func() error {
		var err error
		request, err = fn(adminID, id, req.Note)
		return err
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(request)
}

// --- Logs ---

func (h *AdminHandler) GetLogs(c *fiber.Ctx) error {
	limit, offset := pagination(c)
	logs, err := h.svc.Admin.Logs(c.Context(), limit, offset)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"logs": logs,
	})
}

// --- Settings ---

func (h *AdminHandler) GetSettings(c *fiber.Ctx) error {
	settings, err := h.svc.Admin.GetSettings(c.Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(settings)
}

type SetSettingRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (h *AdminHandler) SetSetting(c *fiber.Ctx) error {
	var req SetSettingRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	if err := h.svc.Admin.SetSetting(c.Context(), middleware.GetAdminID(c), req.Key, req.Value); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}
