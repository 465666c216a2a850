package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/repository"
)

// --- withdrawals ---

func (s *Store) CreateWithdrawal(_ context.Context, w *model.WithdrawalRequest) error {
	defer s.lock()()
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	if w.Status == "" {
		w.Status = model.WithdrawalStatusPending
	}
	now := s.state.now()
	w.CreatedAt, w.UpdatedAt = now, now
	s.state.withdrawals[w.ID] = *w
	return nil
}

func (s *Store) LockWithdrawal(_ context.Context, id uuid.UUID) (*model.WithdrawalRequest, error) {
	defer s.lock()()
	w, ok := s.state.withdrawals[id]
	if !ok {
		return nil, repository.ErrWithdrawalNotFound
	}
	return &w, nil
}

func (s *Store) TransitionWithdrawal(_ context.Context, id uuid.UUID, from, to model.WithdrawalStatus, update model.WithdrawalUpdate) error {
	defer s.lock()()
	w, ok := s.state.withdrawals[id]
	if !ok || w.Status != from {
		return repository.ErrWithdrawalConflict
	}
	w.Status = to
	if update.AdminID != nil {
		w.ProcessedBy = update.AdminID
	}
	if update.Note != nil {
		w.AdminNote = update.Note
	}
	if update.TransactionID != nil {
		w.TransactionID = update.TransactionID
	}
	w.UpdatedAt = s.state.now()
	s.state.withdrawals[id] = w
	return nil
}

func (s *Store) ListWithdrawals(_ context.Context, filter model.WithdrawalFilter) ([]model.WithdrawalRequest, error) {
	defer s.lock()()
	var out []model.WithdrawalRequest
	for _, w := range s.state.withdrawals {
		if filter.UserID != nil && w.UserID != *filter.UserID {
			continue
		}
		if filter.Status != nil && w.Status != *filter.Status {
			continue
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, filter.Limit, filter.Offset), nil
}

// --- webhooks ---

func (s *Store) CreateWebhook(_ context.Context, w *model.Webhook) error {
	defer s.lock()()
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	now := s.state.now()
	w.FailCount = 0
	w.CreatedAt, w.UpdatedAt = now, now
	s.state.webhooks[w.ID] = *w
	return nil
}

func (s *Store) GetWebhook(_ context.Context, id uuid.UUID) (*model.Webhook, error) {
	defer s.lock()()
	w, ok := s.state.webhooks[id]
	if !ok {
		return nil, repository.ErrWebhookNotFound
	}
	return &w, nil
}

func (s *Store) ListWebhooks(_ context.Context, userID int64) ([]model.Webhook, error) {
	defer s.lock()()
	var out []model.Webhook
	for _, w := range s.state.webhooks {
		if w.UserID == userID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListActiveWebhooksForEvent(_ context.Context, userID int64, event string) ([]model.Webhook, error) {
	defer s.lock()()
	var out []model.Webhook
	for _, w := range s.state.webhooks {
		if w.UserID != userID || !w.IsActive {
			continue
		}
		for _, e := range w.Events {
			if e == event {
				out = append(out, w)
				break
			}
		}
	}
	return out, nil
}

func (s *Store) DeleteWebhook(_ context.Context, id uuid.UUID, userID int64) error {
	defer s.lock()()
	w, ok := s.state.webhooks[id]
	if !ok || w.UserID != userID {
		return repository.ErrWebhookNotFound
	}
	delete(s.state.webhooks, id)
	return nil
}

func (s *Store) RecordWebhookSuccess(_ context.Context, id uuid.UUID) error {
	defer s.lock()()
	w, ok := s.state.webhooks[id]
	if !ok {
		return nil
	}
	w.FailCount = 0
	w.LastError = nil
	w.UpdatedAt = s.state.now()
	s.state.webhooks[id] = w
	return nil
}

func (s *Store) RecordWebhookFailure(_ context.Context, id uuid.UUID, reason string, disableAt int) (bool, error) {
	defer s.lock()()
	w, ok := s.state.webhooks[id]
	if !ok {
		return false, repository.ErrWebhookNotFound
	}
	w.FailCount++
	if w.FailCount >= disableAt {
		w.IsActive = false
	}
	w.LastError = &reason
	w.UpdatedAt = s.state.now()
	s.state.webhooks[id] = w
	return !w.IsActive, nil
}

func (s *Store) InsertWebhookLog(_ context.Context, log *model.WebhookLog) error {
	defer s.lock()()
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	log.CreatedAt = s.state.now()
	s.state.webhookLogs = append(s.state.webhookLogs, *log)
	return nil
}

func (s *Store) ListWebhookLogs(_ context.Context, webhookID uuid.UUID, limit int) ([]model.WebhookLog, error) {
	defer s.lock()()
	var out []model.WebhookLog
	for i := len(s.state.webhookLogs) - 1; i >= 0; i-- {
		if s.state.webhookLogs[i].WebhookID == webhookID {
			out = append(out, s.state.webhookLogs[i])
		}
	}
	return paginate(out, limit, 0), nil
}

// --- fraud ---

func (s *Store) HasRecentFraudAlert(_ context.Context, userID int64, alertType model.FraudAlertType, since time.Time) (bool, error) {
	defer s.lock()()
	for _, a := range s.state.fraudAlerts {
		if a.UserID != nil && *a.UserID == userID && a.Type == alertType && !a.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) HasFraudAlertForIP(_ context.Context, alertType model.FraudAlertType, ip string) (bool, error) {
	defer s.lock()()
	for _, a := range s.state.fraudAlerts {
		if a.Type == alertType && a.IPAddress != nil && *a.IPAddress == ip {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CreateFraudAlert(_ context.Context, alert *model.FraudAlert) error {
	defer s.lock()()
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	if alert.Status == "" {
		alert.Status = model.FraudAlertStatusOpen
	}
	alert.CreatedAt = s.state.now()
	s.state.fraudAlerts = append(s.state.fraudAlerts, *alert)
	return nil
}

func (s *Store) ListFraudAlerts(_ context.Context, status *model.FraudAlertStatus, limit, offset int) ([]model.FraudAlert, error) {
	defer s.lock()()
	var out []model.FraudAlert
	for i := len(s.state.fraudAlerts) - 1; i >= 0; i-- {
		a := s.state.fraudAlerts[i]
		if status != nil && a.Status != *status {
			continue
		}
		out = append(out, a)
	}
	return paginate(out, limit, offset), nil
}

func (s *Store) ResolveFraudAlert(_ context.Context, id uuid.UUID, status model.FraudAlertStatus, adminID int64) error {
	defer s.lock()()
	for i := range s.state.fraudAlerts {
		a := &s.state.fraudAlerts[i]
		if a.ID == id {
			now := s.state.now()
			a.Status = status
			a.ResolvedBy = &adminID
			a.ResolvedAt = &now
			return nil
		}
	}
	return repository.ErrFraudAlertNotFound
}

// --- admin ---

func (s *Store) IsAdmin(_ context.Context, userID int64) (bool, error) {
	defer s.lock()()
	return s.state.admins[userID], nil
}

func (s *Store) CreateAdminLog(_ context.Context, log *model.AdminLog) error {
	defer s.lock()()
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.Details == nil {
		log.Details = []byte("{}")
	}
	log.CreatedAt = s.state.now()
	s.state.adminLogs = append(s.state.adminLogs, *log)
	return nil
}

func (s *Store) GetAdminLogs(_ context.Context, limit, offset int) ([]model.AdminLog, error) {
	defer s.lock()()
	var out []model.AdminLog
	for i := len(s.state.adminLogs) - 1; i >= 0; i-- {
		out = append(out, s.state.adminLogs[i])
	}
	return paginate(out, limit, offset), nil
}

func (s *Store) BanUser(_ context.Context, ban *model.BannedUser) error {
	defer s.lock()()
	if ban.ID == uuid.Nil {
		ban.ID = uuid.New()
	}
	ban.IsActive = true
	ban.BannedAt = s.state.now()
	s.state.bans = append(s.state.bans, *ban)
	return nil
}

func (s *Store) UnbanUser(_ context.Context, userID int64) error {
	defer s.lock()()
	for i := range s.state.bans {
		if b := &s.state.bans[i]; b.UserID != nil && *b.UserID == userID {
			b.IsActive = false
		}
	}
	return nil
}

func (s *Store) UnbanIP(_ context.Context, ip string) error {
	defer s.lock()()
	for i := range s.state.bans {
		if b := &s.state.bans[i]; b.IPAddress != nil && *b.IPAddress == ip {
			b.IsActive = false
		}
	}
	return nil
}

func (s *Store) IsUserBanned(_ context.Context, userID int64) (bool, error) {
	defer s.lock()()
	for _, b := range s.state.bans {
		if b.IsActive && !b.IsExpired() && b.UserID != nil && *b.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) IsIPBanned(_ context.Context, ip string) (bool, error) {
	defer s.lock()()
	for _, b := range s.state.bans {
		if b.IsActive && !b.IsExpired() && b.IPAddress != nil && *b.IPAddress == ip {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListBannedUsers(_ context.Context, limit, offset int) ([]model.BannedUser, error) {
	defer s.lock()()
	var out []model.BannedUser
	for _, b := range s.state.bans {
		if b.IsActive {
			out = append(out, b)
		}
	}
	return paginate(out, limit, offset), nil
}

func (s *Store) GetAdminStats(_ context.Context) (*model.AdminStats, error) {
	defer s.lock()()
	stats := &model.AdminStats{TotalUsers: len(s.state.users), TotalBalance: decimal.Zero, DepositsToday: decimal.Zero}
	for _, u := range s.state.users {
		stats.TotalBalance = stats.TotalBalance.Add(u.Balance)
	}
	startOfDay := s.state.now().UTC().Truncate(24 * time.Hour)
	for _, t := range s.state.transactions {
		if t.Type == model.TransactionTypeDeposit && t.Status == model.TransactionStatusCompleted && !t.CreatedAt.Before(startOfDay) {
			stats.DepositsToday = stats.DepositsToday.Add(t.Amount)
		}
	}
	for _, w := range s.state.withdrawals {
		if w.Status == model.WithdrawalStatusPending || w.Status == model.WithdrawalStatusProcessing {
			stats.PendingWithdrawals++
		}
	}
	for _, a := range s.state.fraudAlerts {
		if a.Status == model.FraudAlertStatusOpen {
			stats.OpenFraudAlerts++
		}
	}
	for _, b := range s.state.bans {
		if b.IsActive {
			stats.BannedUsers++
		}
	}
	for _, p := range s.state.promoCodes {
		if p.IsActive {
			stats.ActivePromoCodes++
		}
	}
	return stats, nil
}

// --- plans ---

func (s *Store) GetPlan(_ context.Context, id uuid.UUID) (*model.Plan, error) {
	defer s.lock()()
	p, ok := s.state.plans[id]
	if !ok {
		return nil, repository.ErrPlanNotFound
	}
	return &p, nil
}

func (s *Store) ListPlans(_ context.Context, activeOnly bool) ([]model.Plan, error) {
	defer s.lock()()
	var out []model.Plan
	for _, p := range s.state.plans {
		if activeOnly && !p.IsActive {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (s *Store) CreatePlan(_ context.Context, plan *model.Plan) error {
	defer s.lock()()
	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	plan.CreatedAt = s.state.now()
	s.state.plans[plan.ID] = *plan
	return nil
}

func (s *Store) UpdatePlan(_ context.Context, plan *model.Plan) error {
	defer s.lock()()
	if _, ok := s.state.plans[plan.ID]; !ok {
		return repository.ErrPlanNotFound
	}
	s.state.plans[plan.ID] = *plan
	return nil
}

// --- settings ---

func (s *Store) GetSetting(_ context.Context, key string) (string, error) {
	defer s.lock()()
	v, ok := s.state.settings[key]
	if !ok {
		return "", repository.ErrSettingNotFound
	}
	return v, nil
}

func (s *Store) SetSetting(_ context.Context, key, value string) error {
	defer s.lock()()
	s.state.settings[key] = value
	return nil
}

func (s *Store) GetAllSettings(_ context.Context) (map[string]string, error) {
	defer s.lock()()
	return cloneMap(s.state.settings), nil
}
