// Package memstore is an in-memory repository.Store for tests. Every
// transaction holds one global lock, which stands in for row locks, and
// rolls the whole state back when the callback fails.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/repository"
)

type ipKey struct {
	userID int64
	ip     string
}

type state struct {
	now func() time.Time

	nextUserID      int64
	users           map[int64]model.User
	userIPs         map[ipKey]model.UserIP
	transactions    []model.Transaction
	promoCodes      map[uuid.UUID]model.PromoCode
	promoUses       []model.PromoCodeUse
	volumeDiscounts map[uuid.UUID]model.VolumeDiscount
	userDiscounts   map[int64]model.UserDiscount
	gifts           map[uuid.UUID]model.GiftCertificate
	referrals       map[uuid.UUID]model.Referral
	spendingLimits  map[int64]model.SpendingLimit
	withdrawals     map[uuid.UUID]model.WithdrawalRequest
	webhooks        map[uuid.UUID]model.Webhook
	webhookLogs     []model.WebhookLog
	fraudAlerts     []model.FraudAlert
	admins          map[int64]bool
	bans            []model.BannedUser
	adminLogs       []model.AdminLog
	plans           map[uuid.UUID]model.Plan
	settings        map[string]string
}

func (s *state) clone() *state {
	c := *s
	c.users = cloneMap(s.users)
	c.userIPs = cloneMap(s.userIPs)
	c.transactions = append([]model.Transaction(nil), s.transactions...)
	c.promoCodes = cloneMap(s.promoCodes)
	c.promoUses = append([]model.PromoCodeUse(nil), s.promoUses...)
	c.volumeDiscounts = cloneMap(s.volumeDiscounts)
	c.userDiscounts = cloneMap(s.userDiscounts)
	c.gifts = cloneMap(s.gifts)
	c.referrals = cloneMap(s.referrals)
	c.spendingLimits = cloneMap(s.spendingLimits)
	c.withdrawals = cloneMap(s.withdrawals)
	c.webhooks = cloneMap(s.webhooks)
	c.webhookLogs = append([]model.WebhookLog(nil), s.webhookLogs...)
	c.fraudAlerts = append([]model.FraudAlert(nil), s.fraudAlerts...)
	c.admins = cloneMap(s.admins)
	c.bans = append([]model.BannedUser(nil), s.bans...)
	c.adminLogs = append([]model.AdminLog(nil), s.adminLogs...)
	c.plans = cloneMap(s.plans)
	c.settings = cloneMap(s.settings)
	return &c
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	c := make(map[K]V, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

type Store struct {
	mu    *sync.Mutex
	state *state
	inTx  bool
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		mu: &sync.Mutex{},
		state: &state{
			now:             time.Now,
			nextUserID:      1,
			users:           map[int64]model.User{},
			userIPs:         map[ipKey]model.UserIP{},
			promoCodes:      map[uuid.UUID]model.PromoCode{},
			volumeDiscounts: map[uuid.UUID]model.VolumeDiscount{},
			userDiscounts:   map[int64]model.UserDiscount{},
			gifts:           map[uuid.UUID]model.GiftCertificate{},
			referrals:       map[uuid.UUID]model.Referral{},
			spendingLimits:  map[int64]model.SpendingLimit{},
			withdrawals:     map[uuid.UUID]model.WithdrawalRequest{},
			webhooks:        map[uuid.UUID]model.Webhook{},
			admins:          map[int64]bool{},
			plans:           map[uuid.UUID]model.Plan{},
			settings:        map[string]string{},
		},
	}
}

// SetClock replaces the source of created_at/updated_at stamps.
func (s *Store) SetClock(now func() time.Time) {
	defer s.lock()()
	s.state.now = now
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(ctx, &Store{mu: s.mu, state: s.state, inTx: true}); err != nil {
		*s.state = *snapshot
		return err
	}
	return nil
}

// --- seeding and inspection helpers ---

// AddUser inserts u, assigning an id and referral code when unset.
func (s *Store) AddUser(u model.User) model.User {
	defer s.lock()()
	if u.ID == 0 {
		u.ID = s.state.nextUserID
	}
	if u.ID >= s.state.nextUserID {
		s.state.nextUserID = u.ID + 1
	}
	if u.ReferralCode == "" {
		u.ReferralCode = fmt.Sprintf("REF%d", u.ID)
	}
	now := s.state.now()
	u.CreatedAt, u.UpdatedAt = now, now
	s.state.users[u.ID] = u
	return u
}

func (s *Store) AddAdmin(userID int64) {
	defer s.lock()()
	s.state.admins[userID] = true
}

// Transactions returns a user's ledger in insertion order.
func (s *Store) Transactions(userID int64) []model.Transaction {
	defer s.lock()()
	var out []model.Transaction
	for _, t := range s.state.transactions {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out
}

func (s *Store) PromoUses(promoCodeID uuid.UUID) []model.PromoCodeUse {
	defer s.lock()()
	var out []model.PromoCodeUse
	for _, u := range s.state.promoUses {
		if u.PromoCodeID == promoCodeID {
			out = append(out, u)
		}
	}
	return out
}

func (s *Store) WebhookLogs() []model.WebhookLog {
	defer s.lock()()
	return append([]model.WebhookLog(nil), s.state.webhookLogs...)
}

func (s *Store) AdminLogs() []model.AdminLog {
	defer s.lock()()
	return append([]model.AdminLog(nil), s.state.adminLogs...)
}

func (s *Store) FraudAlerts() []model.FraudAlert {
	defer s.lock()()
	return append([]model.FraudAlert(nil), s.state.fraudAlerts...)
}

// --- users ---

func (s *Store) GetUser(_ context.Context, id int64) (*model.User, error) {
	defer s.lock()()
	u, ok := s.state.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &u, nil
}

func (s *Store) GetUserByReferralCode(_ context.Context, code string) (*model.User, error) {
	defer s.lock()()
	for _, u := range s.state.users {
		if u.ReferralCode == code {
			u := u
			return &u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (s *Store) GetUserByTelegramID(_ context.Context, telegramID int64) (*model.User, error) {
	defer s.lock()()
	for _, u := range s.state.users {
		if u.TelegramID != nil && *u.TelegramID == telegramID {
			u := u
			return &u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (s *Store) SetReferredBy(_ context.Context, userID, referrerID int64) error {
	defer s.lock()()
	u, ok := s.state.users[userID]
	if !ok || u.ReferredBy != nil {
		return repository.ErrAlreadyReferred
	}
	u.ReferredBy = &referrerID
	u.UpdatedAt = s.state.now()
	s.state.users[userID] = u
	return nil
}

func (s *Store) ListUsers(_ context.Context, limit, offset int, _ string) ([]model.User, int, error) {
	defer s.lock()()
	var users []model.User
	for _, id := range s.sortedUserIDs() {
		users = append(users, s.state.users[id])
	}
	return paginate(users, limit, offset), len(users), nil
}

func (s *Store) ListUserIDs(_ context.Context) ([]int64, error) {
	defer s.lock()()
	return s.sortedUserIDs(), nil
}

func (s *Store) sortedUserIDs() []int64 {
	var ids []int64
	for id := int64(1); id < s.state.nextUserID; id++ {
		if _, ok := s.state.users[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Store) TouchUserIP(_ context.Context, userID int64, ip string) error {
	defer s.lock()()
	now := s.state.now()
	key := ipKey{userID: userID, ip: ip}
	rec, ok := s.state.userIPs[key]
	if !ok {
		rec = model.UserIP{UserID: userID, IPAddress: ip, FirstSeen: now}
	}
	rec.LastSeen = now
	s.state.userIPs[key] = rec
	return nil
}

func (s *Store) ListSharedIPs(_ context.Context, since time.Time, minUsers int) ([]model.SharedIP, error) {
	defer s.lock()()
	byIP := map[string][]int64{}
	for _, rec := range s.state.userIPs {
		if rec.LastSeen.Before(since) {
			continue
		}
		byIP[rec.IPAddress] = append(byIP[rec.IPAddress], rec.UserID)
	}
	var shared []model.SharedIP
	for ip, ids := range byIP {
		if len(ids) < minUsers {
			continue
		}
		sortInt64s(ids)
		shared = append(shared, model.SharedIP{IPAddress: ip, UserCount: len(ids), UserIDs: ids})
	}
	return shared, nil
}

// --- ledger ---

func (s *Store) LockUserBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	return s.GetUserBalance(ctx, userID)
}

func (s *Store) GetUserBalance(_ context.Context, userID int64) (decimal.Decimal, error) {
	defer s.lock()()
	u, ok := s.state.users[userID]
	if !ok {
		return decimal.Zero, repository.ErrUserNotFound
	}
	return u.Balance, nil
}

func (s *Store) SetUserBalance(_ context.Context, userID int64, balance decimal.Decimal) error {
	defer s.lock()()
	u, ok := s.state.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	if balance.IsNegative() {
		return fmt.Errorf("balance check violated for user %d", userID)
	}
	u.Balance = balance
	u.UpdatedAt = s.state.now()
	s.state.users[userID] = u
	return nil
}

func (s *Store) InsertTransaction(_ context.Context, t *model.Transaction) error {
	defer s.lock()()
	for _, existing := range s.state.transactions {
		if t.PaymentID != nil && existing.PaymentID != nil && *existing.PaymentID == *t.PaymentID &&
			equalStringPtr(existing.PaymentMethod, t.PaymentMethod) {
			return repository.ErrDuplicate
		}
		if t.Type == model.TransactionTypeReferral && existing.Type == model.TransactionTypeReferral &&
			t.ReferredUserID != nil && existing.ReferredUserID != nil && *t.ReferredUserID == *existing.ReferredUserID {
			return repository.ErrDuplicate
		}
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Metadata == nil {
		t.Metadata = []byte("{}")
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.state.now()
	}
	s.state.transactions = append(s.state.transactions, *t)
	return nil
}

func (s *Store) GetTransaction(_ context.Context, id uuid.UUID) (*model.Transaction, error) {
	defer s.lock()()
	i := s.transactionIndex(id)
	if i < 0 {
		return nil, repository.ErrTransactionNotFound
	}
	t := s.state.transactions[i]
	return &t, nil
}

func (s *Store) transactionIndex(id uuid.UUID) int {
	for i, t := range s.state.transactions {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) LockTransactionByPaymentID(_ context.Context, provider model.PaymentProvider, paymentID string) (*model.Transaction, error) {
	defer s.lock()()
	method := string(provider)
	for _, t := range s.state.transactions {
		if t.PaymentID != nil && *t.PaymentID == paymentID && equalStringPtr(t.PaymentMethod, &method) {
			t := t
			return &t, nil
		}
	}
	return nil, repository.ErrTransactionNotFound
}

func (s *Store) CompleteTransaction(_ context.Context, id uuid.UUID, balanceBefore, balanceAfter decimal.Decimal, _ []byte) error {
	defer s.lock()()
	i := s.transactionIndex(id)
	if i < 0 || s.state.transactions[i].Status != model.TransactionStatusPending {
		return repository.ErrTransactionNotPending
	}
	t := &s.state.transactions[i]
	t.Status = model.TransactionStatusCompleted
	t.BalanceBefore = balanceBefore
	t.BalanceAfter = balanceAfter
	return nil
}

func (s *Store) SetTransactionStatus(_ context.Context, id uuid.UUID, from, to model.TransactionStatus) error {
	defer s.lock()()
	i := s.transactionIndex(id)
	if i < 0 || s.state.transactions[i].Status != from {
		return repository.ErrTransactionNotPending
	}
	s.state.transactions[i].Status = to
	return nil
}

func (s *Store) ListTransactions(_ context.Context, filter model.TransactionFilter) ([]model.Transaction, error) {
	defer s.lock()()
	var out []model.Transaction
	for i := len(s.state.transactions) - 1; i >= 0; i-- {
		t := s.state.transactions[i]
		if t.UserID != filter.UserID {
			continue
		}
		if filter.Type != nil && t.Type != *filter.Type {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		out = append(out, t)
	}
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (s *Store) CountCompleted(_ context.Context, userID int64, txType model.TransactionType) (int, error) {
	defer s.lock()()
	n := 0
	for _, t := range s.state.transactions {
		if t.UserID == userID && t.Type == txType && t.Status == model.TransactionStatusCompleted {
			n++
		}
	}
	return n, nil
}

func (s *Store) SumCompleted(_ context.Context, userID int64, txType model.TransactionType, since time.Time) (decimal.Decimal, error) {
	defer s.lock()()
	sum := decimal.Zero
	for _, t := range s.state.transactions {
		if t.UserID == userID && t.Type == txType && t.Status == model.TransactionStatusCompleted && !t.CreatedAt.Before(since) {
			sum = sum.Add(t.Amount)
		}
	}
	return sum, nil
}

func (s *Store) SumLedger(_ context.Context, userID int64) (decimal.Decimal, error) {
	defer s.lock()()
	sum := decimal.Zero
	for _, t := range s.state.transactions {
		if t.UserID == userID && t.Status == model.TransactionStatusCompleted {
			sum = sum.Add(t.Amount)
		}
	}
	return sum, nil
}

func (s *Store) SumRefunds(_ context.Context, originalID uuid.UUID) (decimal.Decimal, error) {
	defer s.lock()()
	sum := decimal.Zero
	for _, t := range s.state.transactions {
		if t.Type == model.TransactionTypeRefund && t.Status == model.TransactionStatusCompleted &&
			t.RelatedTransactionID != nil && *t.RelatedTransactionID == originalID {
			sum = sum.Add(t.Amount)
		}
	}
	return sum, nil
}

func (s *Store) HasReferralBonus(_ context.Context, referredUserID int64) (bool, error) {
	defer s.lock()()
	for _, t := range s.state.transactions {
		if t.Type == model.TransactionTypeReferral && t.ReferredUserID != nil && *t.ReferredUserID == referredUserID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListStalePending(_ context.Context, txType model.TransactionType, olderThan time.Time) ([]model.Transaction, error) {
	defer s.lock()()
	var out []model.Transaction
	for _, t := range s.state.transactions {
		if t.Type == txType && t.Status == model.TransactionStatusPending && t.CreatedAt.Before(olderThan) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) ListVelocityHits(_ context.Context, since time.Time, moreThan int) ([]model.VelocityHit, error) {
	defer s.lock()()
	counts := map[int64]int{}
	for _, t := range s.state.transactions {
		if !t.CreatedAt.Before(since) {
			counts[t.UserID]++
		}
	}
	var hits []model.VelocityHit
	for _, id := range sortedKeys(counts) {
		if counts[id] > moreThan {
			hits = append(hits, model.VelocityHit{UserID: id, TransactionCount: counts[id]})
		}
	}
	return hits, nil
}

func (s *Store) ListLargeDeposits(_ context.Context, since time.Time, minAmount decimal.Decimal) ([]model.Transaction, error) {
	defer s.lock()()
	var out []model.Transaction
	for _, t := range s.state.transactions {
		if t.Type == model.TransactionTypeDeposit && t.Status == model.TransactionStatusCompleted &&
			!t.CreatedAt.Before(since) && t.Amount.GreaterThanOrEqual(minAmount) {
			out = append(out, t)
		}
	}
	return out, nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sortedKeys(m map[int64]int) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortInt64s(keys)
	return keys
}

func sortInt64s(s []int64) {
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
}
