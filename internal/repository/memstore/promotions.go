package memstore

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/repository"
)

// --- promo codes ---

func (s *Store) GetPromoCodeByCode(_ context.Context, code string) (*model.PromoCode, error) {
	defer s.lock()()
	code = strings.ToUpper(code)
	for _, p := range s.state.promoCodes {
		if p.Code == code {
			p := p
			return &p, nil
		}
	}
	return nil, repository.ErrPromoCodeNotFound
}

func (s *Store) LockPromoCode(_ context.Context, id uuid.UUID) (*model.PromoCode, error) {
	defer s.lock()()
	p, ok := s.state.promoCodes[id]
	if !ok {
		return nil, repository.ErrPromoCodeNotFound
	}
	return &p, nil
}

func (s *Store) CountPromoCodeUses(_ context.Context, promoCodeID uuid.UUID, userID int64) (int, error) {
	defer s.lock()()
	n := 0
	for _, u := range s.state.promoUses {
		if u.PromoCodeID == promoCodeID && u.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (s *Store) IncrementPromoCodeUsage(_ context.Context, id uuid.UUID) error {
	defer s.lock()()
	p, ok := s.state.promoCodes[id]
	if !ok || (p.MaxUses != nil && p.UsedCount >= *p.MaxUses) {
		return repository.ErrPromoCodeExhausted
	}
	p.UsedCount++
	s.state.promoCodes[id] = p
	return nil
}

func (s *Store) InsertPromoCodeUse(_ context.Context, use *model.PromoCodeUse) error {
	defer s.lock()()
	if use.ID == uuid.Nil {
		use.ID = uuid.New()
	}
	use.CreatedAt = s.state.now()
	s.state.promoUses = append(s.state.promoUses, *use)
	return nil
}

func (s *Store) CreatePromoCode(_ context.Context, promo *model.PromoCode) error {
	defer s.lock()()
	promo.Code = strings.ToUpper(promo.Code)
	for _, p := range s.state.promoCodes {
		if p.Code == promo.Code {
			return repository.ErrDuplicate
		}
	}
	if promo.ID == uuid.Nil {
		promo.ID = uuid.New()
	}
	promo.CreatedAt = s.state.now()
	s.state.promoCodes[promo.ID] = *promo
	return nil
}

func (s *Store) ListPromoCodes(_ context.Context, limit, offset int) ([]model.PromoCode, error) {
	defer s.lock()()
	var out []model.PromoCode
	for _, p := range s.state.promoCodes {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return paginate(out, limit, offset), nil
}

func (s *Store) DeactivatePromoCode(_ context.Context, code string) error {
	defer s.lock()()
	code = strings.ToUpper(code)
	for id, p := range s.state.promoCodes {
		if p.Code == code {
			p.IsActive = false
			s.state.promoCodes[id] = p
			return nil
		}
	}
	return repository.ErrPromoCodeNotFound
}

// --- volume discounts ---

func (s *Store) ListVolumeDiscounts(_ context.Context, activeOnly bool) ([]model.VolumeDiscount, error) {
	defer s.lock()()
	var out []model.VolumeDiscount
	for _, d := range s.state.volumeDiscounts {
		if activeOnly && !d.IsActive {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MinAmount.LessThan(out[j].MinAmount) })
	return out, nil
}

func (s *Store) CreateVolumeDiscount(_ context.Context, d *model.VolumeDiscount) error {
	defer s.lock()()
	for _, existing := range s.state.volumeDiscounts {
		if existing.MinAmount.Equal(d.MinAmount) {
			return repository.ErrDuplicate
		}
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.CreatedAt = s.state.now()
	s.state.volumeDiscounts[d.ID] = *d
	return nil
}

func (s *Store) DeleteVolumeDiscount(_ context.Context, id uuid.UUID) error {
	defer s.lock()()
	if _, ok := s.state.volumeDiscounts[id]; !ok {
		return repository.ErrVolumeDiscountNotFound
	}
	delete(s.state.volumeDiscounts, id)
	return nil
}

func (s *Store) GetUserDiscount(_ context.Context, userID int64) (*model.UserDiscount, error) {
	defer s.lock()()
	d, ok := s.state.userDiscounts[userID]
	if !ok {
		return nil, repository.ErrUserDiscountNotFound
	}
	return &d, nil
}

func (s *Store) UpsertUserDiscount(_ context.Context, d *model.UserDiscount) error {
	defer s.lock()()
	d.UpdatedAt = s.state.now()
	s.state.userDiscounts[d.UserID] = *d
	return nil
}

// --- gift certificates ---

func (s *Store) LockGiftCertificateByCode(_ context.Context, code string) (*model.GiftCertificate, error) {
	defer s.lock()()
	code = strings.ToUpper(code)
	for _, g := range s.state.gifts {
		if g.Code == code {
			g := g
			return &g, nil
		}
	}
	return nil, repository.ErrGiftCertificateNotFound
}

func (s *Store) MarkGiftCertificateRedeemed(_ context.Context, id uuid.UUID, userID int64, at time.Time) error {
	defer s.lock()()
	g, ok := s.state.gifts[id]
	if !ok {
		return repository.ErrGiftCertificateNotFound
	}
	g.Balance = decimal.Zero
	g.RedeemedByID = &userID
	g.RedeemedAt = &at
	s.state.gifts[id] = g
	return nil
}

func (s *Store) CreateGiftCertificate(_ context.Context, g *model.GiftCertificate) error {
	defer s.lock()()
	g.Code = strings.ToUpper(g.Code)
	for _, existing := range s.state.gifts {
		if existing.Code == g.Code {
			return repository.ErrDuplicate
		}
	}
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	g.CreatedAt = s.state.now()
	s.state.gifts[g.ID] = *g
	return nil
}

func (s *Store) ListGiftCertificates(_ context.Context, limit, offset int) ([]model.GiftCertificate, error) {
	defer s.lock()()
	var out []model.GiftCertificate
	for _, g := range s.state.gifts {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return paginate(out, limit, offset), nil
}

// --- referrals ---

func (s *Store) CreateReferral(_ context.Context, referral *model.Referral) error {
	defer s.lock()()
	for _, existing := range s.state.referrals {
		if existing.ReferredID == referral.ReferredID {
			return repository.ErrDuplicate
		}
	}
	if referral.ID == uuid.Nil {
		referral.ID = uuid.New()
	}
	if referral.Status == "" {
		referral.Status = model.ReferralStatusPending
	}
	referral.CreatedAt = s.state.now()
	s.state.referrals[referral.ID] = *referral
	return nil
}

func (s *Store) GetReferralByReferredID(_ context.Context, referredID int64) (*model.Referral, error) {
	defer s.lock()()
	for _, r := range s.state.referrals {
		if r.ReferredID == referredID {
			r := r
			return &r, nil
		}
	}
	return nil, repository.ErrReferralNotFound
}

func (s *Store) CreditReferral(_ context.Context, id uuid.UUID, bonus decimal.Decimal) error {
	defer s.lock()()
	r, ok := s.state.referrals[id]
	if !ok {
		return repository.ErrReferralNotFound
	}
	now := s.state.now()
	r.Status = model.ReferralStatusCredited
	r.BonusAmount = &bonus
	r.CreditedAt = &now
	s.state.referrals[id] = r
	return nil
}

func (s *Store) GetReferralStats(_ context.Context, referrerID int64) (*model.ReferralStats, error) {
	defer s.lock()()
	stats := &model.ReferralStats{CreditedBonus: decimal.Zero}
	for _, r := range s.state.referrals {
		if r.ReferrerID != referrerID {
			continue
		}
		stats.TotalReferrals++
		switch r.Status {
		case model.ReferralStatusPending:
			stats.PendingReferrals++
		case model.ReferralStatusCredited:
			if r.BonusAmount != nil {
				stats.CreditedBonus = stats.CreditedBonus.Add(*r.BonusAmount)
			}
		}
	}
	return stats, nil
}

// --- spending limits ---

func (s *Store) GetSpendingLimit(_ context.Context, userID int64) (*model.SpendingLimit, error) {
	defer s.lock()()
	l, ok := s.state.spendingLimits[userID]
	if !ok {
		return nil, repository.ErrSpendingLimitNotFound
	}
	return &l, nil
}

func (s *Store) UpsertSpendingLimit(_ context.Context, limit *model.SpendingLimit) error {
	defer s.lock()()
	limit.UpdatedAt = s.state.now()
	s.state.spendingLimits[limit.UserID] = *limit
	return nil
}
