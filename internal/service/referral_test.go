package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/repository"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/repository/memstore"
)

func TestReferralBonusClamp(t *testing.T) {
	t.Parallel()
	ten := decimal.NewFromInt(10)
	tests := []struct {
		amount string
		want   string
	}{
		{"100", "50"},
		{"500", "50"},
		{"1000", "100"},
		{"4999", "499.9"},
		{"10000", "500"},
		{"250000", "500"},
	}
	for _, tt := range tests {
		if got := ReferralBonus(dec(tt.amount), ten); !got.Equal(dec(tt.want)) {
			t.Errorf("ReferralBonus(%s) = %s, want %s", tt.amount, got, tt.want)
		}
	}
}

// purchase records a completed PURCHASE entry the way PurchaseService does.
func purchase(t *testing.T, store *memstore.Store, userID int64, amount string) {
	t.Helper()
	if _, err := NewBalanceService(store, zap.NewNop()).Append(context.Background(), Entry{
		UserID: userID,
		Type:   model.TransactionTypePurchase,
		Amount: dec(amount).Neg(),
	}); err != nil {
		t.Fatalf("purchase: %v", err)
	}
}

func TestReferralPaidOnFirstPurchaseOnly(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	notifier := &fakeNotifier{}
	svc := NewReferralService(store, zap.NewNop())
	svc.SetNotifier(notifier)

	referrer := seedChatUser(t, store, "", 777)
	referred := seedUser(t, store, "30000")
	ctx := context.Background()

	if err := svc.ApplyCode(ctx, referred.ID, referrer.ReferralCode); err != nil {
		t.Fatalf("apply code: %v", err)
	}

	purchase(t, store, referred.ID, "10000")
	bonus, err := svc.ProcessPurchase(ctx, referred.ID, dec("10000"))
	if err != nil {
		t.Fatal(err)
	}
	if bonus == nil || !bonus.Equal(dec("500")) {
		t.Fatalf("bonus = %v, want 500", bonus)
	}

	// Replaying the same trigger does not pay twice.
	bonus, err = svc.ProcessPurchase(ctx, referred.ID, dec("10000"))
	if err != nil || bonus != nil {
		t.Fatalf("replay: bonus = %v, err = %v", bonus, err)
	}

	purchase(t, store, referred.ID, "10000")
	bonus, err = svc.ProcessPurchase(ctx, referred.ID, dec("10000"))
	if err != nil || bonus != nil {
		t.Fatalf("second purchase: bonus = %v, err = %v", bonus, err)
	}

	assertBalance(t, store, referrer.ID, "500")
	assertLedgerConsistent(t, store, referrer.ID)
	if n := countType(store, referrer.ID, model.TransactionTypeReferral); n != 1 {
		t.Fatalf("%d referral entries, want 1", n)
	}

	stats, err := svc.GetReferralStats(ctx, referrer.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalReferrals != 1 || !stats.CreditedBonus.Equal(dec("500")) {
		t.Fatalf("stats = %+v", stats)
	}

	msgs := notifier.messages()
	if len(msgs) != 1 || msgs[0].chatID != 777 || msgs[0].kind != "referral" {
		t.Fatalf("notifications = %+v", msgs)
	}
}

func TestReferralMinimumBonus(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	svc := NewReferralService(store, zap.NewNop())
	referrer := seedUser(t, store, "")
	referred := seedUser(t, store, "100")
	ctx := context.Background()

	if err := svc.ApplyCode(ctx, referred.ID, referrer.ReferralCode); err != nil {
		t.Fatal(err)
	}
	purchase(t, store, referred.ID, "100")
	bonus, err := svc.ProcessPurchase(ctx, referred.ID, dec("100"))
	if err != nil {
		t.Fatal(err)
	}
	if bonus == nil || !bonus.Equal(dec("50")) {
		t.Fatalf("bonus = %v, want 50", bonus)
	}
}

func TestReferralPercentFromSettings(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	svc := NewReferralService(store, zap.NewNop())
	ctx := context.Background()
	if err := store.SetSetting(ctx, repository.SettingReferralBonusPercent, "2"); err != nil {
		t.Fatal(err)
	}
	referrer := seedUser(t, store, "")
	referred := seedUser(t, store, "5000")
	if err := svc.ApplyCode(ctx, referred.ID, referrer.ReferralCode); err != nil {
		t.Fatal(err)
	}
	purchase(t, store, referred.ID, "5000")
	bonus, err := svc.ProcessPurchase(ctx, referred.ID, dec("5000"))
	if err != nil {
		t.Fatal(err)
	}
	if bonus == nil || !bonus.Equal(dec("100")) {
		t.Fatalf("bonus = %v, want 100", bonus)
	}
}

func TestApplyReferralCodeRules(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	svc := NewReferralService(store, zap.NewNop())
	ctx := context.Background()

	referrer := seedUser(t, store, "")
	second := seedUser(t, store, "")
	user := seedUser(t, store, "1000")

	if err := svc.ApplyCode(ctx, user.ID, user.ReferralCode); !errors.Is(err, ErrSelfReferral) {
		t.Fatalf("self referral: err = %v", err)
	}
	if err := svc.ApplyCode(ctx, user.ID, "NOPE"); !errors.Is(err, ErrReferralCodeNotFound) {
		t.Fatalf("unknown code: err = %v", err)
	}
	if err := svc.ApplyCode(ctx, user.ID, referrer.ReferralCode); err != nil {
		t.Fatal(err)
	}
	if err := svc.ApplyCode(ctx, user.ID, second.ReferralCode); !errors.Is(err, ErrAlreadyReferred) {
		t.Fatalf("second referrer: err = %v", err)
	}

	late := seedUser(t, store, "1000")
	purchase(t, store, late.ID, "10")
	if err := svc.ApplyCode(ctx, late.ID, referrer.ReferralCode); !errors.Is(err, ErrReferralAfterPurchase) {
		t.Fatalf("after purchase: err = %v", err)
	}
}

func TestProcessPurchaseWithoutReferrer(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	svc := NewReferralService(store, zap.NewNop())
	user := seedUser(t, store, "100")
	purchase(t, store, user.ID, "100")

	bonus, err := svc.ProcessPurchase(context.Background(), user.ID, dec("100"))
	if err != nil || bonus != nil {
		t.Fatalf("bonus = %v, err = %v", bonus, err)
	}
}
