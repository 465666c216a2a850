package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/repository/memstore"
)

func deposit(t *testing.T, store *memstore.Store, userID int64, amount string) {
	t.Helper()
	if _, err := NewBalanceService(store, zap.NewNop()).Append(context.Background(), Entry{
		UserID: userID,
		Type:   model.TransactionTypeDeposit,
		Amount: dec(amount),
	}); err != nil {
		t.Fatalf("deposit: %v", err)
	}
}

func createTiers(t *testing.T, svc *DiscountService) {
	t.Helper()
	for _, in := range []VolumeTierInput{
		{Name: "Bronze", MinAmount: dec("1000"), DiscountPercent: dec("3")},
		{Name: "Silver", MinAmount: dec("5000"), DiscountPercent: dec("5")},
		{Name: "Gold", MinAmount: dec("20000"), DiscountPercent: dec("10")},
	} {
		if _, err := svc.CreateTier(context.Background(), in); err != nil {
			t.Fatalf("create tier %s: %v", in.Name, err)
		}
	}
}

func TestVolumeTierFollowsDeposits(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	svc := NewDiscountService(store, zap.NewNop())
	createTiers(t, svc)
	user := seedUser(t, store, "")
	ctx := context.Background()

	d, err := svc.GetUserDiscount(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !d.DiscountPercent.IsZero() || d.DiscountTier != nil {
		t.Fatalf("new user discount = %+v", d)
	}

	steps := []struct {
		deposit string
		want    string
	}{
		{"999.99", "0"},
		{"0.01", "3"},
		{"4000", "5"},
		{"30000", "10"},
	}
	for _, step := range steps {
		deposit(t, store, user.ID, step.deposit)
		d, err := svc.Refresh(ctx, user.ID)
		if err != nil {
			t.Fatal(err)
		}
		if !d.DiscountPercent.Equal(dec(step.want)) {
			t.Fatalf("after %s: percent = %s, want %s (total %s)", step.deposit, d.DiscountPercent, step.want, d.TotalSpent)
		}
	}
}

func TestBonusesDoNotCountTowardsTier(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	svc := NewDiscountService(store, zap.NewNop())
	createTiers(t, svc)
	user := seedUser(t, store, "50000")

	d, err := svc.Refresh(context.Background(), user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !d.DiscountPercent.IsZero() {
		t.Fatalf("percent = %s, want 0", d.DiscountPercent)
	}
}

func TestCreateTierValidation(t *testing.T) {
	t.Parallel()
	svc := NewDiscountService(memstore.New(), zap.NewNop())
	ctx := context.Background()
	createTiers(t, svc)

	if _, err := svc.CreateTier(ctx, VolumeTierInput{Name: "Again", MinAmount: dec("1000"), DiscountPercent: dec("4")}); !errors.Is(err, ErrVolumeTierExists) {
		t.Fatalf("duplicate min amount: err = %v", err)
	}
	if _, err := svc.CreateTier(ctx, VolumeTierInput{Name: "Huge", MinAmount: dec("1"), DiscountPercent: dec("101")}); KindOf(err) != KindValidation {
		t.Fatalf("percent over 100: err = %v", err)
	}
	if _, err := svc.CreateTier(ctx, VolumeTierInput{MinAmount: dec("2"), DiscountPercent: dec("1")}); KindOf(err) != KindValidation {
		t.Fatalf("missing name: err = %v", err)
	}
}
