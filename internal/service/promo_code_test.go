package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/repository/memstore"
)

func newPromo(t *testing.T, svc *PromoCodeService, in PromoCodeInput) *model.PromoCode {
	t.Helper()
	promo, err := svc.CreatePromoCode(context.Background(), in)
	if err != nil {
		t.Fatalf("create promo %s: %v", in.Code, err)
	}
	return promo
}

func TestValidatePercentCode(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	svc := NewPromoCodeService(store, zap.NewNop())
	user := seedUser(t, store, "")
	newPromo(t, svc, PromoCodeInput{Code: "save10", Type: model.PromoCodeTypePercent, Value: dec("10")})

	res, err := svc.Validate(context.Background(), "Save10", user.ID, decPtr("500"), "")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Valid {
		t.Fatalf("invalid: %s", res.Error)
	}
	if !res.Discount.Equal(dec("50")) {
		t.Fatalf("discount = %s, want 50", res.Discount)
	}
	if res.PromoCode.Code != "SAVE10" {
		t.Fatalf("code = %s, want stored uppercase", res.PromoCode.Code)
	}
}

func TestValidateFixedBelowMinimum(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	svc := NewPromoCodeService(store, zap.NewNop())
	user := seedUser(t, store, "")
	newPromo(t, svc, PromoCodeInput{Code: "FLAT50", Type: model.PromoCodeTypeFixed, Value: dec("50"), MinAmount: decPtr("200")})

	res, err := svc.Validate(context.Background(), "FLAT50", user.ID, decPtr("100"), "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid {
		t.Fatal("expected invalid")
	}
	if !strings.Contains(res.Error, "minimum amount") {
		t.Fatalf("error %q does not mention the minimum amount", res.Error)
	}

	res, err = svc.Validate(context.Background(), "FLAT50", user.ID, decPtr("30"), "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid {
		t.Fatal("order of 30 is still below the minimum")
	}

	res, err = svc.Validate(context.Background(), "FLAT50", user.ID, decPtr("250"), "")
	if err != nil || !res.Valid || !res.Discount.Equal(dec("50")) {
		t.Fatalf("res = %+v, err = %v", res, err)
	}
}

func TestFixedDiscountCappedAtOrder(t *testing.T) {
	t.Parallel()
	promo := &model.PromoCode{Type: model.PromoCodeTypeFixed, Value: dec("50")}
	if got := promoDiscount(promo, decPtr("20")); !got.Equal(dec("20")) {
		t.Fatalf("discount = %s, want 20", got)
	}
}

func TestValidateUnknownCode(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	svc := NewPromoCodeService(store, zap.NewNop())
	user := seedUser(t, store, "")

	res, err := svc.Validate(context.Background(), "NOPE", user.ID, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid || res.Error == "" {
		t.Fatalf("res = %+v", res)
	}
}

func TestValidateRuleOrder(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name  string
		in    PromoCodeInput
		plan  string
		order string
		want  error
	}{
		{"not started", PromoCodeInput{ValidFrom: &future}, "", "1000", ErrPromoCodeNotStarted},
		{"expired", PromoCodeInput{ValidUntil: &past}, "", "1000", ErrPromoCodeExpired},
		{"wrong plan", PromoCodeInput{PlanTypes: []string{"VPS"}}, "GAME", "1000", ErrPromoCodeWrongPlan},
		{"expired before min amount", PromoCodeInput{ValidUntil: &past, MinAmount: decPtr("100")}, "", "1", ErrPromoCodeExpired},
		{"min amount before plan", PromoCodeInput{MinAmount: decPtr("100"), PlanTypes: []string{"VPS"}}, "GAME", "1", ErrPromoCodeMinAmount},
		{"universal", PromoCodeInput{}, "GAME", "1000", nil},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := memstore.New()
			svc := NewPromoCodeService(store, zap.NewNop())
			svc.now = func() time.Time { return now }
			user := seedUser(t, store, "")

			in := tt.in
			in.Code, in.Type, in.Value = "RULES", model.PromoCodeTypeFixed, dec("5")
			promo := newPromo(t, svc, in)

			err := svc.check(context.Background(), store, promo, user.ID, decPtr(tt.order), tt.plan)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestApplyBalanceCodeOncePerUser(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	svc := NewPromoCodeService(store, zap.NewNop())
	user := seedUser(t, store, "")
	promo := newPromo(t, svc, PromoCodeInput{Code: "GIFT100", Type: model.PromoCodeTypeBalance, Value: dec("100")})

	res, err := svc.Apply(context.Background(), "gift100", user.ID, nil, "")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.NewBalance == nil || !res.NewBalance.Equal(dec("100")) {
		t.Fatalf("new balance = %v, want 100", res.NewBalance)
	}

	_, err = svc.Apply(context.Background(), "GIFT100", user.ID, nil, "")
	if !errors.Is(err, ErrPromoCodeAlreadyUsed) {
		t.Fatalf("second apply err = %v, want ErrPromoCodeAlreadyUsed", err)
	}

	assertBalance(t, store, user.ID, "100")
	assertLedgerConsistent(t, store, user.ID)
	if n := countType(store, user.ID, model.TransactionTypePromocode); n != 1 {
		t.Fatalf("%d PROMOCODE entries, want 1", n)
	}
	if uses := store.PromoUses(promo.ID); len(uses) != 1 {
		t.Fatalf("%d usage rows, want 1", len(uses))
	}
}

func TestApplyPercentCodeDoesNotTouchLedger(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	svc := NewPromoCodeService(store, zap.NewNop())
	user := seedUser(t, store, "")
	promo := newPromo(t, svc, PromoCodeInput{Code: "SAVE10", Type: model.PromoCodeTypePercent, Value: dec("10")})

	res, err := svc.Apply(context.Background(), "SAVE10", user.ID, decPtr("500"), "")
	if err != nil {
		t.Fatal(err)
	}
	if res.NewBalance != nil || !res.Discount.Equal(dec("50")) {
		t.Fatalf("res = %+v", res)
	}
	if n := len(store.Transactions(user.ID)); n != 0 {
		t.Fatalf("ledger has %d rows, want 0", n)
	}
	if uses := store.PromoUses(promo.ID); len(uses) != 0 {
		t.Fatalf("usage recorded on apply: %d", len(uses))
	}
}

func TestGlobalCapUnderConcurrency(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	svc := NewPromoCodeService(store, zap.NewNop())
	promo := newPromo(t, svc, PromoCodeInput{Code: "FIRST3", Type: model.PromoCodeTypeBalance, Value: dec("5"), MaxUses: intPtr(3)})

	users := make([]model.User, 12)
	for i := range users {
		users[i] = seedUser(t, store, "")
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for _, u := range users {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := svc.Apply(context.Background(), "FIRST3", userID, nil, "")
			if err == nil {
				mu.Lock()
				applied++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrPromoCodeUsageLimit) {
				t.Errorf("unexpected error: %v", err)
			}
		}(u.ID)
	}
	wg.Wait()

	if applied != 3 {
		t.Fatalf("applied %d times, want 3", applied)
	}
	stored, err := store.GetPromoCodeByCode(context.Background(), "FIRST3")
	if err != nil {
		t.Fatal(err)
	}
	if stored.UsedCount != 3 {
		t.Fatalf("used count = %d, want 3", stored.UsedCount)
	}
	if uses := store.PromoUses(promo.ID); len(uses) != 3 {
		t.Fatalf("%d usage rows, want 3", len(uses))
	}
}

func TestCreatePromoCodeValidation(t *testing.T) {
	t.Parallel()
	svc := NewPromoCodeService(memstore.New(), zap.NewNop())
	ctx := context.Background()

	if _, err := svc.CreatePromoCode(ctx, PromoCodeInput{Code: "X", Type: model.PromoCodeTypePercent, Value: dec("150")}); KindOf(err) != KindValidation {
		t.Fatalf("percent over 100: err = %v", err)
	}
	if _, err := svc.CreatePromoCode(ctx, PromoCodeInput{Code: "X", Type: "BOGUS", Value: dec("1")}); KindOf(err) != KindValidation {
		t.Fatalf("unknown type: err = %v", err)
	}
	newPromo(t, svc, PromoCodeInput{Code: "dup", Type: model.PromoCodeTypeFixed, Value: dec("1")})
	if _, err := svc.CreatePromoCode(ctx, PromoCodeInput{Code: "DUP", Type: model.PromoCodeTypeFixed, Value: dec("1")}); !errors.Is(err, ErrPromoCodeExists) {
		t.Fatalf("duplicate: err = %v", err)
	}
}

func TestCreateBulk(t *testing.T) {
	t.Parallel()
	svc := NewPromoCodeService(memstore.New(), zap.NewNop())
	codes, err := svc.CreateBulk(context.Background(), "spring", 5, PromoCodeInput{Type: model.PromoCodeTypeFixed, Value: dec("10")})
	if err != nil {
		t.Fatal(err)
	}
	if len(codes) != 5 {
		t.Fatalf("got %d codes", len(codes))
	}
	seen := map[string]bool{}
	for _, c := range codes {
		if !strings.HasPrefix(c.Code, "SPRING-") || len(c.Code) != len("SPRING-")+8 {
			t.Fatalf("bad code %q", c.Code)
		}
		if seen[c.Code] {
			t.Fatalf("duplicate code %q", c.Code)
		}
		seen[c.Code] = true
	}
}

func TestDeactivatedCodeIsInvalid(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	svc := NewPromoCodeService(store, zap.NewNop())
	user := seedUser(t, store, "")
	newPromo(t, svc, PromoCodeInput{Code: "OLD", Type: model.PromoCodeTypeFixed, Value: dec("5")})

	if err := svc.DeactivatePromoCode(context.Background(), "old"); err != nil {
		t.Fatal(err)
	}
	res, err := svc.Validate(context.Background(), "OLD", user.ID, nil, "")
	if err != nil || res.Valid {
		t.Fatalf("res = %+v, err = %v", res, err)
	}
	if err := svc.DeactivatePromoCode(context.Background(), "missing"); !errors.Is(err, ErrPromoCodeNotFound) {
		t.Fatalf("err = %v", err)
	}
}
