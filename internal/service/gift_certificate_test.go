package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/repository/memstore"
)

func TestRedeemGiftCertificate(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	svc := NewGiftCertificateService(store, zap.NewNop())
	admin := store.AddUser(model.User{})
	user := seedUser(t, store, "10")

	cert, err := svc.Create(context.Background(), admin.ID, GiftCertificateInput{Code: "gift-abc", Amount: dec("250")})
	if err != nil {
		t.Fatal(err)
	}
	if cert.Code != "GIFT-ABC" || !cert.Balance.Equal(dec("250")) {
		t.Fatalf("cert = %+v", cert)
	}

	res, err := svc.Redeem(context.Background(), "Gift-Abc", user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Amount.Equal(dec("250")) || !res.NewBalance.Equal(dec("260")) {
		t.Fatalf("res = %+v", res)
	}

	_, err = svc.Redeem(context.Background(), "GIFT-ABC", user.ID)
	if !errors.Is(err, ErrGiftAlreadyRedeemed) {
		t.Fatalf("second redeem err = %v", err)
	}

	assertBalance(t, store, user.ID, "260")
	assertLedgerConsistent(t, store, user.ID)
	var found bool
	for _, tx := range store.Transactions(user.ID) {
		if tx.CertificateID != nil && *tx.CertificateID == cert.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("ledger entry does not reference the certificate")
	}
}

func TestRedeemGiftCertificateConcurrently(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	svc := NewGiftCertificateService(store, zap.NewNop())
	if _, err := svc.Create(context.Background(), 1, GiftCertificateInput{Code: "ONCE", Amount: dec("100")}); err != nil {
		t.Fatal(err)
	}

	users := []model.User{seedUser(t, store, ""), seedUser(t, store, ""), seedUser(t, store, "")}
	errs := make([]error, len(users))
	var wg sync.WaitGroup
	for i, u := range users {
		wg.Add(1)
		go func(i int, userID int64) {
			defer wg.Done()
			_, errs[i] = svc.Redeem(context.Background(), "ONCE", userID)
		}(i, u.ID)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, ErrGiftAlreadyRedeemed):
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("%d redemptions succeeded, want 1", ok)
	}

	total := dec("0")
	for _, u := range users {
		total = total.Add(balanceOf(t, store, u.ID))
	}
	if !total.Equal(dec("100")) {
		t.Fatalf("credited %s in total, want 100", total)
	}
}

func TestRedeemGiftCertificateRules(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	yesterday := now.Add(-24 * time.Hour)

	store := memstore.New()
	svc := NewGiftCertificateService(store, zap.NewNop())
	svc.now = func() time.Time { return now }
	user := seedUser(t, store, "")
	other := seedUser(t, store, "")

	ctx := context.Background()
	for _, g := range []model.GiftCertificate{
		{Code: "OLD", Amount: dec("5"), Balance: dec("5"), IsActive: true, ExpiresAt: &yesterday},
		{Code: "OFF", Amount: dec("5"), Balance: dec("5"), IsActive: false},
		{Code: "THEIRS", Amount: dec("5"), Balance: dec("5"), IsActive: true, RedeemedByID: &other.ID},
		{Code: "SPENT", Amount: dec("5"), Balance: dec("0"), IsActive: true, RedeemedByID: &other.ID},
	} {
		g := g
		if err := store.CreateGiftCertificate(ctx, &g); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		code string
		want error
	}{
		{"OLD", ErrGiftExpired},
		{"OFF", ErrGiftInactive},
		{"THEIRS", ErrGiftRedeemedByOther},
		{"SPENT", ErrGiftRedeemedByOther},
		{"MISSING", ErrGiftNotFound},
	}
	for _, tt := range tests {
		if _, err := svc.Redeem(ctx, tt.code, user.ID); !errors.Is(err, tt.want) {
			t.Errorf("%s: err = %v, want %v", tt.code, err, tt.want)
		}
	}
	assertBalance(t, store, user.ID, "0")
	if n := len(store.Transactions(user.ID)); n != 0 {
		t.Fatalf("failed redemptions wrote %d entries", n)
	}
}

func TestCreateGiftCertificateGeneratesCode(t *testing.T) {
	t.Parallel()
	svc := NewGiftCertificateService(memstore.New(), zap.NewNop())

	cert, err := svc.Create(context.Background(), 1, GiftCertificateInput{Amount: dec("50")})
	if err != nil {
		t.Fatal(err)
	}
	if len(cert.Code) != len("GIFT-XXXX-XXXX") || cert.Code[:5] != "GIFT-" {
		t.Fatalf("generated code %q", cert.Code)
	}

	if _, err := svc.Create(context.Background(), 1, GiftCertificateInput{Amount: dec("0")}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero amount: err = %v", err)
	}
	if _, err := svc.Create(context.Background(), 1, GiftCertificateInput{Code: cert.Code, Amount: dec("1")}); !errors.Is(err, ErrGiftCodeExists) {
		t.Fatalf("duplicate: err = %v", err)
	}
}
