package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/config"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/repository/memstore"
)

func testFraudConfig() config.FraudConfig {
	return config.FraudConfig{
		VelocityWindow:     24 * time.Hour,
		VelocityThreshold:  5,
		VelocityHigh:       8,
		LargeDepositWindow: 24 * time.Hour,
		LargeDepositAmount: dec("50000"),
		LargeDepositHigh:   dec("100000"),
		SharedIPWindow:     30 * 24 * time.Hour,
		SharedIPMinUsers:   3,
		SharedIPHigh:       5,
		DedupWindow:        7 * 24 * time.Hour,
	}
}

func alertsOf(store *memstore.Store, alertType model.FraudAlertType) []model.FraudAlert {
	var out []model.FraudAlert
	for _, a := range store.FraudAlerts() {
		if a.Type == alertType {
			out = append(out, a)
		}
	}
	return out
}

func TestFraudScan(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	svc := NewFraudService(store, testFraudConfig(), zap.NewNop())
	users := NewUserService(store, zap.NewNop())
	balance := NewBalanceService(store, zap.NewNop())
	ctx := context.Background()

	busy := seedUser(t, store, "")
	for i := 0; i < 7; i++ {
		if _, err := balance.Append(ctx, Entry{UserID: busy.ID, Type: model.TransactionTypeBonus, Amount: dec("1")}); err != nil {
			t.Fatal(err)
		}
	}

	whale := seedUser(t, store, "")
	deposit(t, store, whale.ID, "150000")
	medium := seedUser(t, store, "")
	deposit(t, store, medium.ID, "60000")
	small := seedUser(t, store, "")
	deposit(t, store, small.ID, "49999.99")

	for _, u := range []model.User{busy, whale, medium} {
		if err := users.TrackIP(ctx, u.ID, "203.0.113.7"); err != nil {
			t.Fatal(err)
		}
	}
	if err := users.TrackIP(ctx, small.ID, "garbage"); err != nil {
		t.Fatal(err)
	}

	n, err := svc.Scan(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Fatalf("new alerts = %d, want 4", n)
	}

	velocity := alertsOf(store, model.FraudAlertVelocity)
	if len(velocity) != 1 || *velocity[0].UserID != busy.ID || velocity[0].Severity != model.FraudSeverityMedium {
		t.Fatalf("velocity alerts = %+v", velocity)
	}

	large := alertsOf(store, model.FraudAlertSuspiciousPayment)
	if len(large) != 2 {
		t.Fatalf("large deposit alerts = %+v", large)
	}
	for _, a := range large {
		want := model.FraudSeverityMedium
		if *a.UserID == whale.ID {
			want = model.FraudSeverityHigh
		}
		if a.Severity != want {
			t.Errorf("user %d: severity %s, want %s", *a.UserID, a.Severity, want)
		}
	}

	shared := alertsOf(store, model.FraudAlertMultipleAccounts)
	if len(shared) != 1 || shared[0].IPAddress == nil || *shared[0].IPAddress != "203.0.113.7" || shared[0].Severity != model.FraudSeverityMedium {
		t.Fatalf("shared ip alerts = %+v", shared)
	}

	// A second run inside the dedup window adds nothing.
	n, err = svc.Scan(ctx, nil)
	if err != nil || n != 0 {
		t.Fatalf("rescan: n = %d, err = %v", n, err)
	}

	logs := store.AdminLogs()
	if len(logs) != 2 || logs[0].Action != model.AdminActionFraudScan || !logs[0].Success || logs[0].AdminID != nil {
		t.Fatalf("admin logs = %+v", logs)
	}
}

func TestFraudVelocitySeverityHigh(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	svc := NewFraudService(store, testFraudConfig(), zap.NewNop())
	balance := NewBalanceService(store, zap.NewNop())
	user := seedUser(t, store, "")
	for i := 0; i < 9; i++ {
		if _, err := balance.Append(context.Background(), Entry{UserID: user.ID, Type: model.TransactionTypeBonus, Amount: dec("1")}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := svc.Scan(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	alerts := alertsOf(store, model.FraudAlertVelocity)
	if len(alerts) != 1 || alerts[0].Severity != model.FraudSeverityHigh {
		t.Fatalf("alerts = %+v", alerts)
	}
}

func TestResolveFraudAlert(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	svc := NewFraudService(store, testFraudConfig(), zap.NewNop())
	ctx := context.Background()
	alert := &model.FraudAlert{Type: model.FraudAlertVelocity, Severity: model.FraudSeverityLow, Description: "x"}
	if err := store.CreateFraudAlert(ctx, alert); err != nil {
		t.Fatal(err)
	}

	if err := svc.Resolve(ctx, 1, alert.ID, model.FraudAlertStatusOpen); KindOf(err) != KindValidation {
		t.Fatalf("reopen: err = %v", err)
	}
	if err := svc.Resolve(ctx, 1, uuid.New(), model.FraudAlertStatusResolved); !errors.Is(err, ErrFraudAlertNotFound) {
		t.Fatalf("unknown: err = %v", err)
	}
	if err := svc.Resolve(ctx, 1, alert.ID, model.FraudAlertStatusDismissed); err != nil {
		t.Fatal(err)
	}

	open := model.FraudAlertStatusOpen
	remaining, err := svc.ListAlerts(ctx, &open, 0, 0)
	if err != nil || len(remaining) != 0 {
		t.Fatalf("open alerts = %+v, err = %v", remaining, err)
	}

	logs := store.AdminLogs()
	if len(logs) != 2 || logs[0].Success || !logs[1].Success {
		t.Fatalf("admin logs = %+v", logs)
	}
}
