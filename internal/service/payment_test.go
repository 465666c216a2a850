package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/config"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/metrics"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/payment"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/repository"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/repository/memstore"
)

const testStripeSecret = "whsec_test"

func newPaymentService(store *memstore.Store) *PaymentService {
	cfg := config.PaymentsConfig{
		MinTopUp:   dec("10"),
		MaxTopUp:   dec("500000"),
		PendingTTL: 24 * time.Hour,
	}
	providers := payment.NewRegistry(payment.NewStripe(testStripeSecret), payment.NewPayPal("pp-token"))
	return NewPaymentService(store, cfg, providers, zap.NewNop())
}

func TestCreateTopUpBounds(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	svc := newPaymentService(store)
	user := seedUser(t, store, "")
	ctx := context.Background()

	for _, amount := range []string{"0", "-5", "9.99", "500000.01"} {
		if _, err := svc.CreateTopUp(ctx, user.ID, dec(amount), model.PaymentProviderStripe); KindOf(err) != KindValidation {
			t.Errorf("amount %s: err = %v", amount, err)
		}
	}
	if _, err := svc.CreateTopUp(ctx, user.ID, dec("100"), model.PaymentProviderBalance); !errors.Is(err, ErrInvalidPaymentProvider) {
		t.Fatalf("balance provider: err = %v", err)
	}
	if _, err := svc.CreateTopUp(ctx, 999, dec("100"), model.PaymentProviderStripe); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown user: err = %v", err)
	}

	top, err := svc.CreateTopUp(ctx, user.ID, dec("10"), model.PaymentProviderStripe)
	if err != nil {
		t.Fatal(err)
	}
	if top.PaymentID == "" || top.Status != string(model.TransactionStatusPending) {
		t.Fatalf("top-up = %+v", top)
	}
	assertBalance(t, store, user.ID, "0")
}

func TestConfirmIsIdempotent(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	svc := newPaymentService(store)
	notifier := &fakeNotifier{}
	svc.SetNotifier(notifier)
	user := seedChatUser(t, store, "", 5)
	ctx := context.Background()

	top, err := svc.CreateTopUp(ctx, user.ID, dec("1000"), model.PaymentProviderStripe)
	if err != nil {
		t.Fatal(err)
	}

	res, err := svc.Confirm(ctx, model.PaymentProviderStripe, top.PaymentID, "pi_1", decPtr("1000.00"))
	if err != nil {
		t.Fatal(err)
	}
	if res.AlreadyProcessed || !res.Transaction.BalanceAfter.Equal(dec("1000")) {
		t.Fatalf("res = %+v", res)
	}

	res, err = svc.Confirm(ctx, model.PaymentProviderStripe, top.PaymentID, "pi_1", decPtr("1000"))
	if err != nil {
		t.Fatal(err)
	}
	if !res.AlreadyProcessed {
		t.Fatal("second confirmation was not reported as already processed")
	}

	assertBalance(t, store, user.ID, "1000")
	assertLedgerConsistent(t, store, user.ID)
	if n := len(notifier.messages()); n != 1 {
		t.Fatalf("%d notifications, want 1", n)
	}
}

func TestConcurrentConfirmCreditsOnce(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	svc := newPaymentService(store)
	user := seedUser(t, store, "")
	ctx := context.Background()

	top, err := svc.CreateTopUp(ctx, user.ID, dec("250"), model.PaymentProviderPayPal)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Confirm(ctx, model.PaymentProviderPayPal, top.PaymentID, "cap", nil); err != nil {
				t.Errorf("confirm: %v", err)
			}
		}()
	}
	wg.Wait()

	assertBalance(t, store, user.ID, "250")
	assertLedgerConsistent(t, store, user.ID)
}

func TestConfirmAddsTopUpBonus(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	svc := newPaymentService(store)
	user := seedUser(t, store, "")
	ctx := context.Background()
	if err := store.SetSetting(ctx, repository.SettingTopupBonusPercent, "5"); err != nil {
		t.Fatal(err)
	}

	top, err := svc.CreateTopUp(ctx, user.ID, dec("1000"), model.PaymentProviderStripe)
	if err != nil {
		t.Fatal(err)
	}
	res, err := svc.Confirm(ctx, model.PaymentProviderStripe, top.PaymentID, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Bonus == nil || !res.Bonus.Amount.Equal(dec("50")) {
		t.Fatalf("bonus = %+v", res.Bonus)
	}
	if res.Bonus.RelatedTransactionID == nil || *res.Bonus.RelatedTransactionID != top.TransactionID {
		t.Fatal("bonus does not reference the deposit")
	}
	assertBalance(t, store, user.ID, "1050")
	assertLedgerConsistent(t, store, user.ID)
}

func TestConfirmRejectsAmountMismatch(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	svc := newPaymentService(store)
	user := seedUser(t, store, "")
	ctx := context.Background()

	top, err := svc.CreateTopUp(ctx, user.ID, dec("100"), model.PaymentProviderStripe)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Confirm(ctx, model.PaymentProviderStripe, top.PaymentID, "", decPtr("99.99")); !errors.Is(err, ErrPaymentAmountMismatch) {
		t.Fatalf("err = %v", err)
	}
	assertBalance(t, store, user.ID, "0")

	if _, err := svc.Confirm(ctx, model.PaymentProviderStripe, "unknown", "", nil); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("unknown payment: err = %v", err)
	}
	// The payment id is scoped to its provider.
	if _, err := svc.Confirm(ctx, model.PaymentProviderPayPal, top.PaymentID, "", nil); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("other provider: err = %v", err)
	}
}

func TestFailedPaymentCannotBeConfirmed(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	svc := newPaymentService(store)
	user := seedUser(t, store, "")
	ctx := context.Background()

	top, err := svc.CreateTopUp(ctx, user.ID, dec("100"), model.PaymentProviderStripe)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Fail(ctx, model.PaymentProviderStripe, top.PaymentID, "card declined", false); err != nil {
		t.Fatal(err)
	}
	if err := svc.Fail(ctx, model.PaymentProviderStripe, top.PaymentID, "again", true); !errors.Is(err, ErrPaymentNotPending) {
		t.Fatalf("second fail: err = %v", err)
	}
	if _, err := svc.Confirm(ctx, model.PaymentProviderStripe, top.PaymentID, "", nil); !errors.Is(err, ErrLatePayment) {
		t.Fatalf("confirm after fail: err = %v", err)
	}

	txs := store.Transactions(user.ID)
	if len(txs) != 1 || txs[0].Status != model.TransactionStatusFailed {
		t.Fatalf("ledger = %+v", txs)
	}
	assertBalance(t, store, user.ID, "0")
}

func stripeCallback(body string) *payment.Request {
	ts := time.Now().Unix()
	h := http.Header{}
	h.Set("Stripe-Signature", "t="+strconv.FormatInt(ts, 10)+",v1="+payment.SignStripe(testStripeSecret, ts, []byte(body)))
	return &payment.Request{Body: []byte(body), Header: h}
}

func TestHandleStripeCallback(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	svc := newPaymentService(store)
	user := seedUser(t, store, "")
	ctx := context.Background()

	top, err := svc.CreateTopUp(ctx, user.ID, dec("75.50"), model.PaymentProviderStripe)
	if err != nil {
		t.Fatal(err)
	}
	body := fmt.Sprintf(`{"type":"checkout.session.completed","data":{"object":{"id":"cs_9","payment_status":"paid","amount_total":7550,"metadata":{"payment_id":%q}}}}`, top.PaymentID)

	forged := stripeCallback(body)
	forged.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	if _, err := svc.HandleCallback(ctx, model.PaymentProviderStripe, forged); KindOf(err) != KindInvalidSignature {
		t.Fatalf("forged: err = %v", err)
	}
	assertBalance(t, store, user.ID, "0")

	ev, err := svc.HandleCallback(ctx, model.PaymentProviderStripe, stripeCallback(body))
	if err != nil {
		t.Fatal(err)
	}
	if ev.Outcome != model.PaymentOutcomeSucceeded {
		t.Fatalf("outcome = %s", ev.Outcome)
	}
	assertBalance(t, store, user.ID, "75.5")

	// A redelivered callback is acknowledged without crediting again.
	if _, err := svc.HandleCallback(ctx, model.PaymentProviderStripe, stripeCallback(body)); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	assertBalance(t, store, user.ID, "75.5")

	if _, err := svc.HandleCallback(ctx, model.PaymentProviderCryptoPay, stripeCallback(body)); !errors.Is(err, ErrInvalidPaymentProvider) {
		t.Fatalf("unregistered provider: err = %v", err)
	}
	if _, err := svc.HandleCallback(ctx, model.PaymentProviderStripe, stripeCallback("{")); KindOf(err) != KindValidation {
		t.Fatalf("malformed: err = %v", err)
	}
}

func TestExpireStale(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := start
	store.SetClock(func() time.Time { return clock })
	svc := newPaymentService(store)
	user := seedUser(t, store, "")
	ctx := context.Background()

	old, err := svc.CreateTopUp(ctx, user.ID, dec("100"), model.PaymentProviderStripe)
	if err != nil {
		t.Fatal(err)
	}
	clock = start.Add(20 * time.Hour)
	store.SetClock(func() time.Time { return clock })
	fresh, err := svc.CreateTopUp(ctx, user.ID, dec("100"), model.PaymentProviderStripe)
	if err != nil {
		t.Fatal(err)
	}

	svc.now = func() time.Time { return start.Add(25 * time.Hour) }
	n, err := svc.ExpireStale(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expired %d, want 1", n)
	}

	if _, err := svc.Confirm(ctx, model.PaymentProviderStripe, old.PaymentID, "", nil); !errors.Is(err, ErrLatePayment) {
		t.Fatalf("expired payment confirmed: err = %v", err)
	}
	if _, err := svc.Confirm(ctx, model.PaymentProviderStripe, fresh.PaymentID, "", nil); err != nil {
		t.Fatal(err)
	}
	assertBalance(t, store, user.ID, "100")
}

func TestLateSuccessForExpiredDepositRaisesAlert(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	svc := newPaymentService(store)
	user := seedUser(t, store, "")
	ctx := context.Background()

	top, err := svc.CreateTopUp(ctx, user.ID, dec("100"), model.PaymentProviderStripe)
	if err != nil {
		t.Fatal(err)
	}
	svc.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	if n, err := svc.ExpireStale(ctx); err != nil || n != 1 {
		t.Fatalf("ExpireStale = %d, %v", n, err)
	}

	late := metrics.PaymentWebhooks.WithLabelValues(string(model.PaymentProviderStripe), "late")
	before := testutil.ToFloat64(late)

	body := fmt.Sprintf(`{"type":"checkout.session.completed","data":{"object":{"id":"cs_late","payment_status":"paid","amount_total":10000,"metadata":{"payment_id":%q}}}}`, top.PaymentID)
	_, err = svc.HandleCallback(ctx, model.PaymentProviderStripe, stripeCallback(body))
	if !errors.Is(err, ErrLatePayment) {
		t.Fatalf("late callback: err = %v, want ErrLatePayment", err)
	}
	if KindOf(err) != KindAlreadyProcessed {
		t.Fatalf("late callback kind = %v", KindOf(err))
	}
	assertBalance(t, store, user.ID, "0")

	if got := testutil.ToFloat64(late) - before; got != 1 {
		t.Fatalf("late outcome counted %v times, want 1", got)
	}

	alerts := store.FraudAlerts()
	if len(alerts) != 1 {
		t.Fatalf("alerts = %+v, want one", alerts)
	}
	a := alerts[0]
	if a.Type != model.FraudAlertSuspiciousPayment || a.Severity != model.FraudSeverityHigh || a.Status != model.FraudAlertStatusOpen {
		t.Fatalf("alert = %+v", a)
	}
	if a.UserID == nil || *a.UserID != user.ID {
		t.Fatalf("alert user = %v, want %d", a.UserID, user.ID)
	}
	if !strings.Contains(string(a.Metadata), top.PaymentID) {
		t.Fatalf("alert metadata %s lacks payment id", a.Metadata)
	}

	txs := store.Transactions(user.ID)
	if len(txs) != 1 || txs[0].Status != model.TransactionStatusCancelled {
		t.Fatalf("ledger = %+v", txs)
	}
}
