package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/repository/memstore"
)

type receivedHook struct {
	event     string
	signature string
	body      []byte
}

type hookReceiver struct {
	mu     sync.Mutex
	got    []receivedHook
	status atomic.Int32
}

func newHookReceiver(t *testing.T) (*hookReceiver, *httptest.Server) {
	t.Helper()
	r := &hookReceiver{}
	r.status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		r.mu.Lock()
		r.got = append(r.got, receivedHook{
			event:     req.Header.Get(EventHeader),
			signature: req.Header.Get(SignatureHeader),
			body:      body,
		})
		r.mu.Unlock()
		w.WriteHeader(int(r.status.Load()))
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)
	return r, srv
}

// newLocalWebhookService delivers to loopback receivers.
func newLocalWebhookService(store *memstore.Store) *WebhookService {
	svc := NewWebhookService(store, zap.NewNop())
	svc.allowPrivate = true
	return svc
}

func (r *hookReceiver) received() []receivedHook {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]receivedHook(nil), r.got...)
}

func TestWebhookTriggerSignsPayload(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	svc := newLocalWebhookService(store)
	recv, srv := newHookReceiver(t)
	user := seedUser(t, store, "")
	ctx := context.Background()

	hook, err := svc.Create(ctx, user.ID, srv.URL+"/hooks", []string{model.EventPaymentCompleted})
	if err != nil {
		t.Fatal(err)
	}
	if len(hook.Secret) != 64 {
		t.Fatalf("secret length = %d", len(hook.Secret))
	}

	svc.Trigger(ctx, user.ID, model.EventPaymentCompleted, map[string]string{"payment_id": "p-1"})
	svc.Trigger(ctx, user.ID, model.EventOrderCreated, map[string]string{"ignored": "yes"})
	svc.Wait()

	got := recv.received()
	if len(got) != 1 {
		t.Fatalf("received %d deliveries, want 1", len(got))
	}
	if got[0].event != model.EventPaymentCompleted {
		t.Fatalf("event header = %q", got[0].event)
	}
	if got[0].signature != Sign(hook.Secret, got[0].body) {
		t.Fatal("signature does not match body")
	}

	var payload struct {
		Event string            `json:"event"`
		Data  map[string]string `json:"data"`
	}
	if err := json.Unmarshal(got[0].body, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Event != model.EventPaymentCompleted || payload.Data["payment_id"] != "p-1" {
		t.Fatalf("payload = %+v", payload)
	}

	logs, err := svc.Logs(ctx, user.ID, hook.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 || !logs[0].Success || logs[0].ResponseCode == nil || *logs[0].ResponseCode != 200 {
		t.Fatalf("logs = %+v", logs)
	}
}

func TestWebhookDisabledAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	svc := newLocalWebhookService(store)
	recv, srv := newHookReceiver(t)
	recv.status.Store(http.StatusInternalServerError)
	user := seedUser(t, store, "")
	ctx := context.Background()

	hook, err := svc.Create(ctx, user.ID, srv.URL, []string{model.EventOrderCreated})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < WebhookDisableAfter-1; i++ {
		log, err := svc.Test(ctx, user.ID, hook.ID)
		if err != nil {
			t.Fatal(err)
		}
		if log.Success {
			t.Fatal("500 recorded as success")
		}
	}
	stored, err := store.GetWebhook(ctx, hook.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !stored.IsActive || stored.FailCount != WebhookDisableAfter-1 {
		t.Fatalf("after %d failures: active=%v count=%d", WebhookDisableAfter-1, stored.IsActive, stored.FailCount)
	}

	if _, err := svc.Test(ctx, user.ID, hook.ID); err != nil {
		t.Fatal(err)
	}
	stored, err = store.GetWebhook(ctx, hook.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.IsActive {
		t.Fatal("webhook still active after reaching the failure limit")
	}

	before := len(recv.received())
	svc.Trigger(ctx, user.ID, model.EventOrderCreated, nil)
	svc.Wait()
	if after := len(recv.received()); after != before {
		t.Fatal("disabled webhook still receives events")
	}

	if _, err := svc.Test(ctx, user.ID, hook.ID); !errors.Is(err, ErrWebhookDisabled) {
		t.Fatalf("test ping on disabled webhook: err = %v", err)
	}
	if after := len(recv.received()); after != before {
		t.Fatal("disabled webhook received a test ping")
	}
	stored, err = store.GetWebhook(ctx, hook.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.FailCount != WebhookDisableAfter {
		t.Fatalf("fail count = %d after disable, want %d", stored.FailCount, WebhookDisableAfter)
	}
}

func TestWebhookSuccessResetsFailCount(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	svc := newLocalWebhookService(store)
	recv, srv := newHookReceiver(t)
	user := seedUser(t, store, "")
	ctx := context.Background()

	hook, err := svc.Create(ctx, user.ID, srv.URL, []string{model.EventOrderCreated})
	if err != nil {
		t.Fatal(err)
	}
	recv.status.Store(http.StatusBadGateway)
	for i := 0; i < 3; i++ {
		if _, err := svc.Test(ctx, user.ID, hook.ID); err != nil {
			t.Fatal(err)
		}
	}
	recv.status.Store(http.StatusNoContent)
	log, err := svc.Test(ctx, user.ID, hook.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !log.Success {
		t.Fatal("204 recorded as failure")
	}
	stored, err := store.GetWebhook(ctx, hook.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.FailCount != 0 || !stored.IsActive {
		t.Fatalf("fail count = %d, active = %v", stored.FailCount, stored.IsActive)
	}
}

func TestWebhookDialRejectsPrivateAddresses(t *testing.T) {
	t.Parallel()
	svc := NewWebhookService(memstore.New(), zap.NewNop())

	tests := []struct {
		address string
		allowed bool
	}{
		{"93.184.216.34:443", true},
		{"[2606:2800:220:1::1]:443", true},
		{"127.0.0.1:80", false},
		{"10.1.2.3:443", false},
		{"172.16.0.1:443", false},
		{"169.254.169.254:80", false},
		{"[fe80::1]:80", false},
		{"[::ffff:192.168.0.1]:80", false},
	}
	for _, tt := range tests {
		err := svc.checkDial("tcp", tt.address, nil)
		if tt.allowed && err != nil {
			t.Errorf("%s: unexpected error %v", tt.address, err)
		}
		if !tt.allowed && !errors.Is(err, ErrWebhookTarget) {
			t.Errorf("%s: err = %v, want ErrWebhookTarget", tt.address, err)
		}
	}
}

func TestWebhookDeliveryToLoopbackIsBlocked(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	svc := NewWebhookService(store, zap.NewNop())
	recv, srv := newHookReceiver(t)
	user := seedUser(t, store, "")
	ctx := context.Background()

	// Stored directly: a public hostname that later resolves to loopback
	// looks the same to the dialer.
	hook := &model.Webhook{UserID: user.ID, URL: srv.URL, Events: []string{model.EventOrderCreated}, Secret: "s", IsActive: true}
	if err := store.CreateWebhook(ctx, hook); err != nil {
		t.Fatal(err)
	}
	log, err := svc.Test(ctx, user.ID, hook.ID)
	if err != nil {
		t.Fatal(err)
	}
	if log.Success || len(recv.received()) != 0 {
		t.Fatalf("delivery reached loopback receiver: success=%v received=%d", log.Success, len(recv.received()))
	}
}

func TestWebhookOwnershipAndValidation(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	svc := NewWebhookService(store, zap.NewNop())
	owner := seedUser(t, store, "")
	other := seedUser(t, store, "")
	ctx := context.Background()

	if _, err := svc.Create(ctx, owner.ID, "ftp://example.com", []string{model.EventOrderCreated}); !errors.Is(err, ErrInvalidWebhookURL) {
		t.Fatalf("bad scheme: err = %v", err)
	}
	for _, target := range []string{
		"http://127.0.0.1:8080/hook",
		"http://localhost/hook",
		"http://10.0.0.5/hook",
		"http://192.168.1.1/hook",
		"http://169.254.169.254/latest/meta-data",
		"http://[::1]/hook",
		"http://[::ffff:127.0.0.1]/hook",
		"http://0.0.0.0/hook",
	} {
		if _, err := svc.Create(ctx, owner.ID, target, []string{model.EventOrderCreated}); !errors.Is(err, ErrWebhookTarget) {
			t.Errorf("%s: err = %v, want ErrWebhookTarget", target, err)
		}
	}
	if _, err := svc.Create(ctx, owner.ID, "https://example.com", []string{"order.deleted"}); !errors.Is(err, ErrInvalidEvents) {
		t.Fatalf("bad event: err = %v", err)
	}
	if _, err := svc.Create(ctx, owner.ID, "https://example.com", nil); !errors.Is(err, ErrInvalidEvents) {
		t.Fatalf("no events: err = %v", err)
	}

	hook, err := svc.Create(ctx, owner.ID, "https://example.com/h", []string{model.EventOrderCreated})
	if err != nil {
		t.Fatal(err)
	}
	listed, err := svc.List(ctx, owner.ID)
	if err != nil || len(listed) != 1 || listed[0].Secret != "" {
		t.Fatalf("listed = %+v, err = %v", listed, err)
	}

	if _, err := svc.Test(ctx, other.ID, hook.ID); !errors.Is(err, ErrWebhookNotFound) {
		t.Fatalf("foreign test: err = %v", err)
	}
	if err := svc.Delete(ctx, other.ID, hook.ID); !errors.Is(err, ErrWebhookNotFound) {
		t.Fatalf("foreign delete: err = %v", err)
	}
	if err := svc.Delete(ctx, owner.ID, hook.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, owner.ID, uuid.New()); !errors.Is(err, ErrWebhookNotFound) {
		t.Fatalf("unknown: err = %v", err)
	}
}
