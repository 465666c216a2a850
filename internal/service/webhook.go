package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/metrics"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/repository"
)

const (
	WebhookTimeout         = 10 * time.Second
	WebhookDisableAfter    = 10 // consecutive failures
	WebhookMaxResponseBody = 1000
	maxWebhooksPerUser     = 10

	SignatureHeader = "X-Webhook-Signature"
	EventHeader     = "X-Webhook-Event"
)

// WebhookService manages user subscriptions and fans domain events out
// to them. Each delivery is a single attempt; the outcome is only
// recorded in the delivery log and the subscription's fail counter.
type WebhookService struct {
	store  repository.Store
	logger *zap.Logger
	client *http.Client
	wg     sync.WaitGroup

	// allowPrivate lifts the public-address restriction on targets.
	allowPrivate bool
}

func NewWebhookService(store repository.Store, logger *zap.Logger) *WebhookService {
	s := &WebhookService{
		store:  store,
		logger: logger.Named("webhook"),
	}
	dialer := &net.Dialer{Timeout: WebhookTimeout, Control: s.checkDial}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	s.client = &http.Client{Timeout: WebhookTimeout, Transport: transport}
	return s
}

// checkDial rejects connections to non-public addresses after DNS
// resolution, so a public hostname cannot be pointed at internal hosts.
func (s *WebhookService) checkDial(_, address string, _ syscall.RawConn) error {
	if s.allowPrivate {
		return nil
	}
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("webhook dial %s: %w", address, err)
	}
	if !publicAddr(ap.Addr()) {
		return fmt.Errorf("webhook dial %s: %w", address, ErrWebhookTarget)
	}
	return nil
}

func publicAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsValid() &&
		!addr.IsLoopback() &&
		!addr.IsPrivate() &&
		!addr.IsUnspecified() &&
		!addr.IsLinkLocalUnicast() &&
		!addr.IsLinkLocalMulticast() &&
		!addr.IsInterfaceLocalMulticast() &&
		!addr.IsMulticast()
}

// checkTarget validates the host part of a subscription url. Hostnames
// are resolved only at dial time.
func (s *WebhookService) checkTarget(u *url.URL) error {
	if s.allowPrivate {
		return nil
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return ErrWebhookTarget
	}
	if addr, err := netip.ParseAddr(host); err == nil && !publicAddr(addr) {
		return ErrWebhookTarget
	}
	return nil
}

// WebhookPayload is the JSON body POSTed to subscribers.
type WebhookPayload struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *WebhookService) Create(ctx context.Context, userID int64, rawURL string, events []string) (*model.Webhook, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrInvalidWebhookURL
	}
	if err := s.checkTarget(u); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrInvalidEvents
	}
	for _, e := range events {
		if !model.IsWebhookEvent(e) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidEvents, e)
		}
	}

	existing, err := s.store.ListWebhooks(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(existing) >= maxWebhooksPerUser {
		return nil, validationf("at most %d webhooks per user", maxWebhooksPerUser)
	}

	secret, err := newSecret()
	if err != nil {
		return nil, err
	}
	hook := &model.Webhook{
		UserID:   userID,
		URL:      rawURL,
		Events:   events,
		Secret:   secret,
		IsActive: true,
	}
	if err := s.store.CreateWebhook(ctx, hook); err != nil {
		return nil, err
	}
	return hook, nil
}

func (s *WebhookService) List(ctx context.Context, userID int64) ([]model.Webhook, error) {
	hooks, err := s.store.ListWebhooks(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range hooks {
		hooks[i].Secret = ""
	}
	return hooks, nil
}

func (s *WebhookService) Delete(ctx context.Context, userID int64, id uuid.UUID) error {
	err := s.store.DeleteWebhook(ctx, id, userID)
	if errors.Is(err, repository.ErrWebhookNotFound) {
		return ErrWebhookNotFound
	}
	return err
}

func (s *WebhookService) Logs(ctx context.Context, userID int64, id uuid.UUID, limit int) ([]model.WebhookLog, error) {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.ListWebhookLogs(ctx, id, limit)
}

// Test sends a ping to one active subscription and waits for the result.
func (s *WebhookService) Test(ctx context.Context, userID int64, id uuid.UUID) (*model.WebhookLog, error) {
	hook, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !hook.IsActive {
		return nil, ErrWebhookDisabled
	}
	return s.deliver(ctx, *hook, model.EventPing, map[string]interface{}{"webhook_id": hook.ID}), nil
}

func (s *WebhookService) owned(ctx context.Context, userID int64, id uuid.UUID) (*model.Webhook, error) {
	hook, err := s.store.GetWebhook(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrWebhookNotFound) {
			return nil, ErrWebhookNotFound
		}
		return nil, err
	}
	if hook.UserID != userID {
		return nil, ErrWebhookNotFound
	}
	return hook, nil
}

// Trigger delivers event to every active subscription of userID that
// listens for it. Deliveries run in the background; failures are logged
// and never reach the caller.
func (s *WebhookService) Trigger(ctx context.Context, userID int64, event string, data interface{}) {
	hooks, err := s.store.ListActiveWebhooksForEvent(ctx, userID, event)
	if err != nil {
		s.logger.Error("load webhooks", zap.Int64("user_id", userID), zap.String("event", event), zap.Error(err))
		return
	}

	for _, hook := range hooks {
		s.wg.Add(1)
		go func(hook model.Webhook) {
			defer s.wg.Done()
			s.deliver(context.Background(), hook, event, data)
		}(hook)
	}
}

// Wait blocks until in-flight deliveries finish.
func (s *WebhookService) Wait() {
	s.wg.Wait()
}

func (s *WebhookService) deliver(ctx context.Context, hook model.Webhook, event string, data interface{}) *model.WebhookLog {
	log := &model.WebhookLog{WebhookID: hook.ID, Event: event}

	body, err := json.Marshal(WebhookPayload{Event: event, Timestamp: time.Now().UTC(), Data: data})
	if err != nil {
		s.logger.Error("encode webhook payload", zap.String("event", event), zap.Error(err))
		return log
	}
	log.Payload = types.JSONText(body)

	postCtx, cancel := context.WithTimeout(ctx, WebhookTimeout)
	reason := s.post(postCtx, hook, event, body, log)
	cancel()
	metrics.WebhookDeliveries.WithLabelValues(resultLabel(log.Success)).Inc()

	if err := s.store.InsertWebhookLog(ctx, log); err != nil {
		s.logger.Error("write webhook log", zap.String("webhook_id", hook.ID.String()), zap.Error(err))
	}

	if log.Success {
		if err := s.store.RecordWebhookSuccess(ctx, hook.ID); err != nil {
			s.logger.Error("reset webhook failures", zap.String("webhook_id", hook.ID.String()), zap.Error(err))
		}
		return log
	}

	disabled, err := s.store.RecordWebhookFailure(ctx, hook.ID, reason, WebhookDisableAfter)
	if err != nil {
		s.logger.Error("record webhook failure", zap.String("webhook_id", hook.ID.String()), zap.Error(err))
		return log
	}
	s.logger.Warn("webhook delivery failed",
		zap.String("webhook_id", hook.ID.String()),
		zap.String("event", event),
		zap.String("reason", reason),
		zap.Bool("disabled", disabled))
	return log
}

// post sends the request and fills the response fields of log. It
// returns the failure reason, empty on success.
func (s *WebhookService) post(ctx context.Context, hook model.Webhook, event string, body []byte, log *model.WebhookLog) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return err.Error()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(hook.Secret, body))
	req.Header.Set(EventHeader, event)

	resp, err := s.client.Do(req)
	if err != nil {
		return err.Error()
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, WebhookMaxResponseBody))
	code := resp.StatusCode
	text := strings.ToValidUTF8(string(respBody), "")
	log.ResponseCode = &code
	log.ResponseBody = &text

	if code < 200 || code >= 300 {
		return fmt.Sprintf("HTTP %d", code)
	}
	log.Success = true
	return ""
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func newSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
