package middleware

import (
	"context"
	"errors"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

func echoUser(c *fiber.Ctx) error {
	return c.SendString(strconv.FormatInt(GetUserID(c), 10))
}

func do(t *testing.T, app *fiber.App, auth string) int {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	if auth != "" {
		req.Header.Set(fiber.HeaderAuthorization, auth)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode
}

func TestJWTAuth(t *testing.T) {
	t.Parallel()
	app := fiber.New()
	app.Get("/", JWTAuth(testSecret), echoUser)

	valid, err := IssueToken(testSecret, 42, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	expired, err := IssueToken(testSecret, 42, -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	foreign, err := IssueToken("other-secret", 42, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	noUser, err := IssueToken(testSecret, 0, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: 42}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		auth string
		want int
	}{
		{"valid", "Bearer " + valid, fiber.StatusOK},
		{"lowercase scheme", "bearer " + valid, fiber.StatusOK},
		{"missing", "", fiber.StatusUnauthorized},
		{"wrong scheme", "Basic " + valid, fiber.StatusUnauthorized},
		{"expired", "Bearer " + expired, fiber.StatusUnauthorized},
		{"wrong secret", "Bearer " + foreign, fiber.StatusUnauthorized},
		{"no user id", "Bearer " + noUser, fiber.StatusUnauthorized},
		{"alg none", "Bearer " + none, fiber.StatusUnauthorized},
	}
	for _, tt := range tests {
		if got := do(t, app, tt.auth); got != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestJWTAuthStoresUserID(t *testing.T) {
	t.Parallel()
	app := fiber.New()
	app.Get("/", JWTAuth(testSecret), echoUser)

	token, err := IssueToken(testSecret, 7, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	body := make([]byte, 8)
	n, _ := resp.Body.Read(body)
	if string(body[:n]) != "7" {
		t.Fatalf("user id = %q", body[:n])
	}
}

func TestCronAuth(t *testing.T) {
	t.Parallel()
	app := fiber.New()
	app.Get("/", CronAuth("cron-secret"), echoUser)

	if got := do(t, app, "Bearer cron-secret"); got != fiber.StatusOK {
		t.Fatalf("valid secret: %d", got)
	}
	if got := do(t, app, "Bearer nope"); got != fiber.StatusUnauthorized {
		t.Fatalf("wrong secret: %d", got)
	}

	disabled := fiber.New()
	disabled.Get("/", CronAuth(""), echoUser)
	if got := do(t, disabled, "Bearer "); got != fiber.StatusUnauthorized {
		t.Fatalf("disabled: %d", got)
	}
}

type fakeAdmins map[int64]bool

func (f fakeAdmins) IsAdmin(_ context.Context, userID int64) (bool, error) {
	return f[userID], nil
}

type fakeBans struct {
	users map[int64]bool
	err   error
}

func (f fakeBans) IsBanned(_ context.Context, userID int64, _ string) (bool, error) {
	return f.users[userID], f.err
}

type recordingTracker struct {
	seen []int64
}

func (r *recordingTracker) TrackIP(_ context.Context, userID int64, _ string) error {
	r.seen = append(r.seen, userID)
	return errors.New("db down")
}

func TestAdminAndBanChecks(t *testing.T) {
	t.Parallel()
	admin, err := IssueToken(testSecret, 1, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	user, err := IssueToken(testSecret, 2, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	banned, err := IssueToken(testSecret, 3, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	tracker := &recordingTracker{}
	app := fiber.New()
	api := app.Group("/", JWTAuth(testSecret),
		BanCheck(fakeBans{users: map[int64]bool{3: true}}, zap.NewNop()),
		TrackIP(tracker, zap.NewNop()))
	api.Get("/", AdminAuth(fakeAdmins{1: true}), func(c *fiber.Ctx) error {
		return c.SendString(strconv.FormatInt(GetAdminID(c), 10))
	})

	if got := do(t, app, "Bearer "+admin); got != fiber.StatusOK {
		t.Fatalf("admin: %d", got)
	}
	if got := do(t, app, "Bearer "+user); got != fiber.StatusForbidden {
		t.Fatalf("user: %d", got)
	}
	if got := do(t, app, "Bearer "+banned); got != fiber.StatusForbidden {
		t.Fatalf("banned: %d", got)
	}
	// A failing tracker never blocks the request; banned callers are
	// rejected before tracking.
	if len(tracker.seen) != 2 {
		t.Fatalf("tracked %v", tracker.seen)
	}
}

func TestBanCheckFailureIsInternal(t *testing.T) {
	t.Parallel()
	app := fiber.New()
	app.Get("/", BanCheck(fakeBans{err: errors.New("boom")}, zap.NewNop()), echoUser)
	if got := do(t, app, ""); got != fiber.StatusInternalServerError {
		t.Fatalf("status = %d", got)
	}
}
