package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SERVER_PORT", "")

	cfg, err := Load(viper.New())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Fatalf("port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.Fraud.VelocityThreshold != 10 || cfg.Fraud.SharedIPMinUsers != 3 {
		t.Fatalf("unexpected fraud defaults: %+v", cfg.Fraud)
	}
	if cfg.Fraud.DedupWindow != 7*24*time.Hour {
		t.Fatalf("dedup window = %v", cfg.Fraud.DedupWindow)
	}
	if len(cfg.Payments.YooKassaTrustedNetworks) == 0 {
		t.Fatalf("expected default yookassa networks")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/billing")
	t.Setenv("PAYMENT_PENDING_TTL", "2h")

	cfg, err := Load(viper.New())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("port = %q, want 9090", cfg.Server.Port)
	}
	if got := cfg.Database.DSN(); got != "postgres://u:p@db:5432/billing" {
		t.Fatalf("DSN = %q", got)
	}
	if cfg.Payments.PendingTTL != 2*time.Hour {
		t.Fatalf("pending ttl = %v", cfg.Payments.PendingTTL)
	}
}

func TestDSNFromParts(t *testing.T) {
	d := DatabaseConfig{Host: "h", Port: "1", User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	if got, want := d.DSN(), "postgres://u:p@h:1/n?sslmode=disable"; got != want {
		t.Fatalf("DSN = %q, want %q", got, want)
	}
}

func TestValidateRejectsDefaultSecretInProduction(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET", "")

	if _, err := Load(viper.New()); err == nil {
		t.Fatalf("expected error for default jwt secret in production")
	}
}

func TestProxyHeaderRequiresTrustedProxies(t *testing.T) {
	t.Setenv("PROXY_HEADER", "X-Real-IP")
	t.Setenv("TRUSTED_PROXIES", "")
	if _, err := Load(viper.New()); err == nil {
		t.Fatal("expected error for proxy header without trusted proxies")
	}

	t.Setenv("TRUSTED_PROXIES", "10.0.0.1, 10.0.1.0/24")
	cfg, err := Load(viper.New())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ProxyHeader != "X-Real-IP" || len(cfg.Server.TrustedProxies) != 2 || cfg.Server.TrustedProxies[1] != "10.0.1.0/24" {
		t.Fatalf("server config = %+v", cfg.Server)
	}
}
