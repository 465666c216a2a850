package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config keys. Each key is also read from the upper-cased environment
// variable of the same name (server_port -> SERVER_PORT).
const (
	KeyServerPort     = "server_port"
	KeyEnvironment    = "environment"
	KeyAllowOrigins   = "allow_origins"
	KeyProxyHeader    = "proxy_header"
	KeyTrustedProxies = "trusted_proxies"
	KeyDatabaseURL    = "database_url"
	KeyJWTSecret      = "jwt_secret"
	KeyCronSecret     = "cron_secret"
	KeyTelegramToken  = "telegram_bot_token"
	KeyWorkerInterval = "worker_interval"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Telegram TelegramConfig
	Payments PaymentsConfig
	Fraud    FraudConfig
	Worker   WorkerConfig
}

type ServerConfig struct {
	Port         string
	Environment  string
	AllowOrigins string

	// ProxyHeader carries the client IP when set, e.g. X-Real-IP. It is
	// only honoured for requests from TrustedProxies.
	ProxyHeader    string
	TrustedProxies []string
}

type DatabaseConfig struct {
	URL             string
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type AuthConfig struct {
	JWTSecret  string
	CronSecret string
}

type TelegramConfig struct {
	BotToken  string
	WebAppURL string
}

type PaymentsConfig struct {
	MinTopUp   decimal.Decimal
	MaxTopUp   decimal.Decimal
	PendingTTL time.Duration

	StripeWebhookSecret     string
	CryptoPayToken          string
	PayPalWebhookToken      string
	YooKassaTrustedNetworks []string
}

// FraudConfig holds the thresholds of the batch fraud heuristics.
type FraudConfig struct {
	VelocityWindow     time.Duration
	VelocityThreshold  int
	VelocityHigh       int
	LargeDepositWindow time.Duration
	LargeDepositAmount decimal.Decimal
	LargeDepositHigh   decimal.Decimal
	SharedIPWindow     time.Duration
	SharedIPMinUsers   int
	SharedIPHigh       int
	DedupWindow        time.Duration
}

type WorkerConfig struct {
	Interval          time.Duration
	FraudScanInterval time.Duration
}

// Official YooKassa notification source ranges.
var defaultYooKassaNetworks = []string{
	"185.71.76.0/27",
	"185.71.77.0/27",
	"77.75.153.0/25",
	"77.75.156.11/32",
	"77.75.156.35/32",
	"77.75.154.128/25",
	"2a02:5180::/32",
}

func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.Name + "?sslmode=" + d.SSLMode
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyServerPort, "8080")
	v.SetDefault(KeyEnvironment, "development")
	v.SetDefault(KeyAllowOrigins, "*")

	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", "5432")
	v.SetDefault("db_user", "billing")
	v.SetDefault("db_password", "billing")
	v.SetDefault("db_name", "billing")
	v.SetDefault("db_sslmode", "disable")
	v.SetDefault("db_max_open_conns", 25)
	v.SetDefault("db_max_idle_conns", 5)
	v.SetDefault("db_conn_max_lifetime", 30*time.Minute)

	v.SetDefault(KeyJWTSecret, "your-secret-key-change-in-production")

	v.SetDefault("topup_min_amount", "10")
	v.SetDefault("topup_max_amount", "500000")
	v.SetDefault("payment_pending_ttl", 24*time.Hour)
	v.SetDefault("yookassa_trusted_networks", strings.Join(defaultYooKassaNetworks, ","))

	v.SetDefault("fraud_velocity_window", 24*time.Hour)
	v.SetDefault("fraud_velocity_threshold", 10)
	v.SetDefault("fraud_velocity_high", 20)
	v.SetDefault("fraud_large_deposit_window", 24*time.Hour)
	v.SetDefault("fraud_large_deposit_amount", "50000")
	v.SetDefault("fraud_large_deposit_high", "100000")
	v.SetDefault("fraud_shared_ip_window", 30*24*time.Hour)
	v.SetDefault("fraud_shared_ip_min_users", 3)
	v.SetDefault("fraud_shared_ip_high", 5)
	v.SetDefault("fraud_dedup_window", 7*24*time.Hour)

	v.SetDefault(KeyWorkerInterval, 5*time.Minute)
	v.SetDefault("fraud_scan_interval", time.Hour)
}

// Load reads .env (if present) and resolves the configuration from v,
// which may already carry bound command-line flags. A nil v uses a fresh
// instance.
func Load(v *viper.Viper) (*Config, error) {
	_ = godotenv.Load()

	if v == nil {
		v = viper.New()
	}
	v.AutomaticEnv()
	SetDefaults(v)

	minTopUp, err := decimalKey(v, "topup_min_amount")
	if err != nil {
		return nil, err
	}
	maxTopUp, err := decimalKey(v, "topup_max_amount")
	if err != nil {
		return nil, err
	}
	largeDeposit, err := decimalKey(v, "fraud_large_deposit_amount")
	if err != nil {
		return nil, err
	}
	largeDepositHigh, err := decimalKey(v, "fraud_large_deposit_high")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetString(KeyServerPort),
			Environment:    v.GetString(KeyEnvironment),
			AllowOrigins:   v.GetString(KeyAllowOrigins),
			ProxyHeader:    strings.TrimSpace(v.GetString(KeyProxyHeader)),
			TrustedProxies: splitList(v.GetString(KeyTrustedProxies)),
		},
		Database: DatabaseConfig{
			URL:             v.GetString(KeyDatabaseURL),
			Host:            v.GetString("db_host"),
			Port:            v.GetString("db_port"),
			User:            v.GetString("db_user"),
			Password:        v.GetString("db_password"),
			Name:            v.GetString("db_name"),
			SSLMode:         v.GetString("db_sslmode"),
			MaxOpenConns:    v.GetInt("db_max_open_conns"),
			MaxIdleConns:    v.GetInt("db_max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("db_conn_max_lifetime"),
		},
		Auth: AuthConfig{
			JWTSecret:  v.GetString(KeyJWTSecret),
			CronSecret: v.GetString(KeyCronSecret),
		},
		Telegram: TelegramConfig{
			BotToken:  v.GetString(KeyTelegramToken),
			WebAppURL: v.GetString("telegram_webapp_url"),
		},
		Payments: PaymentsConfig{
			MinTopUp:                minTopUp,
			MaxTopUp:                maxTopUp,
			PendingTTL:              v.GetDuration("payment_pending_ttl"),
			StripeWebhookSecret:     v.GetString("stripe_webhook_secret"),
			CryptoPayToken:          v.GetString("cryptopay_token"),
			PayPalWebhookToken:      v.GetString("paypal_webhook_token"),
			YooKassaTrustedNetworks: splitList(v.GetString("yookassa_trusted_networks")),
		},
		Fraud: FraudConfig{
			VelocityWindow:     v.GetDuration("fraud_velocity_window"),
			VelocityThreshold:  v.GetInt("fraud_velocity_threshold"),
			VelocityHigh:       v.GetInt("fraud_velocity_high"),
			LargeDepositWindow: v.GetDuration("fraud_large_deposit_window"),
			LargeDepositAmount: largeDeposit,
			LargeDepositHigh:   largeDepositHigh,
			SharedIPWindow:     v.GetDuration("fraud_shared_ip_window"),
			SharedIPMinUsers:   v.GetInt("fraud_shared_ip_min_users"),
			SharedIPHigh:       v.GetInt("fraud_shared_ip_high"),
			DedupWindow:        v.GetDuration("fraud_dedup_window"),
		},
		Worker: WorkerConfig{
			Interval:          v.GetDuration(KeyWorkerInterval),
			FraudScanInterval: v.GetDuration("fraud_scan_interval"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("%s is required", KeyServerPort)
	}
	if c.Server.ProxyHeader != "" && len(c.Server.TrustedProxies) == 0 {
		return fmt.Errorf("%s requires %s", KeyProxyHeader, KeyTrustedProxies)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("%s is required", KeyJWTSecret)
	}
	if c.Payments.MinTopUp.IsNegative() || c.Payments.MaxTopUp.LessThan(c.Payments.MinTopUp) {
		return fmt.Errorf("invalid top-up bounds %s..%s", c.Payments.MinTopUp, c.Payments.MaxTopUp)
	}
	if c.Payments.PendingTTL <= 0 {
		return fmt.Errorf("payment_pending_ttl must be positive")
	}
	if c.Environment() == "production" && c.Auth.JWTSecret == "your-secret-key-change-in-production" {
		return fmt.Errorf("%s must be changed in production", KeyJWTSecret)
	}
	return nil
}

func (c *Config) Environment() string {
	return c.Server.Environment
}

// DefaultFraudConfig returns the stock heuristic thresholds.
func DefaultFraudConfig() FraudConfig {
	return FraudConfig{
		VelocityWindow:     24 * time.Hour,
		VelocityThreshold:  10,
		VelocityHigh:       20,
		LargeDepositWindow: 24 * time.Hour,
		LargeDepositAmount: decimal.NewFromInt(50000),
		LargeDepositHigh:   decimal.NewFromInt(100000),
		SharedIPWindow:     30 * 24 * time.Hour,
		SharedIPMinUsers:   3,
		SharedIPHigh:       5,
		DedupWindow:        7 * 24 * time.Hour,
	}
}

func decimalKey(v *viper.Viper, key string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
