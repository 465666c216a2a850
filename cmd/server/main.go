package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/config"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/handler"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/logger"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/metrics"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/middleware"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/payment"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/repository"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/service"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/telegram"
)

const (
	flagPort        = "port"
	flagDatabaseURL = "database-url"
	flagEnvironment = "environment"
	flagTTL         = "ttl"

	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "billing: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:           "billing",
		Short:         "Hosting panel billing server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	cmd.PersistentFlags().String(flagPort, "", "HTTP listen port (SERVER_PORT)")
	cmd.PersistentFlags().String(flagDatabaseURL, "", "PostgreSQL connection string (DATABASE_URL)")
	cmd.PersistentFlags().String(flagEnvironment, "", "development or production (ENVIRONMENT)")

	cmd.AddCommand(newTokenCommand(v))
	return cmd
}

// newTokenCommand issues a session token for a user, for operators and
// scripted access to the admin API.
func newTokenCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue an API token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || userID <= 0 {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			ttl, err := cmd.Flags().GetDuration(flagTTL)
			if err != nil {
				return err
			}
			token, err := middleware.IssueToken(cfg.Auth.JWTSecret, userID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Duration(flagTTL, 24*time.Hour, "token lifetime")
	return cmd
}

// loadConfig binds the command-line flags over the environment and
// resolves the configuration.
func loadConfig(cmd *cobra.Command, v *viper.Viper) (*config.Config, error) {
	bindings := map[string]string{
		config.KeyServerPort:  flagPort,
		config.KeyDatabaseURL: flagDatabaseURL,
		config.KeyEnvironment: flagEnvironment,
	}
	for key, flag := range bindings {
		f := cmd.Flags().Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, err
		}
	}
	return config.Load(v)
}

func run(ctx context.Context, cfg *config.Config) error {
	log, err := logger.New(cfg.Environment())
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = log.Sync() }()

	repo, err := repository.New(cfg.Database.DSN(), repository.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	defer repo.Close()

	yookassa, err := payment.NewYooKassa(cfg.Payments.YooKassaTrustedNetworks)
	if err != nil {
		return fmt.Errorf("yookassa networks: %w", err)
	}
	providers := payment.NewRegistry(
		yookassa,
		payment.NewStripe(cfg.Payments.StripeWebhookSecret),
		payment.NewPayPal(cfg.Payments.PayPalWebhookToken),
		payment.NewCryptoPay(cfg.Payments.CryptoPayToken),
	)

	// Create services
	svc := handler.Services{
		Users:          service.NewUserService(repo, log),
		Plans:          service.NewPlanService(repo, log),
		Balance:        service.NewBalanceService(repo, log),
		Payments:       service.NewPaymentService(repo, cfg.Payments, providers, log),
		PromoCodes:     service.NewPromoCodeService(repo, log),
		Gifts:          service.NewGiftCertificateService(repo, log),
		Discounts:      service.NewDiscountService(repo, log),
		Referrals:      service.NewReferralService(repo, log),
		SpendingLimits: service.NewSpendingLimitService(repo, log),
		Withdrawals:    service.NewWithdrawalService(repo, log),
		Webhooks:       service.NewWebhookService(repo, log),
		Fraud:          service.NewFraudService(repo, cfg.Fraud, log),
		Admin:          service.NewAdminService(repo, log),
	}
	svc.Purchases = service.NewPurchaseService(repo, log, svc.Plans, svc.Discounts, svc.PromoCodes, svc.SpendingLimits, svc.Referrals)

	// Setter wiring breaks the construction cycles between services.
	svc.Payments.SetDiscountService(svc.Discounts)
	svc.Payments.SetWebhookService(svc.Webhooks)
	svc.Purchases.SetWebhookService(svc.Webhooks)
	svc.SpendingLimits.SetWebhookService(svc.Webhooks)
	svc.Withdrawals.SetWebhookService(svc.Webhooks)

	var bot *telegram.Bot
	if cfg.Telegram.BotToken != "" {
		bot, err = telegram.NewBot(cfg.Telegram, svc.Users, svc.Balance, log)
		if err != nil {
			log.Warn("telegram bot disabled", zap.Error(err))
			bot = nil
		} else {
			svc.Payments.SetNotifier(bot)
			svc.Referrals.SetNotifier(bot)
			svc.SpendingLimits.SetNotifier(bot)
			svc.Withdrawals.SetNotifier(bot)
			log.Info("telegram bot initialized", zap.String("username", bot.GetBotUsername()))
		}
	}

	app := fiber.New(handler.AppConfig(cfg.Server, log))

	app.Use(recover.New())
	app.Use(middleware.RequestLogger(log.Named("http")))
	app.Use(metrics.Middleware())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.AllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	app.Get("/metrics", metrics.Handler())
	handler.Register(app, handler.New(svc, log), handler.NewAdminHandler(svc, log), handler.Guards{
		User: []fiber.Handler{
			middleware.JWTAuth(cfg.Auth.JWTSecret),
			middleware.BanCheck(svc.Admin, log),
			middleware.TrackIP(svc.Users, log),
		},
		Admin: middleware.AdminAuth(svc.Admin),
		Cron:  middleware.CronAuth(cfg.Auth.CronSecret),
	})

	// Start background jobs
	jobs, cancelJobs := context.WithCancel(ctx)
	defer cancelJobs()

	if bot != nil {
		go bot.StartPolling(jobs)
	}
	worker := service.NewWorker(svc.Payments, svc.Fraud, cfg.Worker.Interval, cfg.Worker.FraudScanInterval, log)
	go worker.Start(jobs)

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("port", cfg.Server.Port), zap.String("environment", cfg.Environment()))
		errCh <- app.Listen(":" + cfg.Server.Port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	cancelJobs()
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}
	// Let in-flight webhook deliveries finish before closing the database.
	svc.Webhooks.Wait()
	return nil
}
