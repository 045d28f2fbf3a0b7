package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/bookly/authcore/internal/auth"
	"github.com/bookly/authcore/internal/config"
	"github.com/bookly/authcore/internal/database"
	"github.com/bookly/authcore/internal/email"
	"github.com/bookly/authcore/internal/i18n"
	"github.com/bookly/authcore/internal/logging"
	"github.com/bookly/authcore/internal/metrics"
	"github.com/bookly/authcore/internal/server"
)

// Set at build time.
var version = "dev"

const (
	serviceName     = "authcore"
	shutdownTimeout = 15 * time.Second
	recommendedTTL  = 15 * time.Minute
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configFile  string
		autoMigrate bool
	)
	cmd := &cobra.Command{
		Use:          "authcore",
		Short:        "Account registration, login and OTP verification API",
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if configFile == "" {
				configFile = os.Getenv("CONFIG_FILE")
			}
			cfg, err := config.LoadWith(config.Options{File: configFile, Flags: cmd.Flags()})
			if err != nil {
				return oops.Code("CONFIG_INVALID").Wrap(err)
			}
			return run(cmd.Context(), cfg, autoMigrate)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "YAML config file (env CONFIG_FILE)")
	flags.BoolVar(&autoMigrate, "migrate", false, "apply pending migrations before serving")
	flags.String("port", "", "HTTP listen port")
	flags.String("environment", "", "deployment environment (development, production)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (json, text)")
	flags.String("log-file", "", "rotating log file path")
	flags.String("session-ttl", "", "session token lifetime")
	flags.String("verify-otp-ttl", "", "verification code lifetime")
	flags.String("reset-otp-ttl", "", "password reset code lifetime")
	flags.String("email-provider", "", "email provider (smtp, mailgun, sendgrid, log)")
	return cmd
}

func run(ctx context.Context, cfg config.Config, autoMigrate bool) error {
	logger, logFile, err := logging.New(serviceName, version, cfg.Log.Format, cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return fmt.Errorf("log setup: %w", err)
	}
	defer logFile.Close()
	slog.SetDefault(logger)

	if cfg.ResetOTPTTL != recommendedTTL {
		logger.Warn("reset otp lifetime differs from the recommended value",
			"reset_otp_ttl", cfg.ResetOTPTTL.String(), "recommended", recommendedTTL.String())
	}

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer db.Close()

	if autoMigrate {
		source := database.Migrations()
		if cfg.MigrationsDir != "" {
			source = database.MigrationSource(cfg.MigrationsDir)
		}
		if _, err := database.ApplyMigrations(ctx, db, source, logger); err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
		}
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return oops.Code("CONFIG_INVALID").With("setting", "REDIS_URL").Wrap(err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	metrics.RegisterMetrics(prometheus.DefaultRegisterer)

	mailer, err := email.NewFromConfig(cfg.Email, logger)
	if err != nil {
		return oops.Code("EMAIL_CONFIG_INVALID").Wrap(err)
	}

	tokens, err := auth.NewTokenCodec(cfg.JWTSecret, cfg.SessionTTL)
	if err != nil {
		return err
	}
	store := auth.NewAccountRepository(db)
	templates := i18n.EmailTemplates{}
	otp := auth.NewOTPManager(store, mailer, templates, auth.OTPConfig{
		VerifyTTL: cfg.VerifyOTPTTL,
		ResetTTL:  cfg.ResetOTPTTL,
	}, logger)

	accounts, err := auth.NewCredentialService(auth.CredentialDeps{
		Store:         store,
		Hasher:        auth.NewBcryptHasher(),
		Tokens:        tokens,
		OTP:           otp,
		Mailer:        mailer,
		Templates:     templates,
		Logger:        logger,
		ElevationCode: cfg.AdminElevationCode,
	})
	if err != nil {
		return err
	}

	api := server.NewServer(cfg, accounts, auth.NewRateLimiter(redisClient, nil),
		&auth.AuditLogger{Redis: redisClient, MaxLen: cfg.AuditMaxLen}, logger)
	api.Checks["postgres"] = db.Ping
	api.Checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := logFile.Rotate(); err != nil {
					logger.Error("log rotation failed", "error", err)
				}
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr, "environment", cfg.Environment, "email_provider", mailer.Provider())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return oops.Code("HTTP_SERVE_FAILED").Wrap(err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return oops.Code("HTTP_SHUTDOWN_FAILED").Wrap(err)
	}
	return nil
}
