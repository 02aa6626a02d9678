package main

import (
	"context"
	"io"
	stdlog "log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	daemon "github.com/sevlyar/go-daemon"
	"github.com/spf13/cobra"

	"github.com/returnhub/returnhub/internal/audit"
	"github.com/returnhub/returnhub/internal/config"
	"github.com/returnhub/returnhub/internal/idempotency"
	"github.com/returnhub/returnhub/internal/limiter"
	"github.com/returnhub/returnhub/internal/metrics"
	"github.com/returnhub/returnhub/internal/notify"
	"github.com/returnhub/returnhub/internal/server"
	"github.com/returnhub/returnhub/internal/workflow"
	"github.com/returnhub/returnhub/pkg/log"
	"github.com/returnhub/returnhub/pkg/telemetry"
)

var (
	daemonMode bool
	configPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "returnhub",
		Short: "Return/refund tool service for voice-agent orchestrators",
		RunE: func(cmd *cobra.Command, args []string) error {
			if daemonMode {
				cntxt := &daemon.Context{
					PidFileName: "returnhub.pid",
					PidFilePerm: 0644,
				}
				child, err := cntxt.Reborn()
				if err != nil {
					return err
				}
				if child != nil {
					return nil
				}
				defer cntxt.Release()
			}
			return run(configPath)
		},
	}
	rootCmd.PersistentFlags().BoolVar(&daemonMode, "daemon", false, "run in background")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/returnhub.yaml", "path to configuration file")
	if err := rootCmd.Execute(); err != nil {
		stdlog.Fatal(err)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := log.New("returnhub", cfg.Log.Level, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(cfg.Telemetry.Service, cfg.Telemetry.Enabled, os.Stdout)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	redisClient := buildRedisClient(cfg.Idempotency, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	store, err := idempotency.New(idempotency.Config{
		TTL:         cfg.Idempotency.TTL,
		NumCounters: cfg.Idempotency.NumCounters,
		MaxCost:     cfg.Idempotency.MaxCost,
		BufferItems: cfg.Idempotency.BufferItems,
		Redis:       redisClient,
	}, logger)
	if err != nil {
		return err
	}

	notifier := buildNotifier(cfg, logger)

	auditOut, closeAudit, err := auditWriter(cfg.Audit)
	if err != nil {
		return err
	}
	if closeAudit != nil {
		defer closeAudit()
	}
	auditLog := audit.New(cfg.Audit.Enabled, auditOut)

	m := metrics.New()
	lim := limiter.New(limiter.Config{
		Enabled:           cfg.RateLimit.Enabled,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	})

	engine := workflow.New(store, notifier, auditLog, m, logger,
		telemetry.Tracer("workflow"), workflow.Config{Timeout: cfg.Workflow.Timeout})

	srv := server.New(cfg, engine, notifier, store, auditLog, lim, m, logger)

	logger.Info("returnhub listening", "address", cfg.Server.Address,
		"smtp_configured", cfg.SMTP.Configured(), "sms_configured", cfg.SMS.Configured())
	return srv.Run(ctx)
}

func buildNotifier(cfg config.Config, logger *slog.Logger) *notify.Notifier {
	var email notify.EmailSender = notify.StubEmailSender{}
	if cfg.SMTP.Configured() {
		email = notify.NewSMTPSender(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
	} else {
		logger.Warn("smtp not configured, email sends are stubbed")
	}

	var sms notify.SMSSender = notify.StubSMSSender{}
	if cfg.SMS.Configured() {
		sms = notify.NewHTTPSMSSender(notify.SMSAPIConfig{
			APIURL: cfg.SMS.APIURL,
			APIKey: cfg.SMS.APIKey,
		}, nil)
	} else {
		logger.Warn("sms not configured, sms sends are stubbed")
	}

	return notify.New(email, sms, notify.Config{
		MaxEmailAttempts: cfg.Workflow.MaxEmailAttempts,
		RetryBackoff:     cfg.Workflow.RetryBackoff,
		MaxSMSLength:     cfg.SMS.MaxLength,
	}, logger)
}

func buildRedisClient(cfg config.IdempotencyConfig, logger *slog.Logger) redis.UniversalClient {
	if cfg.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		// Idempotency is best-effort; run on the local tier only.
		logger.Warn("redis unreachable, idempotency degrades to local cache", "addr", cfg.RedisAddr, "error", err)
	}
	return client
}

func auditWriter(cfg config.AuditConfig) (io.Writer, func() error, error) {
	if !cfg.Enabled || cfg.Path == "" {
		return os.Stdout, nil, nil
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
