package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/pawdesk/pawdesk-platform/cmd/mainconfig"
	"github.com/pawdesk/pawdesk-platform/internal/api/router"
	"github.com/pawdesk/pawdesk-platform/internal/booking"
	appconfig "github.com/pawdesk/pawdesk-platform/internal/config"
	"github.com/pawdesk/pawdesk-platform/internal/events"
	"github.com/pawdesk/pawdesk-platform/internal/gateway/staff"
	"github.com/pawdesk/pawdesk-platform/internal/gateway/voice"
	"github.com/pawdesk/pawdesk-platform/internal/observability/metrics"
	"github.com/pawdesk/pawdesk-platform/internal/practice"
	"github.com/pawdesk/pawdesk-platform/internal/schedule"
	"github.com/pawdesk/pawdesk-platform/internal/slots"
	"github.com/pawdesk/pawdesk-platform/pkg/logging"
)

func main() {
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel, cfg.Env)
	logger.Info("starting pawdesk API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"lock_strategy", cfg.BookingLockStrategy,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create pgx pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient = redis.NewClient(opts)
		defer func() { _ = redisClient.Close() }()
	}

	m := metrics.NewSchedulingMetrics(nil)

	store := schedule.NewStore(pool)
	directory := practice.NewDirectory(store, redisClient, logger)
	outbox := events.NewOutboxStore(pool)
	coordinator := booking.NewCoordinator(store, outbox, cfg.BookingLockStrategy, cfg.BookingMaxRetries, logger).
		WithMetrics(m)
	engine := slots.NewEngine(store)

	voiceHandler := voice.NewHandler(voice.HandlerConfig{
		Directory:   directory,
		Finder:      engine,
		Coordinator: coordinator,
		Logger:      logger,
		Metrics:     m,
		SlotMinutes: cfg.DefaultSlotMinutes,
		Deadline:    cfg.VoiceRequestDeadline,
	})
	staffHandler := staff.NewHandler(staff.HandlerConfig{
		Store:       store,
		Finder:      engine,
		Coordinator: coordinator,
		Logger:      logger,
		Metrics:     m,
		SlotMinutes: cfg.DefaultSlotMinutes,
	})
	statsHandler := practice.NewStatsHandler(practice.NewStatsRepository(pool), logger)

	// Event delivery to SQS; skipped when no queue is configured.
	if cfg.AppointmentEventsQueueURL != "" {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		publisher := events.NewSQSPublisher(sqs.NewFromConfig(awsCfg), cfg.AppointmentEventsQueueURL)
		go events.NewDeliverer(outbox, publisher, logger).Start(ctx)
	} else {
		logger.Warn("APPOINTMENT_EVENTS_QUEUE_URL not set; outbox delivery disabled")
	}

	r := router.New(&router.Config{
		Logger:             logger,
		VoiceHandler:       voiceHandler,
		StaffHandler:       staffHandler,
		StatsHandler:       statsHandler,
		MetricsHandler:     promhttp.Handler(),
		StaffJWTSecret:     cfg.StaffJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,

		VoiceRateLimitPerMinute: cfg.VoiceRateLimitPerMinute,
		VoiceRateLimitBurst:     cfg.VoiceRateLimitBurst,
		HealthCheck: func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Ping(pingCtx)
		},
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.StaffRequestDeadline,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
