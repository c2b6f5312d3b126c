package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/streadway/amqp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/CyberwizD/notification-delivery-service/internal/api"
	"github.com/CyberwizD/notification-delivery-service/internal/cache"
	"github.com/CyberwizD/notification-delivery-service/internal/config"
	"github.com/CyberwizD/notification-delivery-service/internal/flush"
	"github.com/CyberwizD/notification-delivery-service/internal/ingest"
	"github.com/CyberwizD/notification-delivery-service/internal/providers"
	"github.com/CyberwizD/notification-delivery-service/internal/store"
	"github.com/CyberwizD/notification-delivery-service/pkg/logger"
	"github.com/CyberwizD/notification-delivery-service/pkg/metrics"
	"github.com/CyberwizD/notification-delivery-service/pkg/retry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logr := logger.New(cfg.LogLevel, cfg.LogJSON)
	logr.Info("starting notification delivery service", slog.String("app", cfg.AppName), slog.String("service_mode", string(cfg.ServiceMode)))

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		logr.Error("failed to connect database", slog.Any("error", err))
		os.Exit(1)
	}

	retryCfg := retry.Config{
		MaxAttempts:    cfg.RetryMaxAttempts,
		InitialBackoff: cfg.RetryInitialBackoff,
		MaxBackoff:     cfg.RetryMaxBackoff,
	}

	eventStore, err := store.NewPostgresStore(db, retryCfg)
	if err != nil {
		logr.Error("failed to initialize event store", slog.Any("error", err))
		os.Exit(1)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		defer redisClient.Close()
	}
	eventCache := cache.New(redisClient, cfg.DedupTTL, cfg.FlushLockTTL)

	metricsCollector := metrics.New()

	emailProvider := providers.NewEmailProvider(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPUseSSL, cfg.SMTPDefaultSender, cfg.ProviderTimeout, logr)
	webhookProvider := providers.NewWebhookProvider(cfg.WebhookTimeout, logr)

	flushEngine := flush.NewEngine(eventStore, emailProvider, webhookProvider, eventCache, metricsCollector, logr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var httpSrv *http.Server
	if cfg.ServiceMode != config.ModePubSubOnly {
		httpSrv = startHTTPServer(cfg.HTTPPort, eventStore, flushEngine, metricsCollector, logr)
	}

	if cfg.FlushSchedulerInterval > 0 {
		scheduler := flush.NewScheduler(flushEngine, cfg.FlushSchedulerInterval, logr)
		go scheduler.Run(ctx)
	}

	var consumerDone chan struct{}
	if cfg.ServiceMode != config.ModeAPIOnly {
		conn, err := amqp.Dial(cfg.RabbitURL)
		if err != nil {
			logr.Error("failed to connect to pub/sub transport", slog.Any("error", err))
			os.Exit(1)
		}
		defer conn.Close()

		processor := ingest.NewProcessor(eventStore, emailProvider, webhookProvider, eventCache, metricsCollector, cfg.SMTPDefaultSender, logr)
		consumer := ingest.NewConsumer(conn, cfg.PushQueue, cfg.DeadLetterQueue, cfg.PrefetchCount, cfg.WorkerCount, cfg.MaxDeliveryAttempts, processor, logr)

		consumerDone = make(chan struct{})
		go func() {
			defer close(consumerDone)
			if err := consumer.Start(ctx); err != nil {
				logr.Error("ingestion consumer exited", slog.Any("error", err))
			}
		}()
	}

	<-ctx.Done()
	logr.Info("shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()

	if consumerDone != nil {
		select {
		case <-consumerDone:
		case <-shutdownCtx.Done():
			logr.Warn("grace period elapsed before ingestion consumer drained")
		}
	}

	if httpSrv != nil {
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logr.Error("failed to shutdown http server", slog.Any("error", err))
		}
	}

	logr.Info("notification delivery service stopped")
}

func startHTTPServer(port string, s store.EventStore, f *flush.Engine, m *metrics.Metrics, logr *slog.Logger) *http.Server {
	if port == "" {
		port = "8080"
	}
	handler := api.NewServer(s, f, m, logr)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Error("http server error", slog.Any("error", err))
		}
	}()
	return srv
}
