// Package config loads the service configuration from the environment,
// following the same load-then-validate shape the teacher push service
// used for its own config.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ServiceMode selects which of the ingestion loop and the HTTP API run in
// this process.
type ServiceMode string

const (
	ModeCombined   ServiceMode = "combined"
	ModeAPIOnly    ServiceMode = "api-only"
	ModePubSubOnly ServiceMode = "pubsub-only"
)

// Config holds every environment-driven setting for the notification
// delivery service.
type Config struct {
	AppName  string
	LogLevel string
	LogJSON  bool

	ServiceMode ServiceMode
	HTTPPort    string

	RabbitURL           string
	PushQueue           string
	DeadLetterQueue     string
	PrefetchCount       int
	WorkerCount         int
	MaxInFlightMessages int
	MaxDeliveryAttempts int

	DatabaseURL string

	RedisURL     string
	FlushLockTTL time.Duration
	DedupTTL     time.Duration

	SMTPHost          string
	SMTPPort          int
	SMTPUser          string
	SMTPPassword      string
	SMTPUseSSL        bool
	SMTPDefaultSender string

	ProviderTimeout     time.Duration
	WebhookTimeout      time.Duration
	ShutdownGracePeriod time.Duration

	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration

	FlushSchedulerInterval time.Duration
}

// Load reads the environment (optionally via a local .env file) and
// validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppName:     getEnv("APP_NAME", "notification_delivery_service"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogJSON:     getEnvAsBool("LOG_JSON", false),
		ServiceMode: ServiceMode(getEnv("SERVICE_MODE", string(ModeCombined))),
		HTTPPort:    getEnv("HTTP_PORT", "8080"),

		RabbitURL:           getEnv("PUBSUB_URL", getEnv("RABBITMQ_URL", "")),
		PushQueue:           getEnv("PUBSUB_SUBSCRIPTION_NAME", "events.queue"),
		DeadLetterQueue:     getEnv("EVENTS_DLQ", "events.failed"),
		PrefetchCount:       getEnvAsInt("EVENTS_PREFETCH", 100),
		WorkerCount:         getEnvAsInt("WORKER_COUNT", 10),
		MaxInFlightMessages: getEnvAsInt("MAX_IN_FLIGHT_MESSAGES", 100),
		MaxDeliveryAttempts: getEnvAsInt("MAX_DELIVERY_ATTEMPTS", 5),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisURL:     getEnv("REDIS_URL", ""),
		FlushLockTTL: getEnvAsDuration("FLUSH_LOCK_TTL", 5*time.Minute),
		DedupTTL:     getEnvAsDuration("DEDUP_TTL", 24*time.Hour),

		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getEnvAsInt("SMTP_PORT", 587),
		SMTPUser:          getEnv("SMTP_USER", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),
		SMTPUseSSL:        getEnvAsBool("SMTP_USE_SSL", true),
		SMTPDefaultSender: getEnv("SMTP_DEFAULT_SENDER", ""),

		ProviderTimeout:     getEnvAsDuration("PROVIDER_TIMEOUT", 10*time.Second),
		WebhookTimeout:      getEnvAsDuration("WEBHOOK_TIMEOUT", 30*time.Second),
		ShutdownGracePeriod: getEnvAsDuration("SHUTDOWN_GRACE_PERIOD", 30*time.Second),

		RetryMaxAttempts:    getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
		RetryInitialBackoff: getEnvAsDuration("RETRY_INITIAL_BACKOFF", 250*time.Millisecond),
		RetryMaxBackoff:     getEnvAsDuration("RETRY_MAX_BACKOFF", 5*time.Second),

		FlushSchedulerInterval: getEnvAsDuration("FLUSH_SCHEDULER_INTERVAL", 0),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.ServiceMode != ModeAPIOnly && c.RabbitURL == "" {
		missing = append(missing, "PUBSUB_URL (or RABBITMQ_URL)")
	}
	if c.SMTPHost == "" {
		missing = append(missing, "SMTP_HOST")
	}
	if c.SMTPDefaultSender == "" {
		missing = append(missing, "SMTP_DEFAULT_SENDER")
	}
	switch c.ServiceMode {
	case ModeCombined, ModeAPIOnly, ModePubSubOnly:
	default:
		return fmt.Errorf("invalid SERVICE_MODE %q", c.ServiceMode)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	return nil
}

func getEnv(key, def string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	return value
}

func getEnvAsInt(key string, def int) int {
	if value, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("invalid int for %s, using default %d: %v", key, def, err)
			return def
		}
		return i
	}
	return def
}

func getEnvAsBool(key string, def bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(value)
		if err != nil {
			log.Printf("invalid bool for %s, using default %t: %v", key, def, err)
			return def
		}
		return b
	}
	return def
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(value)
		if err != nil {
			log.Printf("invalid duration for %s, using default %s: %v", key, def, err)
			return def
		}
		return d
	}
	return def
}
