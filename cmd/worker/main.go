package main

import (
	"context"
	"encoding/hex"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/kelseyhightower/envconfig"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pawtrack/pawtrack-api/internal/email"
	"github.com/pawtrack/pawtrack-api/internal/repository/postgres"
	webhookService "github.com/pawtrack/pawtrack-api/internal/service/webhook"
	"github.com/pawtrack/pawtrack-api/pkg/logger"
	"github.com/pawtrack/pawtrack-api/pkg/messaging"
	"github.com/pawtrack/pawtrack-api/pkg/messaging/redis"
	"github.com/pawtrack/pawtrack-api/pkg/metrics"
	"github.com/pawtrack/pawtrack-api/pkg/security"
	"github.com/pawtrack/pawtrack-api/pkg/worker"
)

// Config comes entirely from the environment; the worker ships as a
// standalone container with no config file mounted.
type Config struct {
	DatabaseURL      string        `envconfig:"DATABASE_URL" required:"true"`
	RedisURL         string        `envconfig:"REDIS_URL"`
	BatchSize        int           `envconfig:"RETRY_BATCH_SIZE" default:"50"`
	PollInterval     time.Duration `envconfig:"RETRY_POLL_INTERVAL" default:"15s"`
	WebhookTimeout   time.Duration `envconfig:"WEBHOOK_TIMEOUT" default:"30s"`
	FailureThreshold int           `envconfig:"WEBHOOK_FAILURE_THRESHOLD" default:"10"`
	AlertEmail       string        `envconfig:"WEBHOOK_ALERT_EMAIL"`
	SecretKey        string        `envconfig:"WEBHOOK_SECRET_ENCRYPTION_KEY"`
	HealthAddr       string        `envconfig:"HEALTH_ADDR" default:":8081"`
}

func setupHealthCheck(addr string, logger *logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.ZL.Error().Err(err).Msg("Health check server failed")
			os.Exit(1)
		}
	}()
}

func main() {
	var cfg Config
	if err := envconfig.Process("pawtrack", &cfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	appLogger := &logger.Logger{ZL: log.Logger}

	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		appLogger.Fatal(err, "Failed to connect to database")
	}
	defer db.Close()

	var broker messaging.Broker
	if cfg.RedisURL != "" {
		broker, err = redis.NewRedisBroker(redis.Config{URL: cfg.RedisURL}, &log.Logger)
		if err != nil {
			appLogger.Error(err, "Failed to connect to Redis, polling only")
			broker = nil
		} else {
			defer broker.Close()
		}
	}

	var encryptor security.Encryptor
	if cfg.SecretKey != "" {
		key, err := hex.DecodeString(cfg.SecretKey)
		if err != nil {
			appLogger.Fatal(err, "Invalid secret encryption key")
		}
		encryptor, err = security.NewAESEncryptor(key)
		if err != nil {
			appLogger.Fatal(err, "Failed to initialize secret encryption")
		}
	}

	baseRepo := postgres.NewBaseRepository(db)
	webhookRepo := postgres.NewWebhookRepository(baseRepo, encryptor)
	deliveryRepo := postgres.NewDeliveryRepository(baseRepo)

	m := metrics.NewMetrics("pawtrack_worker")

	healthChecker := webhookService.NewHealthChecker(
		webhookRepo,
		cfg.FailureThreshold,
		email.NoopService{},
		cfg.AlertEmail,
		appLogger,
		m,
	)
	webhookSvc := webhookService.NewService(
		webhookRepo,
		deliveryRepo,
		healthChecker,
		broker,
		webhookService.Config{Timeout: cfg.WebhookTimeout},
		appLogger,
		m,
	)

	processor := worker.NewRetryProcessor(
		deliveryRepo,
		webhookSvc,
		broker,
		worker.RetryProcessorConfig{
			BatchSize:    cfg.BatchSize,
			PollInterval: cfg.PollInterval,
		},
		appLogger,
		m,
	)

	setupHealthCheck(cfg.HealthAddr, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		appLogger.Info("Shutting down...")
		cancel()
	}()

	processor.Start(ctx)
}
