package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	_ "github.com/lib/pq"

	"github.com/pawtrack/pawtrack-api/internal/config"
	"github.com/pawtrack/pawtrack-api/internal/email"
	"github.com/pawtrack/pawtrack-api/internal/handler"
	appointmentHandler "github.com/pawtrack/pawtrack-api/internal/handler/appointment"
	authHandler "github.com/pawtrack/pawtrack-api/internal/handler/auth"
	customerHandler "github.com/pawtrack/pawtrack-api/internal/handler/customer"
	petHandler "github.com/pawtrack/pawtrack-api/internal/handler/pet"
	webhookHandler "github.com/pawtrack/pawtrack-api/internal/handler/webhook"
	"github.com/pawtrack/pawtrack-api/internal/middleware"
	"github.com/pawtrack/pawtrack-api/internal/repository/postgres"
	"github.com/pawtrack/pawtrack-api/internal/router"
	appointmentService "github.com/pawtrack/pawtrack-api/internal/service/appointment"
	authService "github.com/pawtrack/pawtrack-api/internal/service/auth"
	customerService "github.com/pawtrack/pawtrack-api/internal/service/customer"
	petService "github.com/pawtrack/pawtrack-api/internal/service/pet"
	webhookService "github.com/pawtrack/pawtrack-api/internal/service/webhook"
	"github.com/pawtrack/pawtrack-api/pkg/auth"
	"github.com/pawtrack/pawtrack-api/pkg/logger"
	"github.com/pawtrack/pawtrack-api/pkg/messaging"
	"github.com/pawtrack/pawtrack-api/pkg/messaging/redis"
	"github.com/pawtrack/pawtrack-api/pkg/metrics"
	"github.com/pawtrack/pawtrack-api/pkg/security"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.InfoLevel,
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
	})

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		appLogger.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	// The broker only accelerates retry pickup; the API stays up without it.
	var broker messaging.Broker
	if cfg.Redis.URL != "" {
		broker, err = redis.NewRedisBroker(redis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		}, &appLogger.ZL)
		if err != nil {
			appLogger.Error(err, "failed to connect to Redis, retry nudges disabled")
			broker = nil
		} else {
			defer broker.Close()
		}
	}

	var encryptor security.Encryptor
	if cfg.Webhook.SecretEncryptionKey != "" {
		key, err := hex.DecodeString(cfg.Webhook.SecretEncryptionKey)
		if err != nil {
			appLogger.Fatal(err, "invalid webhook secret encryption key")
		}
		encryptor, err = security.NewAESEncryptor(key)
		if err != nil {
			appLogger.Fatal(err, "failed to initialize secret encryption")
		}
	}

	baseRepo := postgres.NewBaseRepository(db)
	webhookRepo := postgres.NewWebhookRepository(baseRepo, encryptor)
	deliveryRepo := postgres.NewDeliveryRepository(baseRepo)
	customerRepo := postgres.NewCustomerRepository(baseRepo)
	petRepo := postgres.NewPetRepository(baseRepo)
	appointmentRepo := postgres.NewAppointmentRepository(baseRepo)
	userRepo := postgres.NewUserRepository(baseRepo)

	var emailSvc email.Service = email.NoopService{}
	if cfg.SMTP.Enabled {
		emailSvc = email.NewSMTPService(cfg.SMTP)
	}

	m := metrics.NewMetrics("pawtrack")

	healthChecker := webhookService.NewHealthChecker(
		webhookRepo,
		cfg.Webhook.FailureThreshold,
		emailSvc,
		cfg.Webhook.AlertEmail,
		appLogger,
		m,
	)
	webhookSvc := webhookService.NewService(
		webhookRepo,
		deliveryRepo,
		healthChecker,
		broker,
		webhookService.Config{
			Timeout:           cfg.Webhook.Timeout,
			DispatchQueueSize: cfg.Webhook.DispatchQueueSize,
			DispatchWorkers:   cfg.Webhook.DispatchWorkers,
			EndpointCacheTTL:  cfg.Webhook.EndpointCacheTTL,
		},
		appLogger,
		m,
	)

	customerSvc := customerService.NewService(customerRepo, webhookSvc)
	petSvc := petService.NewService(petRepo, customerRepo, webhookSvc)
	appointmentSvc := appointmentService.NewService(appointmentRepo, petRepo, webhookSvc)

	hasher := security.NewBcryptHasher(0)
	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)
	authSvc := authService.NewService(userRepo, hasher, jwtSvc)

	authMiddleware := middleware.NewAuthMiddleware(authSvc)

	h := handler.NewHandler()
	r := router.NewRouter(
		&appLogger.ZL,
		authMiddleware,
		authHandler.NewHandler(authSvc),
		webhookHandler.NewHandler(webhookSvc),
		customerHandler.NewHandler(customerSvc),
		petHandler.NewHandler(petSvc),
		appointmentHandler.NewHandler(appointmentSvc),
		h,
		router.Config{
			RateLimitRPS:  50,
			RateBurst:     100,
			CORSConfig:    middleware.DefaultCORSConfig(),
			MetricsPrefix: "pawtrack_api",
		},
	)
	r.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	webhookSvc.Start(ctx)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		appLogger.Info("starting API server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal(err, "failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Fatal(err, "server forced to shutdown")
	}

	// Stop accepting new deliveries, then let in-flight ones drain.
	cancel()
	webhookSvc.Stop()

	appLogger.Info("server exited properly")
}
