package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/velopay/gateway_api/internal/cache"
	"github.com/velopay/gateway_api/internal/config"
	"github.com/velopay/gateway_api/internal/database"
	"github.com/velopay/gateway_api/internal/handler"
	"github.com/velopay/gateway_api/internal/middleware"
	"github.com/velopay/gateway_api/internal/queue"
	"github.com/velopay/gateway_api/internal/repository"
	"github.com/velopay/gateway_api/internal/service"
	"github.com/velopay/gateway_api/internal/worker"
)

// main is the application entrypoint for the payment gateway API.
func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Setup logger
	setupLogger(cfg.Env)
	log.Info().Str("env", cfg.Env).Msg("starting gateway api")

	// 3. Connect database
	db, err := database.Connect(&cfg.DB)
	if err != nil {
		log.Error().Err(err).Msg("database connection failed")
		fmt.Fprintf(os.Stderr, "database connection failed: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	// 3a. Run migrations
	if err := runMigrations(db.DB); err != nil {
		log.Error().Err(err).Msg("migration failed")
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		os.Exit(1)
	}
	log.Info().Msg("migrations completed successfully")

	// 3b. Connect to Redis
	redisClient, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		log.Error().Err(err).Msg("redis connection failed")
		fmt.Fprintf(os.Stderr, "redis connection failed: %v\n", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected successfully")

	// 4. Initialize repositories
	merchantRepo := repository.NewMerchantRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	refundRepo := repository.NewRefundRepository(db)
	webhookRepo := repository.NewWebhookRepository(db)

	// 5. Initialize queue and caches
	jobs := queue.New(redisClient, cfg.Queue.Name, cfg.Queue.MaxAttempts)
	idempotencyCache := cache.NewIdempotencyCache(redisClient, cfg.Idempotency.TTL)

	// 6. Initialize services
	merchantSvc := service.NewMerchantService(merchantRepo)
	orderSvc := service.NewOrderService(orderRepo)
	settlementSvc := service.NewSettlementService(cfg.Settlement)
	webhookSvc := service.NewWebhookService(merchantRepo, webhookRepo, jobs, cfg.Webhook)
	paymentSvc := service.NewPaymentService(orderRepo, paymentRepo, settlementSvc, webhookSvc, jobs, idempotencyCache)
	refundSvc := service.NewRefundService(paymentRepo, refundRepo, webhookSvc, jobs)

	// 6a. Seed the test merchant outside production
	if cfg.Env != "production" {
		if err := merchantSvc.SeedTestMerchant(&cfg.TestSeed); err != nil {
			log.Warn().Err(err).Msg("test merchant seeding failed")
		}
	}

	// 7. Initialize handlers
	handlers := &Handlers{
		Health:  handler.NewHealthHandler(db, redisClient),
		Order:   handler.NewOrderHandler(orderSvc),
		Payment: handler.NewPaymentHandler(paymentSvc),
		Refund:  handler.NewRefundHandler(refundSvc),
		Webhook: handler.NewWebhookHandler(webhookSvc, merchantSvc),
	}

	// 8. Initialize middleware
	authMw := middleware.NewAuthMiddleware(merchantSvc)

	// 9. Setup router
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.LoggingMiddleware())
	setupRoutes(router, handlers, authMw)

	// 10. Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 11. Start workers
	go worker.NewSettlementWorker(
		jobs, paymentRepo, refundRepo, settlementSvc, webhookSvc,
		cfg.Worker.PoolSize, cfg.Queue.PollInterval,
	).Start(ctx)
	go worker.NewSchedulerWorker(jobs, cfg.Worker.SchedulerInterval).Start(ctx)

	// 12. Start HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// 13. Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// 14. Cancel context to stop workers
	cancel()

	// 15. Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited")
}

// Handlers groups all HTTP handlers used by the server.
type Handlers struct {
	Health  *handler.HealthHandler
	Order   *handler.OrderHandler
	Payment *handler.PaymentHandler
	Refund  *handler.RefundHandler
	Webhook *handler.WebhookHandler
}

// setupRoutes registers all routes.
func setupRoutes(router *gin.Engine, handlers *Handlers, authMiddleware *middleware.AuthMiddleware) {
	router.GET("/v1/health", handlers.Health.GetHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Merchant API (protected with API key + secret)
	v1 := router.Group("/v1")
	v1.Use(authMiddleware.Handle())
	{
		v1.POST("/orders", handlers.Order.CreateOrder)
		v1.GET("/orders/:orderId", handlers.Order.GetOrder)

		v1.POST("/payments", handlers.Payment.CreatePayment)
		v1.GET("/payments", handlers.Payment.ListPayments)
		v1.GET("/payments/:paymentId", handlers.Payment.GetPayment)
		v1.POST("/payments/:paymentId/capture", handlers.Payment.CapturePayment)
		v1.POST("/payments/:paymentId/refunds", handlers.Refund.CreateRefund)

		v1.GET("/refunds/:refundId", handlers.Refund.GetRefund)

		v1.GET("/webhooks/config", handlers.Webhook.GetConfig)
		v1.PUT("/webhooks/config", handlers.Webhook.UpdateConfig)
		v1.POST("/webhooks/config/regenerate-secret", handlers.Webhook.RegenerateSecret)
		v1.GET("/webhooks/deliveries", handlers.Webhook.ListDeliveries)
		v1.GET("/webhooks/deliveries/:deliveryId/attempts", handlers.Webhook.ListAttempts)
		v1.POST("/webhooks/deliveries/:deliveryId/retry", handlers.Webhook.RetryDelivery)
		v1.POST("/webhooks/test", handlers.Webhook.SendTest)
		v1.GET("/webhooks/queue/status", handlers.Webhook.GetQueueStatus)
	}
}

// runMigrations runs database migrations using golang-migrate.
func runMigrations(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migration instance: %w", err)
	}

	// Run migrations
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func setupLogger(env string) {
	if env == "production" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}
