// File: instructly/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"instructly/config"
	"instructly/cron"
	"instructly/database"
	bookingRepo "instructly/database/repository/booking"
	paymentRepo "instructly/database/repository/payment"
	"instructly/handlers"
	"instructly/middleware"
	"instructly/routes"
	"instructly/services/credit"
	"instructly/services/notification"
	"instructly/services/payment"
	"instructly/utils"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v76"
)

func main() {
	config.LoadConfig()
	logger := utils.GetLogger()

	database.InitDB()
	utils.InitRedis()

	// Create the Gin router.
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.ErrorHandler())
	router.Use(gin.Logger())
	router.Use(middleware.RateLimitMiddleware())
	router.Use(routes.CORSMiddleware())
	stripe.Key = config.AppConfig.StripeKey

	// repositories.
	payRepo := paymentRepo.NewMongoPaymentRepo()
	bkRepo := bookingRepo.NewMongoBookingRepo()

	// collaborators.
	creditLedger := credit.NewMongoCreditLedger()
	notifier := notification.NewDefaultNotifier()
	gateway := payment.NewStripeGateway(config.AppConfig.StripeWebhookSecret)
	bookingLock := payment.NewRedisBookingLock(
		utils.GetLockClient(),
		time.Duration(config.AppConfig.LockTTLMs)*time.Millisecond,
	)

	// settlement engine.
	paymentService := payment.NewDefaultPaymentService(
		payRepo,
		bkRepo,
		bookingLock,
		gateway,
		creditLedger,
		notifier,
		config.Pricing(),
		payment.Settings{
			AuthHorizon:        time.Duration(config.AppConfig.AuthHorizonHours) * time.Hour,
			AuthMaxAttempts:    config.AppConfig.AuthMaxAttempts,
			AuthBackoffBase:    time.Duration(config.AppConfig.AuthBackoffBaseMinutes) * time.Minute,
			CaptureMaxAttempts: config.AppConfig.CaptureMaxAttempts,
			CaptureBackoffBase: time.Duration(config.AppConfig.CaptureBackoffBaseMinutes) * time.Minute,
			LockWait:           time.Duration(config.AppConfig.LockWaitMs) * time.Millisecond,
		},
		logger,
	)

	// Background sweeps.
	cron.InitSettlementWorker(paymentService)

	// Handlers and routes.
	paymentHandler := handlers.NewPaymentHandler(paymentService)
	webhookHandler := handlers.NewWebhookHandler(gateway, paymentService)
	routes.RegisterPaymentRoutes(router, paymentHandler)
	routes.RegisterWebhookRoutes(router, webhookHandler)

	// Start the HTTP server.
	port := config.AppConfig.AppPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}

	logger.Sugar().Infof("Starting server on %s...", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalf("main: server failed to start: %v", err)
		}
	}()

	// Wait for an OS signal to gracefully shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Sugar().Info("main: server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Sugar().Fatalf("main: server forced to shutdown: %v", err)
	}

	logger.Sugar().Info("main: server stopped gracefully")
}
