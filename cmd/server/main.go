package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"coursegate/internal/config"
	"coursegate/internal/database"
	"coursegate/internal/dedupe"
	"coursegate/internal/handlers"
	"coursegate/internal/logger"
	"coursegate/internal/payment"
	"coursegate/internal/repository"
	"coursegate/internal/security"
	"coursegate/internal/service"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

// webhookDedupeTTL covers the processor's redelivery window
const webhookDedupeTTL = 72 * time.Hour

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Initialize database with config (supports sqlite, postgres, mysql)
	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		log.Fatal("failed to initialize database", "error", err)
	}
	defer db.Close()
	log.Info("database connection established", "type", cfg.DatabaseType)

	applied, err := db.RunMigrations(context.Background())
	if err != nil {
		log.Fatal("failed to run migrations", "error", err)
	}
	log.Info("migrations completed", "applied", applied)

	tokens, err := security.NewTokenIssuer(cfg.JWTSecret, cfg.TokenDuration)
	if err != nil {
		log.Fatal("invalid token configuration", "error", err)
	}

	processor, err := payment.NewClient(cfg.Payment, log)
	if err != nil {
		log.Fatal("failed to configure payment processor", "error", err)
	}

	emailService, err := service.NewEmailService(context.Background(), cfg.Email, cfg.AppBaseURL, log)
	if err != nil {
		log.Fatal("failed to configure email", "error", err)
	}

	var deduper service.EventDeduper
	if cfg.RedisAddr != "" {
		redisDeduper, err := dedupe.NewRedis(cfg.RedisAddr, cfg.RedisPassword, webhookDedupeTTL, log)
		if err != nil {
			log.Fatal("failed to connect to redis", "error", err)
		}
		defer redisDeduper.Close()
		deduper = redisDeduper
	} else {
		log.Warn("REDIS_ADDR not set, webhook dedupe is per-process")
		deduper = dedupe.NewMemory(webhookDedupeTTL)
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	purchaseRepo := repository.NewPurchaseRepository(db)
	progressRepo := repository.NewProgressRepository(db)

	// Initialize services
	accountService := service.NewAccountService(userRepo, tokens, log)
	accessService := service.NewAccessService(db, purchaseRepo, courseRepo, accountService, emailService, log)
	progressService := service.NewProgressService(progressRepo, courseRepo, accessService, log)
	checkoutService := service.NewCheckoutService(accessService, processor, deduper, cfg.Payment.Timeout, log)

	loginLimiter := security.NewRateLimiter(10, time.Minute)
	defer loginLimiter.Stop()
	guestLimiter := security.NewRateLimiter(5, time.Minute)
	defer guestLimiter.Stop()

	router := &handlers.Router{
		Middleware:   handlers.NewMiddleware(accountService, log),
		Auth:         handlers.NewAuthHandler(accountService, log),
		Checkout:     handlers.NewCheckoutHandler(checkoutService, security.NewWebhookVerifier(cfg.Payment.WebhookSecret, security.DefaultWebhookTolerance), log),
		Progress:     handlers.NewProgressHandler(progressService, log),
		Access:       handlers.NewAccessHandler(accessService, log),
		Admin:        handlers.NewAdminHandler(accessService, log),
		Health:       handlers.NewHealthHandler(db, version, log),
		LoginLimiter: loginLimiter,
		GuestLimiter: guestLimiter,
	}

	// Fail abandoned checkouts on a schedule
	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.SweepSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := accessService.ExpireStalePending(ctx, cfg.PendingPurchaseTTL); err != nil {
			log.Error("stale purchase sweep failed", "error", err)
		}
	}); err != nil {
		log.Fatal("invalid sweep schedule", "schedule", cfg.SweepSchedule, "error", err)
	}
	sweeper.Start()

	addr := ":" + cfg.ServerPort
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Handler(log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Payment.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server starting", "addr", addr, "version", version)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("server shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	<-sweeper.Stop().Done()
	accessService.Wait()
}
