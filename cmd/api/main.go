package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/healguid/booking-api/internal/api/router"
	"github.com/healguid/booking-api/internal/booking"
	"github.com/healguid/booking-api/internal/calendar"
	appconfig "github.com/healguid/booking-api/internal/config"
	"github.com/healguid/booking-api/internal/events"
	"github.com/healguid/booking-api/internal/observability/metrics"
	"github.com/healguid/booking-api/internal/payments"
	"github.com/healguid/booking-api/internal/practitioners"
	"github.com/healguid/booking-api/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting booking API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"slot_fail_closed", cfg.SlotFailClosed,
	)

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create pgx pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("database unreachable", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	bookingMetrics := metrics.NewBookingMetrics(registry)

	bookingRepo := booking.NewRepository(pool)
	practitionerRepo := practitioners.NewRepository(pool)
	processedStore := events.NewProcessedStore(pool)

	calClient := calendar.NewClient(cfg.CalAPIKey, logger).
		WithTimezone(cfg.CalTimezone).
		WithWindow(cfg.CalWindowDays).
		WithTimeout(cfg.CalRequestTimeout)
	if cfg.CalBaseURL != "" {
		calClient.WithBaseURL(cfg.CalBaseURL)
	}

	// The browse endpoint reads through a short-lived cache; booking
	// revalidation always queries the provider directly.
	var browseAvailability calendar.Provider = calClient
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		browseAvailability = calendar.NewCache(calClient, redisClient, cfg.AvailabilityCacheTTL, logger)
	}

	checkout := payments.NewCheckoutService(cfg.StripeSecretKey, cfg.PublicBaseURL, logger, bookingMetrics)
	if cfg.StripeBaseURL != "" {
		checkout.WithBaseURL(cfg.StripeBaseURL)
	}

	bookingSvc := booking.NewService(bookingRepo, practitionerRepo, calClient, checkout, logger, bookingMetrics).
		WithSlotFailClosed(cfg.SlotFailClosed).
		WithCurrency(cfg.CurrencyCode)

	bookingsHandler := booking.NewHandler(bookingSvc, logger)
	practitionersHandler := practitioners.NewHandler(practitionerRepo, browseAvailability, logger)
	webhookHandler := payments.NewWebhookHandler(cfg.StripeWebhookSecret, bookingSvc, processedStore, logger, bookingMetrics)

	r := router.New(&router.Config{
		Logger:               logger,
		BookingsHandler:      bookingsHandler,
		PractitionersHandler: practitionersHandler,
		PaymentWebhook:       webhookHandler,
		MetricsHandler:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins:   cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
