// Package router assembles the HTTP surface of the booking API.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/healguid/booking-api/internal/booking"
	httpmiddleware "github.com/healguid/booking-api/internal/http/middleware"
	"github.com/healguid/booking-api/internal/payments"
	"github.com/healguid/booking-api/internal/practitioners"
	"github.com/healguid/booking-api/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger               *logging.Logger
	BookingsHandler      *booking.Handler
	PractitionersHandler *practitioners.Handler
	PaymentWebhook       *payments.WebhookHandler
	MetricsHandler       http.Handler
	CORSAllowedOrigins   []string
}

// New creates a new Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/bookings", func(r chi.Router) {
		r.Post("/", cfg.BookingsHandler.Create)
		r.Get("/{id}", cfg.BookingsHandler.Get)
		r.Post("/{id}/cancel", cfg.BookingsHandler.Cancel)
	})

	r.Get("/practitioners/{id}/availability", cfg.PractitionersHandler.GetAvailability)

	if cfg.PaymentWebhook != nil {
		r.Post("/webhooks/payment", cfg.PaymentWebhook.Handle)
	}

	return r
}
