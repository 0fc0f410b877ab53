package payments

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	stripe "github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/webhook"

	"github.com/healguid/booking-api/internal/booking"
	"github.com/healguid/booking-api/internal/observability/metrics"
	"github.com/healguid/booking-api/pkg/logging"
)

const providerStripe = "stripe"

// eventCheckoutCompleted is the only event kind that confirms a booking.
const eventCheckoutCompleted = "checkout.session.completed"

// bookingConfirmer applies a verified payment outcome to a booking.
type bookingConfirmer interface {
	ConfirmFromPayment(ctx context.Context, bookingID int64, sessionID string) error
}

// processedLedger claims event ids before any mutation is attempted.
type processedLedger interface {
	MarkProcessed(ctx context.Context, provider, eventID, eventType string) (bool, error)
}

// WebhookHandler processes signed Stripe webhook deliveries. Delivery is
// at-least-once and unordered; the ledger plus the orchestrator's conditional
// update make processing exactly-once-effective.
type WebhookHandler struct {
	webhookSecret string
	bookings      bookingConfirmer
	ledger        processedLedger
	logger        *logging.Logger
	metrics       *metrics.BookingMetrics
}

// NewWebhookHandler creates a handler for Stripe payment webhooks.
func NewWebhookHandler(webhookSecret string, bookings bookingConfirmer, ledger processedLedger, logger *logging.Logger, m *metrics.BookingMetrics) *WebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		webhookSecret: webhookSecret,
		bookings:      bookings,
		ledger:        ledger,
		logger:        logger,
		metrics:       m,
	}
}

// Handle processes POST /webhooks/payment.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeWebhookError(w, http.StatusBadRequest, "invalid body")
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" || h.webhookSecret == "" {
		writeWebhookError(w, http.StatusBadRequest, "missing signature or secret")
		return
	}

	// Verification uses the raw, unparsed body. Any failure is fatal for
	// this delivery: no partial processing, no mutation. Only the signature
	// decides rejection; accounts pin their own API version, so a version
	// mismatch on a correctly signed event must not drop the delivery.
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, h.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		h.metrics.ObserveWebhookEvent("unknown", "invalid_signature")
		writeWebhookError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	eventType := string(event.Type)

	// Claim the event id before touching any booking. Concurrent
	// redeliveries race on the ledger's primary key; the loser
	// short-circuits with success since the winner produces the effect.
	inserted, err := h.ledger.MarkProcessed(r.Context(), providerStripe, event.ID, eventType)
	if err != nil {
		h.logger.Error("webhook ledger write failed", "error", err, "event_id", event.ID)
		h.metrics.ObserveWebhookEvent(eventType, "ledger_error")
		writeWebhookError(w, http.StatusInternalServerError, "webhook idempotency failure")
		return
	}
	if !inserted {
		h.logger.Info("duplicate webhook event, skipping", "event_id", event.ID, "type", eventType)
		h.metrics.ObserveWebhookEvent(eventType, "duplicate")
		writeJSON(w, http.StatusOK, map[string]any{"received": true, "duplicated": true})
		return
	}

	if eventType != eventCheckoutCompleted {
		h.metrics.ObserveWebhookEvent(eventType, "ignored")
		writeJSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		// The signature checked out, so this payload will never parse any
		// better on redelivery. Acknowledge and move on.
		h.logger.Error("failed to decode checkout session", "error", err, "event_id", event.ID)
		h.metrics.ObserveWebhookEvent(eventType, "malformed")
		writeJSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}

	if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		h.logger.Info("checkout session completed but not paid",
			"event_id", event.ID, "payment_status", session.PaymentStatus)
		h.metrics.ObserveWebhookEvent(eventType, "unpaid")
		writeJSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}

	var bookingID int64
	if raw := session.Metadata["bookingId"]; raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			bookingID = parsed
		} else {
			h.logger.Warn("unparseable bookingId metadata", "value", raw, "event_id", event.ID)
		}
	}

	if err := h.bookings.ConfirmFromPayment(r.Context(), bookingID, session.ID); err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			// A booking that will never be found: acknowledge rather than
			// trigger the provider's retry machinery.
			h.logger.Error("no booking for paid session",
				"event_id", event.ID, "booking_id", bookingID, "session_id", session.ID)
			h.metrics.ObserveWebhookEvent(eventType, "unmatched")
			writeJSON(w, http.StatusOK, map[string]any{"received": true})
			return
		}
		h.logger.Error("failed to confirm booking", "error", err, "event_id", event.ID)
		h.metrics.ObserveWebhookEvent(eventType, "error")
		writeWebhookError(w, http.StatusInternalServerError, "failed to apply payment event")
		return
	}

	h.metrics.ObserveWebhookEvent(eventType, "confirmed")
	writeJSON(w, http.StatusOK, map[string]any{"received": true})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeWebhookError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
