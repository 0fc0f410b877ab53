// Package payments holds the Stripe-facing pieces of the booking flow:
// checkout session creation and webhook event processing.
package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/healguid/booking-api/internal/booking"
	"github.com/healguid/booking-api/internal/observability/metrics"
	"github.com/healguid/booking-api/pkg/logging"
)

var stripeTracer = otel.Tracer("healguid.internal.payments.stripe")

const checkoutRetryDelay = 500 * time.Millisecond

// CheckoutService creates Stripe Checkout Sessions for bookings. It embeds
// the booking id as session metadata so the resulting payment event can be
// correlated back, and implements booking.PaymentGateway.
type CheckoutService struct {
	secretKey     string
	publicBaseURL string
	baseURL       string
	apiVersion    string
	httpClient    *http.Client
	logger        *logging.Logger
	metrics       *metrics.BookingMetrics
}

// NewCheckoutService creates a new Stripe checkout service. publicBaseURL is
// the app origin used to build success/cancel redirect targets.
func NewCheckoutService(secretKey, publicBaseURL string, logger *logging.Logger, m *metrics.BookingMetrics) *CheckoutService {
	if logger == nil {
		logger = logging.Default()
	}
	return &CheckoutService{
		secretKey:     secretKey,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		baseURL:       "https://api.stripe.com",
		apiVersion:    "2024-12-18.acacia",
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		logger:        logger,
		metrics:       m,
	}
}

// WithBaseURL overrides the Stripe API base URL (for testing).
func (s *CheckoutService) WithBaseURL(baseURL string) *CheckoutService {
	if baseURL != "" {
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
	return s
}

// CreateCheckoutSession opens a hosted payment flow for a booking. The
// request is retried once with a short delay on network errors and 5xx
// responses, under a single idempotency key.
func (s *CheckoutService) CreateCheckoutSession(ctx context.Context, params booking.CheckoutParams) (*booking.CheckoutSession, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.create_checkout_session")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("healguid.booking_id", params.BookingID),
		attribute.Int64("healguid.amount_minor_units", params.AmountMinorUnits),
	)
	start := time.Now()
	defer func() {
		s.metrics.ObserveCheckoutLatency(time.Since(start).Seconds())
	}()

	bookingID := strconv.FormatInt(params.BookingID, 10)

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("line_items[0][price_data][currency]", params.Currency)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(params.AmountMinorUnits, 10))
	form.Set("line_items[0][price_data][product_data][name]", params.Description)
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", fmt.Sprintf("%s/booking/success?bookingId=%s", s.publicBaseURL, bookingID))
	form.Set("cancel_url", fmt.Sprintf("%s/book/%d?cancelled=1", s.publicBaseURL, params.PractitionerID))

	// Correlation metadata carried through to the payment event.
	form.Set("metadata[bookingId]", bookingID)

	// One key across both attempts, so a retried request dedupes on the
	// Stripe side instead of opening a second session.
	idempotencyKey := uuid.NewString()

	var session *booking.CheckoutSession
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(checkoutRetryDelay):
			case <-ctx.Done():
				return nil, fmt.Errorf("payments: stripe http: %w", ctx.Err())
			}
		}
		var retryable bool
		session, retryable, lastErr = s.postSession(ctx, form, idempotencyKey)
		if lastErr == nil {
			s.logger.Info("stripe checkout session created", "booking_id", params.BookingID, "session_id", session.ID)
			return session, nil
		}
		if !retryable {
			break
		}
	}
	return nil, lastErr
}

func (s *CheckoutService) postSession(ctx context.Context, form url.Values, idempotencyKey string) (session *booking.CheckoutSession, retryable bool, err error) {
	apiURL := s.baseURL + "/v1/checkout/sessions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, false, fmt.Errorf("payments: stripe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Stripe-Version", s.apiVersion)
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("payments: stripe http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return nil, resp.StatusCode >= http.StatusInternalServerError,
			fmt.Errorf("payments: stripe api status %d: %s", resp.StatusCode, string(body))
	}

	var parsed stripeCheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, false, fmt.Errorf("payments: stripe decode: %w", err)
	}
	if parsed.ID == "" {
		return nil, false, fmt.Errorf("payments: stripe response missing session id")
	}

	return &booking.CheckoutSession{
		ID:  parsed.ID,
		URL: parsed.URL,
	}, false, nil
}

// stripeCheckoutSession is the subset of Stripe's Checkout Session we need.
type stripeCheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}
