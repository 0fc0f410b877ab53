package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/healguid/booking-api/internal/calendar"
	"github.com/healguid/booking-api/internal/observability/metrics"
	"github.com/healguid/booking-api/internal/practitioners"
	"github.com/healguid/booking-api/pkg/logging"
)

// Store is the persistence capability the orchestrator requires.
type Store interface {
	Create(ctx context.Context, req *CreateRequest) (*Booking, error)
	GetByID(ctx context.Context, id int64) (*Booking, error)
	GetDetail(ctx context.Context, id int64) (*Detail, error)
	FindByPaymentSession(ctx context.Context, sessionID string) (*Booking, error)
	SetPaymentSession(ctx context.Context, id int64, sessionID string) error
	Transition(ctx context.Context, id int64, to Status) (bool, error)
}

// PractitionerStore looks up practitioners.
type PractitionerStore interface {
	GetByID(ctx context.Context, id int64) (*practitioners.Practitioner, error)
}

// CalendarProvider fetches fresh availability for an external event type.
type CalendarProvider interface {
	FetchAvailability(ctx context.Context, eventTypeID string) (*calendar.Availability, error)
}

// CheckoutParams describes the payment session to open for a booking.
type CheckoutParams struct {
	BookingID        int64
	PractitionerID   int64
	Description      string
	AmountMinorUnits int64
	Currency         string
}

// CheckoutSession is the externally hosted payment flow opened for a booking.
type CheckoutSession struct {
	ID  string
	URL string
}

// PaymentGateway opens checkout sessions with the payment provider.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
}

// Service is the booking lifecycle orchestrator. All booking mutations go
// through it; handlers and the webhook processor never touch the store
// directly.
type Service struct {
	bookings      Store
	practitioners PractitionerStore
	calendar      CalendarProvider
	gateway       PaymentGateway
	logger        *logging.Logger
	metrics       *metrics.BookingMetrics

	// failClosed rejects bookings when the calendar provider is unreachable
	// instead of trusting the client-submitted slot.
	failClosed bool
	currency   string
}

// NewService wires the orchestrator with its collaborators.
func NewService(
	bookings Store,
	practitionerStore PractitionerStore,
	calendarProvider CalendarProvider,
	gateway PaymentGateway,
	logger *logging.Logger,
	m *metrics.BookingMetrics,
) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		bookings:      bookings,
		practitioners: practitionerStore,
		calendar:      calendarProvider,
		gateway:       gateway,
		logger:        logger,
		metrics:       m,
		currency:      "gbp",
	}
}

// WithSlotFailClosed sets the revalidation policy for unreachable providers.
func (s *Service) WithSlotFailClosed(enabled bool) *Service {
	s.failClosed = enabled
	return s
}

// WithCurrency overrides the checkout currency code.
func (s *Service) WithCurrency(code string) *Service {
	if code != "" {
		s.currency = code
	}
	return s
}

// Create validates the request, revalidates the slot against the calendar
// provider, persists a pending booking and opens a checkout session. It
// returns the checkout redirect URL.
//
// The booking row must exist before the session is requested so the session
// metadata can carry a stable booking id; the returned session id is written
// back afterwards for fallback correlation.
func (s *Service) Create(ctx context.Context, req *CreateRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	prac, err := s.practitioners.GetByID(ctx, req.PractitionerID)
	if err != nil {
		if errors.Is(err, practitioners.ErrNotFound) {
			return "", ErrPractitionerNotFound
		}
		return "", fmt.Errorf("booking: practitioner lookup: %w", err)
	}

	if err := s.revalidateSlot(ctx, prac.EventTypeID, req.Slot); err != nil {
		return "", err
	}

	b, err := s.bookings.Create(ctx, req)
	if err != nil {
		s.metrics.ObserveBookingCreated("error")
		return "", fmt.Errorf("booking: create: %w", err)
	}

	url, err := s.openCheckout(ctx, b, prac)
	if err != nil {
		s.compensateFailed(ctx, b.ID)
		s.metrics.ObserveBookingCreated("checkout_error")
		if errors.Is(err, ErrNoCheckoutURL) {
			return "", err
		}
		s.logger.Error("checkout session creation failed", "error", err, "booking_id", b.ID)
		return "", ErrCheckoutFailed
	}

	s.metrics.ObserveBookingCreated("pending")
	s.logger.Info("booking created", "booking_id", b.ID, "practitioner_id", prac.ID, "slot", b.Slot)
	return url, nil
}

func (s *Service) revalidateSlot(ctx context.Context, eventTypeID string, slot time.Time) error {
	avail, err := s.calendar.FetchAvailability(ctx, eventTypeID)
	if err != nil {
		if s.failClosed {
			s.logger.Warn("rejecting booking, calendar provider unreachable", "error", err)
			return ErrSlotUnverifiable
		}
		// Fail-open: trust the client-submitted slot.
		s.logger.Warn("skipping slot revalidation, calendar provider unreachable", "error", err)
		return nil
	}
	for _, candidate := range avail.Slots {
		if candidate.Start.Equal(slot) {
			return nil
		}
	}
	return ErrInvalidSlot
}

func (s *Service) openCheckout(ctx context.Context, b *Booking, prac *practitioners.Practitioner) (string, error) {
	session, err := s.gateway.CreateCheckoutSession(ctx, CheckoutParams{
		BookingID:        b.ID,
		PractitionerID:   prac.ID,
		Description:      "Consultation with " + prac.Name,
		AmountMinorUnits: prac.BasePricePence,
		Currency:         s.currency,
	})
	if err != nil {
		return "", err
	}
	if err := s.bookings.SetPaymentSession(ctx, b.ID, session.ID); err != nil {
		return "", err
	}
	if session.URL == "" {
		return "", ErrNoCheckoutURL
	}
	return session.URL, nil
}

// compensateFailed marks the booking failed after a partial multi-step write.
// It is a compensating action, not a rollback; the row is never deleted. The
// update is retried once, and a final failure is logged and counted but not
// escalated.
func (s *Service) compensateFailed(ctx context.Context, id int64) {
	// The write has to outlive the inbound request. A client hanging up is a
	// plausible reason the checkout step failed in the first place, and that
	// must not strand the row in pending.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			time.Sleep(200 * time.Millisecond)
		}
		if _, lastErr = s.bookings.Transition(ctx, id, StatusFailed); lastErr == nil {
			return
		}
	}
	s.metrics.ObserveCompensationFailure()
	s.logger.Error("failed to mark booking failed", "error", lastErr, "booking_id", id)
}

// ConfirmFromPayment resolves the target booking for a paid checkout session
// and transitions it to confirmed.
//
// Resolution is metadata-first: the booking id embedded at checkout-creation
// time. When metadata is absent or stale, the stored payment session id is
// the durable fallback. Returns ErrNotFound when neither path resolves.
//
// The transition itself is the atomic conditional write: an already confirmed
// booking is a no-op, and a booking cancelled in the meantime stays
// cancelled.
func (s *Service) ConfirmFromPayment(ctx context.Context, bookingID int64, sessionID string) error {
	b, err := s.resolveForPayment(ctx, bookingID, sessionID)
	if err != nil {
		return err
	}

	if b.Status == StatusConfirmed {
		s.logger.Info("booking already confirmed", "booking_id", b.ID)
		return nil
	}

	applied, err := s.bookings.Transition(ctx, b.ID, StatusConfirmed)
	if err != nil {
		return fmt.Errorf("booking: confirm: %w", err)
	}
	if !applied {
		// Lost a race or the booking reached a terminal state; either way
		// the current state stands.
		current, err := s.bookings.GetByID(ctx, b.ID)
		if err != nil {
			return fmt.Errorf("booking: confirm re-read: %w", err)
		}
		if current.Status != StatusConfirmed {
			s.logger.Warn("confirmation ignored for terminal booking",
				"booking_id", b.ID, "status", current.Status)
		}
		return nil
	}

	s.metrics.ObserveBookingConfirmed()
	s.logger.Info("booking confirmed", "booking_id", b.ID)
	return nil
}

func (s *Service) resolveForPayment(ctx context.Context, bookingID int64, sessionID string) (*Booking, error) {
	if bookingID > 0 {
		b, err := s.bookings.GetByID(ctx, bookingID)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		s.logger.Warn("metadata booking id did not resolve, trying session lookup",
			"booking_id", bookingID, "session_id", sessionID)
	}
	if sessionID == "" {
		return nil, ErrNotFound
	}
	b, err := s.bookings.FindByPaymentSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

// Cancel transitions a booking to cancelled. Cancelling an already cancelled
// booking returns the existing record unchanged with no write performed.
func (s *Service) Cancel(ctx context.Context, id int64) (*Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status == StatusCancelled {
		return b, nil
	}

	applied, err := s.bookings.Transition(ctx, id, StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("booking: cancel: %w", err)
	}
	if !applied {
		// A concurrent writer got there first; return whatever stands now.
		return s.bookings.GetByID(ctx, id)
	}

	s.metrics.ObserveBookingCancelled()
	s.logger.Info("booking cancelled", "booking_id", id)
	return s.bookings.GetByID(ctx, id)
}

// Get returns a booking joined with minimal practitioner display fields.
// Read-only; used by client-side pages polling while a booking is pending.
func (s *Service) Get(ctx context.Context, id int64) (*Detail, error) {
	return s.bookings.GetDetail(ctx, id)
}
