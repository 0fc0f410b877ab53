package booking

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/healguid/booking-api/pkg/logging"
)

// Handler exposes the booking lifecycle over HTTP.
type Handler struct {
	svc    *Service
	logger *logging.Logger
}

// NewHandler creates a new bookings handler.
func NewHandler(svc *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

type createResponse struct {
	CheckoutURL string `json:"checkoutUrl"`
}

// Create handles POST /bookings.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_PAYLOAD",
			"practitionerId, slot, name, email and phone are required.")
		return
	}

	checkoutURL, err := h.svc.Create(r.Context(), &req)
	if err != nil {
		h.writeCreateError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createResponse{CheckoutURL: checkoutURL})
}

func (h *Handler) writeCreateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidPayload):
		writeError(w, http.StatusBadRequest, "INVALID_PAYLOAD",
			"practitionerId, slot, name, email and phone are required.")
	case errors.Is(err, ErrInvalidSlot):
		writeError(w, http.StatusBadRequest, "INVALID_SLOT",
			"Selected slot is no longer available.")
	case errors.Is(err, ErrSlotUnverifiable):
		writeError(w, http.StatusServiceUnavailable, "SLOT_VALIDATION_UNAVAILABLE",
			"Slot availability could not be verified. Please try again.")
	case errors.Is(err, ErrPractitionerNotFound):
		writeError(w, http.StatusNotFound, "PRACTITIONER_NOT_FOUND",
			"Practitioner not found.")
	case errors.Is(err, ErrNoCheckoutURL):
		writeError(w, http.StatusInternalServerError, "STRIPE_SESSION_ERROR",
			"Payment session was created without a redirect URL.")
	default:
		h.logger.Error("booking creation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "BOOKING_CREATION_ERROR",
			"Unable to create booking and payment session.")
	}
}

// Cancel handles POST /bookings/{id}/cancel. Idempotent: cancelling an
// already cancelled booking returns the existing record unchanged.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	b, err := h.svc.Cancel(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "BOOKING_NOT_FOUND", "Booking not found.")
			return
		}
		h.logger.Error("booking cancellation failed", "error", err, "booking_id", id)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to cancel booking.")
		return
	}

	writeJSON(w, http.StatusOK, b)
}

// Get handles GET /bookings/{id}. Read-only status lookup used by
// client-side pages polling while a booking is pending.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	detail, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "BOOKING_NOT_FOUND", "Booking not found.")
			return
		}
		h.logger.Error("booking lookup failed", "error", err, "booking_id", id)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error.")
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "INVALID_BOOKING_ID", "Invalid booking ID.")
		return 0, false
	}
	return id, true
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}
