package practitioners

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/healguid/booking-api/internal/calendar"
	"github.com/healguid/booking-api/pkg/logging"
)

// Store looks up practitioners.
type Store interface {
	GetByID(ctx context.Context, id int64) (*Practitioner, error)
}

// Handler serves practitioner availability lookups.
type Handler struct {
	store    Store
	calendar calendar.Provider
	logger   *logging.Logger
}

// NewHandler creates a new practitioners handler.
func NewHandler(store Store, provider calendar.Provider, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, calendar: provider, logger: logger}
}

type availabilityResponse struct {
	PractitionerID int64           `json:"practitionerId"`
	Range          calendar.Range  `json:"range"`
	Timezone       string          `json:"timezone"`
	Slots          []calendar.Slot `json:"slots"`
}

// GetAvailability handles GET /practitioners/{id}/availability.
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "INVALID_PRACTITIONER_ID", "Invalid practitioner ID.")
		return
	}

	prac, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "PRACTITIONER_NOT_FOUND", "Practitioner not found.")
			return
		}
		h.logger.Error("practitioner lookup failed", "error", err, "practitioner_id", id)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Unexpected error.")
		return
	}

	avail, err := h.calendar.FetchAvailability(r.Context(), prac.EventTypeID)
	if err != nil {
		if errors.Is(err, calendar.ErrProviderUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "AVAILABILITY_UNAVAILABLE",
				"Unable to fetch availability from the calendar provider.")
			return
		}
		h.logger.Error("availability fetch failed", "error", err, "practitioner_id", id)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Unexpected error.")
		return
	}

	writeJSON(w, http.StatusOK, availabilityResponse{
		PractitionerID: prac.ID,
		Range:          avail.Range,
		Timezone:       avail.Timezone,
		Slots:          avail.Slots,
	})
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
