package practitioners

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a practitioner is not found.
var ErrNotFound = errors.New("practitioner not found")

// Practitioner is a bookable professional. Rows are owned by an external
// onboarding process and are read-only here.
type Practitioner struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Title       string `json:"title"`
	Specialty   string `json:"specialty"`
	Description string `json:"description"`
	// EventTypeID is the opaque correlation id used to query the calendar
	// provider for this practitioner's availability.
	EventTypeID    string    `json:"-"`
	BasePricePence int64     `json:"basePricePence"`
	CreatedAt      time.Time `json:"createdAt"`
}
