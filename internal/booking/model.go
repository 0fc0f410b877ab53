package booking

import (
	"strings"
	"time"
)

// Booking links a patient, a practitioner, a time slot and a payment status.
// Rows are created pending and mutated only through the Service; they are
// never deleted.
type Booking struct {
	ID               int64     `json:"id"`
	PractitionerID   int64     `json:"practitionerId"`
	Slot             time.Time `json:"slot"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Phone            string    `json:"phone"`
	Status           Status    `json:"status"`
	PaymentSessionID string    `json:"-"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// PractitionerSummary is the minimal practitioner shape exposed alongside a
// booking on the status endpoint.
type PractitionerSummary struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Title string `json:"title"`
}

// Detail is a booking joined with its practitioner summary.
type Detail struct {
	Booking
	Practitioner PractitionerSummary `json:"practitioner"`
}

// CreateRequest is the payload for creating a booking.
type CreateRequest struct {
	PractitionerID int64     `json:"practitionerId"`
	Slot           time.Time `json:"slot"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
}

// Validate checks required fields. Contact fields are opaque payload; only
// presence is enforced here.
func (r *CreateRequest) Validate() error {
	if r.PractitionerID <= 0 || r.Slot.IsZero() ||
		strings.TrimSpace(r.Name) == "" ||
		strings.TrimSpace(r.Email) == "" ||
		strings.TrimSpace(r.Phone) == "" {
		return ErrInvalidPayload
	}
	return nil
}
