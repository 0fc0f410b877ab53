package booking

import "errors"

var (
	// ErrInvalidPayload is returned when a required field is missing.
	ErrInvalidPayload = errors.New("practitionerId, slot, name, email and phone are required")

	// ErrInvalidSlot is returned when the requested slot is not in the
	// provider's fresh availability set.
	ErrInvalidSlot = errors.New("selected slot is no longer available")

	// ErrSlotUnverifiable is returned under the fail-closed policy when the
	// calendar provider cannot be reached to revalidate the slot.
	ErrSlotUnverifiable = errors.New("slot availability could not be verified")

	// ErrPractitionerNotFound is returned when the practitioner does not exist.
	ErrPractitionerNotFound = errors.New("practitioner not found")

	// ErrNotFound is returned when a booking is not found.
	ErrNotFound = errors.New("booking not found")

	// ErrNoCheckoutURL is returned when the payment session was created
	// without a usable redirect target.
	ErrNoCheckoutURL = errors.New("payment session has no redirect url")

	// ErrCheckoutFailed is returned when the checkout session could not be
	// created; the booking has been marked failed.
	ErrCheckoutFailed = errors.New("unable to create booking payment session")

	// ErrInvalidTransition is returned when a status change is not allowed
	// by the transition table.
	ErrInvalidTransition = errors.New("invalid booking status transition")
)
