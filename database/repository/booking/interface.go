package bookingRepo

import (
	"time"

	"instructly/models"
)

// BookingRepository is the payment core's read-only view of bookings. The
// scheduling layer owns the collection; this package only reads timing,
// identity and pricing inputs.
type BookingRepository interface {
	GetByID(bookingID string) (*models.Booking, error)

	// ListEnteringAuthWindow returns confirmed bookings whose lesson
	// starts within the scheduling horizon and that may need a hold.
	ListEnteringAuthWindow(now time.Time, horizon time.Duration, limit int64) ([]models.Booking, error)

	// ListCompletedUnsettled returns completed lessons still awaiting
	// capture.
	ListCompletedUnsettled(now time.Time, limit int64) ([]models.Booking, error)
}
