package paymentRepo

import (
	"time"

	"instructly/models"
)

// PaymentRepository is the persistence boundary of the payment ledger:
// BookingPayment, Transfer and Dispute records plus the append-only
// PaymentEvent trail. Lookups return (nil, nil) when no record exists.
type PaymentRepository interface {
	GetByBookingID(bookingID string) (*models.BookingPayment, error)
	FindByIntentID(intentID string) (*models.BookingPayment, error)
	Create(bp *models.BookingPayment) error
	Update(bp *models.BookingPayment) error

	GetTransfer(bookingID string) (*models.Transfer, error)
	FindTransferByGatewayID(gatewayTransferID string) (*models.Transfer, error)
	CreateTransfer(t *models.Transfer) error
	UpdateTransfer(t *models.Transfer) error

	GetOpenDispute(bookingID string) (*models.Dispute, error)
	GetDisputeByGatewayID(gatewayDisputeID string) (*models.Dispute, error)
	CreateDispute(d *models.Dispute) error
	UpdateDispute(d *models.Dispute) error

	AppendEvent(ev *models.PaymentEvent) error
	ListEvents(bookingID string, limit int64) ([]models.PaymentEvent, error)

	// Sweep queries for the background jobs.
	ListDueAuthorizations(now time.Time, limit int64) ([]models.BookingPayment, error)
	ListRetryableCaptures(now time.Time, maxAttempts int, limit int64) ([]models.BookingPayment, error)
	ListFailedReversals(limit int64) ([]models.Transfer, error)
	ListNeedsReview(limit int64) ([]models.BookingPayment, error)
}
