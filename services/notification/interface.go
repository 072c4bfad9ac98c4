package notification

import (
	"context"

	"instructly/models"
)

// Notifier is the fire-and-forget notification collaborator. Delivery
// failures are the caller's to log; they never block a payment transition.
type Notifier interface {
	PaymentMethodRequired(ctx context.Context, booking *models.Booking, reason string) error
	CaptureFailed(ctx context.Context, booking *models.Booking, reason string) error
	DisputeOpened(ctx context.Context, booking *models.Booking) error
	DisputeClosed(ctx context.Context, booking *models.Booking, won bool) error
}
