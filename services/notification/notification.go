package notification

import (
	"context"

	"instructly/models"
	"instructly/utils"

	"go.uber.org/zap"
)

// DefaultNotifier records payment signals for the external messaging
// pipeline. Template rendering and push/email transport live outside this
// service; the signal itself is what matters here.
type DefaultNotifier struct{}

func NewDefaultNotifier() *DefaultNotifier {
	return &DefaultNotifier{}
}

func (n *DefaultNotifier) PaymentMethodRequired(ctx context.Context, booking *models.Booking, reason string) error {
	utils.GetLogger().Info("notify: payment method required",
		zap.String("bookingID", booking.ID),
		zap.String("studentID", booking.StudentID),
		zap.String("reason", reason),
	)
	return nil
}

func (n *DefaultNotifier) CaptureFailed(ctx context.Context, booking *models.Booking, reason string) error {
	utils.GetLogger().Info("notify: capture failed",
		zap.String("bookingID", booking.ID),
		zap.String("studentID", booking.StudentID),
		zap.String("reason", reason),
	)
	return nil
}

func (n *DefaultNotifier) DisputeOpened(ctx context.Context, booking *models.Booking) error {
	utils.GetLogger().Info("notify: dispute opened, payout on hold",
		zap.String("bookingID", booking.ID),
		zap.String("instructorID", booking.InstructorID),
	)
	return nil
}

func (n *DefaultNotifier) DisputeClosed(ctx context.Context, booking *models.Booking, won bool) error {
	utils.GetLogger().Info("notify: dispute closed",
		zap.String("bookingID", booking.ID),
		zap.Bool("won", won),
	)
	return nil
}
