package payment

import (
	"context"
	"fmt"
	"time"

	bookingRepo "instructly/database/repository/booking"
	paymentRepo "instructly/database/repository/payment"
	"instructly/models"
	"instructly/services/credit"
	"instructly/services/notification"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Settings are the operational knobs of the settlement engine.
type Settings struct {
	// AuthHorizon is how far ahead of the lesson start a hold may be
	// created; earlier attempts are rescheduled.
	AuthHorizon time.Duration
	// AuthMaxAttempts caps transient-failure retries before the booking
	// degrades to payment-method-required.
	AuthMaxAttempts int
	// AuthBackoffBase is the first retry delay; it doubles per attempt.
	AuthBackoffBase time.Duration
	// CaptureMaxAttempts caps capture retries before manual review.
	CaptureMaxAttempts int
	// CaptureBackoffBase is the first capture-retry delay; it doubles
	// per attempt.
	CaptureBackoffBase time.Duration
	// LockWait bounds how long any operation waits for the booking lock.
	LockWait time.Duration
	// SweepBatchSize limits how many bookings one sweep pass touches.
	SweepBatchSize int64
}

// DefaultPaymentService implements PaymentService. Every state-mutating
// path acquires the booking lock first, re-reads the ledger, then mutates;
// arrival order of webhooks, API calls and sweeps is never assumed.
type DefaultPaymentService struct {
	Repo     paymentRepo.PaymentRepository
	Bookings bookingRepo.BookingRepository
	Lock     BookingLock
	Gateway  Gateway
	Credits  credit.CreditLedger
	Notifier notification.Notifier
	Pricing  models.PricingConfig
	Settings Settings
	Logger   *zap.Logger
}

func NewDefaultPaymentService(
	repo paymentRepo.PaymentRepository,
	bookings bookingRepo.BookingRepository,
	lock BookingLock,
	gateway Gateway,
	credits credit.CreditLedger,
	notifier notification.Notifier,
	pricing models.PricingConfig,
	settings Settings,
	logger *zap.Logger,
) *DefaultPaymentService {
	if settings.SweepBatchSize == 0 {
		settings.SweepBatchSize = 200
	}
	return &DefaultPaymentService{
		Repo:     repo,
		Bookings: bookings,
		Lock:     lock,
		Gateway:  gateway,
		Credits:  credits,
		Notifier: notifier,
		Pricing:  pricing,
		Settings: settings,
		Logger:   logger,
	}
}

// GetPaymentStatus returns the ledger record for a booking. Reads do not
// take the booking lock; dashboards tolerate eventual consistency.
func (s *DefaultPaymentService) GetPaymentStatus(ctx context.Context, bookingID string) (*models.BookingPayment, error) {
	bp, err := s.Repo.GetByBookingID(bookingID)
	if err != nil {
		return nil, err
	}
	if bp == nil {
		return nil, ErrBookingNotFound
	}
	return bp, nil
}

// PaymentEvents returns the booking's append-only audit trail.
func (s *DefaultPaymentService) PaymentEvents(ctx context.Context, bookingID string) ([]models.PaymentEvent, error) {
	return s.Repo.ListEvents(bookingID, 0)
}

// ListNeedsReview returns bookings flagged after exhausted capture retries.
func (s *DefaultPaymentService) ListNeedsReview(ctx context.Context) ([]models.BookingPayment, error) {
	return s.Repo.ListNeedsReview(s.Settings.SweepBatchSize)
}

// ensurePayment loads or lazily creates the ledger record for a booking.
// Must be called under the booking lock.
func (s *DefaultPaymentService) ensurePayment(b *models.Booking) (*models.BookingPayment, error) {
	bp, err := s.Repo.GetByBookingID(b.ID)
	if err != nil {
		return nil, err
	}
	if bp != nil {
		return bp, nil
	}
	bp = &models.BookingPayment{
		BookingID:     b.ID,
		StudentID:     b.StudentID,
		InstructorID:  b.InstructorID,
		PaymentStatus: models.PaymentStatusPendingScheduling,
	}
	if err := s.Repo.Create(bp); err != nil {
		return nil, err
	}
	return bp, nil
}

// transition persists a status change and appends exactly one audit event.
// The status write is the source of truth; the event write is best-effort
// observability and its failure never aborts the transition.
func (s *DefaultPaymentService) transition(bp *models.BookingPayment, status models.PaymentStatus, eventType string, data map[string]interface{}) error {
	bp.PaymentStatus = status
	if err := s.Repo.Update(bp); err != nil {
		return fmt.Errorf("failed to transition booking %s to %s: %w", bp.BookingID, status, err)
	}
	s.appendEvent(bp.BookingID, eventType, data)
	return nil
}

// appendEvent writes one audit-trail entry, logging instead of failing.
func (s *DefaultPaymentService) appendEvent(bookingID, eventType string, data map[string]interface{}) {
	ev := &models.PaymentEvent{
		ID:        uuid.New().String(),
		BookingID: bookingID,
		EventType: eventType,
		EventData: data,
		CreatedAt: time.Now(),
	}
	if err := s.Repo.AppendEvent(ev); err != nil {
		s.Logger.Error("failed to append payment event",
			zap.String("bookingID", bookingID),
			zap.String("eventType", eventType),
			zap.Error(err),
		)
	}
}

// acquireLock wraps the booking lock with the configured wait. Redis errors
// count as not-held: convergence is delayed, never corrupted.
func (s *DefaultPaymentService) acquireLock(ctx context.Context, bookingID string) (func(), bool) {
	release, ok, err := s.Lock.Acquire(ctx, bookingID, s.Settings.LockWait)
	if err != nil {
		s.Logger.Warn("booking lock acquisition error",
			zap.String("bookingID", bookingID),
			zap.Error(err),
		)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return release, true
}

func (s *DefaultPaymentService) getBooking(bookingID string) (*models.Booking, error) {
	b, err := s.Bookings.GetByID(bookingID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrBookingNotFound
	}
	return b, nil
}
