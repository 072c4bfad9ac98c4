package payment

import (
	"context"
	"time"

	"instructly/models"

	"go.uber.org/zap"
)

// AuthorizationSweep walks bookings entering the scheduling horizon and
// payments whose retry time has arrived, creating or retrying holds. One
// booking's failure never aborts the pass; lock-busy bookings are simply
// left for the next sweep.
func (s *DefaultPaymentService) AuthorizationSweep(ctx context.Context) error {
	now := time.Now()

	entering, err := s.Bookings.ListEnteringAuthWindow(now, s.Settings.AuthHorizon, s.Settings.SweepBatchSize)
	if err != nil {
		return err
	}
	for _, b := range entering {
		// Declined and in-flight bookings are not retried automatically:
		// only pending or scheduled records belong to the sweep.
		bp, err := s.Repo.GetByBookingID(b.ID)
		if err != nil {
			s.Logger.Error("sweep failed to read payment record", zap.String("bookingID", b.ID), zap.Error(err))
			continue
		}
		if bp != nil && bp.PaymentStatus != models.PaymentStatusPendingScheduling && bp.PaymentStatus != models.PaymentStatusScheduled {
			continue
		}
		// Scheduled records carry their own retry time; the due list below
		// picks them up, so the backoff is not short-circuited here.
		if bp != nil && bp.PaymentStatus == models.PaymentStatusScheduled &&
			bp.AuthScheduledFor != nil && bp.AuthScheduledFor.After(now) {
			continue
		}
		s.sweepOne(ctx, b.ID, "authorize", func() error {
			_, err := s.CreateOrRetryAuthorization(ctx, b.ID)
			return err
		})
	}

	due, err := s.Repo.ListDueAuthorizations(now, s.Settings.SweepBatchSize)
	if err != nil {
		return err
	}
	for _, bp := range due {
		s.sweepOne(ctx, bp.BookingID, "authorize_retry", func() error {
			_, err := s.CreateOrRetryAuthorization(ctx, bp.BookingID)
			return err
		})
	}
	return nil
}

// CaptureSweep captures completed lessons and retries failed captures still
// under the attempt cap. Settled bookings short-circuit inside Capture, so
// re-listing them is harmless.
func (s *DefaultPaymentService) CaptureSweep(ctx context.Context) error {
	now := time.Now()

	completed, err := s.Bookings.ListCompletedUnsettled(now, s.Settings.SweepBatchSize)
	if err != nil {
		return err
	}
	for _, b := range completed {
		// A payment inside its capture backoff waits it out; the
		// retryable list below owns its pickup.
		bp, err := s.Repo.GetByBookingID(b.ID)
		if err != nil {
			s.Logger.Error("sweep failed to read payment record", zap.String("bookingID", b.ID), zap.Error(err))
			continue
		}
		if bp != nil && bp.CaptureRetryAt != nil && bp.CaptureRetryAt.After(now) {
			continue
		}
		// Exhausted retries wait on the operator, not on the sweep.
		if bp != nil && bp.NeedsReview {
			continue
		}
		s.sweepOne(ctx, b.ID, "capture", func() error {
			_, err := s.Capture(ctx, b.ID, "lesson_completed")
			return err
		})
	}

	retryable, err := s.Repo.ListRetryableCaptures(now, s.Settings.CaptureMaxAttempts, s.Settings.SweepBatchSize)
	if err != nil {
		return err
	}
	for _, bp := range retryable {
		s.sweepOne(ctx, bp.BookingID, "capture_retry", func() error {
			_, err := s.Capture(ctx, bp.BookingID, "capture_retry")
			return err
		})
	}
	return nil
}

// ReversalRetrySweep retries transfer reversals that failed during dispute
// handling. Each booking is re-locked and its transfer re-read, so a
// reversal that succeeded elsewhere in the meantime is left alone.
func (s *DefaultPaymentService) ReversalRetrySweep(ctx context.Context) error {
	failed, err := s.Repo.ListFailedReversals(s.Settings.SweepBatchSize)
	if err != nil {
		return err
	}
	for _, t := range failed {
		bookingID := t.BookingID
		s.sweepOne(ctx, bookingID, "reversal_retry", func() error {
			release, ok := s.acquireLock(ctx, bookingID)
			if !ok {
				return nil
			}
			defer release()
			s.reverseTransferBestEffort(ctx, bookingID)
			return nil
		})
	}
	return nil
}

// sweepOne isolates a single booking's work inside a batch pass: panics and
// errors are logged and the sweep moves on.
func (s *DefaultPaymentService) sweepOne(ctx context.Context, bookingID, op string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error("sweep panic isolated",
				zap.String("bookingID", bookingID),
				zap.String("op", op),
				zap.Any("panic", r),
			)
		}
	}()
	if err := fn(); err != nil {
		s.Logger.Error("sweep operation failed",
			zap.String("bookingID", bookingID),
			zap.String("op", op),
			zap.Error(err),
		)
	}
}
