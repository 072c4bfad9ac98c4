package payment

import (
	"context"
	"fmt"
	"time"

	"instructly/models"

	"go.uber.org/zap"
)

// Capture converts the booking's authorization hold into a charge and
// creates the instructor transfer. Idempotent: a settled booking returns
// AlreadyCaptured without touching the ledger, so duplicate scheduler runs
// and webhook races are harmless.
func (s *DefaultPaymentService) Capture(ctx context.Context, bookingID, reason string) (CaptureResult, error) {
	release, ok := s.acquireLock(ctx, bookingID)
	if !ok {
		return CaptureResult{Deferred: true, Reason: "booking lock busy"}, nil
	}
	defer release()

	bp, err := s.Repo.GetByBookingID(bookingID)
	if err != nil {
		return CaptureResult{}, err
	}
	if bp == nil {
		return CaptureResult{}, fmt.Errorf("booking %s: %w", bookingID, ErrMissingAuthorization)
	}
	if bp.PaymentStatus == models.PaymentStatusSettled {
		return CaptureResult{Settled: true, AlreadyCaptured: true}, nil
	}

	booking, err := s.getBooking(bookingID)
	if err != nil {
		return CaptureResult{}, err
	}
	cc, err := BuildChargeContext(booking, s.Pricing)
	if err != nil {
		return CaptureResult{}, err
	}

	if bp.PaymentIntentID == "" {
		// A credit-covered booking never held a card; settlement is the
		// top-up transfer alone.
		if bp.PaymentStatus == models.PaymentStatusAuthorized && cc.StudentPayTotal == 0 {
			return s.settle(ctx, booking, bp, cc, nil, models.EventCaptureSucceeded, reason)
		}
		return CaptureResult{}, fmt.Errorf("booking %s: %w", bookingID, ErrMissingAuthorization)
	}

	return s.captureLocked(ctx, booking, bp, cc, reason, true)
}

// captureLocked runs the gateway capture while the booking lock is held.
// allowRecovery guards the expired-hold fresh-authorization path against
// recursing more than once.
func (s *DefaultPaymentService) captureLocked(ctx context.Context, booking *models.Booking, bp *models.BookingPayment, cc *models.ChargeContext, reason string, allowRecovery bool) (CaptureResult, error) {
	resp, err := s.Gateway.Capture(ctx, bp.PaymentIntentID)
	if err == nil {
		return s.settle(ctx, booking, bp, cc, resp, models.EventCaptureSucceeded, reason)
	}

	switch KindOf(err) {
	case GatewayErrAlreadyCaptured:
		// The money already moved; reconcile the ledger to match.
		return s.settle(ctx, booking, bp, cc, resp, models.EventCaptureReconciled, reason)

	case GatewayErrHoldExpired:
		if !allowRecovery {
			return s.captureCardError(ctx, booking, bp, "hold expired again after refresh")
		}
		return s.recoverExpiredHold(ctx, booking, bp, cc, reason)

	case GatewayErrCardDeclined:
		return s.captureCardError(ctx, booking, bp, err.Error())

	default:
		return s.captureTransient(ctx, booking, bp, err)
	}
}

// recoverExpiredHold creates a fresh authorization and immediately captures
// it, instead of failing the booking because the first hold aged out.
func (s *DefaultPaymentService) recoverExpiredHold(ctx context.Context, booking *models.Booking, bp *models.BookingPayment, cc *models.ChargeContext, reason string) (CaptureResult, error) {
	expiredIntent := bp.PaymentIntentID
	bp.PaymentIntentID = ""
	if err := s.transition(bp, models.PaymentStatusCapturePending, models.EventCaptureHoldExpired, map[string]interface{}{
		"expiredIntentId": expiredIntent,
	}); err != nil {
		return CaptureResult{}, err
	}
	s.Logger.Warn("authorization hold expired before capture, reauthorizing",
		zap.String("bookingID", booking.ID),
		zap.String("expiredIntentID", expiredIntent),
	)

	if booking.StudentPaymentMethodID == "" {
		return s.captureCardError(ctx, booking, bp, "no stored payment method for reauthorization")
	}

	bp.AuthAttemptCount++
	if err := s.Repo.Update(bp); err != nil {
		return CaptureResult{}, err
	}
	authResp, err := s.Gateway.Authorize(ctx, AuthorizeParams{
		BookingID:           booking.ID,
		Amount:              cc.StudentPayTotal,
		Currency:            cc.Currency,
		PaymentMethodID:     booking.StudentPaymentMethodID,
		InstructorAccountID: booking.InstructorAccountID,
		ApplicationFee:      cc.ApplicationFee,
		IdempotencyKey:      fmt.Sprintf("auth:%s:%d", booking.ID, bp.AuthAttemptCount),
		Description:         fmt.Sprintf("lesson booking %s (reauthorization)", booking.ID),
	})
	if err != nil {
		if KindOf(err) == GatewayErrCardDeclined {
			return s.captureCardError(ctx, booking, bp, err.Error())
		}
		return s.captureTransient(ctx, booking, bp, err)
	}

	bp.PaymentIntentID = authResp.IntentID
	if err := s.transition(bp, models.PaymentStatusAuthorized, models.EventAuthSucceeded, map[string]interface{}{
		"intentId": authResp.IntentID,
		"reason":   "reauthorized_after_expired_hold",
	}); err != nil {
		return CaptureResult{}, err
	}

	return s.captureLocked(ctx, booking, bp, cc, reason, false)
}

// settle records the capture: the instructor transfer is created exactly
// once, any credit top-up transfer is issued, and the payment settles.
func (s *DefaultPaymentService) settle(ctx context.Context, booking *models.Booking, bp *models.BookingPayment, cc *models.ChargeContext, resp *CaptureResponse, eventType, reason string) (CaptureResult, error) {
	transferID := ""
	if resp != nil {
		transferID = resp.TransferID
	}

	existing, err := s.Repo.GetTransfer(booking.ID)
	if err != nil {
		return CaptureResult{}, err
	}
	if existing == nil {
		if cc.TopUpTransfer > 0 && booking.InstructorAccountID != "" {
			topUpID, err := s.Gateway.Transfer(ctx, TransferParams{
				BookingID:            booking.ID,
				Amount:               cc.TopUpTransfer,
				Currency:             cc.Currency,
				DestinationAccountID: booking.InstructorAccountID,
			})
			if err != nil {
				// The charge is captured; a missed top-up is an
				// operator item, not a reason to unwind settlement.
				s.Logger.Error("credit top-up transfer failed",
					zap.String("bookingID", booking.ID),
					zap.Int64("amount", cc.TopUpTransfer),
					zap.Error(err),
				)
			} else if transferID == "" {
				transferID = topUpID
			}
		}
		t := &models.Transfer{
			BookingID:         booking.ID,
			GatewayTransferID: transferID,
			Amount:            cc.TargetInstructorPayout,
			Currency:          cc.Currency,
		}
		if err := s.Repo.CreateTransfer(t); err != nil {
			return CaptureResult{}, err
		}
	} else if transferID != "" && existing.GatewayTransferID == "" {
		existing.GatewayTransferID = transferID
		if err := s.Repo.UpdateTransfer(existing); err != nil {
			return CaptureResult{}, err
		}
	}

	bp.SettlementOutcome = models.SettlementOutcomeCaptured
	bp.CaptureFailedAt = nil
	bp.CaptureRetryAt = nil
	bp.NeedsReview = false
	if err := s.transition(bp, models.PaymentStatusSettled, eventType, map[string]interface{}{
		"intentId":   bp.PaymentIntentID,
		"transferId": transferID,
		"payout":     cc.TargetInstructorPayout,
		"reason":     reason,
	}); err != nil {
		return CaptureResult{}, err
	}
	s.Logger.Info("booking settled",
		zap.String("bookingID", booking.ID),
		zap.Int64("payout", cc.TargetInstructorPayout),
	)
	return CaptureResult{Settled: true, AlreadyCaptured: eventType == models.EventCaptureReconciled, TransferID: transferID}, nil
}

// captureCardError lands capture in the payment-method-required state; the
// booking waits on the student, not on retries.
func (s *DefaultPaymentService) captureCardError(ctx context.Context, booking *models.Booking, bp *models.BookingPayment, reason string) (CaptureResult, error) {
	bp.CaptureRetryCount++
	if err := s.transition(bp, models.PaymentStatusPaymentMethodRequired, models.EventCaptureCardError, map[string]interface{}{
		"reason":     reason,
		"retryCount": bp.CaptureRetryCount,
	}); err != nil {
		return CaptureResult{}, err
	}
	s.notifyPaymentMethodRequired(ctx, booking, reason)
	return CaptureResult{PaymentMethodRequired: true, Reason: reason}, nil
}

// captureTransient defers the capture for the retry sweep; past the cap the
// booking is flagged for manual review but stays authorized, never lost.
func (s *DefaultPaymentService) captureTransient(ctx context.Context, booking *models.Booking, bp *models.BookingPayment, callErr error) (CaptureResult, error) {
	now := time.Now()
	bp.CaptureRetryCount++
	bp.CaptureFailedAt = &now

	if bp.CaptureRetryCount >= s.Settings.CaptureMaxAttempts {
		bp.NeedsReview = true
		bp.CaptureRetryAt = nil
		if err := s.transition(bp, models.PaymentStatusAuthorized, models.EventCaptureNeedsReview, map[string]interface{}{
			"retryCount": bp.CaptureRetryCount,
			"lastError":  callErr.Error(),
		}); err != nil {
			return CaptureResult{}, err
		}
		if nerr := s.Notifier.CaptureFailed(ctx, booking, "capture retries exhausted"); nerr != nil {
			s.Logger.Warn("capture-failed notification failed", zap.String("bookingID", booking.ID), zap.Error(nerr))
		}
		return CaptureResult{NeedsReview: true, Reason: callErr.Error()}, nil
	}

	backoff := s.Settings.CaptureBackoffBase * (1 << uint(bp.CaptureRetryCount-1))
	retryAt := now.Add(backoff)
	bp.CaptureRetryAt = &retryAt
	if err := s.transition(bp, models.PaymentStatusAuthorized, models.EventCaptureDeferred, map[string]interface{}{
		"retryCount": bp.CaptureRetryCount,
		"lastError":  callErr.Error(),
		"retryAt":    retryAt,
	}); err != nil {
		return CaptureResult{}, err
	}
	return CaptureResult{Deferred: true, Reason: callErr.Error()}, nil
}
