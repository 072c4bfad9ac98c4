package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"instructly/models"

	"go.uber.org/zap"
)

// CreateOrRetryAuthorization places (or retries) the authorization hold for
// a booking ahead of the lesson. Safe to call from the API, the sweep and
// webhook recovery concurrently: the booking lock serializes them and a
// live hold turns the call into a no-op.
func (s *DefaultPaymentService) CreateOrRetryAuthorization(ctx context.Context, bookingID string) (AuthorizationOutcome, error) {
	release, ok := s.acquireLock(ctx, bookingID)
	if !ok {
		return AuthorizationOutcome{Status: AuthorizationDeferred, Reason: "booking lock busy"}, nil
	}
	defer release()

	booking, err := s.getBooking(bookingID)
	if err != nil {
		return AuthorizationOutcome{}, err
	}
	bp, err := s.ensurePayment(booking)
	if err != nil {
		return AuthorizationOutcome{}, err
	}

	// Idempotent no-op: a live hold already exists.
	if bp.HasLiveHold() {
		return AuthorizationOutcome{Status: AuthorizationAlreadyAuthorized, IntentID: bp.PaymentIntentID}, nil
	}
	if bp.PaymentStatus.Terminal() || bp.PaymentStatus == models.PaymentStatusDisputed {
		return AuthorizationOutcome{Status: AuthorizationAlreadyAuthorized, Reason: string(bp.PaymentStatus)}, nil
	}
	// Authorized without an intent means credit covered the whole charge;
	// there is no hold to create.
	if bp.PaymentStatus == models.PaymentStatusAuthorized && bp.PaymentIntentID == "" {
		return AuthorizationOutcome{Status: AuthorizationAlreadyAuthorized, Reason: "covered_by_credit"}, nil
	}

	// Holds are short-lived: a lesson further out than the horizon gets
	// rescheduled, not authorized.
	now := time.Now()
	windowOpens := booking.LessonStart.Add(-s.Settings.AuthHorizon)
	if now.Before(windowOpens) {
		bp.AuthScheduledFor = &windowOpens
		if err := s.transition(bp, models.PaymentStatusScheduled, models.EventAuthDeferred, map[string]interface{}{
			"reason":  "too_early_to_authorize",
			"retryAt": windowOpens,
		}); err != nil {
			return AuthorizationOutcome{}, err
		}
		return AuthorizationOutcome{Status: AuthorizationTooEarly, RetryAt: &windowOpens, Reason: "lesson outside scheduling horizon"}, nil
	}

	cc, err := BuildChargeContext(booking, s.Pricing)
	if err != nil {
		// Configuration problems are fatal for this attempt and surface
		// to the caller unretried.
		return AuthorizationOutcome{}, err
	}

	// Credit covering the whole charge leaves nothing to hold; the
	// gateway rejects zero-amount intents, so skip it entirely. The
	// instructor payout happens at capture via the top-up transfer.
	if cc.StudentPayTotal == 0 {
		bp.AuthLastError = ""
		bp.AuthScheduledFor = nil
		if err := s.transition(bp, models.PaymentStatusAuthorized, models.EventAuthSucceeded, map[string]interface{}{
			"amount":        int64(0),
			"appliedCredit": cc.AppliedCredit,
			"reason":        "covered_by_credit",
		}); err != nil {
			return AuthorizationOutcome{}, err
		}
		return AuthorizationOutcome{Status: AuthorizationAuthorized, Reason: "covered_by_credit"}, nil
	}

	if booking.StudentPaymentMethodID == "" {
		return s.authDeclined(ctx, booking, bp, "no stored payment method")
	}

	// The attempt counter only grows, so a retry after an earlier
	// successful hold never replays a consumed idempotency key. Persisted
	// before the call: a crash after the gateway accepted must not reuse
	// the key either.
	bp.AuthAttemptCount++
	if err := s.Repo.Update(bp); err != nil {
		return AuthorizationOutcome{}, err
	}
	resp, err := s.Gateway.Authorize(ctx, AuthorizeParams{
		BookingID:           booking.ID,
		Amount:              cc.StudentPayTotal,
		Currency:            cc.Currency,
		PaymentMethodID:     booking.StudentPaymentMethodID,
		InstructorAccountID: booking.InstructorAccountID,
		ApplicationFee:      cc.ApplicationFee,
		IdempotencyKey:      fmt.Sprintf("auth:%s:%d", booking.ID, bp.AuthAttemptCount),
		Description:         fmt.Sprintf("lesson booking %s", booking.ID),
	})
	if err != nil {
		return s.handleAuthorizeError(ctx, booking, bp, err)
	}

	bp.PaymentIntentID = resp.IntentID
	bp.AuthLastError = ""
	bp.AuthScheduledFor = nil
	if err := s.transition(bp, models.PaymentStatusAuthorized, models.EventAuthSucceeded, map[string]interface{}{
		"intentId": resp.IntentID,
		"amount":   cc.StudentPayTotal,
		"attempt":  bp.AuthAttemptCount,
	}); err != nil {
		return AuthorizationOutcome{}, err
	}
	s.Logger.Info("authorization hold created",
		zap.String("bookingID", booking.ID),
		zap.String("intentID", resp.IntentID),
		zap.Int64("amount", cc.StudentPayTotal),
	)
	return AuthorizationOutcome{Status: AuthorizationAuthorized, IntentID: resp.IntentID}, nil
}

func (s *DefaultPaymentService) handleAuthorizeError(ctx context.Context, booking *models.Booking, bp *models.BookingPayment, callErr error) (AuthorizationOutcome, error) {
	bp.AuthFailureCount++
	bp.AuthLastError = callErr.Error()

	switch KindOf(callErr) {
	case GatewayErrCardDeclined:
		return s.authDeclined(ctx, booking, bp, callErr.Error())
	default:
		if bp.AuthFailureCount >= s.Settings.AuthMaxAttempts {
			// Retries exhausted: degrade to the card-error terminal
			// state instead of looping forever.
			bp.AuthScheduledFor = nil
			if err := s.transition(bp, models.PaymentStatusPaymentMethodRequired, models.EventAuthExhausted, map[string]interface{}{
				"failureCount": bp.AuthFailureCount,
				"lastError":    bp.AuthLastError,
			}); err != nil {
				return AuthorizationOutcome{}, err
			}
			s.notifyPaymentMethodRequired(ctx, booking, "authorization retries exhausted")
			return AuthorizationOutcome{Status: AuthorizationDeclined, Reason: "authorization retries exhausted"}, nil
		}

		backoff := s.Settings.AuthBackoffBase * (1 << uint(bp.AuthFailureCount-1))
		retryAt := time.Now().Add(backoff)
		bp.AuthScheduledFor = &retryAt
		if err := s.transition(bp, models.PaymentStatusScheduled, models.EventAuthDeferred, map[string]interface{}{
			"failureCount": bp.AuthFailureCount,
			"lastError":    bp.AuthLastError,
			"retryAt":      retryAt,
		}); err != nil {
			return AuthorizationOutcome{}, err
		}
		return AuthorizationOutcome{Status: AuthorizationDeferred, RetryAt: &retryAt, Reason: bp.AuthLastError}, nil
	}
}

// authDeclined lands the booking in the payment-method-required terminal
// state. Never retried automatically; the student must act.
func (s *DefaultPaymentService) authDeclined(ctx context.Context, booking *models.Booking, bp *models.BookingPayment, reason string) (AuthorizationOutcome, error) {
	bp.AuthScheduledFor = nil
	if err := s.transition(bp, models.PaymentStatusPaymentMethodRequired, models.EventAuthDeclined, map[string]interface{}{
		"reason":       reason,
		"failureCount": bp.AuthFailureCount,
	}); err != nil {
		return AuthorizationOutcome{}, err
	}
	s.notifyPaymentMethodRequired(ctx, booking, reason)
	return AuthorizationOutcome{Status: AuthorizationDeclined, Reason: reason}, nil
}

func (s *DefaultPaymentService) notifyPaymentMethodRequired(ctx context.Context, booking *models.Booking, reason string) {
	if err := s.Notifier.PaymentMethodRequired(ctx, booking, reason); err != nil {
		s.Logger.Warn("payment-method-required notification failed",
			zap.String("bookingID", booking.ID),
			zap.Error(err),
		)
	}
}

// IsPricingConfigurationError reports whether err is a fatal pricing
// configuration problem.
func IsPricingConfigurationError(err error) bool {
	var pce *PricingConfigurationError
	return errors.As(err, &pce)
}
