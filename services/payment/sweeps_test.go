package payment

import (
	"context"
	"testing"
	"time"

	"instructly/models"
)

func TestAuthorizationSweepAuthorizesEnteringWindow(t *testing.T) {
	inWindow := testBooking()
	outOfWindow := testBooking()
	outOfWindow.ID = "bk_far"
	outOfWindow.LessonStart = time.Now().Add(30 * 24 * time.Hour)
	outOfWindow.LessonEnd = outOfWindow.LessonStart.Add(time.Hour)
	env := newTestEnv(inWindow, outOfWindow)

	if err := env.svc.AuthorizationSweep(context.Background()); err != nil {
		t.Fatalf("AuthorizationSweep: %v", err)
	}

	bp, _ := env.repo.GetByBookingID("bk_1")
	if bp == nil || bp.PaymentStatus != models.PaymentStatusAuthorized {
		t.Errorf("bk_1 = %+v, want authorized", bp)
	}
	if far, _ := env.repo.GetByBookingID("bk_far"); far != nil {
		t.Errorf("bk_far = %+v, want untouched while outside the horizon", far)
	}
	if env.gateway.authorizeCalls != 1 {
		t.Errorf("authorize calls = %d, want 1", env.gateway.authorizeCalls)
	}
}

func TestAuthorizationSweepSkipsDeclinedBooking(t *testing.T) {
	env := newTestEnv(testBooking())
	env.gateway.authorizeErrs = []error{
		&GatewayError{Kind: GatewayErrCardDeclined, Code: "card_declined", Message: "declined"},
	}
	ctx := context.Background()

	// First sweep lands the booking in payment_method_required.
	if err := env.svc.AuthorizationSweep(ctx); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	bp, _ := env.repo.GetByBookingID("bk_1")
	if bp.PaymentStatus != models.PaymentStatusPaymentMethodRequired {
		t.Fatalf("payment status = %s, want payment_method_required", bp.PaymentStatus)
	}

	// A declined booking waits on the student: further sweeps leave it alone.
	if err := env.svc.AuthorizationSweep(ctx); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if env.gateway.authorizeCalls != 1 {
		t.Errorf("authorize calls = %d, want 1 (no automatic retry after decline)", env.gateway.authorizeCalls)
	}

	// An explicit retry after the student fixes their card still works.
	out, err := env.svc.CreateOrRetryAuthorization(ctx, "bk_1")
	if err != nil {
		t.Fatalf("explicit retry: %v", err)
	}
	if out.Status != AuthorizationAuthorized {
		t.Errorf("explicit retry status = %s, want authorized", out.Status)
	}
}

func TestAuthorizationSweepRetriesDuePayments(t *testing.T) {
	env := newTestEnv(testBooking())
	env.gateway.authorizeErrs = []error{
		&GatewayError{Kind: GatewayErrTransient, Message: "gateway timeout"},
	}
	ctx := context.Background()

	out, err := env.svc.CreateOrRetryAuthorization(ctx, "bk_1")
	if err != nil || out.Status != AuthorizationDeferred {
		t.Fatalf("setup: out=%+v err=%v", out, err)
	}

	// Not due yet: the sweep leaves it scheduled.
	if err := env.svc.AuthorizationSweep(ctx); err != nil {
		t.Fatalf("early sweep: %v", err)
	}
	if env.gateway.authorizeCalls != 1 {
		t.Fatalf("authorize calls = %d, want 1 before the retry time", env.gateway.authorizeCalls)
	}

	// Force the retry time into the past.
	bp, _ := env.repo.GetByBookingID("bk_1")
	past := time.Now().Add(-time.Minute)
	bp.AuthScheduledFor = &past
	if err := env.repo.Update(bp); err != nil {
		t.Fatalf("update: %v", err)
	}

	if err := env.svc.AuthorizationSweep(ctx); err != nil {
		t.Fatalf("due sweep: %v", err)
	}
	bp, _ = env.repo.GetByBookingID("bk_1")
	if bp.PaymentStatus != models.PaymentStatusAuthorized {
		t.Errorf("payment status = %s, want authorized after the due retry", bp.PaymentStatus)
	}
}

func TestCaptureSweepSettlesCompletedLessons(t *testing.T) {
	done := testBooking()
	done.Status = models.BookingStatusCompleted
	done.LessonStart = time.Now().Add(-2 * time.Hour)
	done.LessonEnd = time.Now().Add(-time.Hour)
	env := newTestEnv(done)
	authorizeForTest(t, env, "bk_1")
	ctx := context.Background()

	if err := env.svc.CaptureSweep(ctx); err != nil {
		t.Fatalf("CaptureSweep: %v", err)
	}
	bp, _ := env.repo.GetByBookingID("bk_1")
	if bp.PaymentStatus != models.PaymentStatusSettled {
		t.Errorf("payment status = %s, want settled", bp.PaymentStatus)
	}

	// Re-running the sweep over the still-listed booking changes nothing.
	if err := env.svc.CaptureSweep(ctx); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if env.gateway.captureCalls != 1 {
		t.Errorf("capture calls = %d, want 1", env.gateway.captureCalls)
	}
}

func TestCaptureSweepRetriesFailedCaptures(t *testing.T) {
	done := testBooking()
	done.Status = models.BookingStatusCompleted
	done.LessonStart = time.Now().Add(-2 * time.Hour)
	done.LessonEnd = time.Now().Add(-time.Hour)
	env := newTestEnv(done)
	authorizeForTest(t, env, "bk_1")
	env.gateway.captureErrs = []error{
		&GatewayError{Kind: GatewayErrTransient, Message: "gateway timeout"},
	}
	ctx := context.Background()

	if err := env.svc.CaptureSweep(ctx); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	bp, _ := env.repo.GetByBookingID("bk_1")
	if bp.PaymentStatus != models.PaymentStatusAuthorized || bp.CaptureRetryCount != 1 {
		t.Fatalf("after failure: %+v, want authorized with one retry recorded", bp)
	}
	if bp.CaptureRetryAt == nil || !bp.CaptureRetryAt.After(time.Now()) {
		t.Fatalf("CaptureRetryAt = %v, want a future retry time", bp.CaptureRetryAt)
	}

	// Still cooling down: the next pass leaves the gateway alone.
	if err := env.svc.CaptureSweep(ctx); err != nil {
		t.Fatalf("cooldown sweep: %v", err)
	}
	if env.gateway.captureCalls != 1 {
		t.Fatalf("capture calls = %d, want 1 while the backoff holds", env.gateway.captureCalls)
	}

	// Force the retry time into the past.
	bp, _ = env.repo.GetByBookingID("bk_1")
	past := time.Now().Add(-time.Minute)
	bp.CaptureRetryAt = &past
	if err := env.repo.Update(bp); err != nil {
		t.Fatalf("update: %v", err)
	}

	if err := env.svc.CaptureSweep(ctx); err != nil {
		t.Fatalf("due sweep: %v", err)
	}
	bp, _ = env.repo.GetByBookingID("bk_1")
	if bp.PaymentStatus != models.PaymentStatusSettled {
		t.Errorf("payment status = %s, want settled on the due retry", bp.PaymentStatus)
	}
	if bp.CaptureRetryAt != nil {
		t.Errorf("CaptureRetryAt = %v, want cleared after settlement", bp.CaptureRetryAt)
	}
}

func TestCaptureBackoffDoublesPerAttempt(t *testing.T) {
	done := testBooking()
	done.Status = models.BookingStatusCompleted
	done.LessonStart = time.Now().Add(-2 * time.Hour)
	done.LessonEnd = time.Now().Add(-time.Hour)
	env := newTestEnv(done)
	authorizeForTest(t, env, "bk_1")
	env.gateway.captureErrs = []error{
		&GatewayError{Kind: GatewayErrTransient, Message: "gateway timeout"},
		&GatewayError{Kind: GatewayErrTransient, Message: "gateway timeout"},
	}
	ctx := context.Background()

	if err := env.svc.CaptureSweep(ctx); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	bp, _ := env.repo.GetByBookingID("bk_1")
	first := time.Until(*bp.CaptureRetryAt)
	if first < 9*time.Minute || first > 11*time.Minute {
		t.Errorf("first backoff = %v, want about 10m", first)
	}

	past := time.Now().Add(-time.Minute)
	bp.CaptureRetryAt = &past
	if err := env.repo.Update(bp); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := env.svc.CaptureSweep(ctx); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	bp, _ = env.repo.GetByBookingID("bk_1")
	second := time.Until(*bp.CaptureRetryAt)
	if second < 19*time.Minute || second > 21*time.Minute {
		t.Errorf("second backoff = %v, want about 20m", second)
	}
	if bp.CaptureRetryCount != 2 {
		t.Errorf("retry count = %d, want 2", bp.CaptureRetryCount)
	}
}

func TestReversalRetrySweep(t *testing.T) {
	env := newTestEnv(testBooking())
	bp := settleForTest(t, env, "bk_1")
	env.gateway.reverseErr = &GatewayError{Kind: GatewayErrTransient, Message: "gateway timeout"}
	ctx := context.Background()

	if _, err := env.svc.OnDisputeOpened(ctx, disputeOpenedEvent(bp.PaymentIntentID, "dp_1")); err != nil {
		t.Fatalf("open dispute: %v", err)
	}
	tr, _ := env.repo.GetTransfer("bk_1")
	if !tr.TransferReversalFailed {
		t.Fatal("setup: reversal should have failed")
	}

	// Gateway recovers; the sweep finishes the reversal.
	env.gateway.reverseErr = nil
	if err := env.svc.ReversalRetrySweep(ctx); err != nil {
		t.Fatalf("ReversalRetrySweep: %v", err)
	}
	tr, _ = env.repo.GetTransfer("bk_1")
	if !tr.TransferReversed || tr.TransferReversalFailed {
		t.Errorf("transfer = %+v, want reversed with the failure flag cleared", tr)
	}
	if env.gateway.reverseCalls != 2 {
		t.Errorf("reversal calls = %d, want 2", env.gateway.reverseCalls)
	}

	// Nothing left to do on the next pass.
	if err := env.svc.ReversalRetrySweep(ctx); err != nil {
		t.Fatalf("idle sweep: %v", err)
	}
	if env.gateway.reverseCalls != 2 {
		t.Errorf("idle sweep reversed again: %d calls", env.gateway.reverseCalls)
	}
}
