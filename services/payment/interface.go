package payment

import (
	"context"
	"time"

	"instructly/models"
)

// AuthorizationStatus is the business outcome of an authorization attempt.
// Declines and deferrals travel here, not as errors.
type AuthorizationStatus string

const (
	AuthorizationAuthorized        AuthorizationStatus = "authorized"
	AuthorizationAlreadyAuthorized AuthorizationStatus = "already_authorized"
	AuthorizationDeclined          AuthorizationStatus = "declined"
	AuthorizationDeferred          AuthorizationStatus = "deferred"
	AuthorizationTooEarly          AuthorizationStatus = "too_early"
)

// AuthorizationOutcome is the result of CreateOrRetryAuthorization.
type AuthorizationOutcome struct {
	Status   AuthorizationStatus
	IntentID string
	RetryAt  *time.Time
	Reason   string
}

// CaptureResult is the result of Capture. AlreadyCaptured marks the
// idempotent no-op protecting against duplicate scheduler runs and webhook
// races.
type CaptureResult struct {
	Settled               bool
	AlreadyCaptured       bool
	Deferred              bool
	PaymentMethodRequired bool
	NeedsReview           bool
	TransferID            string
	Reason                string
}

// PaymentService is the surface the API layer, webhook endpoint and
// background sweeps drive. Expected business outcomes (declines, expiries,
// lock contention during sweeps) come back as results, not errors.
type PaymentService interface {
	CreateOrRetryAuthorization(ctx context.Context, bookingID string) (AuthorizationOutcome, error)
	Capture(ctx context.Context, bookingID, reason string) (CaptureResult, error)
	GetPaymentStatus(ctx context.Context, bookingID string) (*models.BookingPayment, error)
	PaymentEvents(ctx context.Context, bookingID string) ([]models.PaymentEvent, error)
	ListNeedsReview(ctx context.Context) ([]models.BookingPayment, error)

	OnDisputeOpened(ctx context.Context, ev *models.GatewayEvent) (bool, error)
	OnDisputeClosed(ctx context.Context, ev *models.GatewayEvent) (bool, error)
	HandleGatewayEvent(ctx context.Context, ev *models.GatewayEvent) error

	AuthorizationSweep(ctx context.Context) error
	CaptureSweep(ctx context.Context) error
	ReversalRetrySweep(ctx context.Context) error
}
