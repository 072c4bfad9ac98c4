package payment

import (
	"errors"
	"fmt"
)

// PricingConfigurationError marks missing or malformed tier/fee config.
// Fatal for the booking's payment attempt; surfaced to the caller, never
// retried.
type PricingConfigurationError struct {
	Reason string
}

func (e *PricingConfigurationError) Error() string {
	return fmt.Sprintf("pricingConfigurationError: %s", e.Reason)
}

func NewPricingConfigurationError(format string, args ...interface{}) error {
	return &PricingConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// ErrMissingAuthorization is returned by Capture when no authorization hold
// exists for the booking. Non-retryable; requires a new authorization.
var ErrMissingAuthorization = errors.New("no authorization hold exists for booking")

// ErrBookingNotFound is returned when the booking record itself is absent.
var ErrBookingNotFound = errors.New("booking not found")

// ErrLockBusy signals that the booking lock could not be acquired in time.
// Not a failure: sweeps skip the booking and webhooks answer non-2xx so the
// gateway redelivers.
var ErrLockBusy = errors.New("booking lock busy")

// GatewayErrorKind classifies a gateway failure into the retry taxonomy.
type GatewayErrorKind int

const (
	// GatewayErrTransient covers network faults, timeouts and anything
	// unrecognized. Retried with backoff.
	GatewayErrTransient GatewayErrorKind = iota
	// GatewayErrCardDeclined covers declines and expired payment methods.
	// Terminal for the current hold.
	GatewayErrCardDeclined
	// GatewayErrHoldExpired means the authorization aged out before
	// capture. Recovered by a fresh authorize-and-capture.
	GatewayErrHoldExpired
	// GatewayErrAlreadyCaptured means the charge already went through.
	// A reconciliation path, not a failure.
	GatewayErrAlreadyCaptured
)

// GatewayError is the classified form of any error coming back from the
// card-payment gateway.
type GatewayError struct {
	Kind    GatewayErrorKind
	Code    string
	Message string
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway error (%s): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("gateway error: %s", e.Message)
}

// KindOf extracts the classification from a gateway call error. Anything
// that is not a GatewayError counts as transient.
func KindOf(err error) GatewayErrorKind {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return GatewayErrTransient
}
