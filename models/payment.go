package models

import "time"

// PaymentStatus is the lifecycle state of a booking's payment.
type PaymentStatus string

const (
	PaymentStatusPendingScheduling     PaymentStatus = "pending_scheduling"
	PaymentStatusScheduled             PaymentStatus = "scheduled"
	PaymentStatusAuthorized            PaymentStatus = "authorized"
	PaymentStatusCapturePending        PaymentStatus = "capture_pending"
	PaymentStatusSettled               PaymentStatus = "settled"
	PaymentStatusPaymentMethodRequired PaymentStatus = "payment_method_required"
	PaymentStatusDisputed              PaymentStatus = "disputed"
	PaymentStatusRefunded              PaymentStatus = "refunded"
)

// SettlementOutcome records how a settled or refunded booking got there.
type SettlementOutcome string

const (
	SettlementOutcomeNone              SettlementOutcome = ""
	SettlementOutcomeCaptured          SettlementOutcome = "captured"
	SettlementOutcomeDisputeWon        SettlementOutcome = "dispute_won"
	SettlementOutcomeStudentFullRefund SettlementOutcome = "student_wins_dispute_full_refund"
)

// BookingPayment is the ledger record for a single booking. Exactly one
// exists per payable booking; every mutation happens under the booking lock.
type BookingPayment struct {
	BookingID         string            `bson:"bookingId" json:"bookingId"`
	StudentID         string            `bson:"studentId" json:"studentId"`
	InstructorID      string            `bson:"instructorId" json:"instructorId"`
	PaymentStatus     PaymentStatus     `bson:"paymentStatus" json:"paymentStatus"`
	SettlementOutcome SettlementOutcome `bson:"settlementOutcome,omitempty" json:"settlementOutcome,omitempty"`

	// PaymentIntentID references the current authorization hold at the
	// gateway. At most one non-terminal hold exists at a time.
	PaymentIntentID string `bson:"paymentIntentId,omitempty" json:"paymentIntentId,omitempty"`

	// AuthAttemptCount counts every authorize call ever sent to the
	// gateway for this booking; it only grows, so each call carries a
	// fresh idempotency key.
	AuthAttemptCount int        `bson:"authAttemptCount" json:"authAttemptCount"`
	AuthFailureCount int        `bson:"authFailureCount" json:"authFailureCount"`
	AuthLastError    string     `bson:"authLastError,omitempty" json:"authLastError,omitempty"`
	AuthScheduledFor *time.Time `bson:"authScheduledFor,omitempty" json:"authScheduledFor,omitempty"`

	CaptureRetryCount int        `bson:"captureRetryCount" json:"captureRetryCount"`
	CaptureFailedAt   *time.Time `bson:"captureFailedAt,omitempty" json:"captureFailedAt,omitempty"`
	// CaptureRetryAt is when the next capture attempt is allowed after a
	// transient failure; sweeps leave the booking alone until then.
	CaptureRetryAt *time.Time `bson:"captureRetryAt,omitempty" json:"captureRetryAt,omitempty"`

	// NeedsReview is set when capture retries are exhausted; the booking
	// stays authorized and surfaces on the operator review list.
	NeedsReview bool `bson:"needsReview" json:"needsReview"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Transfer is the instructor-payout record, created lazily on the first
// successful capture for a booking.
type Transfer struct {
	BookingID                  string    `bson:"bookingId" json:"bookingId"`
	GatewayTransferID          string    `bson:"gatewayTransferId" json:"gatewayTransferId"`
	Amount                     int64     `bson:"amount" json:"amount"`
	Currency                   string    `bson:"currency" json:"currency"`
	TransferReversed           bool      `bson:"transferReversed" json:"transferReversed"`
	TransferReversalFailed     bool      `bson:"transferReversalFailed" json:"transferReversalFailed"`
	TransferReversalRetryCount int       `bson:"transferReversalRetryCount" json:"transferReversalRetryCount"`
	CreatedAt                  time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt                  time.Time `bson:"updatedAt" json:"updatedAt"`
}

// DisputeStatus is the state of a chargeback raised against a booking.
type DisputeStatus string

const (
	DisputeStatusOpen DisputeStatus = "open"
	DisputeStatusWon  DisputeStatus = "won"
	DisputeStatusLost DisputeStatus = "lost"
)

// Dispute is a historical record; it is never deleted.
type Dispute struct {
	BookingID        string        `bson:"bookingId" json:"bookingId"`
	GatewayDisputeID string        `bson:"gatewayDisputeId" json:"gatewayDisputeId"`
	Status           DisputeStatus `bson:"status" json:"status"`
	OpenedAt         time.Time     `bson:"openedAt" json:"openedAt"`
	ClosedAt         *time.Time    `bson:"closedAt,omitempty" json:"closedAt,omitempty"`
}

// Payment event types written to the append-only audit trail.
const (
	EventAuthSucceeded        = "auth_succeeded"
	EventAuthDeclined         = "auth_declined"
	EventAuthDeferred         = "auth_deferred"
	EventAuthExhausted        = "auth_exhausted"
	EventCaptureSucceeded     = "capture_succeeded"
	EventCaptureReconciled    = "capture_reconciled"
	EventCaptureHoldExpired   = "capture_hold_expired"
	EventCaptureCardError     = "capture_card_error"
	EventCaptureDeferred      = "capture_deferred"
	EventCaptureNeedsReview   = "capture_needs_review"
	EventDisputeOpened        = "dispute_opened"
	EventDisputeWon           = "dispute_won"
	EventDisputeLost          = "dispute_lost"
	EventTransferReversed     = "transfer_reversed"
	EventTransferReversalFail = "transfer_reversal_failed"
	EventRetransferRequired   = "transfer_retransfer_required"
	EventCreditsForfeited     = "credits_forfeited"
	EventCreditsRestored      = "credits_restored"
	EventGatewayNotice        = "gateway_notice"
)

// PaymentEvent is one entry of the append-only per-booking audit trail.
// Events are never mutated or deleted.
type PaymentEvent struct {
	ID        string                 `bson:"id" json:"id"`
	BookingID string                 `bson:"bookingId" json:"bookingId"`
	EventType string                 `bson:"eventType" json:"eventType"`
	EventData map[string]interface{} `bson:"eventData,omitempty" json:"eventData,omitempty"`
	CreatedAt time.Time              `bson:"createdAt" json:"createdAt"`
}

// Terminal reports whether the payment has reached a final financial state.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusSettled || s == PaymentStatusRefunded
}

// HasLiveHold reports whether the record carries an authorization hold that
// is still convertible into a charge.
func (bp *BookingPayment) HasLiveHold() bool {
	if bp.PaymentIntentID == "" {
		return false
	}
	switch bp.PaymentStatus {
	case PaymentStatusAuthorized, PaymentStatusCapturePending:
		return true
	}
	return false
}
