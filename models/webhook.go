package models

import "time"

// Gateway webhook event types the router understands. Everything else is
// acknowledged and ignored so new gateway event types never break delivery.
const (
	WebhookDisputeOpened    = "charge.dispute.created"
	WebhookDisputeClosed    = "charge.dispute.closed"
	WebhookChargeCaptured   = "charge.captured"
	WebhookTransferCreated  = "transfer.created"
	WebhookTransferReversed = "transfer.reversed"
	WebhookPayoutPaid       = "payout.paid"
	WebhookPayoutFailed     = "payout.failed"
	WebhookAccountUpdated   = "account.updated"
	WebhookIdentityVerified = "identity.verification_session.verified"
)

// DisputeEventData is the strict payload of charge.dispute.* events.
type DisputeEventData struct {
	DisputeID       string `json:"id"`
	ChargeID        string `json:"charge"`
	PaymentIntentID string `json:"payment_intent"`
	Amount          int64  `json:"amount"`
	Reason          string `json:"reason"`
	Status          string `json:"status"`
}

// ChargeEventData is the strict payload of charge.captured events.
type ChargeEventData struct {
	ChargeID        string `json:"id"`
	PaymentIntentID string `json:"payment_intent"`
	Amount          int64  `json:"amount"`
	Captured        bool   `json:"captured"`
}

// TransferEventData is the strict payload of transfer.* events.
type TransferEventData struct {
	TransferID     string `json:"id"`
	Amount         int64  `json:"amount"`
	AmountReversed int64  `json:"amount_reversed"`
	Reversed       bool   `json:"reversed"`
	Destination    string `json:"destination"`
}

// PayoutEventData is the strict payload of payout.* events.
type PayoutEventData struct {
	PayoutID       string `json:"id"`
	Amount         int64  `json:"amount"`
	Status         string `json:"status"`
	FailureMessage string `json:"failure_message"`
}

// AccountEventData is the strict payload of account.updated events.
type AccountEventData struct {
	AccountID        string `json:"id"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
	DisabledReason   string `json:"disabled_reason"`
	DetailsSubmitted bool   `json:"details_submitted"`
}

// IdentityEventData is the strict payload of identity.* events.
type IdentityEventData struct {
	SessionID string `json:"id"`
	Status    string `json:"status"`
}

// GatewayEvent is the tagged union the webhook router dispatches on. Exactly
// one payload pointer is set for known types; Ignored marks everything else.
type GatewayEvent struct {
	ID         string
	Type       string
	ReceivedAt time.Time

	Dispute  *DisputeEventData
	Charge   *ChargeEventData
	Transfer *TransferEventData
	Payout   *PayoutEventData
	Account  *AccountEventData
	Identity *IdentityEventData

	Ignored bool
}

// Family returns the event family prefix ("charge", "transfer", ...).
func (e *GatewayEvent) Family() string {
	for i := 0; i < len(e.Type); i++ {
		if e.Type[i] == '.' {
			return e.Type[:i]
		}
	}
	return e.Type
}
