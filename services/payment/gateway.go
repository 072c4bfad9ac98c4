package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"instructly/models"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/transfer"
	"github.com/stripe/stripe-go/v76/transferreversal"
	"github.com/stripe/stripe-go/v76/webhook"
)

// AuthorizeParams is everything the gateway needs to place a hold.
type AuthorizeParams struct {
	BookingID           string
	Amount              int64
	Currency            string
	PaymentMethodID     string
	InstructorAccountID string
	ApplicationFee      int64
	IdempotencyKey      string
	Description         string
}

// AuthorizeResponse is the gateway's answer to a successful authorize.
type AuthorizeResponse struct {
	IntentID string
	Status   string
}

// CaptureResponse is the gateway's answer to a successful capture.
type CaptureResponse struct {
	ChargeID   string
	TransferID string
}

// TransferParams describes a platform-funded transfer (credit top-ups).
type TransferParams struct {
	BookingID            string
	Amount               int64
	Currency             string
	DestinationAccountID string
}

// Gateway is the card-payment collaborator. Implementations classify every
// failure into a GatewayError so callers can branch on kind, not on
// provider-specific codes.
type Gateway interface {
	Authorize(ctx context.Context, p AuthorizeParams) (*AuthorizeResponse, error)
	Capture(ctx context.Context, intentID string) (*CaptureResponse, error)
	Transfer(ctx context.Context, p TransferParams) (string, error)
	ReverseTransfer(ctx context.Context, transferID string) error
	ParseWebhook(payload []byte, sigHeader string) (*models.GatewayEvent, error)
}

// StripeGateway implements Gateway on stripe-go.
type StripeGateway struct {
	WebhookSecret string
}

func NewStripeGateway(webhookSecret string) *StripeGateway {
	return &StripeGateway{WebhookSecret: webhookSecret}
}

// Authorize places a manual-capture hold for the booking amount. The
// idempotency key makes gateway-side retries safe against double charges.
func (g *StripeGateway) Authorize(ctx context.Context, p AuthorizeParams) (*AuthorizeResponse, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(p.Amount),
		Currency:      stripe.String(p.Currency),
		PaymentMethod: stripe.String(p.PaymentMethodID),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
		Description:   stripe.String(p.Description),
	}
	if p.InstructorAccountID != "" {
		params.TransferData = &stripe.PaymentIntentTransferDataParams{
			Destination: stripe.String(p.InstructorAccountID),
		}
	}
	if p.ApplicationFee > 0 {
		params.ApplicationFeeAmount = stripe.Int64(p.ApplicationFee)
	}
	params.Context = ctx
	params.SetIdempotencyKey(p.IdempotencyKey)
	params.AddMetadata("bookingId", p.BookingID)

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, classifyStripeError(err)
	}
	return &AuthorizeResponse{IntentID: pi.ID, Status: string(pi.Status)}, nil
}

// Capture converts the hold into a charge.
func (g *StripeGateway) Capture(ctx context.Context, intentID string) (*CaptureResponse, error) {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx

	pi, err := paymentintent.Capture(intentID, params)
	if err != nil {
		return nil, classifyStripeError(err)
	}
	resp := &CaptureResponse{}
	if pi.LatestCharge != nil {
		resp.ChargeID = pi.LatestCharge.ID
		if pi.LatestCharge.Transfer != nil {
			resp.TransferID = pi.LatestCharge.Transfer.ID
		}
	}
	return resp, nil
}

// Transfer moves platform funds to an instructor account (credit top-ups).
func (g *StripeGateway) Transfer(ctx context.Context, p TransferParams) (string, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(p.Amount),
		Currency:    stripe.String(p.Currency),
		Destination: stripe.String(p.DestinationAccountID),
	}
	params.Context = ctx
	params.AddMetadata("bookingId", p.BookingID)

	t, err := transfer.New(params)
	if err != nil {
		return "", classifyStripeError(err)
	}
	return t.ID, nil
}

// ReverseTransfer pulls a payout transfer back during a dispute.
func (g *StripeGateway) ReverseTransfer(ctx context.Context, transferID string) error {
	params := &stripe.TransferReversalParams{ID: stripe.String(transferID)}
	params.Context = ctx

	if _, err := transferreversal.New(params); err != nil {
		return classifyStripeError(err)
	}
	return nil
}

// ParseWebhook verifies the event signature and parses the payload into the
// tagged union the router dispatches on.
func (g *StripeGateway) ParseWebhook(payload []byte, sigHeader string) (*models.GatewayEvent, error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, g.WebhookSecret)
	if err != nil {
		return nil, fmt.Errorf("webhook signature verification failed: %w", err)
	}
	return ParseGatewayEvent(event.ID, string(event.Type), event.Data.Raw)
}

// ParseGatewayEvent builds the tagged union for one gateway event. Unknown
// types come back with Ignored set instead of an error, so new gateway event
// types never break delivery.
func ParseGatewayEvent(id, eventType string, raw []byte) (*models.GatewayEvent, error) {
	ev := &models.GatewayEvent{ID: id, Type: eventType, ReceivedAt: time.Now()}

	switch eventType {
	case models.WebhookDisputeOpened, models.WebhookDisputeClosed:
		ev.Dispute = &models.DisputeEventData{}
		if err := json.Unmarshal(raw, ev.Dispute); err != nil {
			return nil, fmt.Errorf("malformed dispute payload: %w", err)
		}
	case models.WebhookChargeCaptured:
		ev.Charge = &models.ChargeEventData{}
		if err := json.Unmarshal(raw, ev.Charge); err != nil {
			return nil, fmt.Errorf("malformed charge payload: %w", err)
		}
	case models.WebhookTransferCreated, models.WebhookTransferReversed:
		ev.Transfer = &models.TransferEventData{}
		if err := json.Unmarshal(raw, ev.Transfer); err != nil {
			return nil, fmt.Errorf("malformed transfer payload: %w", err)
		}
	case models.WebhookPayoutPaid, models.WebhookPayoutFailed:
		ev.Payout = &models.PayoutEventData{}
		if err := json.Unmarshal(raw, ev.Payout); err != nil {
			return nil, fmt.Errorf("malformed payout payload: %w", err)
		}
	case models.WebhookAccountUpdated:
		ev.Account = &models.AccountEventData{}
		if err := json.Unmarshal(raw, ev.Account); err != nil {
			return nil, fmt.Errorf("malformed account payload: %w", err)
		}
	case models.WebhookIdentityVerified:
		ev.Identity = &models.IdentityEventData{}
		if err := json.Unmarshal(raw, ev.Identity); err != nil {
			return nil, fmt.Errorf("malformed identity payload: %w", err)
		}
	default:
		ev.Ignored = true
	}
	return ev, nil
}

func classifyStripeError(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return &GatewayError{Kind: GatewayErrTransient, Message: err.Error()}
	}

	kind := GatewayErrTransient
	switch {
	case se.Code == stripe.ErrorCodeChargeExpiredForCapture:
		kind = GatewayErrHoldExpired
	case se.Code == stripe.ErrorCodePaymentIntentUnexpectedState:
		kind = GatewayErrAlreadyCaptured
	case se.Type == stripe.ErrorTypeCard,
		se.Code == stripe.ErrorCodeCardDeclined,
		se.Code == stripe.ErrorCodeExpiredCard:
		kind = GatewayErrCardDeclined
	}
	return &GatewayError{Kind: kind, Code: string(se.Code), Message: se.Msg}
}
