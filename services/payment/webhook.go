package payment

import (
	"context"

	"instructly/models"

	"go.uber.org/zap"
)

// HandleGatewayEvent routes one verified gateway event to its handler.
// Every handler re-derives current state before mutating, so redelivered
// events are harmless. Unknown event types are acknowledged and dropped;
// only ErrLockBusy (and real faults) propagate, so the HTTP layer can ask
// the gateway to redeliver.
func (s *DefaultPaymentService) HandleGatewayEvent(ctx context.Context, ev *models.GatewayEvent) error {
	if ev.Ignored {
		s.Logger.Debug("ignoring unhandled gateway event",
			zap.String("eventID", ev.ID),
			zap.String("type", ev.Type),
		)
		return nil
	}

	switch ev.Type {
	case models.WebhookDisputeOpened:
		_, err := s.OnDisputeOpened(ctx, ev)
		return err

	case models.WebhookDisputeClosed:
		_, err := s.OnDisputeClosed(ctx, ev)
		return err

	case models.WebhookChargeCaptured:
		return s.reconcileCapturedCharge(ctx, ev)

	case models.WebhookTransferReversed:
		return s.reconcileReversedTransfer(ctx, ev)

	case models.WebhookTransferCreated:
		// Nothing to mutate, but the notice belongs on the booking's trail
		// when the transfer is ours.
		t, err := s.Repo.FindTransferByGatewayID(ev.Transfer.TransferID)
		if err != nil {
			s.Logger.Error("failed to resolve transfer for gateway notice",
				zap.String("eventID", ev.ID),
				zap.String("transferID", ev.Transfer.TransferID),
				zap.Error(err),
			)
			return nil
		}
		if t != nil {
			s.appendEvent(t.BookingID, models.EventGatewayNotice, map[string]interface{}{
				"eventType":         ev.Type,
				"gatewayTransferId": ev.Transfer.TransferID,
			})
		}
		return nil

	case models.WebhookPayoutPaid, models.WebhookPayoutFailed,
		models.WebhookAccountUpdated, models.WebhookIdentityVerified:
		// Account-level families carry no booking to pin an event to.
		s.Logger.Info("gateway notice",
			zap.String("eventID", ev.ID),
			zap.String("type", ev.Type),
			zap.String("family", ev.Family()),
		)
		return nil
	}

	s.Logger.Debug("unrecognized gateway event acknowledged",
		zap.String("eventID", ev.ID),
		zap.String("type", ev.Type),
	)
	return nil
}

// reconcileCapturedCharge settles a booking the gateway says is captured
// but the ledger still shows open. The capture path's idempotency does the
// real work; a settled booking is a no-op.
func (s *DefaultPaymentService) reconcileCapturedCharge(ctx context.Context, ev *models.GatewayEvent) error {
	bp, err := s.Repo.FindByIntentID(ev.Charge.PaymentIntentID)
	if err != nil {
		return err
	}
	if bp == nil {
		s.Logger.Info("capture event references unknown payment intent",
			zap.String("intentID", ev.Charge.PaymentIntentID),
		)
		return nil
	}
	if bp.PaymentStatus.Terminal() || bp.PaymentStatus == models.PaymentStatusDisputed {
		return nil
	}

	result, err := s.Capture(ctx, bp.BookingID, "webhook_reconciliation")
	if err != nil {
		return err
	}
	if result.Deferred {
		// Lock contention: decline the delivery so the gateway retries.
		return ErrLockBusy
	}
	return nil
}

// reconcileReversedTransfer marks a transfer reversed when the gateway
// reports a reversal this system did not initiate (or whose confirmation
// was lost).
func (s *DefaultPaymentService) reconcileReversedTransfer(ctx context.Context, ev *models.GatewayEvent) error {
	if !ev.Transfer.Reversed {
		return nil
	}
	t, err := s.Repo.FindTransferByGatewayID(ev.Transfer.TransferID)
	if err != nil {
		return err
	}
	if t == nil || t.TransferReversed {
		return nil
	}

	release, ok := s.acquireLock(ctx, t.BookingID)
	if !ok {
		return ErrLockBusy
	}
	defer release()

	// Re-read under the lock.
	t, err = s.Repo.FindTransferByGatewayID(ev.Transfer.TransferID)
	if err != nil {
		return err
	}
	if t == nil || t.TransferReversed {
		return nil
	}

	t.TransferReversed = true
	t.TransferReversalFailed = false
	if err := s.Repo.UpdateTransfer(t); err != nil {
		return err
	}
	s.appendEvent(t.BookingID, models.EventTransferReversed, map[string]interface{}{
		"gatewayTransferId": t.GatewayTransferID,
		"source":            "gateway_webhook",
	})
	return nil
}
