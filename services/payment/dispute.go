package payment

import (
	"context"
	"fmt"
	"time"

	"instructly/models"

	"go.uber.org/zap"
)

// OnDisputeOpened reacts to a chargeback being raised: best-effort reversal
// of the instructor transfer, credit forfeiture, and the dispute record.
// Returns false when the event does not resolve to a booking in this
// system, which is not an error; the gateway may reference charges
// elsewhere.
func (s *DefaultPaymentService) OnDisputeOpened(ctx context.Context, ev *models.GatewayEvent) (bool, error) {
	data := ev.Dispute
	if data == nil {
		return false, fmt.Errorf("event %s carries no dispute payload", ev.ID)
	}

	bp, err := s.Repo.FindByIntentID(data.PaymentIntentID)
	if err != nil {
		return false, err
	}
	if bp == nil {
		s.Logger.Info("dispute event references unknown payment intent",
			zap.String("disputeID", data.DisputeID),
			zap.String("intentID", data.PaymentIntentID),
		)
		return false, nil
	}

	release, ok := s.acquireLock(ctx, bp.BookingID)
	if !ok {
		// No mutation without the lock; the gateway will redeliver.
		return false, ErrLockBusy
	}
	defer release()

	// Re-read under the lock; the pre-lock snapshot only located the
	// booking and may be stale by now.
	bp, err = s.Repo.GetByBookingID(bp.BookingID)
	if err != nil {
		return false, err
	}
	if bp == nil {
		return false, nil
	}

	// Redelivery guard: the dispute is already on file.
	if existing, err := s.Repo.GetDisputeByGatewayID(data.DisputeID); err != nil {
		return false, err
	} else if existing != nil {
		return true, nil
	}

	booking, err := s.getBooking(bp.BookingID)
	if err != nil {
		return false, err
	}

	s.reverseTransferBestEffort(ctx, bp.BookingID)
	s.forfeitCreditsBestEffort(ctx, bp.BookingID)

	if err := s.Repo.CreateDispute(&models.Dispute{
		BookingID:        bp.BookingID,
		GatewayDisputeID: data.DisputeID,
		Status:           models.DisputeStatusOpen,
		OpenedAt:         time.Now(),
	}); err != nil {
		return false, err
	}
	if err := s.transition(bp, models.PaymentStatusDisputed, models.EventDisputeOpened, map[string]interface{}{
		"disputeId": data.DisputeID,
		"amount":    data.Amount,
		"reason":    data.Reason,
	}); err != nil {
		return false, err
	}

	if nerr := s.Notifier.DisputeOpened(ctx, booking); nerr != nil {
		s.Logger.Warn("dispute-opened notification failed", zap.String("bookingID", bp.BookingID), zap.Error(nerr))
	}
	return true, nil
}

// OnDisputeClosed finalizes the dispute. Won keeps the charge and restores
// forfeited credits; lost refunds the student in full and leaves the
// forfeiture in place.
func (s *DefaultPaymentService) OnDisputeClosed(ctx context.Context, ev *models.GatewayEvent) (bool, error) {
	data := ev.Dispute
	if data == nil {
		return false, fmt.Errorf("event %s carries no dispute payload", ev.ID)
	}

	bp, err := s.Repo.FindByIntentID(data.PaymentIntentID)
	if err != nil {
		return false, err
	}
	if bp == nil {
		s.Logger.Info("dispute-close event references unknown payment intent",
			zap.String("disputeID", data.DisputeID),
			zap.String("intentID", data.PaymentIntentID),
		)
		return false, nil
	}

	release, ok := s.acquireLock(ctx, bp.BookingID)
	if !ok {
		return false, ErrLockBusy
	}
	defer release()

	// Re-read under the lock; the pre-lock snapshot only located the
	// booking and may be stale by now.
	bp, err = s.Repo.GetByBookingID(bp.BookingID)
	if err != nil {
		return false, err
	}
	if bp == nil {
		return false, nil
	}

	dispute, err := s.Repo.GetDisputeByGatewayID(data.DisputeID)
	if err != nil {
		return false, err
	}
	if dispute == nil {
		// Close delivered before (or without) the open event: re-derive
		// the record rather than trusting delivery order.
		dispute = &models.Dispute{
			BookingID:        bp.BookingID,
			GatewayDisputeID: data.DisputeID,
			Status:           models.DisputeStatusOpen,
			OpenedAt:         time.Now(),
		}
		if err := s.Repo.CreateDispute(dispute); err != nil {
			return false, err
		}
	}
	if dispute.Status != models.DisputeStatusOpen {
		return true, nil
	}

	booking, err := s.getBooking(bp.BookingID)
	if err != nil {
		return false, err
	}

	won := data.Status == "won"
	now := time.Now()
	dispute.ClosedAt = &now
	if won {
		dispute.Status = models.DisputeStatusWon
	} else {
		dispute.Status = models.DisputeStatusLost
	}
	if err := s.Repo.UpdateDispute(dispute); err != nil {
		return false, err
	}

	if won {
		if err := s.closeDisputeWon(ctx, bp, dispute); err != nil {
			return false, err
		}
	} else {
		if err := s.closeDisputeLost(bp, dispute); err != nil {
			return false, err
		}
	}

	if nerr := s.Notifier.DisputeClosed(ctx, booking, won); nerr != nil {
		s.Logger.Warn("dispute-closed notification failed", zap.String("bookingID", bp.BookingID), zap.Error(nerr))
	}
	return true, nil
}

func (s *DefaultPaymentService) closeDisputeWon(ctx context.Context, bp *models.BookingPayment, dispute *models.Dispute) error {
	if err := s.Credits.RestoreCredits(ctx, bp.BookingID); err != nil {
		s.Logger.Error("credit restoration failed", zap.String("bookingID", bp.BookingID), zap.Error(err))
	} else {
		s.appendEvent(bp.BookingID, models.EventCreditsRestored, nil)
	}

	// A reversed transfer is not automatically re-issued: re-transfer
	// touches the instructor's account and needs operator confirmation.
	t, err := s.Repo.GetTransfer(bp.BookingID)
	if err != nil {
		return err
	}
	if t != nil && t.TransferReversed {
		s.appendEvent(bp.BookingID, models.EventRetransferRequired, map[string]interface{}{
			"gatewayTransferId": t.GatewayTransferID,
			"amount":            t.Amount,
		})
	}

	bp.SettlementOutcome = models.SettlementOutcomeDisputeWon
	return s.transition(bp, models.PaymentStatusSettled, models.EventDisputeWon, map[string]interface{}{
		"disputeId": dispute.GatewayDisputeID,
	})
}

func (s *DefaultPaymentService) closeDisputeLost(bp *models.BookingPayment, dispute *models.Dispute) error {
	// Forfeited credit stays forfeited: it was the cost basis disputed
	// away. Account-restriction decisions belong to trust & safety; the
	// audit event is the signal they consume.
	bp.SettlementOutcome = models.SettlementOutcomeStudentFullRefund
	return s.transition(bp, models.PaymentStatusRefunded, models.EventDisputeLost, map[string]interface{}{
		"disputeId": dispute.GatewayDisputeID,
	})
}

// reverseTransferBestEffort reverses the instructor transfer if one exists
// and is not already reversed. Failure is counted and flagged for the
// reversal-retry sweep; it never blocks dispute bookkeeping.
func (s *DefaultPaymentService) reverseTransferBestEffort(ctx context.Context, bookingID string) {
	t, err := s.Repo.GetTransfer(bookingID)
	if err != nil {
		s.Logger.Error("failed to load transfer for reversal", zap.String("bookingID", bookingID), zap.Error(err))
		return
	}
	if t == nil || t.TransferReversed {
		return
	}

	if err := s.Gateway.ReverseTransfer(ctx, t.GatewayTransferID); err != nil {
		t.TransferReversalFailed = true
		t.TransferReversalRetryCount++
		if uerr := s.Repo.UpdateTransfer(t); uerr != nil {
			s.Logger.Error("failed to record reversal failure", zap.String("bookingID", bookingID), zap.Error(uerr))
		}
		s.appendEvent(bookingID, models.EventTransferReversalFail, map[string]interface{}{
			"gatewayTransferId": t.GatewayTransferID,
			"retryCount":        t.TransferReversalRetryCount,
			"error":             err.Error(),
		})
		s.Logger.Error("transfer reversal failed",
			zap.String("bookingID", bookingID),
			zap.String("transferID", t.GatewayTransferID),
			zap.Error(err),
		)
		return
	}

	t.TransferReversed = true
	t.TransferReversalFailed = false
	if err := s.Repo.UpdateTransfer(t); err != nil {
		s.Logger.Error("failed to record transfer reversal", zap.String("bookingID", bookingID), zap.Error(err))
		return
	}
	s.appendEvent(bookingID, models.EventTransferReversed, map[string]interface{}{
		"gatewayTransferId": t.GatewayTransferID,
		"amount":            t.Amount,
	})
}

func (s *DefaultPaymentService) forfeitCreditsBestEffort(ctx context.Context, bookingID string) {
	spent, err := s.Credits.SpentCredits(ctx, bookingID)
	if err != nil {
		s.Logger.Error("failed to read spent credits", zap.String("bookingID", bookingID), zap.Error(err))
		return
	}
	if spent <= 0 {
		return
	}
	if err := s.Credits.ForfeitCredits(ctx, bookingID); err != nil {
		s.Logger.Error("credit forfeiture failed", zap.String("bookingID", bookingID), zap.Error(err))
		return
	}
	s.appendEvent(bookingID, models.EventCreditsForfeited, map[string]interface{}{
		"amount": spent,
	})
}
