// File: database/repository/payment/paymentMongoCrud.go
package paymentRepo

import (
	"errors"
	"fmt"
	"time"

	"instructly/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Create inserts a new booking payment document.
func (r *MongoPaymentRepo) Create(bp *models.BookingPayment) error {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	now := time.Now()
	bp.CreatedAt = now
	bp.UpdatedAt = now

	_, err := r.payments.InsertOne(ctx, bp)
	if err != nil {
		return fmt.Errorf("failed to create booking payment: %w", err)
	}
	return nil
}

// Update replaces the mutable fields of an existing booking payment.
func (r *MongoPaymentRepo) Update(bp *models.BookingPayment) error {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	bp.UpdatedAt = time.Now()
	filter := bson.M{"bookingId": bp.BookingID}
	update := bson.M{"$set": bp}

	result, err := r.payments.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update booking payment %s: %w", bp.BookingID, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("booking payment %s not found", bp.BookingID)
	}
	return nil
}

// GetByBookingID fetches the payment record for a booking, nil if absent.
func (r *MongoPaymentRepo) GetByBookingID(bookingID string) (*models.BookingPayment, error) {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	var bp models.BookingPayment
	err := r.payments.FindOne(ctx, bson.M{"bookingId": bookingID}).Decode(&bp)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch booking payment %s: %w", bookingID, err)
	}
	return &bp, nil
}

// CreateTransfer inserts the instructor payout record for a booking.
func (r *MongoPaymentRepo) CreateTransfer(t *models.Transfer) error {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := r.transfers.InsertOne(ctx, t)
	if err != nil {
		return fmt.Errorf("failed to create transfer for booking %s: %w", t.BookingID, err)
	}
	return nil
}

// UpdateTransfer replaces the mutable fields of a transfer record.
func (r *MongoPaymentRepo) UpdateTransfer(t *models.Transfer) error {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	t.UpdatedAt = time.Now()
	filter := bson.M{"bookingId": t.BookingID}
	update := bson.M{"$set": t}

	result, err := r.transfers.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update transfer for booking %s: %w", t.BookingID, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("transfer for booking %s not found", t.BookingID)
	}
	return nil
}

// GetTransfer fetches the payout record for a booking, nil if absent.
func (r *MongoPaymentRepo) GetTransfer(bookingID string) (*models.Transfer, error) {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	var t models.Transfer
	err := r.transfers.FindOne(ctx, bson.M{"bookingId": bookingID}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transfer for booking %s: %w", bookingID, err)
	}
	return &t, nil
}

// CreateDispute inserts a new dispute record.
func (r *MongoPaymentRepo) CreateDispute(d *models.Dispute) error {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	_, err := r.disputes.InsertOne(ctx, d)
	if err != nil {
		return fmt.Errorf("failed to create dispute %s: %w", d.GatewayDisputeID, err)
	}
	return nil
}

// UpdateDispute replaces the mutable fields of a dispute record.
func (r *MongoPaymentRepo) UpdateDispute(d *models.Dispute) error {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	filter := bson.M{"gatewayDisputeId": d.GatewayDisputeID}
	update := bson.M{"$set": d}

	result, err := r.disputes.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update dispute %s: %w", d.GatewayDisputeID, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("dispute %s not found", d.GatewayDisputeID)
	}
	return nil
}

// AppendEvent writes one audit-trail entry. Events are insert-only.
func (r *MongoPaymentRepo) AppendEvent(ev *models.PaymentEvent) error {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	_, err := r.events.InsertOne(ctx, ev)
	if err != nil {
		return fmt.Errorf("failed to append payment event for booking %s: %w", ev.BookingID, err)
	}
	return nil
}
