// File: database/repository/payment/paymentMongoQueries.go
package paymentRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"instructly/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// FindByIntentID resolves the booking payment that owns a gateway
// authorization hold. Used by webhook handlers to map events back to a
// booking; nil if the intent is unknown to this system.
func (r *MongoPaymentRepo) FindByIntentID(intentID string) (*models.BookingPayment, error) {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	var bp models.BookingPayment
	err := r.payments.FindOne(ctx, bson.M{"paymentIntentId": intentID}).Decode(&bp)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find booking payment by intent %s: %w", intentID, err)
	}
	return &bp, nil
}

// FindTransferByGatewayID resolves a transfer by its gateway id, nil if
// the transfer is unknown to this system.
func (r *MongoPaymentRepo) FindTransferByGatewayID(gatewayTransferID string) (*models.Transfer, error) {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	var t models.Transfer
	err := r.transfers.FindOne(ctx, bson.M{"gatewayTransferId": gatewayTransferID}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find transfer %s: %w", gatewayTransferID, err)
	}
	return &t, nil
}

// GetOpenDispute returns the booking's open dispute, nil if none.
func (r *MongoPaymentRepo) GetOpenDispute(bookingID string) (*models.Dispute, error) {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	var d models.Dispute
	filter := bson.M{"bookingId": bookingID, "status": models.DisputeStatusOpen}
	err := r.disputes.FindOne(ctx, filter).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch open dispute for booking %s: %w", bookingID, err)
	}
	return &d, nil
}

// GetDisputeByGatewayID returns the dispute for a gateway id, nil if none.
func (r *MongoPaymentRepo) GetDisputeByGatewayID(gatewayDisputeID string) (*models.Dispute, error) {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	var d models.Dispute
	err := r.disputes.FindOne(ctx, bson.M{"gatewayDisputeId": gatewayDisputeID}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch dispute %s: %w", gatewayDisputeID, err)
	}
	return &d, nil
}

// ListEvents returns the booking's audit trail, oldest first.
func (r *MongoPaymentRepo) ListEvents(bookingID string, limit int64) ([]models.PaymentEvent, error) {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cursor, err := r.events.Find(ctx, bson.M{"bookingId": bookingID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment events for booking %s: %w", bookingID, err)
	}
	return decodePayments[models.PaymentEvent](ctx, cursor)
}

// ListDueAuthorizations returns scheduled payments whose retry time has
// arrived. Drives the authorization sweep.
func (r *MongoPaymentRepo) ListDueAuthorizations(now time.Time, limit int64) ([]models.BookingPayment, error) {
	ctx, cancel := newContext(10 * time.Second)
	defer cancel()

	filter := bson.M{
		"paymentStatus":    models.PaymentStatusScheduled,
		"authScheduledFor": bson.M{"$lte": now},
	}
	cursor, err := r.payments.Find(ctx, filter, findLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list due authorizations: %w", err)
	}
	return decodePayments[models.BookingPayment](ctx, cursor)
}

// ListRetryableCaptures returns authorized payments with a failed capture
// whose backoff has elapsed and that are still under the attempt cap.
// Drives the capture-retry sweep.
func (r *MongoPaymentRepo) ListRetryableCaptures(now time.Time, maxAttempts int, limit int64) ([]models.BookingPayment, error) {
	ctx, cancel := newContext(10 * time.Second)
	defer cancel()

	filter := bson.M{
		"paymentStatus":     models.PaymentStatusAuthorized,
		"captureRetryAt":    bson.M{"$lte": now},
		"captureRetryCount": bson.M{"$lt": maxAttempts},
		"needsReview":       false,
	}
	cursor, err := r.payments.Find(ctx, filter, findLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list retryable captures: %w", err)
	}
	return decodePayments[models.BookingPayment](ctx, cursor)
}

// ListFailedReversals returns transfers whose dispute-driven reversal
// failed and still needs the retry sweep.
func (r *MongoPaymentRepo) ListFailedReversals(limit int64) ([]models.Transfer, error) {
	ctx, cancel := newContext(10 * time.Second)
	defer cancel()

	filter := bson.M{
		"transferReversalFailed": true,
		"transferReversed":       false,
	}
	cursor, err := r.transfers.Find(ctx, filter, findLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list failed reversals: %w", err)
	}
	return decodePayments[models.Transfer](ctx, cursor)
}

// ListNeedsReview returns payments flagged for manual review.
func (r *MongoPaymentRepo) ListNeedsReview(limit int64) ([]models.BookingPayment, error) {
	ctx, cancel := newContext(10 * time.Second)
	defer cancel()

	cursor, err := r.payments.Find(ctx, bson.M{"needsReview": true}, findLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list payments needing review: %w", err)
	}
	return decodePayments[models.BookingPayment](ctx, cursor)
}

func findLimit(limit int64) *options.FindOptions {
	opts := options.Find()
	if limit > 0 {
		opts.SetLimit(limit)
	}
	return opts
}

func decodePayments[T any](ctx context.Context, cursor *mongo.Cursor) ([]T, error) {
	defer cursor.Close(ctx)
	var out []T
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode documents: %w", err)
	}
	return out, nil
}
