package paymentRepo

import (
	"time"

	"instructly/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// ensureIndexes creates the ledger indexes. One BookingPayment per booking
// and one Dispute per gateway dispute id are enforced here, not in code.
func (r *MongoPaymentRepo) ensureIndexes() {
	ctx, cancel := newContext(10 * time.Second)
	defer cancel()

	logger := utils.GetLogger()

	paymentIdx := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "bookingId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "paymentIntentId", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
		{
			Keys: bson.D{{Key: "paymentStatus", Value: 1}, {Key: "authScheduledFor", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "paymentStatus", Value: 1}, {Key: "captureRetryAt", Value: 1}},
		},
	}
	if _, err := r.payments.Indexes().CreateMany(ctx, paymentIdx); err != nil {
		logger.Warn("failed to create booking_payments indexes", zap.Error(err))
	}

	if _, err := r.transfers.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "bookingId", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		logger.Warn("failed to create transfers index", zap.Error(err))
	}

	if _, err := r.disputes.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "gatewayDisputeId", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		logger.Warn("failed to create disputes index", zap.Error(err))
	}

	if _, err := r.events.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "bookingId", Value: 1}, {Key: "createdAt", Value: 1}},
	}); err != nil {
		logger.Warn("failed to create payment_events index", zap.Error(err))
	}
}
