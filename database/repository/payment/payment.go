package paymentRepo

import (
	"context"
	"time"

	"instructly/database"

	"go.mongodb.org/mongo-driver/mongo"
)

// MongoPaymentRepo implements PaymentRepository on MongoDB.
type MongoPaymentRepo struct {
	payments  *mongo.Collection
	transfers *mongo.Collection
	disputes  *mongo.Collection
	events    *mongo.Collection
}

// NewMongoPaymentRepo returns a repository bound to the ledger collections.
func NewMongoPaymentRepo() *MongoPaymentRepo {
	db := database.DB()
	repo := &MongoPaymentRepo{
		payments:  db.Collection("booking_payments"),
		transfers: db.Collection("transfers"),
		disputes:  db.Collection("disputes"),
		events:    db.Collection("payment_events"),
	}
	repo.ensureIndexes()
	return repo
}

func newContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
