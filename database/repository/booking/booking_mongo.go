// File: database/repository/booking/booking_mongo.go
package bookingRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"instructly/database"
	"instructly/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoBookingRepo implements BookingRepository on the bookings collection
// owned by the scheduling layer.
type MongoBookingRepo struct {
	coll *mongo.Collection
}

func NewMongoBookingRepo() *MongoBookingRepo {
	return &MongoBookingRepo{coll: database.DB().Collection("bookings")}
}

func newContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// GetByID fetches a booking, nil if absent.
func (r *MongoBookingRepo) GetByID(bookingID string) (*models.Booking, error) {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	var b models.Booking
	err := r.coll.FindOne(ctx, bson.M{"id": bookingID}).Decode(&b)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch booking %s: %w", bookingID, err)
	}
	return &b, nil
}

// ListEnteringAuthWindow returns confirmed bookings with lessons starting
// inside the authorization horizon.
func (r *MongoBookingRepo) ListEnteringAuthWindow(now time.Time, horizon time.Duration, limit int64) ([]models.Booking, error) {
	ctx, cancel := newContext(10 * time.Second)
	defer cancel()

	filter := bson.M{
		"status": models.BookingStatusConfirmed,
		"lessonStart": bson.M{
			"$gte": now,
			"$lte": now.Add(horizon),
		},
	}
	return r.list(ctx, filter, limit)
}

// ListCompletedUnsettled returns completed lessons; the capture path is
// idempotent, so re-listing an already settled booking is harmless.
func (r *MongoBookingRepo) ListCompletedUnsettled(now time.Time, limit int64) ([]models.Booking, error) {
	ctx, cancel := newContext(10 * time.Second)
	defer cancel()

	filter := bson.M{
		"status":    models.BookingStatusCompleted,
		"lessonEnd": bson.M{"$lte": now},
	}
	return r.list(ctx, filter, limit)
}

func (r *MongoBookingRepo) list(ctx context.Context, filter bson.M, limit int64) ([]models.Booking, error) {
	opts := options.Find().SetSort(bson.D{{Key: "lessonStart", Value: 1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var out []models.Booking
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}
	return out, nil
}
