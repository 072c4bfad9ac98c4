package credit

import (
	"context"
	"fmt"
	"time"

	"instructly/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Credit entry states. Spent entries become forfeited while a dispute is
// open; a won dispute restores them to spent.
const (
	stateSpent     = "spent"
	stateForfeited = "forfeited"
)

// MongoCreditLedger implements CreditLedger on the credit_entries
// collection shared with the account-credit service.
type MongoCreditLedger struct {
	coll *mongo.Collection
}

func NewMongoCreditLedger() *MongoCreditLedger {
	return &MongoCreditLedger{coll: database.DB().Collection("credit_entries")}
}

// SpentCredits sums the credit applied to a booking.
func (l *MongoCreditLedger) SpentCredits(ctx context.Context, bookingID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{
			"bookingId": bookingID,
			"state":     bson.M{"$in": bson.A{stateSpent, stateForfeited}},
		}}},
		bson.D{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"total": bson.M{"$sum": "$amount"},
		}}},
	}
	cursor, err := l.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("failed to sum credits for booking %s: %w", bookingID, err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		Total int64 `bson:"total"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return 0, fmt.Errorf("failed to decode credit sum for booking %s: %w", bookingID, err)
	}
	if len(results) == 0 {
		return 0, nil
	}
	return results[0].Total, nil
}

// ForfeitCredits marks the booking's spent credit as forfeited so it cannot
// be reused while the funds are contested. Idempotent.
func (l *MongoCreditLedger) ForfeitCredits(ctx context.Context, bookingID string) error {
	return l.setState(ctx, bookingID, stateSpent, stateForfeited)
}

// RestoreCredits undoes a forfeiture after a dispute is won. Idempotent.
func (l *MongoCreditLedger) RestoreCredits(ctx context.Context, bookingID string) error {
	return l.setState(ctx, bookingID, stateForfeited, stateSpent)
}

func (l *MongoCreditLedger) setState(ctx context.Context, bookingID, from, to string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{"bookingId": bookingID, "state": from}
	update := bson.M{"$set": bson.M{"state": to, "updatedAt": time.Now()}}
	if _, err := l.coll.UpdateMany(ctx, filter, update); err != nil {
		return fmt.Errorf("failed to move credits for booking %s to %s: %w", bookingID, to, err)
	}
	return nil
}
