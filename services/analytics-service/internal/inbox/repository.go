package inbox

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/calbook/libs/mongox"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository remembers processed event ids in the inbox_events collection.
type Repository struct {
	events *mongo.Collection
}

func NewRepository(db *mongo.Database) *Repository {
	return &Repository{events: db.Collection("inbox_events")}
}

func (r *Repository) EnsureIndexes(ctx context.Context) error {
	_, err := r.events.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "event_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// Record claims eventID. It reports false when the event was already seen.
func (r *Repository) Record(ctx context.Context, eventID string, eventType string) (bool, error) {
	_, err := r.events.InsertOne(ctx, bson.M{
		"event_id":    eventID,
		"event_type":  eventType,
		"received_at": time.Now().UTC(),
	})
	if err == nil {
		return true, nil
	}
	if mongox.IsDuplicateKey(err) {
		return false, nil
	}
	return false, err
}

// Forget releases a claim so a failed event can be processed again.
func (r *Repository) Forget(ctx context.Context, eventID string) error {
	_, err := r.events.DeleteOne(ctx, bson.M{"event_id": eventID})
	return err
}
