package events

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/calbook/libs/mongox"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	trendDays       = 7
	popularHourRows = 10
)

type Store struct {
	analytics *mongo.Collection
}

func NewStore(db *mongo.Database) *Store {
	return &Store{analytics: db.Collection("analytics")}
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.analytics.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "event_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "seller_id", Value: 1}, {Key: "timestamp", Value: -1}}},
	})
	return err
}

// Insert stores rec. Replays of an already stored event are ignored.
func (s *Store) Insert(ctx context.Context, rec Record) error {
	_, err := s.analytics.InsertOne(ctx, rec)
	if mongox.IsDuplicateKey(err) {
		return nil
	}
	return err
}

type DayCount struct {
	Date     string `json:"date"`
	Bookings int    `json:"bookings"`
}

type HourCount struct {
	Hour     string `json:"hour"`
	Bookings int    `json:"bookings"`
}

type Summary struct {
	BookingTrends    []DayCount  `json:"booking_trends"`
	PopularTimeSlots []HourCount `json:"popular_time_slots"`
}

type groupRow struct {
	ID    any `bson:"_id"`
	Count int `bson:"count"`
}

// SellerSummary aggregates the seller's bookings created over the last
// seven days: a per-day trend and the ten busiest hours.
func (s *Store) SellerSummary(ctx context.Context, sellerID string, now time.Time) (Summary, error) {
	match := bson.D{{Key: "$match", Value: bson.M{
		"seller_id":  sellerID,
		"event_type": TypeBookingCreated,
		"timestamp":  bson.M{"$gte": now.UTC().AddDate(0, 0, -trendDays)},
	}}}

	trendRows, err := s.aggregate(ctx, mongo.Pipeline{
		match,
		{{Key: "$group", Value: bson.M{
			"_id":   bson.M{"$dateToString": bson.M{"format": "%Y-%m-%d", "date": "$timestamp"}},
			"count": bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	})
	if err != nil {
		return Summary{}, fmt.Errorf("booking trends: %w", err)
	}
	hourRows, err := s.aggregate(ctx, mongo.Pipeline{
		match,
		{{Key: "$group", Value: bson.M{"_id": "$metadata.hour", "count": bson.M{"$sum": 1}}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: popularHourRows}},
	})
	if err != nil {
		return Summary{}, fmt.Errorf("popular hours: %w", err)
	}

	out := Summary{
		BookingTrends:    make([]DayCount, 0, len(trendRows)),
		PopularTimeSlots: make([]HourCount, 0, len(hourRows)),
	}
	for _, r := range trendRows {
		out.BookingTrends = append(out.BookingTrends, DayCount{Date: fmt.Sprint(r.ID), Bookings: r.Count})
	}
	for _, r := range hourRows {
		out.PopularTimeSlots = append(out.PopularTimeSlots, HourCount{Hour: fmt.Sprintf("%v:00", r.ID), Bookings: r.Count})
	}
	return out, nil
}

func (s *Store) aggregate(ctx context.Context, pipeline mongo.Pipeline) ([]groupRow, error) {
	cursor, err := s.analytics.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	var rows []groupRow
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
