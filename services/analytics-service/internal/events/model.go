package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	TopicBookingCreated   = "booking.created.v1"
	TopicBookingCancelled = "booking.cancelled.v1"

	TypeBookingCreated   = "booking_created"
	TypeBookingCancelled = "booking_cancelled"
)

// ErrMalformed marks events that can never be recorded.
var ErrMalformed = errors.New("malformed event")

// bookingEvent is the payload of booking.* topics.
type bookingEvent struct {
	BookingID   string    `json:"booking_id"`
	SellerID    string    `json:"seller_id"`
	BuyerID     string    `json:"buyer_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Timezone    string    `json:"timezone"`
	CancelledBy string    `json:"cancelled_by,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Record is one row of the analytics collection.
type Record struct {
	EventID   string    `bson:"event_id"`
	SellerID  string    `bson:"seller_id"`
	EventType string    `bson:"event_type"`
	Metadata  Metadata  `bson:"metadata"`
	Timestamp time.Time `bson:"timestamp"`
}

type Metadata struct {
	BookingID   string    `bson:"booking_id"`
	BuyerID     string    `bson:"buyer_id"`
	StartTime   time.Time `bson:"start_time"`
	CancelledBy string    `bson:"cancelled_by,omitempty"`
	DayOfWeek   int       `bson:"day_of_week"`
	Hour        int       `bson:"hour"`
}

// Decode turns a booking event into an analytics record. Day and hour are
// taken from when the booking action happened, in UTC.
func Decode(eventID, topic string, raw []byte) (Record, error) {
	var eventType string
	switch topic {
	case TopicBookingCreated:
		eventType = TypeBookingCreated
	case TopicBookingCancelled:
		eventType = TypeBookingCancelled
	default:
		return Record{}, fmt.Errorf("%w: unexpected topic %q", ErrMalformed, topic)
	}

	var evt bookingEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if evt.BookingID == "" || evt.SellerID == "" || evt.OccurredAt.IsZero() {
		return Record{}, fmt.Errorf("%w: booking_id, seller_id and occurred_at are required", ErrMalformed)
	}

	at := evt.OccurredAt.UTC()
	return Record{
		EventID:   eventID,
		SellerID:  evt.SellerID,
		EventType: eventType,
		Metadata: Metadata{
			BookingID:   evt.BookingID,
			BuyerID:     evt.BuyerID,
			StartTime:   evt.StartTime.UTC(),
			CancelledBy: evt.CancelledBy,
			DayOfWeek:   int(at.Weekday()),
			Hour:        at.Hour(),
		},
		Timestamp: at,
	}, nil
}
