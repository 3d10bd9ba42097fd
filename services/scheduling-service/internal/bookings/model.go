package bookings

import (
	"errors"
	"time"
)

const (
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"

	EventBookingCreated   = "booking.created.v1"
	EventBookingCancelled = "booking.cancelled.v1"

	aggregateType = "booking"
)

var (
	// ErrConflict means another confirmed booking already holds the slot.
	ErrConflict = errors.New("slot already booked")
	// ErrForbidden means the caller is neither the buyer nor the seller.
	ErrForbidden = errors.New("not a participant of this booking")
)

type Booking struct {
	ID              string     `json:"id"`
	SellerID        string     `json:"seller_id"`
	BuyerID         string     `json:"buyer_id"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         time.Time  `json:"end_time"`
	Timezone        string     `json:"timezone"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	MeetLink        string     `json:"meet_link,omitempty"`
	CalendarEventID string     `json:"calendar_event_id,omitempty"`
	Status          string     `json:"status"`
	CancelledBy     string     `json:"cancelled_by,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (b Booking) Confirmed() bool { return b.Status == StatusConfirmed }

// RoleOf reports whether userID is the booking's seller or buyer.
func (b Booking) RoleOf(userID string) (string, bool) {
	switch userID {
	case b.SellerID:
		return "seller", true
	case b.BuyerID:
		return "buyer", true
	default:
		return "", false
	}
}

// eventPayload is the body of booking.* events.
type eventPayload struct {
	BookingID   string    `json:"booking_id"`
	SellerID    string    `json:"seller_id"`
	BuyerID     string    `json:"buyer_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Timezone    string    `json:"timezone"`
	Status      string    `json:"status"`
	CancelledBy string    `json:"cancelled_by,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func payloadOf(b Booking, at time.Time) eventPayload {
	return eventPayload{
		BookingID:   b.ID,
		SellerID:    b.SellerID,
		BuyerID:     b.BuyerID,
		StartTime:   b.StartTime.UTC(),
		EndTime:     b.EndTime.UTC(),
		Timezone:    b.Timezone,
		Status:      b.Status,
		CancelledBy: b.CancelledBy,
		OccurredAt:  at.UTC(),
	}
}
