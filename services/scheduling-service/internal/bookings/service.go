package bookings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/calbook/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/calbook/services/scheduling-service/internal/gcal"
	"github.com/md-rashed-zaman/calbook/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/calbook/services/scheduling-service/internal/sellers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	maxTitleLength     = 200
	defaultDescription = "Meeting booked through calbook"
)

var bookingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "calbook",
	Name:      "bookings_total",
	Help:      "Booking operations by action and result.",
}, []string{"action", "result"})

// Tx is the transactional view of the store.
type Tx interface {
	Insert(ctx context.Context, b *Booking) error
	SetCalendarEvent(ctx context.Context, id, eventID, meetLink string) error
	GetForUpdate(ctx context.Context, id string) (Booking, error)
	Cancel(ctx context.Context, id, cancelledBy string) (time.Time, error)
	AppendEvent(ctx context.Context, evt outbox.Event) error
}

type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Get(ctx context.Context, id string) (Booking, error)
	List(ctx context.Context, userID, role string, limit int) ([]Booking, error)
}

type SlotChecker interface {
	CheckSlot(ctx context.Context, sellerID, timezone string, start, end time.Time, now time.Time) error
}

type Calendar interface {
	CreateEvent(ctx context.Context, sellerID string, req gcal.EventRequest) (gcal.Event, error)
	CancelEvent(ctx context.Context, sellerID, eventID string) error
}

type Directory interface {
	GetUser(ctx context.Context, id string) (sellers.User, error)
}

// Notifier schedules participant emails. Failures are logged, never fatal.
type Notifier interface {
	BookingConfirmed(ctx context.Context, b Booking) error
	BookingCancelled(ctx context.Context, b Booking) error
}

type Deps struct {
	Store     Store
	Slots     SlotChecker
	Calendar  Calendar
	Directory Directory
	Notifier  Notifier
	Logger    *slog.Logger
	Now       func() time.Time
}

type Service struct {
	store     Store
	slots     SlotChecker
	calendar  Calendar
	directory Directory
	notifier  Notifier
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(d Deps) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Service{
		store:     d.Store,
		slots:     d.Slots,
		calendar:  d.Calendar,
		directory: d.Directory,
		notifier:  d.Notifier,
		logger:    d.Logger,
		now:       d.Now,
	}
}

type CreateRequest struct {
	SellerID    string
	BuyerID     string
	Start       time.Time
	End         time.Time
	Timezone    string
	Title       string
	Description string
}

func (r *CreateRequest) normalize() error {
	r.SellerID = strings.TrimSpace(r.SellerID)
	r.BuyerID = strings.TrimSpace(r.BuyerID)
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
	r.Timezone = strings.TrimSpace(r.Timezone)
	if r.Timezone == "" {
		r.Timezone = "UTC"
	}
	switch {
	case r.SellerID == "" || r.BuyerID == "":
		return fmt.Errorf("%w: seller and buyer are required", availability.ErrInvalidArgument)
	case r.SellerID == r.BuyerID:
		return fmt.Errorf("%w: sellers cannot book themselves", availability.ErrInvalidArgument)
	case r.Title == "":
		return fmt.Errorf("%w: title is required", availability.ErrInvalidArgument)
	case len(r.Title) > maxTitleLength:
		return fmt.Errorf("%w: title longer than %d characters", availability.ErrInvalidArgument, maxTitleLength)
	case r.Start.IsZero() || r.End.IsZero():
		return fmt.Errorf("%w: start and end are required", availability.ErrInvalidArgument)
	}
	if _, err := availability.LoadLocation(r.Timezone); err != nil {
		return err
	}
	if r.Description == "" {
		r.Description = defaultDescription
	}
	return nil
}

// Create books a slot: it re-checks availability, reserves the slot in
// Postgres, puts the meeting on the seller's calendar and records a
// booking.created event, all before commit. A calendar event created for a
// transaction that then fails is deleted again.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Booking, error) {
	b, err := s.create(ctx, req)
	if err != nil {
		bookingsTotal.WithLabelValues("create", resultLabel(err)).Inc()
		return Booking{}, err
	}
	bookingsTotal.WithLabelValues("create", "ok").Inc()
	return b, nil
}

func (s *Service) create(ctx context.Context, req CreateRequest) (Booking, error) {
	if err := req.normalize(); err != nil {
		return Booking{}, err
	}
	seller, err := s.directory.GetUser(ctx, req.SellerID)
	if err != nil {
		return Booking{}, err
	}
	if !seller.IsSeller() {
		return Booking{}, fmt.Errorf("%w: seller %s", availability.ErrNotFound, req.SellerID)
	}
	buyer, err := s.directory.GetUser(ctx, req.BuyerID)
	if err != nil {
		return Booking{}, err
	}

	now := s.now()
	if err := s.slots.CheckSlot(ctx, req.SellerID, req.Timezone, req.Start, req.End, now); err != nil {
		return Booking{}, err
	}

	b := Booking{
		ID:          uuid.NewString(),
		SellerID:    req.SellerID,
		BuyerID:     req.BuyerID,
		StartTime:   req.Start.UTC(),
		EndTime:     req.End.UTC(),
		Timezone:    req.Timezone,
		Title:       req.Title,
		Description: req.Description,
		Status:      StatusConfirmed,
	}

	var created *gcal.Event
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Insert(ctx, &b); err != nil {
			return err
		}
		ev, err := s.calendar.CreateEvent(ctx, b.SellerID, gcal.EventRequest{
			Summary:     b.Title,
			Description: b.Description,
			Start:       b.StartTime,
			End:         b.EndTime,
			Timezone:    b.Timezone,
			Attendees:   attendees(seller, buyer),
			RequestID:   b.ID,
		})
		if err != nil {
			return fmt.Errorf("%w: create calendar event: %w", availability.ErrUpstreamUnavailable, err)
		}
		created = &ev
		b.CalendarEventID, b.MeetLink = ev.ID, ev.MeetLink
		if err := tx.SetCalendarEvent(ctx, b.ID, ev.ID, ev.MeetLink); err != nil {
			return err
		}
		evt, err := outbox.NewEvent(aggregateType, b.ID, EventBookingCreated, payloadOf(b, now))
		if err != nil {
			return err
		}
		return tx.AppendEvent(ctx, evt)
	})
	if err != nil {
		if created != nil {
			s.compensate(ctx, b.SellerID, created.ID)
		}
		return Booking{}, err
	}

	s.logger.Info("booking created", "booking_id", b.ID, "seller_id", b.SellerID, "start", b.StartTime)
	if err := s.notifier.BookingConfirmed(ctx, b); err != nil {
		s.logger.Warn("failed to schedule booking emails", "booking_id", b.ID, "err", err)
	}
	return b, nil
}

func (s *Service) compensate(ctx context.Context, sellerID, eventID string) {
	ctx = context.WithoutCancel(ctx)
	if err := s.calendar.CancelEvent(ctx, sellerID, eventID); err != nil {
		s.logger.Error("failed to delete calendar event of aborted booking",
			"seller_id", sellerID, "event_id", eventID, "err", err)
	}
}

// Cancel marks the booking cancelled on behalf of userID, who must be its
// buyer or seller. Cancelling twice returns the cancelled booking.
func (s *Service) Cancel(ctx context.Context, bookingID, userID string) (Booking, error) {
	if _, err := uuid.Parse(strings.TrimSpace(bookingID)); err != nil {
		return Booking{}, fmt.Errorf("%w: invalid booking id", availability.ErrInvalidArgument)
	}

	var (
		b       Booking
		changed bool
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		b, err = tx.GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		role, ok := b.RoleOf(userID)
		if !ok {
			return ErrForbidden
		}
		if !b.Confirmed() {
			return nil
		}
		at, err := tx.Cancel(ctx, b.ID, role)
		if err != nil {
			return err
		}
		b.Status, b.CancelledBy, b.CancelledAt = StatusCancelled, role, &at
		changed = true

		evt, err := outbox.NewEvent(aggregateType, b.ID, EventBookingCancelled, payloadOf(b, at))
		if err != nil {
			return err
		}
		return tx.AppendEvent(ctx, evt)
	})
	if err != nil {
		bookingsTotal.WithLabelValues("cancel", resultLabel(err)).Inc()
		return Booking{}, err
	}
	if !changed {
		return b, nil
	}
	bookingsTotal.WithLabelValues("cancel", "ok").Inc()
	s.logger.Info("booking cancelled", "booking_id", b.ID, "cancelled_by", b.CancelledBy)

	if b.CalendarEventID != "" {
		if err := s.calendar.CancelEvent(ctx, b.SellerID, b.CalendarEventID); err != nil {
			s.logger.Warn("failed to delete calendar event", "booking_id", b.ID, "err", err)
		}
	}
	if err := s.notifier.BookingCancelled(ctx, b); err != nil {
		s.logger.Warn("failed to schedule cancellation email", "booking_id", b.ID, "err", err)
	}
	return b, nil
}

// View is a booking with the other participant's public profile.
type View struct {
	Booking
	Counterpart *sellers.User `json:"counterpart,omitempty"`
}

// List returns the caller's bookings. Sellers see bookings made with them,
// everyone else sees bookings they made.
func (s *Service) List(ctx context.Context, userID, role string, limit int) ([]View, error) {
	items, err := s.store.List(ctx, userID, role, limit)
	if err != nil {
		return nil, err
	}
	cache := map[string]*sellers.User{}
	views := make([]View, 0, len(items))
	for _, b := range items {
		otherID := b.SellerID
		if role == sellers.RoleSeller {
			otherID = b.BuyerID
		}
		other, seen := cache[otherID]
		if !seen {
			if u, err := s.directory.GetUser(ctx, otherID); err == nil {
				u.Preferences = nil
				other = &u
			} else {
				s.logger.Warn("booking counterpart lookup failed", "user_id", otherID, "err", err)
			}
			cache[otherID] = other
		}
		views = append(views, View{Booking: b, Counterpart: other})
	}
	return views, nil
}

func attendees(users ...sellers.User) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		if u.Email != "" {
			out = append(out, u.Email)
		}
	}
	return out
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrConflict), errors.Is(err, availability.ErrSlotUnavailable):
		return "conflict"
	case errors.Is(err, availability.ErrInvalidArgument):
		return "invalid"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, availability.ErrNotFound):
		return "not_found"
	case errors.Is(err, availability.ErrUpstreamUnavailable):
		return "upstream"
	default:
		return "error"
	}
}
