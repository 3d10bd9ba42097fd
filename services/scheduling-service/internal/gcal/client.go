package gcal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/calbook/services/scheduling-service/internal/availability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const primaryCalendar = "primary"

// TokenStore yields a user's OAuth refresh token.
type TokenStore interface {
	RefreshToken(ctx context.Context, userID string) (string, error)
}

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Timeout bounds each Calendar API call.
	Timeout time.Duration
}

// Client talks to Google Calendar on behalf of a seller. It implements
// availability.BusySource.
type Client struct {
	oauth   *oauth2.Config
	tokens  TokenStore
	timeout time.Duration
	opts    []option.ClientOption
	tracer  trace.Tracer
}

// NewClient builds a client; opts are appended to every calendar service,
// which is how tests point it at a fake server.
func NewClient(cfg Config, tokens TokenStore, opts ...option.ClientOption) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{calendar.CalendarScope},
		},
		tokens:  tokens,
		timeout: cfg.Timeout,
		opts:    opts,
		tracer:  otel.Tracer("gcal"),
	}
}

func (c *Client) service(ctx context.Context, userID string) (*calendar.Service, error) {
	refresh, err := c.tokens.RefreshToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	ts := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refresh})
	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, c.opts...)
	return calendar.NewService(ctx, opts...)
}

// Query returns the seller's busy intervals on the primary calendar. Every
// failure, including a per-calendar error in an otherwise successful
// response, is reported as availability.ErrUpstreamUnavailable.
func (c *Client) Query(ctx context.Context, sellerID string, start, end time.Time, timezone string) ([]availability.BusyInterval, error) {
	ctx, span := c.tracer.Start(ctx, "gcal.FreeBusy", trace.WithAttributes(attribute.String("seller.id", sellerID)))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	busy, err := c.query(ctx, sellerID, start, end, timezone)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "freebusy failed")
		return nil, fmt.Errorf("%w: %w", availability.ErrUpstreamUnavailable, err)
	}
	span.SetAttributes(attribute.Int("gcal.busy_count", len(busy)))
	return busy, nil
}

func (c *Client) query(ctx context.Context, sellerID string, start, end time.Time, timezone string) ([]availability.BusyInterval, error) {
	svc, err := c.service(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	resp, err := svc.Freebusy.Query(&calendar.FreeBusyRequest{
		TimeMin:  start.UTC().Format(time.RFC3339),
		TimeMax:  end.UTC().Format(time.RFC3339),
		TimeZone: timezone,
		Items:    []*calendar.FreeBusyRequestItem{{Id: primaryCalendar}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("freebusy query: %w", err)
	}

	cal, ok := resp.Calendars[primaryCalendar]
	if !ok {
		return nil, errors.New("freebusy response has no primary calendar")
	}
	if len(cal.Errors) > 0 {
		return nil, fmt.Errorf("freebusy calendar error: %s/%s", cal.Errors[0].Domain, cal.Errors[0].Reason)
	}

	busy := make([]availability.BusyInterval, 0, len(cal.Busy))
	for _, p := range cal.Busy {
		if p == nil {
			continue
		}
		s, err := time.Parse(time.RFC3339, p.Start)
		if err != nil {
			return nil, fmt.Errorf("busy start %q: %w", p.Start, err)
		}
		e, err := time.Parse(time.RFC3339, p.End)
		if err != nil {
			return nil, fmt.Errorf("busy end %q: %w", p.End, err)
		}
		if !s.Before(e) {
			continue
		}
		busy = append(busy, availability.BusyInterval{Start: s, End: e})
	}
	return busy, nil
}

// EventRequest describes a meeting to put on the seller's calendar.
type EventRequest struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Timezone    string
	Attendees   []string
	// RequestID makes the Meet conference request idempotent.
	RequestID string
}

// Event is the created calendar entry.
type Event struct {
	ID       string
	MeetLink string
	HTMLLink string
}

// CreateEvent inserts the meeting with a Google Meet conference and invites
// the attendees.
func (c *Client) CreateEvent(ctx context.Context, sellerID string, req EventRequest) (Event, error) {
	ctx, span := c.tracer.Start(ctx, "gcal.CreateEvent", trace.WithAttributes(attribute.String("seller.id", sellerID)))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	svc, err := c.service(ctx, sellerID)
	if err != nil {
		span.RecordError(err)
		return Event{}, err
	}

	attendees := make([]*calendar.EventAttendee, 0, len(req.Attendees))
	for _, email := range req.Attendees {
		attendees = append(attendees, &calendar.EventAttendee{Email: email})
	}
	ev := &calendar.Event{
		Summary:     req.Summary,
		Description: req.Description,
		Start:       &calendar.EventDateTime{DateTime: req.Start.Format(time.RFC3339), TimeZone: req.Timezone},
		End:         &calendar.EventDateTime{DateTime: req.End.Format(time.RFC3339), TimeZone: req.Timezone},
		Attendees:   attendees,
		ConferenceData: &calendar.ConferenceData{
			CreateRequest: &calendar.CreateConferenceRequest{
				RequestId:             req.RequestID,
				ConferenceSolutionKey: &calendar.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		},
		Reminders: &calendar.EventReminders{
			UseDefault: false,
			Overrides: []*calendar.EventReminder{
				{Method: "email", Minutes: 60},
				{Method: "popup", Minutes: 10},
			},
			ForceSendFields: []string{"UseDefault"},
		},
	}

	created, err := svc.Events.Insert(primaryCalendar, ev).
		ConferenceDataVersion(1).
		SendUpdates("all").
		Context(ctx).
		Do()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert event failed")
		return Event{}, fmt.Errorf("insert event: %w", err)
	}
	return Event{ID: created.Id, MeetLink: meetLink(created), HTMLLink: created.HtmlLink}, nil
}

// CancelEvent deletes the event and notifies attendees. Events that are
// already gone count as cancelled.
func (c *Client) CancelEvent(ctx context.Context, sellerID, eventID string) error {
	ctx, span := c.tracer.Start(ctx, "gcal.CancelEvent", trace.WithAttributes(attribute.String("seller.id", sellerID)))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	svc, err := c.service(ctx, sellerID)
	if err != nil {
		return err
	}
	err = svc.Events.Delete(primaryCalendar, eventID).SendUpdates("all").Context(ctx).Do()
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone) {
		return nil
	}
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

func meetLink(ev *calendar.Event) string {
	if ev.HangoutLink != "" {
		return ev.HangoutLink
	}
	if ev.ConferenceData != nil {
		for _, ep := range ev.ConferenceData.EntryPoints {
			if ep != nil && ep.EntryPointType == "video" {
				return ep.Uri
			}
		}
	}
	return ""
}
