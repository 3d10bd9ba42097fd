package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PolicyStore loads a seller's working-hours policy. Missing sellers and
// sellers without a policy are reported as ErrNotFound.
type PolicyStore interface {
	GetWorkingHoursPolicy(ctx context.Context, sellerID string) (WorkingHoursPolicy, error)
}

// BusySource returns the seller's busy intervals overlapping [start, end].
type BusySource interface {
	Query(ctx context.Context, sellerID string, start, end time.Time, timezone string) ([]BusyInterval, error)
}

// Slot is a bookable slot projected into the requester's timezone.
type Slot struct {
	Start      time.Time
	End        time.Time
	StartLocal string
	EndLocal   string
}

// Service computes availability from a policy store and a live busy source.
type Service struct {
	policies PolicyStore
	busy     BusySource
	logger   *slog.Logger
}

// NewService wires the collaborators; it holds no other state.
func NewService(policies PolicyStore, busy BusySource, logger *slog.Logger) *Service {
	return &Service{policies: policies, busy: busy, logger: logger}
}

// Compute returns the bookable slots for civilDate as seen from timezone.
// Busy intervals are fetched on every call; a fetch failure fails the whole
// computation.
func (s *Service) Compute(ctx context.Context, sellerID, civilDate, timezone string, now time.Time) ([]Slot, error) {
	ctx, span := otel.Tracer("availability").Start(ctx, "availability.Compute")
	defer span.End()

	sellerID = strings.TrimSpace(sellerID)
	if sellerID == "" {
		return nil, fmt.Errorf("%w: seller id is required", ErrInvalidArgument)
	}
	date, err := ParseDate(civilDate)
	if err != nil {
		return nil, err
	}
	loc, err := LoadLocation(timezone)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("seller.id", sellerID),
		attribute.String("availability.date", date.String()),
		attribute.String("availability.timezone", loc.String()),
	)

	policy, err := s.policies.GetWorkingHoursPolicy(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	policy = policy.anchoredIn(loc)

	dayStart, dayEnd := date.window(loc)
	candidates := candidatesWithin(policy, dayStart, dayEnd)
	if len(candidates) == 0 {
		return []Slot{}, nil
	}

	queryEnd := dayEnd
	if last := candidates[len(candidates)-1].End; last.After(queryEnd) {
		queryEnd = last
	}
	busy, err := s.fetchBusy(ctx, sellerID, dayStart, queryEnd, loc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "busy fetch failed")
		return nil, err
	}

	kept := Filter(candidates, policy, busy, now)
	slots := make([]Slot, 0, len(kept))
	for _, c := range kept {
		slots = append(slots, Slot{
			Start:      c.Start,
			End:        c.End,
			StartLocal: ToLocal(c.Start, loc),
			EndLocal:   ToLocal(c.End, loc),
		})
	}
	span.SetAttributes(attribute.Int("availability.slots", len(slots)))
	return slots, nil
}

// CheckSlot confirms that [start, end) is still one of the seller's bookable
// slots, against a fresh busy fetch. timezone anchors policies stored
// without one, as in Compute.
func (s *Service) CheckSlot(ctx context.Context, sellerID, timezone string, start, end time.Time, now time.Time) error {
	sellerID = strings.TrimSpace(sellerID)
	if sellerID == "" {
		return fmt.Errorf("%w: seller id is required", ErrInvalidArgument)
	}
	if !start.Before(end) {
		return fmt.Errorf("%w: slot start must be before end", ErrInvalidArgument)
	}
	loc, err := LoadLocation(timezone)
	if err != nil {
		return err
	}
	policy, err := s.policies.GetWorkingHoursPolicy(ctx, sellerID)
	if err != nil {
		return err
	}
	policy = policy.anchoredIn(loc)

	if start.Before(now) {
		return fmt.Errorf("%w: %s has already started", ErrSlotUnavailable, start.Format(time.RFC3339))
	}
	if end.Sub(start) != policy.MeetingDuration {
		return fmt.Errorf("%w: meetings last %s", ErrInvalidArgument, policy.MeetingDuration)
	}

	var match []Candidate
	for _, c := range Generate(policy, DateOf(start.In(policy.location()))) {
		if c.Start.Equal(start) && c.End.Equal(end) {
			match = []Candidate{c}
			break
		}
	}
	if match == nil {
		return fmt.Errorf("%w: %s is not on the seller's slot grid", ErrSlotUnavailable, start.Format(time.RFC3339))
	}

	busy, err := s.fetchBusy(ctx, sellerID, start, end, loc)
	if err != nil {
		return err
	}
	if len(Filter(match, policy, busy, now)) == 0 {
		return fmt.Errorf("%w: %s is no longer free", ErrSlotUnavailable, start.Format(time.RFC3339))
	}
	return nil
}

func (s *Service) fetchBusy(ctx context.Context, sellerID string, start, end time.Time, loc *time.Location) ([]BusyInterval, error) {
	busy, err := s.busy.Query(ctx, sellerID, start, end, loc.String())
	if err != nil {
		s.logger.Warn("busy interval fetch failed", "seller_id", sellerID, "err", err)
		if errors.Is(err, ErrUpstreamUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	return busy, nil
}
