package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/md-rashed-zaman/calbook/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/calbook/services/scheduling-service/internal/bookings"
	"github.com/md-rashed-zaman/calbook/services/scheduling-service/internal/sellers"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type enqueued struct {
	task *asynq.Task
	id   string
	at   time.Time
}

type fakeClient struct {
	tasks []enqueued
	seen  map[string]bool
}

func (c *fakeClient) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	e := enqueued{task: task}
	for _, o := range opts {
		switch o.Type() {
		case asynq.TaskIDOpt:
			e.id = o.Value().(string)
		case asynq.ProcessAtOpt:
			e.at = o.Value().(time.Time)
		}
	}
	if c.seen == nil {
		c.seen = map[string]bool{}
	}
	if c.seen[e.id] {
		return nil, asynq.ErrTaskIDConflict
	}
	c.seen[e.id] = true
	c.tasks = append(c.tasks, e)
	return &asynq.TaskInfo{ID: e.id}, nil
}

func booking(start time.Time) bookings.Booking {
	return bookings.Booking{
		ID:        "b1",
		SellerID:  "s1",
		BuyerID:   "u1",
		StartTime: start,
		EndTime:   start.Add(30 * time.Minute),
		Timezone:  "Europe/London",
		Title:     "Intro call",
		MeetLink:  "https://meet.google.com/abc-defg-hij",
		Status:    bookings.StatusConfirmed,
	}
}

func TestEnqueuerSchedulesReminders(t *testing.T) {
	now := time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)
	start := now.Add(3 * time.Hour)
	client := &fakeClient{}
	e := NewEnqueuer(client, discard())
	e.now = func() time.Time { return now }

	if err := e.BookingConfirmed(context.Background(), booking(start)); err != nil {
		t.Fatalf("confirmed: %v", err)
	}
	if len(client.tasks) != 3 {
		t.Fatalf("expected confirmation + 2 reminders, got %d", len(client.tasks))
	}
	if client.tasks[0].task.Type() != TypeBookingConfirmation || !client.tasks[0].at.IsZero() {
		t.Fatalf("unexpected first task: %+v", client.tasks[0])
	}
	if got := client.tasks[1].at; !got.Equal(start.Add(-time.Hour)) {
		t.Fatalf("60 minute reminder at %v", got)
	}
	if got := client.tasks[2].at; !got.Equal(start.Add(-30 * time.Minute)) {
		t.Fatalf("30 minute reminder at %v", got)
	}
	if client.tasks[2].id != "email:booking_reminder:b1:30" {
		t.Fatalf("unexpected task id %q", client.tasks[2].id)
	}

	// enqueueing again is absorbed by task id dedupe
	if err := e.BookingConfirmed(context.Background(), booking(start)); err != nil {
		t.Fatalf("duplicate enqueue should be ignored: %v", err)
	}
	if len(client.tasks) != 3 {
		t.Fatalf("expected no new tasks, got %d", len(client.tasks))
	}
}

func TestEnqueuerSkipsPastReminders(t *testing.T) {
	now := time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)
	client := &fakeClient{}
	e := NewEnqueuer(client, discard())
	e.now = func() time.Time { return now }

	if err := e.BookingConfirmed(context.Background(), booking(now.Add(45*time.Minute))); err != nil {
		t.Fatalf("confirmed: %v", err)
	}
	if len(client.tasks) != 2 {
		t.Fatalf("expected confirmation + 30 minute reminder, got %d", len(client.tasks))
	}
}

type fakeBookings map[string]bookings.Booking

func (f fakeBookings) Get(_ context.Context, id string) (bookings.Booking, error) {
	b, ok := f[id]
	if !ok {
		return bookings.Booking{}, availability.ErrNotFound
	}
	return b, nil
}

type fakeUsers map[string]sellers.User

func (f fakeUsers) GetUser(_ context.Context, id string) (sellers.User, error) {
	u, ok := f[id]
	if !ok {
		return sellers.User{}, availability.ErrNotFound
	}
	return u, nil
}

type sentMail struct{ to, subject, body string }

type fakeSender struct {
	sent []sentMail
	err  error
}

func (s *fakeSender) Send(_ context.Context, to, subject, body string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentMail{to, subject, body})
	return nil
}

func newWorker(b bookings.Booking, sender *fakeSender) *Worker {
	users := fakeUsers{
		"s1": {ID: "s1", Name: "Sam", Email: "sam@example.com", Role: sellers.RoleSeller},
		"u1": {ID: "u1", Name: "Bea", Email: "bea@example.com"},
	}
	return NewWorker(fakeBookings{b.ID: b}, users, sender, discard())
}

func mustTask(t *testing.T, taskType string, p Payload) *asynq.Task {
	t.Helper()
	task, err := newTask(taskType, p)
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	return task
}

func TestWorkerSendsConfirmation(t *testing.T) {
	start := time.Date(2024, 6, 4, 9, 0, 0, 0, time.UTC)
	sender := &fakeSender{}
	w := newWorker(booking(start), sender)

	if err := w.handleConfirmation(context.Background(), mustTask(t, TypeBookingConfirmation, Payload{BookingID: "b1"})); err != nil {
		t.Fatalf("confirmation: %v", err)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("expected 2 emails, got %d", len(sender.sent))
	}
	buyer, seller := sender.sent[0], sender.sent[1]
	if buyer.subject != "Confirmation: Intro call with Sam" || seller.subject != "New Booking: Intro call with Sam" {
		t.Fatalf("unexpected subjects %q / %q", buyer.subject, seller.subject)
	}
	// 09:00 UTC is 10:00 BST in the booking's timezone
	if !strings.Contains(buyer.body, "10:00 BST") || !strings.Contains(buyer.body, "30 minutes") {
		t.Fatalf("unexpected body:\n%s", buyer.body)
	}
	if !strings.Contains(seller.body, "new booking from Bea") || !strings.Contains(seller.body, "meet.google.com") {
		t.Fatalf("unexpected seller body:\n%s", seller.body)
	}
}

func TestWorkerSkipsReminderForCancelledBooking(t *testing.T) {
	b := booking(time.Date(2024, 6, 4, 9, 0, 0, 0, time.UTC))
	b.Status = bookings.StatusCancelled
	sender := &fakeSender{}
	w := newWorker(b, sender)

	task := mustTask(t, TypeBookingReminder, Payload{BookingID: "b1", MinutesBefore: 60})
	if err := w.handleReminder(context.Background(), task); err != nil {
		t.Fatalf("reminder: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("expected no emails, got %d", len(sender.sent))
	}
}

func TestWorkerReminderAndCancellation(t *testing.T) {
	b := booking(time.Date(2024, 6, 4, 9, 0, 0, 0, time.UTC))
	sender := &fakeSender{}
	w := newWorker(b, sender)

	task := mustTask(t, TypeBookingReminder, Payload{BookingID: "b1", MinutesBefore: 30})
	if err := w.handleReminder(context.Background(), task); err != nil {
		t.Fatalf("reminder: %v", err)
	}
	if len(sender.sent) != 2 || !strings.Contains(sender.sent[0].body, "about 30 minutes") {
		t.Fatalf("unexpected reminder emails: %+v", sender.sent)
	}
	if !strings.HasPrefix(sender.sent[1].body, "Hi Sam") {
		t.Fatalf("seller reminder should be addressed to the seller:\n%s", sender.sent[1].body)
	}

	b.Status, b.CancelledBy = bookings.StatusCancelled, sellers.RoleSeller
	sender.sent = nil
	w = newWorker(b, sender)
	if err := w.handleCancellation(context.Background(), mustTask(t, TypeBookingCancellation, Payload{BookingID: "b1"})); err != nil {
		t.Fatalf("cancellation: %v", err)
	}
	if len(sender.sent) != 2 || sender.sent[0].subject != "Cancelled: Intro call" {
		t.Fatalf("unexpected cancellation emails: %+v", sender.sent)
	}
	if !strings.Contains(sender.sent[0].body, "cancelled by Sam") {
		t.Fatalf("unexpected body:\n%s", sender.sent[0].body)
	}
}

func TestWorkerErrors(t *testing.T) {
	sender := &fakeSender{err: errors.New("smtp down")}
	w := newWorker(booking(time.Date(2024, 6, 4, 9, 0, 0, 0, time.UTC)), sender)

	if err := w.handleConfirmation(context.Background(), mustTask(t, TypeBookingConfirmation, Payload{BookingID: "b1"})); err == nil {
		t.Fatal("expected send failure to be returned for retry")
	}
	if err := w.handleConfirmation(context.Background(), mustTask(t, TypeBookingConfirmation, Payload{BookingID: "missing"})); err != nil {
		t.Fatalf("unknown booking should be dropped, got %v", err)
	}
	bad := asynq.NewTask(TypeBookingConfirmation, []byte("{"))
	if err := w.handleConfirmation(context.Background(), bad); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry for malformed payload, got %v", err)
	}
}
