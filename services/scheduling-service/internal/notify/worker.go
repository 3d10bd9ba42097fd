package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/md-rashed-zaman/calbook/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/calbook/services/scheduling-service/internal/bookings"
	"github.com/md-rashed-zaman/calbook/services/scheduling-service/internal/sellers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var emailsSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "calbook",
	Name:      "emails_sent_total",
	Help:      "Booking emails by task type and result.",
}, []string{"type", "result"})

type BookingReader interface {
	Get(ctx context.Context, id string) (bookings.Booking, error)
}

type Directory interface {
	GetUser(ctx context.Context, id string) (sellers.User, error)
}

// Worker renders and sends booking emails for queued tasks.
type Worker struct {
	bookings BookingReader
	users    Directory
	sender   Sender
	logger   *slog.Logger
}

func NewWorker(b BookingReader, users Directory, sender Sender, logger *slog.Logger) *Worker {
	return &Worker{bookings: b, users: users, sender: sender, logger: logger}
}

func (w *Worker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeBookingConfirmation, w.handleConfirmation)
	mux.HandleFunc(TypeBookingReminder, w.handleReminder)
	mux.HandleFunc(TypeBookingCancellation, w.handleCancellation)
}

// Queues returns the asynq queue configuration the worker consumes.
func Queues() map[string]int {
	return map[string]int{queueName: 1}
}

func (w *Worker) handleConfirmation(ctx context.Context, t *asynq.Task) error {
	ctx, data, ok, err := w.load(ctx, t)
	if err != nil || !ok {
		return err
	}
	if !data.Booking.Confirmed() {
		w.logger.Info("skipping confirmation for cancelled booking", "booking_id", data.Booking.ID)
		return nil
	}
	subject := fmt.Sprintf("%s with %s", data.Booking.Title, data.Seller.Name)
	return w.sendBoth(ctx, t.Type(), data, func(recipient sellers.User) (string, string, error) {
		if recipient.ID == data.Seller.ID {
			body, err := render("confirmation_seller", data)
			return "New Booking: " + subject, body, err
		}
		body, err := render("confirmation_buyer", data)
		return "Confirmation: " + subject, body, err
	})
}

func (w *Worker) handleReminder(ctx context.Context, t *asynq.Task) error {
	ctx, data, ok, err := w.load(ctx, t)
	if err != nil || !ok {
		return err
	}
	if !data.Booking.Confirmed() {
		w.logger.Info("skipping reminder for cancelled booking", "booking_id", data.Booking.ID)
		return nil
	}
	subject := "Upcoming Appointment at " + data.Start.Format("15:04 MST")
	return w.sendBoth(ctx, t.Type(), data, func(recipient sellers.User) (string, string, error) {
		d := data
		d.Recipient = recipient
		body, err := render("reminder", d)
		return "Reminder: " + subject, body, err
	})
}

func (w *Worker) handleCancellation(ctx context.Context, t *asynq.Task) error {
	ctx, data, ok, err := w.load(ctx, t)
	if err != nil || !ok {
		return err
	}
	body, err := render("cancellation", data)
	if err != nil {
		return err
	}
	subject := "Cancelled: " + data.Booking.Title
	return w.sendBoth(ctx, t.Type(), data, func(sellers.User) (string, string, error) {
		return subject, body, nil
	})
}

// load resolves the task's booking and participants and restores the trace
// of the request that queued the task. ok is false when the booking no
// longer exists.
func (w *Worker) load(ctx context.Context, t *asynq.Task) (context.Context, emailData, bool, error) {
	p, err := parsePayload(t)
	if err != nil {
		return ctx, emailData{}, false, err
	}
	ctx = p.Trace.Attach(ctx)
	b, err := w.bookings.Get(ctx, p.BookingID)
	if errors.Is(err, availability.ErrNotFound) {
		w.logger.Warn("email task for unknown booking", "booking_id", p.BookingID, "type", t.Type())
		return ctx, emailData{}, false, nil
	}
	if err != nil {
		return ctx, emailData{}, false, err
	}
	seller, err := w.users.GetUser(ctx, b.SellerID)
	if err != nil {
		return ctx, emailData{}, false, fmt.Errorf("load seller %s: %w", b.SellerID, err)
	}
	buyer, err := w.users.GetUser(ctx, b.BuyerID)
	if err != nil {
		return ctx, emailData{}, false, fmt.Errorf("load buyer %s: %w", b.BuyerID, err)
	}
	data := newEmailData(b, seller, buyer)
	data.MinutesBefore = p.MinutesBefore
	return ctx, data, true, nil
}

func (w *Worker) sendBoth(ctx context.Context, taskType string, data emailData, compose func(sellers.User) (string, string, error)) error {
	var errs []error
	for _, recipient := range []sellers.User{data.Buyer, data.Seller} {
		if recipient.Email == "" {
			continue
		}
		subject, body, err := compose(recipient)
		if err != nil {
			return fmt.Errorf("render %s: %v: %w", taskType, err, asynq.SkipRetry)
		}
		if err := w.sender.Send(ctx, recipient.Email, subject, body); err != nil {
			emailsSent.WithLabelValues(taskType, "error").Inc()
			errs = append(errs, fmt.Errorf("send to %s: %w", recipient.Email, err))
			continue
		}
		emailsSent.WithLabelValues(taskType, "ok").Inc()
	}
	if err := errors.Join(errs...); err != nil {
		w.logger.Warn("email delivery failed", "booking_id", data.Booking.ID, "type", taskType, "err", err)
		return err
	}
	w.logger.Info("emails sent", "booking_id", data.Booking.ID, "type", taskType)
	return nil
}
