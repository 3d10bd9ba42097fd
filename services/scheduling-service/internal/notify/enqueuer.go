package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	otelx "github.com/md-rashed-zaman/calbook/libs/otel"
	"github.com/md-rashed-zaman/calbook/services/scheduling-service/internal/bookings"
)

// TaskClient is the subset of *asynq.Client the enqueuer needs.
type TaskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer schedules booking emails on the asynq queue. It implements
// bookings.Notifier.
type Enqueuer struct {
	client TaskClient
	logger *slog.Logger
	now    func() time.Time
}

func NewEnqueuer(client TaskClient, logger *slog.Logger) *Enqueuer {
	return &Enqueuer{client: client, logger: logger, now: time.Now}
}

// BookingConfirmed queues the confirmation email and one reminder per
// offset that is still in the future.
func (e *Enqueuer) BookingConfirmed(ctx context.Context, b bookings.Booking) error {
	var errs []error
	if err := e.enqueue(ctx, TypeBookingConfirmation, Payload{BookingID: b.ID}); err != nil {
		errs = append(errs, err)
	}
	now := e.now()
	for _, offset := range ReminderOffsets {
		at := b.StartTime.Add(-offset)
		if !at.After(now) {
			continue
		}
		p := Payload{BookingID: b.ID, MinutesBefore: int(offset / time.Minute)}
		if err := e.enqueue(ctx, TypeBookingReminder, p, asynq.ProcessAt(at)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BookingCancelled queues the cancellation email. Pending reminders stay
// queued and are dropped by the worker once it sees the booking status.
func (e *Enqueuer) BookingCancelled(ctx context.Context, b bookings.Booking) error {
	return e.enqueue(ctx, TypeBookingCancellation, Payload{BookingID: b.ID})
}

func (e *Enqueuer) enqueue(ctx context.Context, taskType string, p Payload, opts ...asynq.Option) error {
	p.Trace = otelx.CurrentTraceContext(ctx)
	task, err := newTask(taskType, p)
	if err != nil {
		return err
	}
	opts = append(opts,
		asynq.TaskID(taskID(taskType, p)),
		asynq.Queue(queueName),
		asynq.MaxRetry(5),
		asynq.Retention(24*time.Hour),
	)
	info, err := e.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s for %s: %w", taskType, p.BookingID, err)
	}
	e.logger.Debug("email task enqueued", "task_id", info.ID, "type", taskType, "booking_id", p.BookingID)
	return nil
}
