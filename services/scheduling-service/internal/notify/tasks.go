package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	otelx "github.com/md-rashed-zaman/calbook/libs/otel"
)

const (
	TypeBookingConfirmation = "email:booking_confirmation"
	TypeBookingCancellation = "email:booking_cancellation"
	TypeBookingReminder     = "email:booking_reminder"

	queueName = "emails"
)

// ReminderOffsets are how long before the meeting reminders go out.
var ReminderOffsets = []time.Duration{60 * time.Minute, 30 * time.Minute}

type Payload struct {
	BookingID     string             `json:"booking_id"`
	MinutesBefore int                `json:"minutes_before,omitempty"`
	Trace         otelx.TraceContext `json:"trace"`
}

func newTask(taskType string, p Payload) (*asynq.Task, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, raw), nil
}

func parsePayload(t *asynq.Task) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return Payload{}, fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	if p.BookingID == "" {
		return Payload{}, fmt.Errorf("%s payload without booking id: %w", t.Type(), asynq.SkipRetry)
	}
	return p, nil
}

// taskID makes enqueueing the same notification twice a no-op.
func taskID(taskType string, p Payload) string {
	if p.MinutesBefore > 0 {
		return fmt.Sprintf("%s:%s:%d", taskType, p.BookingID, p.MinutesBefore)
	}
	return taskType + ":" + p.BookingID
}
