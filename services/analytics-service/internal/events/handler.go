package events

import (
	"context"
	"errors"
	"log/slog"

	"github.com/md-rashed-zaman/calbook/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

type Recorder interface {
	Insert(ctx context.Context, rec Record) error
}

// Handler records booking events. Malformed events are logged and dropped.
func Handler(store Recorder, logger *slog.Logger) func(ctx context.Context, msg kafka.Message) error {
	return func(ctx context.Context, msg kafka.Message) error {
		meta := kafkax.ExtractEventMeta(msg)
		rec, err := Decode(meta.EventID, msg.Topic, msg.Value)
		if errors.Is(err, ErrMalformed) {
			logger.Error("invalid event payload", "err", err, "topic", msg.Topic, "event_id", meta.EventID)
			return nil
		}
		if err != nil {
			return err
		}
		if err := store.Insert(ctx, rec); err != nil {
			return err
		}
		logger.Info("booking event recorded", "event_id", rec.EventID, "seller_id", rec.SellerID, "type", rec.EventType)
		return nil
	}
}
