package outbox

import (
	"context"
	"testing"

	"github.com/md-rashed-zaman/calbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/calbook/libs/otel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func TestMessagesCarryMetadataAndTrace(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	const parent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

	msgs := Messages(context.Background(), []Record{
		{ID: 1, EventID: "e-1", AggregateID: "b-1", EventType: "booking.created.v1", Payload: []byte(`{}`), Trace: otelx.TraceContext{Parent: parent}},
		{ID: 2, EventID: "e-2", AggregateID: "b-1", EventType: "booking.cancelled.v1", Payload: []byte(`{}`)},
	})
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	first := msgs[0]
	if first.Topic != "booking.created.v1" || string(first.Key) != "b-1" {
		t.Fatalf("message = %+v", first)
	}
	meta := kafkax.ExtractEventMeta(first)
	if meta.EventID != "e-1" || meta.EventType != "booking.created.v1" {
		t.Fatalf("meta = %+v", meta)
	}
	if got := kafkax.HeaderValue(first.Headers, "traceparent"); got != parent {
		t.Fatalf("traceparent = %q", got)
	}
	if got := kafkax.HeaderValue(msgs[1].Headers, "traceparent"); got != "" {
		t.Fatalf("unexpected traceparent on untraced record: %q", got)
	}
}

func TestNewEventMarshalsPayload(t *testing.T) {
	evt, err := NewEvent("booking", "b-1", "booking.created.v1", map[string]string{"seller_id": "s-1"})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	if string(evt.Payload) != `{"seller_id":"s-1"}` || evt.AggregateID != "b-1" {
		t.Fatalf("event = %+v", evt)
	}
	if _, err := NewEvent("booking", "b-1", "x", func() {}); err == nil {
		t.Fatal("expected marshal error for a func payload")
	}
}
