package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/calbook/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	done      chan struct{}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		msg := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	close(r.done)
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

type fakeInbox struct {
	seen      map[string]bool
	forgotten []string
}

func (f *fakeInbox) Record(_ context.Context, eventID, _ string) (bool, error) {
	if f.seen[eventID] {
		return false, nil
	}
	f.seen[eventID] = true
	return true, nil
}

func (f *fakeInbox) Forget(_ context.Context, eventID string) error {
	delete(f.seen, eventID)
	f.forgotten = append(f.forgotten, eventID)
	return nil
}

func message(offset int64, eventID string) kafka.Message {
	return kafka.Message{
		Topic:   "booking.created.v1",
		Offset:  offset,
		Headers: kafkax.EventMeta{EventID: eventID, EventType: "booking.created.v1"}.Headers(),
	}
}

func TestConsumerDedupesAndCommits(t *testing.T) {
	reader := &fakeReader{
		msgs: []kafka.Message{message(1, "a"), message(2, "a"), message(3, "b"), message(4, "bad")},
		done: make(chan struct{}),
	}
	inbox := &fakeInbox{seen: map[string]bool{}}
	var handled []string
	handler := func(_ context.Context, msg kafka.Message) error {
		id := kafkax.ExtractEventMeta(msg).EventID
		handled = append(handled, id)
		if id == "bad" {
			return errors.New("store down")
		}
		return nil
	}

	c := newConsumer(reader, slog.New(slog.NewTextHandler(io.Discard, nil)), inbox, 2, handler)
	c.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(stopped)
	}()
	<-reader.done
	cancel()
	<-stopped

	want := []string{"a", "b", "bad", "bad"}
	if len(handled) != len(want) {
		t.Fatalf("handled %v, want %v", handled, want)
	}
	for i := range want {
		if handled[i] != want[i] {
			t.Fatalf("handled %v, want %v", handled, want)
		}
	}
	if len(reader.committed) != 4 {
		t.Fatalf("expected every message committed, got %v", reader.committed)
	}
	if len(inbox.forgotten) != 1 || inbox.seen["bad"] {
		t.Fatal("failed event should be released from the inbox")
	}
}
