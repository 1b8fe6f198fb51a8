package queue

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryPublishConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	events, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}

	want := Event{Kind: "checkin", RecordID: "r1", Date: "2026-03-08"}
	if err := q.Publish(ctx, want); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case got := <-events:
		if got != want {
			t.Errorf("consumed %+v, want %+v", got, want)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestInMemoryPublishHonorsCancel(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())
	if err := q.Publish(ctx, Event{Kind: "checkin"}); err != nil {
		t.Fatal(err)
	}
	cancel()
	// Queue is full and nobody is consuming; cancellation must unblock.
	if err := q.Publish(ctx, Event{Kind: "checkout"}); err == nil {
		t.Fatal("Publish on full queue ignored cancellation")
	}
}
