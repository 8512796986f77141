package localbus

import (
	"context"
	"testing"
	"time"

	"github.com/justapithecus/resourcedriver/bus"
)

func TestLocalBus_PublishAndReceive(t *testing.T) {
	b := New()
	pub := b.Publisher()
	inbox := b.Inbox("lifecycle.completed")

	if err := pub.Publish(context.Background(), bus.Envelope{
		Topic: "lifecycle.completed",
		Key:   "req-1",
		Body:  []byte("payload"),
	}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d, err := inbox.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if d.Key != "req-1" || string(d.Body) != "payload" {
		t.Fatalf("unexpected delivery: %+v", d)
	}
}

func TestLocalBus_PreservesFIFOOrderPerTopic(t *testing.T) {
	b := New()
	pub := b.Publisher()
	inbox := b.Inbox("jobs")

	for i, key := range []string{"req-1", "req-2", "req-3"} {
		if err := pub.Publish(context.Background(), bus.Envelope{
			Topic: "jobs", Key: key, Body: []byte{byte(i)},
		}); err != nil {
			t.Fatalf("Publish %d: %v", i, err)
		}
	}

	for _, want := range []string{"req-1", "req-2", "req-3"} {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		d, err := inbox.Receive(ctx)
		cancel()
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
		if d.Key != want {
			t.Fatalf("out of order: got %q want %q", d.Key, want)
		}
	}
}

func TestLocalBus_RequeueRedelivers(t *testing.T) {
	b := New()
	pub := b.Publisher()
	inbox := b.Inbox("jobs")

	if err := pub.Publish(context.Background(), bus.Envelope{
		Topic: "jobs", Key: "req-1", Body: []byte("v1"),
	}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	d, err := inbox.Receive(ctx)
	cancel()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}

	if err := inbox.Requeue(context.Background(), d); err != nil {
		t.Fatalf("Requeue: %v", err)
	}

	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	redelivered, err := inbox.Receive(ctx2)
	if err != nil {
		t.Fatalf("Receive after requeue: %v", err)
	}
	if redelivered.Key != "req-1" {
		t.Fatalf("expected redelivery of req-1, got %q", redelivered.Key)
	}
}

func TestLocalBus_ReceiveRespectsContextCancellation(t *testing.T) {
	b := New()
	inbox := b.Inbox("empty")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := inbox.Receive(ctx)
	if err == nil {
		t.Fatalf("expected context deadline error on empty inbox")
	}
}
