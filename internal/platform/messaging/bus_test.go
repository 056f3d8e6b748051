package messaging

import (
	"context"
	"testing"
	"time"

	"sntportal/contexts/governance/voting-engine/ports"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestBusDeliversToTopicSubscribers(t *testing.T) {
	bus := NewBus(4, nil)
	ctx, cancel := context.WithCancel(context.Background())

	received := make(chan string, 2)
	bus.Subscribe(ctx, "voting.completed", "audit", func(_ context.Context, event ports.EventEnvelope) error {
		received <- event.EventID
		return nil
	})

	if err := bus.Publish(ctx, "vote.cast", ports.EventEnvelope{EventID: "ignored"}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if err := bus.Publish(ctx, "voting.completed", ports.EventEnvelope{EventID: "e-1"}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case id := <-received:
		if id != "e-1" {
			t.Fatalf("expected e-1, got %s", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("subscriber never received the event")
	}

	cancel()
	bus.Wait()
	select {
	case id := <-received:
		t.Fatalf("unexpected extra delivery %s", id)
	default:
	}
}

func TestBusRejectsEmptyTopic(t *testing.T) {
	if err := NewBus(1, nil).Publish(context.Background(), "", ports.EventEnvelope{}); err == nil {
		t.Fatalf("expected empty topic to fail")
	}
}
