package messaging

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"sntportal/contexts/governance/voting-engine/ports"
)

const logModule = "internal/platform/messaging"

// Bus is the in-process event bus the outbox relay publishes to.
// Delivery is best effort per subscriber: a full subscriber buffer drops the
// event for that subscriber only. The outbox remains the durable record.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan ports.EventEnvelope
	buffer      int
	logger      *slog.Logger
	wg          sync.WaitGroup
}

func NewBus(buffer int, logger *slog.Logger) *Bus {
	if buffer <= 0 {
		buffer = 128
	}
	return &Bus{
		subscribers: make(map[string][]chan ports.EventEnvelope),
		buffer:      buffer,
		logger:      logger,
	}
}

func (b *Bus) Publish(ctx context.Context, topic string, event ports.EventEnvelope) error {
	if topic == "" {
		return errors.New("topic is required")
	}
	b.mu.RLock()
	subs := append([]chan ports.EventEnvelope(nil), b.subscribers[topic]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sub <- event:
		default:
			if b.logger != nil {
				b.logger.Warn("dropping event for slow subscriber",
					"event", "bus_publish_drop",
					"module", logModule,
					"layer", "platform",
					"topic", topic,
					"event_id", event.EventID,
				)
			}
		}
	}

	if b.logger != nil {
		b.logger.Debug("event published",
			"event", "bus_publish",
			"module", logModule,
			"layer", "platform",
			"topic", topic,
			"event_id", event.EventID,
			"event_type", event.EventType,
			"partition_key", event.PartitionKey,
			"subscribers", len(subs),
		)
	}
	return nil
}

// Subscribe registers handler for topic until ctx is cancelled. Use Wait to
// block until every consumer goroutine has exited.
func (b *Bus) Subscribe(
	ctx context.Context,
	topic string,
	consumerGroup string,
	handler func(context.Context, ports.EventEnvelope) error,
) {
	ch := make(chan ports.EventEnvelope, b.buffer)

	b.mu.Lock()
	b.subscribers[topic] = append(b.subscribers[topic], ch)
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-ctx.Done():
				b.removeSubscriber(topic, ch)
				return
			case event := <-ch:
				if err := handler(ctx, event); err != nil && b.logger != nil {
					b.logger.Error("consumer handler failed",
						"event", "bus_consume_failed",
						"module", logModule,
						"layer", "platform",
						"topic", topic,
						"consumer_group", consumerGroup,
						"event_id", event.EventID,
						"event_type", event.EventType,
						"error", err.Error(),
					)
				}
			}
		}
	}()
}

func (b *Bus) Wait() {
	b.wg.Wait()
}

func (b *Bus) removeSubscriber(topic string, target chan ports.EventEnvelope) {
	b.mu.Lock()
	defer b.mu.Unlock()

	items := b.subscribers[topic]
	if len(items) == 0 {
		return
	}
	filtered := make([]chan ports.EventEnvelope, 0, len(items))
	for _, item := range items {
		if item != target {
			filtered = append(filtered, item)
		}
	}
	b.subscribers[topic] = filtered
}
