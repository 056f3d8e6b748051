package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	application "sntportal/contexts/governance/voting-engine/application"
	"sntportal/contexts/governance/voting-engine/ports"
	contractsv1 "sntportal/contracts/gen/events/v1"
)

var relayedTopics = map[string]struct{}{
	contractsv1.EventVotingCreated:   {},
	contractsv1.EventVoteCast:        {},
	contractsv1.EventVotingCompleted: {},
	contractsv1.EventVotingArchived:  {},
	contractsv1.EventVotingDeleted:   {},
}

// OutboxRelay moves ballot history from the outbox onto the bus. Each
// ballot's events go out in the order they were written, keyed by voting id.
type OutboxRelay struct {
	Outbox    ports.OutboxRepository
	Publisher ports.EventPublisher
	Clock     ports.Clock
	BatchSize int
	Logger    *slog.Logger
}

// RunOnce drains up to BatchSize rows. A row is acknowledged only once the
// bus has taken it, and the first failure leaves the rest for the next tick.
// Rows that are not voting events are acknowledged without publishing.
func (r OutboxRelay) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(r.Logger)
	pending, err := r.Outbox.ListPendingOutbox(ctx, r.batchSize())
	if err != nil {
		logger.Error("voting outbox list failed",
			"event", "voting_outbox_list_failed",
			"module", application.LogModule,
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}

	relayed := make(map[string]int, len(relayedTopics))
	skipped := 0
	for _, row := range pending {
		event, err := decodeVotingEvent(row)
		if err != nil {
			logger.Error("voting outbox row unreadable",
				"event", "voting_outbox_decode_failed",
				"module", application.LogModule,
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"event_type", row.EventType,
				"error", err.Error(),
			)
			return err
		}

		_, known := relayedTopics[event.EventType]
		if known {
			if err := r.Publisher.Publish(ctx, event.EventType, event); err != nil {
				logger.Error("voting event publish failed",
					"event", "voting_outbox_publish_failed",
					"module", application.LogModule,
					"layer", "worker",
					"outbox_id", row.OutboxID,
					"event_type", event.EventType,
					"voting_id", event.PartitionKey,
					"error", err.Error(),
				)
				return err
			}
		} else {
			skipped++
			logger.Warn("unknown event type left unpublished",
				"event", "voting_outbox_unknown_type",
				"module", application.LogModule,
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"event_type", event.EventType,
			)
		}

		now := r.now()
		if err := r.Outbox.MarkOutboxPublished(ctx, row.OutboxID, now); err != nil {
			logger.Error("voting outbox ack failed",
				"event", "voting_outbox_mark_published_failed",
				"module", application.LogModule,
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"voting_id", event.PartitionKey,
				"error", err.Error(),
			)
			return err
		}
		if known {
			relayed[event.EventType]++
			logger.Debug("voting event relayed",
				"event", "voting_outbox_event_relayed",
				"module", application.LogModule,
				"layer", "worker",
				"event_id", event.EventID,
				"event_type", event.EventType,
				"voting_id", event.PartitionKey,
				"lag", now.Sub(event.OccurredAt).String(),
			)
		}
	}

	if len(pending) > 0 {
		logger.Info("voting events relayed",
			"event", "voting_outbox_relay_completed",
			"module", application.LogModule,
			"layer", "worker",
			"created", relayed[contractsv1.EventVotingCreated],
			"votes_cast", relayed[contractsv1.EventVoteCast],
			"completed", relayed[contractsv1.EventVotingCompleted],
			"archived", relayed[contractsv1.EventVotingArchived],
			"deleted", relayed[contractsv1.EventVotingDeleted],
			"skipped", skipped,
		)
	}
	return nil
}

// decodeVotingEvent unwraps the stored envelope. An envelope without a type
// takes the row's event_type column.
func decodeVotingEvent(row ports.OutboxMessage) (ports.EventEnvelope, error) {
	var event ports.EventEnvelope
	if err := json.Unmarshal(row.Payload, &event); err != nil {
		return ports.EventEnvelope{}, fmt.Errorf("decode outbox row %s: %w", row.OutboxID, err)
	}
	if event.EventType == "" {
		event.EventType = row.EventType
	}
	return event, nil
}

func (r OutboxRelay) batchSize() int {
	if r.BatchSize <= 0 {
		return 100
	}
	return r.BatchSize
}

func (r OutboxRelay) now() time.Time {
	if r.Clock != nil {
		return r.Clock.Now().UTC()
	}
	return time.Now().UTC()
}
