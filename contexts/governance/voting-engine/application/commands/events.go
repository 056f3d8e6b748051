package commands

import (
	"context"
	"encoding/json"
	"time"

	"sntportal/contexts/governance/voting-engine/domain/entities"
	"sntportal/contexts/governance/voting-engine/ports"
)

func newVotingEnvelope(
	eventID string,
	eventType string,
	votingID string,
	occurredAt time.Time,
	data map[string]any,
) (ports.EventEnvelope, error) {
	// Every voting event is partitioned by ballot so consumers see one
	// ballot's history in order.
	payload, err := json.Marshal(data)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       occurredAt.UTC(),
		SourceService:    "voting-engine",
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: "voting_id",
		PartitionKey:     votingID,
		Data:             payload,
	}, nil
}

// appendVotingEvent writes to the outbox. A nil outbox is a no-op so read
// and test wiring can skip it.
func appendVotingEvent(
	ctx context.Context,
	outbox ports.OutboxWriter,
	idgen ports.IDGenerator,
	eventType string,
	voting entities.Voting,
	occurredAt time.Time,
	metadata map[string]any,
) error {
	if outbox == nil || idgen == nil {
		return nil
	}
	eventID, err := idgen.NewID(ctx)
	if err != nil {
		return err
	}
	data := map[string]any{
		"voting_id":   voting.VotingID,
		"title":       voting.Title,
		"status":      string(voting.Status),
		"archived":    voting.Archived,
		"total_votes": voting.TotalVotes(),
		"occurred_at": occurredAt.Format(time.RFC3339),
	}
	for key, value := range metadata {
		data[key] = value
	}
	envelope, err := newVotingEnvelope(eventID, eventType, voting.VotingID, occurredAt, data)
	if err != nil {
		return err
	}
	return outbox.AppendOutbox(ctx, envelope)
}

func resolveNow(clock ports.Clock) time.Time {
	if clock != nil {
		return clock.Now().UTC()
	}
	return time.Now().UTC()
}
