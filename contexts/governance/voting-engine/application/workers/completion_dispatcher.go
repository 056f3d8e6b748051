package workers

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	application "sntportal/contexts/governance/voting-engine/application"
	"sntportal/contexts/governance/voting-engine/application/commands"
	domainerrors "sntportal/contexts/governance/voting-engine/domain/errors"
	"sntportal/contexts/governance/voting-engine/ports"
)

// CompletionDispatcher consumes voting.completed events and sends the
// completion notice off the request path. Duplicate events are absorbed by
// the notification receipt; anything it misses is retried by the sweep.
type CompletionDispatcher struct {
	Lifecycle commands.LifecycleUseCase
	Logger    *slog.Logger
}

func (d CompletionDispatcher) Handle(ctx context.Context, event ports.EventEnvelope) error {
	logger := application.ResolveLogger(d.Logger)
	votingID := strings.TrimSpace(event.PartitionKey)
	if votingID == "" {
		return errors.New("voting.completed event without a voting id")
	}

	outcome, err := d.Lifecycle.Reconcile(ctx, votingID)
	if errors.Is(err, domainerrors.ErrVotingNotFound) {
		logger.Debug("completed ballot already deleted",
			"event", "voting_dispatch_skipped",
			"module", application.LogModule,
			"layer", "worker",
			"event_id", event.EventID,
			"voting_id", votingID,
		)
		return nil
	}
	if err != nil {
		return err
	}
	if outcome.Notified {
		logger.Info("completion notice dispatched",
			"event", "voting_dispatch_notified",
			"module", application.LogModule,
			"layer", "worker",
			"event_id", event.EventID,
			"voting_id", votingID,
		)
	}
	return nil
}
