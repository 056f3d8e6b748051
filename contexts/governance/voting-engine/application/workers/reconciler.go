package workers

import (
	"context"
	"log/slog"

	application "sntportal/contexts/governance/voting-engine/application"
	"sntportal/contexts/governance/voting-engine/application/commands"
)

// Reconciler is the scheduled side of the state machine. It runs the same
// sweep as the on-demand reconcile endpoint so ballots close and notify even
// when nobody is reading them.
type Reconciler struct {
	Lifecycle commands.LifecycleUseCase
	Logger    *slog.Logger
}

// RunOnce performs one sweep. Per-ballot failures are counted, not returned;
// only a failure to list ballots aborts the cycle.
func (r Reconciler) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(r.Logger)
	logger.Debug("voting reconcile cycle started",
		"event", "voting_reconcile_started",
		"module", application.LogModule,
		"layer", "worker",
	)
	summary, err := r.Lifecycle.Sweep(ctx)
	if err != nil {
		logger.Error("voting reconcile cycle failed",
			"event", "voting_reconcile_failed",
			"module", application.LogModule,
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}
	if summary.Failed > 0 {
		logger.Warn("voting reconcile cycle left ballots for retry",
			"event", "voting_reconcile_partial",
			"module", application.LogModule,
			"layer", "worker",
			"completed", summary.Completed,
			"notified", summary.Notified,
			"failed", summary.Failed,
		)
	}
	return nil
}
