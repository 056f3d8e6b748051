package commands

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	application "sntportal/contexts/governance/voting-engine/application"
	"sntportal/contexts/governance/voting-engine/domain/entities"
	domainerrors "sntportal/contexts/governance/voting-engine/domain/errors"
	"sntportal/contexts/governance/voting-engine/ports"
	contractsv1 "sntportal/contracts/gen/events/v1"
)

// LifecycleUseCase owns the state machine: active -> completed by deadline,
// completed -> archived by a moderator, and delete with cascade.
type LifecycleUseCase struct {
	Votings        ports.VotingRepository
	Receipts       ports.NotificationReceiptStore
	Notifier       ports.CompletionNotifier
	Outbox         ports.OutboxWriter
	Clock          ports.Clock
	IDGen          ports.IDGenerator
	Metrics        ports.Metrics
	SweepBatchSize int
	Logger         *slog.Logger
}

type ReconcileOutcome struct {
	Voting    entities.Voting
	Completed bool
	Notified  bool
	// NotifyErr is a transient notifier failure. The receipt stays unset and
	// the next observation retries.
	NotifyErr error
}

type SweepSummary struct {
	Completed int
	Notified  int
	Failed    int
}

// ReconcileVoting completes a past-due ballot and fires its completion
// notice. Calling it again on a completed ballot never re-transitions it, and
// only re-notifies while the receipt is unset.
func (uc LifecycleUseCase) ReconcileVoting(ctx context.Context, voting entities.Voting, now time.Time) (ReconcileOutcome, error) {
	outcome, err := uc.Close(ctx, voting, now)
	if err != nil {
		return outcome, err
	}
	if outcome.Voting.Status != entities.VotingStatusCompleted || uc.Notifier == nil {
		return outcome, nil
	}
	sent, err := uc.Notifier.NotifyCompletion(ctx, outcome.Voting)
	if err != nil {
		outcome.NotifyErr = err
		application.ResolveLogger(uc.Logger).Warn("voting completion notice deferred",
			"event", "voting_notify_deferred",
			"module", application.LogModule,
			"layer", "application",
			"voting_id", outcome.Voting.VotingID,
			"error", err.Error(),
		)
		return outcome, nil
	}
	outcome.Notified = sent
	return outcome, nil
}

// Close flips a past-due ballot to completed and records voting.completed
// without calling the notifier. Request paths must use Close; the notice
// follows from the voting.completed consumer or the next sweep.
func (uc LifecycleUseCase) Close(ctx context.Context, voting entities.Voting, now time.Time) (ReconcileOutcome, error) {
	logger := application.ResolveLogger(uc.Logger)
	outcome := ReconcileOutcome{Voting: voting}

	if voting.IsDue(now) {
		updated, transitioned, err := uc.Votings.CompleteVoting(ctx, voting.VotingID, now)
		if err != nil {
			logger.Error("voting completion failed",
				"event", "voting_complete_failed",
				"module", application.LogModule,
				"layer", "application",
				"voting_id", voting.VotingID,
				"error", err.Error(),
			)
			return outcome, err
		}
		outcome.Voting = updated
		if transitioned {
			outcome.Completed = true
			application.ResolveMetrics(uc.Metrics).VotingCompleted()
			logger.Info("voting completed",
				"event", "voting_completed",
				"module", application.LogModule,
				"layer", "application",
				"voting_id", updated.VotingID,
				"end_date", updated.EndDate.Format(time.RFC3339),
				"total_votes", updated.TotalVotes(),
			)
			if err := appendVotingEvent(ctx, uc.Outbox, uc.IDGen, contractsv1.EventVotingCompleted, updated, now, map[string]any{
				"results": resultsPayload(entities.Tally(updated)),
			}); err != nil {
				return outcome, err
			}
		}
	}
	return outcome, nil
}

// Reconcile loads and reconciles one ballot.
func (uc LifecycleUseCase) Reconcile(ctx context.Context, votingID string) (ReconcileOutcome, error) {
	voting, err := uc.Votings.GetVoting(ctx, strings.TrimSpace(votingID))
	if err != nil {
		return ReconcileOutcome{}, err
	}
	return uc.ReconcileVoting(ctx, voting, resolveNow(uc.Clock))
}

// Sweep reconciles every past-due ballot and retries completed ballots whose
// notice never went out. Each ballot is handled on its own; one failure does
// not stop the rest.
func (uc LifecycleUseCase) Sweep(ctx context.Context) (SweepSummary, error) {
	logger := application.ResolveLogger(uc.Logger)
	started := time.Now()
	now := resolveNow(uc.Clock)
	summary := SweepSummary{}

	due, err := uc.Votings.ListDueVotings(ctx, now)
	if err != nil {
		logger.Error("voting sweep list due failed",
			"event", "voting_sweep_list_due_failed",
			"module", application.LogModule,
			"layer", "application",
			"error", err.Error(),
		)
		return summary, err
	}
	seen := make(map[string]struct{}, len(due))
	for _, voting := range due {
		seen[voting.VotingID] = struct{}{}
		uc.sweepOne(ctx, voting, now, &summary)
	}

	if uc.Receipts != nil {
		pending, err := uc.Receipts.ListUnnotifiedCompleted(ctx, uc.resolveBatchSize())
		if err != nil {
			logger.Error("voting sweep list unnotified failed",
				"event", "voting_sweep_list_unnotified_failed",
				"module", application.LogModule,
				"layer", "application",
				"error", err.Error(),
			)
			return summary, err
		}
		for _, voting := range pending {
			if _, done := seen[voting.VotingID]; done {
				continue
			}
			uc.sweepOne(ctx, voting, now, &summary)
		}
	}

	application.ResolveMetrics(uc.Metrics).ReconcileSweep(time.Since(started), summary.Failed)
	logger.Info("voting sweep completed",
		"event", "voting_sweep_completed",
		"module", application.LogModule,
		"layer", "application",
		"completed", summary.Completed,
		"notified", summary.Notified,
		"failed", summary.Failed,
	)
	return summary, nil
}

// TriggerSweep runs Sweep on behalf of an admin.
func (uc LifecycleUseCase) TriggerSweep(ctx context.Context, actor entities.Voter) (SweepSummary, error) {
	if !actor.Authenticated() {
		return SweepSummary{}, domainerrors.ErrNotAuthenticated
	}
	if actor.Role != entities.RoleAdmin {
		return SweepSummary{}, domainerrors.ErrForbidden
	}
	return uc.Sweep(ctx)
}

func (uc LifecycleUseCase) sweepOne(ctx context.Context, voting entities.Voting, now time.Time, summary *SweepSummary) {
	outcome, err := uc.ReconcileVoting(ctx, voting, now)
	if outcome.Completed {
		summary.Completed++
	}
	if outcome.Notified {
		summary.Notified++
	}
	if err != nil || outcome.NotifyErr != nil {
		summary.Failed++
	}
}

func (uc LifecycleUseCase) resolveBatchSize() int {
	if uc.SweepBatchSize <= 0 {
		return 100
	}
	return uc.SweepBatchSize
}

// Archive hides a completed ballot from the completed listing. One-way.
func (uc LifecycleUseCase) Archive(ctx context.Context, actor entities.Voter, votingID string) (entities.Voting, error) {
	logger := application.ResolveLogger(uc.Logger)
	votingID = strings.TrimSpace(votingID)
	if !actor.Authenticated() {
		return entities.Voting{}, domainerrors.ErrNotAuthenticated
	}
	if !actor.Role.CanModerate() {
		logger.Warn("voting archive forbidden",
			"event", "voting_archive_forbidden",
			"module", application.LogModule,
			"layer", "application",
			"voting_id", votingID,
			"role", string(actor.Role),
		)
		return entities.Voting{}, domainerrors.ErrForbidden
	}

	outcome, err := uc.Reconcile(ctx, votingID)
	if err != nil {
		return entities.Voting{}, err
	}
	if outcome.Voting.Status != entities.VotingStatusCompleted || outcome.Voting.Archived {
		return entities.Voting{}, domainerrors.ErrInvalidTransition
	}

	now := resolveNow(uc.Clock)
	archived, err := uc.Votings.ArchiveVoting(ctx, votingID, now)
	if err != nil {
		if !errors.Is(err, domainerrors.ErrInvalidTransition) {
			logger.Error("voting archive failed",
				"event", "voting_archive_failed",
				"module", application.LogModule,
				"layer", "application",
				"voting_id", votingID,
				"error", err.Error(),
			)
		}
		return entities.Voting{}, err
	}
	if err := appendVotingEvent(ctx, uc.Outbox, uc.IDGen, contractsv1.EventVotingArchived, archived, now, map[string]any{
		"archived_by": entities.NormalizeEmail(actor.Email),
	}); err != nil {
		return entities.Voting{}, err
	}
	application.ResolveMetrics(uc.Metrics).VotingArchived()
	logger.Info("voting archived",
		"event", "voting_archived",
		"module", application.LogModule,
		"layer", "application",
		"voting_id", votingID,
		"actor", entities.NormalizeEmail(actor.Email),
	)
	return archived, nil
}

// Delete removes a ballot in any state together with its ledger and receipt.
// It returns the number of removed vote records.
func (uc LifecycleUseCase) Delete(ctx context.Context, actor entities.Voter, votingID string) (int, error) {
	logger := application.ResolveLogger(uc.Logger)
	votingID = strings.TrimSpace(votingID)
	if !actor.Authenticated() {
		return 0, domainerrors.ErrNotAuthenticated
	}
	if !actor.Role.CanModerate() {
		logger.Warn("voting delete forbidden",
			"event", "voting_delete_forbidden",
			"module", application.LogModule,
			"layer", "application",
			"voting_id", votingID,
			"role", string(actor.Role),
		)
		return 0, domainerrors.ErrForbidden
	}

	voting, err := uc.Votings.GetVoting(ctx, votingID)
	if err != nil {
		return 0, err
	}
	removed, err := uc.Votings.DeleteVoting(ctx, votingID)
	if err != nil {
		logger.Error("voting delete failed",
			"event", "voting_delete_failed",
			"module", application.LogModule,
			"layer", "application",
			"voting_id", votingID,
			"error", err.Error(),
		)
		return 0, err
	}
	now := resolveNow(uc.Clock)
	if err := appendVotingEvent(ctx, uc.Outbox, uc.IDGen, contractsv1.EventVotingDeleted, voting, now, map[string]any{
		"deleted_by":      entities.NormalizeEmail(actor.Email),
		"removed_records": removed,
	}); err != nil {
		return removed, err
	}
	application.ResolveMetrics(uc.Metrics).VotingDeleted()
	logger.Info("voting deleted",
		"event", "voting_deleted",
		"module", application.LogModule,
		"layer", "application",
		"voting_id", votingID,
		"removed_records", removed,
		"actor", entities.NormalizeEmail(actor.Email),
	)
	return removed, nil
}

func resultsPayload(results []entities.OptionResult) []map[string]any {
	items := make([]map[string]any, 0, len(results))
	for _, result := range results {
		items = append(items, map[string]any{
			"option":     result.Option,
			"votes":      result.Votes,
			"percentage": result.Percentage,
		})
	}
	return items
}
