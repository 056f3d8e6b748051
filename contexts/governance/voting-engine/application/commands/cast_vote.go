package commands

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	application "sntportal/contexts/governance/voting-engine/application"
	"sntportal/contexts/governance/voting-engine/domain/entities"
	domainerrors "sntportal/contexts/governance/voting-engine/domain/errors"
	"sntportal/contexts/governance/voting-engine/ports"
	contractsv1 "sntportal/contracts/gen/events/v1"
)

type CastVoteCommand struct {
	VotingID      string
	Voter         entities.Voter
	OptionIndices []int
}

type CastVoteResult struct {
	Voting entities.Voting
	Record entities.VoteRecord
}

// CastVoteUseCase records one vote per voter per ballot. Preconditions are
// checked in a fixed order and the first failure is returned as a
// rejection; a past-due ballot is closed as a side effect.
type CastVoteUseCase struct {
	Votings   ports.VotingRepository
	Ledger    ports.VoteLedger
	Lifecycle LifecycleUseCase
	Outbox    ports.OutboxWriter
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Metrics   ports.Metrics
	Logger    *slog.Logger
}

func (uc CastVoteUseCase) Execute(ctx context.Context, cmd CastVoteCommand) (CastVoteResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	votingID := strings.TrimSpace(cmd.VotingID)
	email := entities.NormalizeEmail(cmd.Voter.Email)

	if !cmd.Voter.Authenticated() {
		return CastVoteResult{}, uc.reject(logger, votingID, email, domainerrors.ErrNotAuthenticated)
	}
	if !cmd.Voter.Role.CanVote() {
		return CastVoteResult{}, uc.reject(logger, votingID, email, domainerrors.ErrNotMember)
	}
	if !cmd.Voter.IsOwner {
		return CastVoteResult{}, uc.reject(logger, votingID, email, domainerrors.ErrOwnersOnly)
	}

	voting, err := uc.Votings.GetVoting(ctx, votingID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrVotingNotFound) {
			return CastVoteResult{}, uc.reject(logger, votingID, email, err)
		}
		return CastVoteResult{}, err
	}
	now := resolveNow(uc.Clock)
	if voting.IsDue(now) {
		if _, err := uc.Lifecycle.Close(ctx, voting, now); err != nil {
			return CastVoteResult{}, err
		}
		return CastVoteResult{}, uc.reject(logger, votingID, email, domainerrors.ErrVotingClosed)
	}
	if !voting.AcceptsVotes(now) {
		return CastVoteResult{}, uc.reject(logger, votingID, email, domainerrors.ErrVotingClosed)
	}

	if _, found, err := uc.Ledger.GetVoteRecord(ctx, votingID, email); err != nil {
		return CastVoteResult{}, err
	} else if found {
		return CastVoteResult{}, uc.reject(logger, votingID, email, domainerrors.ErrAlreadyVoted)
	}

	selected, err := voting.ValidateSelection(cmd.OptionIndices)
	if err != nil {
		return CastVoteResult{}, uc.reject(logger, votingID, email, err)
	}

	record := entities.VoteRecord{
		VotingID:        votingID,
		VoterEmail:      email,
		SelectedOptions: selected,
		Voter:           cmd.Voter.Snapshot(),
		CastAt:          now,
	}
	updated, err := uc.Ledger.CastVote(ctx, record, now)
	if err != nil {
		if domainerrors.IsRejection(err) {
			return CastVoteResult{}, uc.reject(logger, votingID, email, err)
		}
		logger.Error("vote cast persist failed",
			"event", "voting_vote_cast_persist_failed",
			"module", application.LogModule,
			"layer", "application",
			"voting_id", votingID,
			"voter", email,
			"error", err.Error(),
		)
		return CastVoteResult{}, err
	}

	if err := appendVotingEvent(ctx, uc.Outbox, uc.IDGen, contractsv1.EventVoteCast, updated, now, map[string]any{
		"voter_email":      email,
		"selected_options": selected,
	}); err != nil {
		return CastVoteResult{}, err
	}
	application.ResolveMetrics(uc.Metrics).VoteCast(updated.IsMultipleChoice, len(selected))
	logger.Info("vote cast",
		"event", "voting_vote_cast",
		"module", application.LogModule,
		"layer", "application",
		"voting_id", votingID,
		"voter", email,
		"selected", len(selected),
	)
	return CastVoteResult{Voting: updated, Record: record}, nil
}

func (uc CastVoteUseCase) reject(logger *slog.Logger, votingID string, email string, err error) error {
	reason := domainerrors.ReasonCode(err)
	application.ResolveMetrics(uc.Metrics).VoteRejected(reason)
	logger.Info("vote cast rejected",
		"event", "voting_vote_cast_rejected",
		"module", application.LogModule,
		"layer", "application",
		"voting_id", votingID,
		"voter", email,
		"reason", reason,
	)
	return err
}
