package queries

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	application "sntportal/contexts/governance/voting-engine/application"
	"sntportal/contexts/governance/voting-engine/application/commands"
	"sntportal/contexts/governance/voting-engine/domain/entities"
	domainerrors "sntportal/contexts/governance/voting-engine/domain/errors"
	"sntportal/contexts/governance/voting-engine/ports"
)

type ListState string

const (
	ListActive    ListState = "active"
	ListCompleted ListState = "completed"
	ListArchived  ListState = "archived"
)

func ParseListState(raw string) (ListState, error) {
	switch ListState(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ListActive:
		return ListActive, nil
	case ListCompleted:
		return ListCompleted, nil
	case ListArchived:
		return ListArchived, nil
	default:
		return "", domainerrors.ErrInvalidVotingInput
	}
}

type BallotView struct {
	Voting     entities.Voting
	Results    []entities.OptionResult
	TotalVotes int
	MyVote     *entities.VoteRecord
}

type ResultsView struct {
	Voting     entities.Voting
	Results    []entities.OptionResult
	TotalVotes int
	Voters     int
	// Records is only filled for roles that may author ballots.
	Records []entities.VoteRecord
}

// VotingQueries serves read paths. Every read closes what it loads, so a
// past-due ballot is never reported as active.
type VotingQueries struct {
	Votings   ports.VotingRepository
	Ledger    ports.VoteLedger
	Lifecycle commands.LifecycleUseCase
	Clock     ports.Clock
	Logger    *slog.Logger
}

func (q VotingQueries) List(ctx context.Context, state ListState) ([]entities.Voting, error) {
	votings, err := q.Votings.ListVotings(ctx)
	if err != nil {
		return nil, err
	}
	now := q.now()
	items := make([]entities.Voting, 0, len(votings))
	for _, voting := range votings {
		voting = q.observe(ctx, voting, now)
		switch state {
		case ListActive:
			if voting.AcceptsVotes(now) {
				items = append(items, voting)
			}
		case ListCompleted:
			if voting.Status == entities.VotingStatusCompleted && !voting.Archived {
				items = append(items, voting)
			}
		case ListArchived:
			if voting.Archived {
				items = append(items, voting)
			}
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if state == ListActive {
			return items[i].EndDate.Before(items[j].EndDate)
		}
		return items[i].EndDate.After(items[j].EndDate)
	})
	return items, nil
}

func (q VotingQueries) Get(ctx context.Context, votingID string, viewer entities.Voter) (BallotView, error) {
	voting, err := q.load(ctx, votingID)
	if err != nil {
		return BallotView{}, err
	}
	view := BallotView{
		Voting:     voting,
		Results:    entities.Tally(voting),
		TotalVotes: voting.TotalVotes(),
	}
	if viewer.Authenticated() {
		record, found, err := q.Ledger.GetVoteRecord(ctx, voting.VotingID, entities.NormalizeEmail(viewer.Email))
		if err != nil {
			return BallotView{}, err
		}
		if found {
			view.MyVote = &record
		}
	}
	return view, nil
}

func (q VotingQueries) Results(ctx context.Context, votingID string, viewer entities.Voter) (ResultsView, error) {
	if !viewer.Authenticated() {
		return ResultsView{}, domainerrors.ErrNotAuthenticated
	}
	voting, err := q.load(ctx, votingID)
	if err != nil {
		return ResultsView{}, err
	}
	records, err := q.Ledger.ListVoteRecords(ctx, voting.VotingID)
	if err != nil {
		return ResultsView{}, err
	}
	view := ResultsView{
		Voting:     voting,
		Results:    entities.Tally(voting),
		TotalVotes: voting.TotalVotes(),
		Voters:     len(records),
	}
	if viewer.Role.CanAuthor() {
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].CastAt.Before(records[j].CastAt)
		})
		view.Records = records
	}
	return view, nil
}

// ExportResults is Results restricted to roles that may see voter details.
func (q VotingQueries) ExportResults(ctx context.Context, votingID string, viewer entities.Voter) (ResultsView, error) {
	if viewer.Authenticated() && !viewer.Role.CanAuthor() {
		return ResultsView{}, domainerrors.ErrForbidden
	}
	return q.Results(ctx, votingID, viewer)
}

func (q VotingQueries) load(ctx context.Context, votingID string) (entities.Voting, error) {
	voting, err := q.Votings.GetVoting(ctx, strings.TrimSpace(votingID))
	if err != nil {
		return entities.Voting{}, err
	}
	return q.observe(ctx, voting, q.now()), nil
}

// observe closes a past-due ballot on read. Notices are never sent from here.
// Store failures are logged and the ballot is served as loaded; the worker
// sweep picks it up again.
func (q VotingQueries) observe(ctx context.Context, voting entities.Voting, now time.Time) entities.Voting {
	if !voting.IsDue(now) {
		return voting
	}
	outcome, err := q.Lifecycle.Close(ctx, voting, now)
	if err != nil {
		application.ResolveLogger(q.Logger).Warn("voting reconcile on read failed",
			"event", "voting_read_reconcile_failed",
			"module", application.LogModule,
			"layer", "application",
			"voting_id", voting.VotingID,
			"error", err.Error(),
		)
		return voting
	}
	return outcome.Voting
}

func (q VotingQueries) now() time.Time {
	if q.Clock != nil {
		return q.Clock.Now().UTC()
	}
	return time.Now().UTC()
}
