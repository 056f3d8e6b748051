package httpadapter

import (
	"context"
	"io"
	"log/slog"

	"sntportal/contexts/governance/voting-engine/adapters/export"
	"sntportal/contexts/governance/voting-engine/application/commands"
	"sntportal/contexts/governance/voting-engine/application/queries"
	"sntportal/contexts/governance/voting-engine/domain/entities"
	httptransport "sntportal/contexts/governance/voting-engine/transport/http"
)

// Handler maps transport DTOs onto the engine use cases. Identity is
// resolved by the caller and passed in as an entities.Voter.
type Handler struct {
	Create    commands.CreateVotingUseCase
	Cast      commands.CastVoteUseCase
	Lifecycle commands.LifecycleUseCase
	Queries   queries.VotingQueries
	Logger    *slog.Logger
}

func (h Handler) CreateVotingHandler(
	ctx context.Context,
	author entities.Voter,
	idempotencyKey string,
	req httptransport.CreateVotingRequest,
) (httptransport.CreateVotingResponse, error) {
	result, err := h.Create.Execute(ctx, commands.CreateVotingCommand{
		Author:           author,
		IdempotencyKey:   idempotencyKey,
		Title:            req.Title,
		Description:      req.Description,
		Options:          req.Options,
		IsMultipleChoice: req.IsMultipleChoice,
		EndDate:          req.EndDate,
	})
	if err != nil {
		return httptransport.CreateVotingResponse{}, err
	}
	return httptransport.CreateVotingResponse{
		Voting:   mapVoting(result.Voting),
		Replayed: result.Replayed,
	}, nil
}

func (h Handler) ListVotingsHandler(ctx context.Context, state string) (httptransport.VotingListResponse, error) {
	listState, err := queries.ParseListState(state)
	if err != nil {
		return httptransport.VotingListResponse{}, err
	}
	votings, err := h.Queries.List(ctx, listState)
	if err != nil {
		return httptransport.VotingListResponse{}, err
	}
	items := make([]httptransport.VotingResponse, 0, len(votings))
	for _, voting := range votings {
		items = append(items, mapVoting(voting))
	}
	return httptransport.VotingListResponse{State: string(listState), Items: items}, nil
}

func (h Handler) GetVotingHandler(ctx context.Context, votingID string, viewer entities.Voter) (httptransport.BallotResponse, error) {
	view, err := h.Queries.Get(ctx, votingID, viewer)
	if err != nil {
		return httptransport.BallotResponse{}, err
	}
	resp := httptransport.BallotResponse{Voting: mapVoting(view.Voting)}
	if view.MyVote != nil {
		record := mapRecord(*view.MyVote)
		resp.MyVote = &record
	}
	return resp, nil
}

func (h Handler) CastVoteHandler(
	ctx context.Context,
	votingID string,
	voter entities.Voter,
	req httptransport.CastVoteRequest,
) (httptransport.CastVoteResponse, error) {
	result, err := h.Cast.Execute(ctx, commands.CastVoteCommand{
		VotingID:      votingID,
		Voter:         voter,
		OptionIndices: req.OptionIndices,
	})
	if err != nil {
		return httptransport.CastVoteResponse{}, err
	}
	return httptransport.CastVoteResponse{
		Voting: mapVoting(result.Voting),
		Record: mapRecord(result.Record),
	}, nil
}

func (h Handler) ResultsHandler(ctx context.Context, votingID string, viewer entities.Voter) (httptransport.ResultsResponse, error) {
	view, err := h.Queries.Results(ctx, votingID, viewer)
	if err != nil {
		return httptransport.ResultsResponse{}, err
	}
	resp := httptransport.ResultsResponse{
		Voting: mapVoting(view.Voting),
		Voters: view.Voters,
	}
	for _, record := range view.Records {
		resp.Records = append(resp.Records, mapRecord(record))
	}
	return resp, nil
}

// ExportResultsHandler streams the CSV export and returns the suggested
// file name.
func (h Handler) ExportResultsHandler(ctx context.Context, votingID string, viewer entities.Voter, w io.Writer) (string, error) {
	view, err := h.Queries.ExportResults(ctx, votingID, viewer)
	if err != nil {
		return "", err
	}
	if err := export.WriteResultsCSV(w, view.Voting, view.Records); err != nil {
		return "", err
	}
	return export.FileName(view.Voting.VotingID, view.Voting.EndDate), nil
}

func (h Handler) ArchiveVotingHandler(ctx context.Context, votingID string, actor entities.Voter) (httptransport.VotingResponse, error) {
	voting, err := h.Lifecycle.Archive(ctx, actor, votingID)
	if err != nil {
		return httptransport.VotingResponse{}, err
	}
	return mapVoting(voting), nil
}

func (h Handler) DeleteVotingHandler(ctx context.Context, votingID string, actor entities.Voter) (httptransport.DeleteVotingResponse, error) {
	removed, err := h.Lifecycle.Delete(ctx, actor, votingID)
	if err != nil {
		return httptransport.DeleteVotingResponse{}, err
	}
	return httptransport.DeleteVotingResponse{VotingID: votingID, RemovedRecords: removed}, nil
}

func (h Handler) SweepHandler(ctx context.Context, actor entities.Voter) (httptransport.SweepResponse, error) {
	summary, err := h.Lifecycle.TriggerSweep(ctx, actor)
	if err != nil {
		return httptransport.SweepResponse{}, err
	}
	return httptransport.SweepResponse{
		Completed: summary.Completed,
		Notified:  summary.Notified,
		Failed:    summary.Failed,
	}, nil
}

func mapVoting(voting entities.Voting) httptransport.VotingResponse {
	results := entities.Tally(voting)
	items := make([]httptransport.OptionResult, 0, len(results))
	for _, result := range results {
		items = append(items, httptransport.OptionResult{
			Index:      result.Index,
			Option:     result.Option,
			Votes:      result.Votes,
			Percentage: result.Percentage,
		})
	}
	votes := make(map[int]int, len(voting.Votes))
	for index, count := range voting.Votes {
		votes[index] = count
	}
	return httptransport.VotingResponse{
		VotingID:         voting.VotingID,
		Title:            voting.Title,
		Description:      voting.Description,
		Options:          append([]string(nil), voting.Options...),
		IsMultipleChoice: voting.IsMultipleChoice,
		EndDate:          voting.EndDate,
		Status:           string(voting.Status),
		Archived:         voting.Archived,
		Votes:            votes,
		TotalVotes:       voting.TotalVotes(),
		Results:          items,
		CreatedBy:        voting.CreatedBy,
		CreatedAt:        voting.CreatedAt,
		CompletedAt:      voting.CompletedAt,
		ArchivedAt:       voting.ArchivedAt,
	}
}

func mapRecord(record entities.VoteRecord) httptransport.VoteRecordResponse {
	return httptransport.VoteRecordResponse{
		VoterEmail:      record.VoterEmail,
		FirstName:       record.Voter.FirstName,
		LastName:        record.Voter.LastName,
		PlotNumber:      record.Voter.PlotNumber,
		SelectedOptions: append([]int(nil), record.SelectedOptions...),
		CastAt:          record.CastAt,
	}
}
