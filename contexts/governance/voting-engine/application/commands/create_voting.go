package commands

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	application "sntportal/contexts/governance/voting-engine/application"
	"sntportal/contexts/governance/voting-engine/domain/entities"
	domainerrors "sntportal/contexts/governance/voting-engine/domain/errors"
	"sntportal/contexts/governance/voting-engine/ports"
	contractsv1 "sntportal/contracts/gen/events/v1"
)

type CreateVotingCommand struct {
	Author           entities.Voter
	IdempotencyKey   string
	Title            string
	Description      string
	Options          []string
	IsMultipleChoice bool
	EndDate          time.Time
}

type CreateVotingResult struct {
	Voting   entities.Voting
	Replayed bool
}

// CreateVotingUseCase authors new ballots. Replays with the same idempotency
// key and payload return the ballot created the first time.
type CreateVotingUseCase struct {
	Votings        ports.VotingRepository
	Idempotency    ports.IdempotencyStore
	Outbox         ports.OutboxWriter
	Clock          ports.Clock
	IDGen          ports.IDGenerator
	Metrics        ports.Metrics
	IdempotencyTTL time.Duration
	Logger         *slog.Logger
}

func (uc CreateVotingUseCase) Execute(ctx context.Context, cmd CreateVotingCommand) (CreateVotingResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	author := entities.NormalizeEmail(cmd.Author.Email)
	logger.Info("voting create started",
		"event", "voting_create_started",
		"module", application.LogModule,
		"layer", "application",
		"author", author,
	)

	if !cmd.Author.Authenticated() {
		return CreateVotingResult{}, domainerrors.ErrNotAuthenticated
	}
	if !cmd.Author.Role.CanAuthor() {
		logger.Warn("voting create forbidden",
			"event", "voting_create_forbidden",
			"module", application.LogModule,
			"layer", "application",
			"author", author,
			"role", string(cmd.Author.Role),
		)
		return CreateVotingResult{}, domainerrors.ErrForbidden
	}

	now := resolveNow(uc.Clock)
	draft, err := normalizeDraft(cmd, now)
	if err != nil {
		logger.Warn("voting create validation failed",
			"event", "voting_create_validation_failed",
			"module", application.LogModule,
			"layer", "application",
			"author", author,
			"error", err.Error(),
		)
		return CreateVotingResult{}, err
	}

	key := strings.TrimSpace(cmd.IdempotencyKey)
	if key == "" {
		return CreateVotingResult{}, domainerrors.ErrIdempotencyKeyRequired
	}
	requestHash := hashCreateVotingCommand(author, draft)
	if record, found, err := uc.Idempotency.Get(ctx, key, now); err != nil {
		logger.Error("voting create idempotency lookup failed",
			"event", "voting_create_idempotency_lookup_failed",
			"module", application.LogModule,
			"layer", "application",
			"author", author,
			"error", err.Error(),
		)
		return CreateVotingResult{}, err
	} else if found {
		if record.RequestHash != requestHash {
			logger.Warn("voting create idempotency conflict",
				"event", "voting_create_idempotency_conflict",
				"module", application.LogModule,
				"layer", "application",
				"author", author,
			)
			return CreateVotingResult{}, domainerrors.ErrIdempotencyConflict
		}
		voting, err := uc.Votings.GetVoting(ctx, record.VotingID)
		if err != nil {
			return CreateVotingResult{}, err
		}
		logger.Info("voting create replayed",
			"event", "voting_create_replayed",
			"module", application.LogModule,
			"layer", "application",
			"voting_id", voting.VotingID,
		)
		return CreateVotingResult{Voting: voting, Replayed: true}, nil
	}

	votingID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return CreateVotingResult{}, err
	}
	draft.VotingID = votingID
	draft.CreatedBy = author
	draft.CreatedAt = now
	draft.UpdatedAt = now

	if err := uc.Votings.CreateVoting(ctx, draft); err != nil {
		logger.Error("voting create persist failed",
			"event", "voting_create_persist_failed",
			"module", application.LogModule,
			"layer", "application",
			"voting_id", votingID,
			"error", err.Error(),
		)
		return CreateVotingResult{}, err
	}
	// The key is bound as soon as the ballot exists, so a retry after any
	// later failure replays this ballot instead of creating a second one.
	if err := uc.Idempotency.Put(ctx, ports.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		VotingID:    votingID,
		ExpiresAt:   now.Add(uc.resolveIdempotencyTTL()),
	}); err != nil {
		return CreateVotingResult{}, err
	}
	if err := appendVotingEvent(ctx, uc.Outbox, uc.IDGen, contractsv1.EventVotingCreated, draft, now, map[string]any{
		"options":            draft.Options,
		"is_multiple_choice": draft.IsMultipleChoice,
		"end_date":           draft.EndDate.Format(time.RFC3339),
		"created_by":         author,
	}); err != nil {
		logger.Error("voting create event append failed",
			"event", "voting_create_outbox_failed",
			"module", application.LogModule,
			"layer", "application",
			"voting_id", votingID,
			"error", err.Error(),
		)
		return CreateVotingResult{}, err
	}
	application.ResolveMetrics(uc.Metrics).VotingCreated()

	logger.Info("voting created",
		"event", "voting_created",
		"module", application.LogModule,
		"layer", "application",
		"voting_id", votingID,
		"options", len(draft.Options),
		"is_multiple_choice", draft.IsMultipleChoice,
		"end_date", draft.EndDate.Format(time.RFC3339),
	)
	return CreateVotingResult{Voting: draft}, nil
}

func (uc CreateVotingUseCase) resolveIdempotencyTTL() time.Duration {
	if uc.IdempotencyTTL <= 0 {
		return 24 * time.Hour
	}
	return uc.IdempotencyTTL
}

// normalizeDraft trims text, drops blank options and checks the ballot
// shape. The returned ballot is active with an empty tally.
func normalizeDraft(cmd CreateVotingCommand, now time.Time) (entities.Voting, error) {
	title := strings.TrimSpace(cmd.Title)
	description := strings.TrimSpace(cmd.Description)
	if title == "" || description == "" {
		return entities.Voting{}, domainerrors.ErrInvalidVotingInput
	}
	options := make([]string, 0, len(cmd.Options))
	for _, option := range cmd.Options {
		if trimmed := strings.TrimSpace(option); trimmed != "" {
			options = append(options, trimmed)
		}
	}
	if len(options) < entities.MinOptions || len(options) > entities.MaxOptions {
		return entities.Voting{}, domainerrors.ErrInvalidVotingInput
	}
	if cmd.EndDate.IsZero() || !cmd.EndDate.After(now) {
		return entities.Voting{}, domainerrors.ErrInvalidVotingInput
	}
	return entities.Voting{
		Title:            title,
		Description:      description,
		Options:          options,
		IsMultipleChoice: cmd.IsMultipleChoice,
		EndDate:          cmd.EndDate.UTC(),
		Status:           entities.VotingStatusActive,
		Votes:            make(map[int]int, len(options)),
	}, nil
}

func hashCreateVotingCommand(author string, draft entities.Voting) string {
	payload := map[string]any{
		"author":             author,
		"title":              draft.Title,
		"description":        draft.Description,
		"options":            draft.Options,
		"is_multiple_choice": draft.IsMultipleChoice,
		"end_date":           draft.EndDate.Format(time.RFC3339Nano),
		"op":                 "create_voting",
	}
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
