package postgresadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"sntportal/contexts/governance/voting-engine/domain/entities"
	domainerrors "sntportal/contexts/governance/voting-engine/domain/errors"
	"sntportal/contexts/governance/voting-engine/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"
)

// Repository is the gorm-backed store. It runs against Postgres in
// production and against SQLite for single-node installs and tests.
type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Migrate creates or updates the voting tables.
func (r *Repository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(
		&votingModel{},
		&optionTallyModel{},
		&voteRecordModel{},
		&receiptModel{},
		&idempotencyModel{},
		&outboxModel{},
	); err != nil {
		return r.logError("voting_repo_migrate_failed", err)
	}
	return nil
}

func (r *Repository) CreateVoting(ctx context.Context, voting entities.Voting) error {
	row, err := votingModelFromEntity(voting)
	if err != nil {
		return err
	}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		tallies := make([]optionTallyModel, 0, len(voting.Options))
		for index := range voting.Options {
			tallies = append(tallies, optionTallyModel{
				VotingID:    row.VotingID,
				OptionIndex: index,
				Votes:       voting.Votes[index],
			})
		}
		return tx.Create(&tallies).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrConflict
		}
		return r.logError("voting_repo_create_voting_failed", err, "voting_id", row.VotingID)
	}
	return nil
}

func (r *Repository) GetVoting(ctx context.Context, votingID string) (entities.Voting, error) {
	return r.getVoting(ctx, r.db.WithContext(ctx), strings.TrimSpace(votingID))
}

func (r *Repository) ListVotings(ctx context.Context) ([]entities.Voting, error) {
	var rows []votingModel
	if err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("voting_repo_list_votings_failed", err)
	}
	return r.hydrate(ctx, r.db.WithContext(ctx), rows)
}

func (r *Repository) ListDueVotings(ctx context.Context, now time.Time) ([]entities.Voting, error) {
	var rows []votingModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", string(entities.VotingStatusActive)).
		Where("end_date <= ?", dbTime(now)).
		Order("end_date ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("voting_repo_list_due_votings_failed", err)
	}
	return r.hydrate(ctx, r.db.WithContext(ctx), rows)
}

// CompleteVoting flips status with a conditional update so concurrent
// observers agree on a single transition.
func (r *Repository) CompleteVoting(ctx context.Context, votingID string, now time.Time) (entities.Voting, bool, error) {
	votingID = strings.TrimSpace(votingID)
	at := dbTime(now)
	result := r.db.WithContext(ctx).
		Model(&votingModel{}).
		Where("voting_id = ?", votingID).
		Where("status = ?", string(entities.VotingStatusActive)).
		Where("end_date <= ?", at).
		Updates(map[string]any{
			"status":       string(entities.VotingStatusCompleted),
			"completed_at": at,
			"updated_at":   at,
		})
	if result.Error != nil {
		return entities.Voting{}, false, r.logError("voting_repo_complete_voting_failed", result.Error,
			"voting_id", votingID,
		)
	}
	voting, err := r.GetVoting(ctx, votingID)
	if err != nil {
		return entities.Voting{}, false, err
	}
	return voting, result.RowsAffected == 1, nil
}

func (r *Repository) ArchiveVoting(ctx context.Context, votingID string, now time.Time) (entities.Voting, error) {
	votingID = strings.TrimSpace(votingID)
	at := dbTime(now)
	result := r.db.WithContext(ctx).
		Model(&votingModel{}).
		Where("voting_id = ?", votingID).
		Where("status = ?", string(entities.VotingStatusCompleted)).
		Where("archived = ?", false).
		Updates(map[string]any{
			"archived":    true,
			"archived_at": at,
			"updated_at":  at,
		})
	if result.Error != nil {
		return entities.Voting{}, r.logError("voting_repo_archive_voting_failed", result.Error,
			"voting_id", votingID,
		)
	}
	voting, err := r.GetVoting(ctx, votingID)
	if err != nil {
		return entities.Voting{}, err
	}
	if result.RowsAffected == 0 {
		return entities.Voting{}, domainerrors.ErrInvalidTransition
	}
	return voting, nil
}

// DeleteVoting removes the ballot, its tallies, its ledger and its receipt in
// one transaction. The ballot row is locked first so a concurrent
// MarkNotificationSent cannot slip a receipt in behind the cascade.
func (r *Repository) DeleteVoting(ctx context.Context, votingID string) (int, error) {
	votingID = strings.TrimSpace(votingID)
	removed := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockVoting(tx, votingID); err != nil {
			return err
		}
		records := tx.Where("voting_id = ?", votingID).Delete(&voteRecordModel{})
		if records.Error != nil {
			return records.Error
		}
		removed = int(records.RowsAffected)
		if err := tx.Where("voting_id = ?", votingID).Delete(&optionTallyModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("voting_id = ?", votingID).Delete(&receiptModel{}).Error; err != nil {
			return err
		}
		ballot := tx.Where("voting_id = ?", votingID).Delete(&votingModel{})
		if ballot.Error != nil {
			return ballot.Error
		}
		if ballot.RowsAffected == 0 {
			return domainerrors.ErrVotingNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrVotingNotFound) {
			return 0, err
		}
		return 0, r.logError("voting_repo_delete_voting_failed", err, "voting_id", votingID)
	}
	return removed, nil
}

// CastVote claims the ballot row with a guarded update, inserts the ledger
// row under its (voting_id, voter_email) key and bumps the option tallies,
// all in one transaction. The primary key is what enforces one vote per
// voter when two casts race.
func (r *Repository) CastVote(ctx context.Context, record entities.VoteRecord, now time.Time) (entities.Voting, error) {
	votingID := strings.TrimSpace(record.VotingID)
	email := entities.NormalizeEmail(record.VoterEmail)
	at := dbTime(now)
	selected, err := json.Marshal(record.SelectedOptions)
	if err != nil {
		return entities.Voting{}, err
	}

	var updated entities.Voting
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claim := tx.Model(&votingModel{}).
			Where("voting_id = ?", votingID).
			Where("status = ?", string(entities.VotingStatusActive)).
			Where("archived = ?", false).
			Where("end_date > ?", at).
			Update("updated_at", at)
		if claim.Error != nil {
			return claim.Error
		}
		if claim.RowsAffected == 0 {
			if _, err := r.getVoting(ctx, tx, votingID); err != nil {
				return err
			}
			return domainerrors.ErrVotingClosed
		}

		row := voteRecordModel{
			VotingID:        votingID,
			VoterEmail:      email,
			SelectedOptions: string(selected),
			FirstName:       record.Voter.FirstName,
			LastName:        record.Voter.LastName,
			PlotNumber:      record.Voter.PlotNumber,
			CastAt:          dbTime(record.CastAt),
		}
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return domainerrors.ErrAlreadyVoted
			}
			return err
		}

		bump := tx.Model(&optionTallyModel{}).
			Where("voting_id = ?", votingID).
			Where("option_index IN ?", record.SelectedOptions).
			Update("votes", gorm.Expr("votes + ?", 1))
		if bump.Error != nil {
			return bump.Error
		}
		if int(bump.RowsAffected) != len(record.SelectedOptions) {
			return domainerrors.ErrInvalidSelection
		}

		voting, err := r.getVoting(ctx, tx, votingID)
		if err != nil {
			return err
		}
		updated = voting
		return nil
	})
	if err != nil {
		if domainerrors.IsRejection(err) {
			return entities.Voting{}, err
		}
		return entities.Voting{}, r.logError("voting_repo_cast_vote_failed", err,
			"voting_id", votingID,
			"voter", email,
		)
	}
	return updated, nil
}

func (r *Repository) GetVoteRecord(ctx context.Context, votingID string, voterEmail string) (entities.VoteRecord, bool, error) {
	var row voteRecordModel
	err := r.db.WithContext(ctx).
		Where("voting_id = ?", strings.TrimSpace(votingID)).
		Where("voter_email = ?", entities.NormalizeEmail(voterEmail)).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.VoteRecord{}, false, nil
		}
		return entities.VoteRecord{}, false, r.logError("voting_repo_get_vote_record_failed", err,
			"voting_id", strings.TrimSpace(votingID),
		)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) ListVoteRecords(ctx context.Context, votingID string) ([]entities.VoteRecord, error) {
	var rows []voteRecordModel
	if err := r.db.WithContext(ctx).
		Where("voting_id = ?", strings.TrimSpace(votingID)).
		Order("cast_at ASC").
		Order("voter_email ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("voting_repo_list_vote_records_failed", err,
			"voting_id", strings.TrimSpace(votingID),
		)
	}
	items := make([]entities.VoteRecord, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) GetReceipt(ctx context.Context, votingID string) (entities.NotificationReceipt, bool, error) {
	var row receiptModel
	err := r.db.WithContext(ctx).
		Where("voting_id = ?", strings.TrimSpace(votingID)).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.NotificationReceipt{}, false, nil
		}
		return entities.NotificationReceipt{}, false, r.logError("voting_repo_get_receipt_failed", err,
			"voting_id", strings.TrimSpace(votingID),
		)
	}
	return entities.NotificationReceipt{
		VotingID:         row.VotingID,
		NotificationSent: row.NotificationSent,
		SentAt:           row.SentAt.UTC(),
	}, true, nil
}

// MarkNotificationSent upserts the receipt under the ballot's row lock. A
// ballot deleted first yields ErrVotingNotFound and no receipt.
func (r *Repository) MarkNotificationSent(ctx context.Context, votingID string, sentAt time.Time) error {
	votingID = strings.TrimSpace(votingID)
	row := receiptModel{
		VotingID:         votingID,
		NotificationSent: true,
		SentAt:           dbTime(sentAt),
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockVoting(tx, votingID); err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "voting_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"notification_sent": true,
				"sent_at":           row.SentAt,
			}),
		}).Create(&row).Error
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrVotingNotFound) {
			return err
		}
		return r.logError("voting_repo_mark_receipt_failed", err, "voting_id", votingID)
	}
	return nil
}

func (r *Repository) ListUnnotifiedCompleted(ctx context.Context, limit int) ([]entities.Voting, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []votingModel
	if err := r.db.WithContext(ctx).
		Model(&votingModel{}).
		Joins("LEFT JOIN voting_notification_receipts ON voting_notification_receipts.voting_id = votings.voting_id").
		Where("votings.status = ?", string(entities.VotingStatusCompleted)).
		Where("voting_notification_receipts.voting_id IS NULL OR voting_notification_receipts.notification_sent = ?", false).
		Order("votings.end_date ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("voting_repo_list_unnotified_failed", err, "limit", limit)
	}
	return r.hydrate(ctx, r.db.WithContext(ctx), rows)
}

func (r *Repository) Get(ctx context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	key = strings.TrimSpace(key)
	var row idempotencyModel
	err := r.db.WithContext(ctx).
		Where("key = ?", key).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.IdempotencyRecord{}, false, nil
		}
		return ports.IdempotencyRecord{}, false, r.logError("voting_repo_idempotency_get_failed", err,
			"idempotency_key", key,
		)
	}
	if !row.ExpiresAt.IsZero() && now.UTC().After(row.ExpiresAt.UTC()) {
		if err := r.db.WithContext(ctx).
			Where("key = ?", key).
			Delete(&idempotencyModel{}).Error; err != nil {
			return ports.IdempotencyRecord{}, false, r.logError("voting_repo_idempotency_expire_failed", err,
				"idempotency_key", key,
			)
		}
		return ports.IdempotencyRecord{}, false, nil
	}
	return ports.IdempotencyRecord{
		Key:         row.Key,
		RequestHash: row.RequestHash,
		VotingID:    row.VotingID,
		ExpiresAt:   row.ExpiresAt.UTC(),
	}, true, nil
}

func (r *Repository) Put(ctx context.Context, record ports.IdempotencyRecord) error {
	row := idempotencyModel{
		Key:         strings.TrimSpace(record.Key),
		RequestHash: strings.TrimSpace(record.RequestHash),
		VotingID:    strings.TrimSpace(record.VotingID),
		ExpiresAt:   dbTime(record.ExpiresAt),
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("voting_repo_idempotency_put_failed", create.Error, "idempotency_key", row.Key)
	}
	if create.RowsAffected > 0 {
		return nil
	}
	var existing idempotencyModel
	if err := r.db.WithContext(ctx).
		Where("key = ?", row.Key).
		First(&existing).Error; err != nil {
		return r.logError("voting_repo_idempotency_load_existing_failed", err, "idempotency_key", row.Key)
	}
	if existing.RequestHash != row.RequestHash || existing.VotingID != row.VotingID {
		return domainerrors.ErrIdempotencyConflict
	}
	return nil
}

func (r *Repository) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return r.logError("voting_repo_append_outbox_marshal_failed", err,
			"event_id", strings.TrimSpace(envelope.EventID),
		)
	}
	row := outboxModel{
		OutboxID:     strings.TrimSpace(envelope.EventID),
		EventType:    strings.TrimSpace(envelope.EventType),
		PartitionKey: strings.TrimSpace(envelope.PartitionKey),
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    dbTime(envelope.OccurredAt),
	}
	if row.OutboxID == "" {
		row.OutboxID = uuid.NewString()
	}
	if envelope.OccurredAt.IsZero() {
		row.CreatedAt = dbTime(time.Now())
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "outbox_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("voting_repo_append_outbox_failed", create.Error, "outbox_id", row.OutboxID)
	}
	if create.RowsAffected > 0 {
		return nil
	}
	var existing outboxModel
	if err := r.db.WithContext(ctx).
		Select("payload").
		Where("outbox_id = ?", row.OutboxID).
		First(&existing).Error; err != nil {
		return r.logError("voting_repo_append_outbox_load_existing_failed", err, "outbox_id", row.OutboxID)
	}
	if !bytes.Equal(existing.Payload, row.Payload) {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC").
		Order("outbox_id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("voting_repo_list_pending_outbox_failed", err, "limit", limit)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      append([]byte(nil), row.Payload...),
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": dbTime(publishedAt),
		})
	if result.Error != nil {
		return r.logError("voting_repo_mark_outbox_published_failed", result.Error,
			"outbox_id", strings.TrimSpace(outboxID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) getVoting(ctx context.Context, db *gorm.DB, votingID string) (entities.Voting, error) {
	var row votingModel
	if err := db.Where("voting_id = ?", votingID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Voting{}, domainerrors.ErrVotingNotFound
		}
		return entities.Voting{}, r.logError("voting_repo_get_voting_failed", err, "voting_id", votingID)
	}
	items, err := r.hydrate(ctx, db, []votingModel{row})
	if err != nil {
		return entities.Voting{}, err
	}
	return items[0], nil
}

// hydrate attaches option tallies to ballot rows with one query.
func (r *Repository) hydrate(_ context.Context, db *gorm.DB, rows []votingModel) ([]entities.Voting, error) {
	if len(rows) == 0 {
		return []entities.Voting{}, nil
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.VotingID)
	}
	var tallies []optionTallyModel
	if err := db.Where("voting_id IN ?", ids).Find(&tallies).Error; err != nil {
		return nil, r.logError("voting_repo_load_tallies_failed", err, "ballots", len(ids))
	}
	byVoting := make(map[string]map[int]int, len(rows))
	for _, tally := range tallies {
		if byVoting[tally.VotingID] == nil {
			byVoting[tally.VotingID] = make(map[int]int)
		}
		if tally.Votes > 0 {
			byVoting[tally.VotingID][tally.OptionIndex] = tally.Votes
		}
	}
	items := make([]entities.Voting, 0, len(rows))
	for _, row := range rows {
		voting, err := row.toEntity(byVoting[row.VotingID])
		if err != nil {
			return nil, r.logError("voting_repo_decode_voting_failed", err, "voting_id", row.VotingID)
		}
		items = append(items, voting)
	}
	return items, nil
}

// lockVoting takes the ballot row lock for the rest of tx. SQLite has no row
// locks; its single writer connection already serializes the transaction.
func lockVoting(tx *gorm.DB, votingID string) error {
	query := tx
	if tx.Dialector.Name() == "postgres" {
		query = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var ballot votingModel
	if err := query.Select("voting_id").Where("voting_id = ?", votingID).Take(&ballot).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domainerrors.ErrVotingNotFound
		}
		return err
	}
	return nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "governance/voting-engine",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("voting repository operation failed", fields...)
	return err
}

// dbTime normalizes timestamps to UTC at the precision Postgres keeps.
func dbTime(value time.Time) time.Time {
	return value.UTC().Truncate(time.Microsecond)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ ports.VotingRepository = (*Repository)(nil)
var _ ports.VoteLedger = (*Repository)(nil)
var _ ports.NotificationReceiptStore = (*Repository)(nil)
var _ ports.IdempotencyStore = (*Repository)(nil)
var _ ports.OutboxWriter = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
