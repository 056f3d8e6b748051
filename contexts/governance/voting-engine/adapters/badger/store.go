package badgerstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"sntportal/contexts/governance/voting-engine/domain/entities"
	domainerrors "sntportal/contexts/governance/voting-engine/domain/errors"
	"sntportal/contexts/governance/voting-engine/ports"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	prefixVoting  = "voting/"
	prefixVote    = "vote/"
	prefixReceipt = "receipt/"
	prefixIdem    = "idem/"
	prefixOutbox  = "outbox/"

	maxConflictRetries = 8
)

// Store keeps the engine state in badger. Every key is namespaced by record
// kind and ballot id, so a ballot's ledger is exactly the keys under
// "vote/<id>/".
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

func NewStore(db *badger.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

func votingKey(votingID string) []byte {
	return []byte(prefixVoting + votingID)
}

func votePrefix(votingID string) []byte {
	return []byte(prefixVote + votingID + "/")
}

func voteKey(votingID string, email string) []byte {
	return append(votePrefix(votingID), email...)
}

func receiptKey(votingID string) []byte {
	return []byte(prefixReceipt + votingID)
}

// update runs fn in a read-write transaction and retries on optimistic
// conflicts. fn must be safe to re-run.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func (s *Store) CreateVoting(_ context.Context, voting entities.Voting) error {
	votingID := strings.TrimSpace(voting.VotingID)
	voting.VotingID = votingID
	err := s.update(func(txn *badger.Txn) error {
		if _, err := txn.Get(votingKey(votingID)); err == nil {
			return domainerrors.ErrConflict
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return putJSON(txn, votingKey(votingID), votingDocFromEntity(voting))
	})
	if err != nil && !errors.Is(err, domainerrors.ErrConflict) {
		return s.logError("voting_badger_create_voting_failed", err, "voting_id", votingID)
	}
	return err
}

func (s *Store) GetVoting(_ context.Context, votingID string) (entities.Voting, error) {
	var voting entities.Voting
	err := s.db.View(func(txn *badger.Txn) error {
		loaded, err := loadVoting(txn, strings.TrimSpace(votingID))
		voting = loaded
		return err
	})
	if err != nil && !errors.Is(err, domainerrors.ErrVotingNotFound) {
		return entities.Voting{}, s.logError("voting_badger_get_voting_failed", err, "voting_id", votingID)
	}
	return voting, err
}

func (s *Store) ListVotings(_ context.Context) ([]entities.Voting, error) {
	return s.scanVotings(func(entities.Voting) bool { return true })
}

func (s *Store) ListDueVotings(_ context.Context, now time.Time) ([]entities.Voting, error) {
	return s.scanVotings(func(voting entities.Voting) bool { return voting.IsDue(now) })
}

func (s *Store) CompleteVoting(_ context.Context, votingID string, now time.Time) (entities.Voting, bool, error) {
	votingID = strings.TrimSpace(votingID)
	var (
		voting       entities.Voting
		transitioned bool
	)
	err := s.update(func(txn *badger.Txn) error {
		transitioned = false
		loaded, err := loadVoting(txn, votingID)
		if err != nil {
			return err
		}
		voting = loaded
		if !loaded.IsDue(now) {
			return nil
		}
		completedAt := now.UTC()
		voting.Status = entities.VotingStatusCompleted
		voting.CompletedAt = &completedAt
		voting.UpdatedAt = completedAt
		transitioned = true
		return putJSON(txn, votingKey(votingID), votingDocFromEntity(voting))
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrVotingNotFound) {
			return entities.Voting{}, false, err
		}
		return entities.Voting{}, false, s.logError("voting_badger_complete_voting_failed", err, "voting_id", votingID)
	}
	return voting, transitioned, nil
}

func (s *Store) ArchiveVoting(_ context.Context, votingID string, now time.Time) (entities.Voting, error) {
	votingID = strings.TrimSpace(votingID)
	var voting entities.Voting
	err := s.update(func(txn *badger.Txn) error {
		loaded, err := loadVoting(txn, votingID)
		if err != nil {
			return err
		}
		if loaded.Status != entities.VotingStatusCompleted || loaded.Archived {
			return domainerrors.ErrInvalidTransition
		}
		archivedAt := now.UTC()
		loaded.Archived = true
		loaded.ArchivedAt = &archivedAt
		loaded.UpdatedAt = archivedAt
		voting = loaded
		return putJSON(txn, votingKey(votingID), votingDocFromEntity(loaded))
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrVotingNotFound) || errors.Is(err, domainerrors.ErrInvalidTransition) {
			return entities.Voting{}, err
		}
		return entities.Voting{}, s.logError("voting_badger_archive_voting_failed", err, "voting_id", votingID)
	}
	return voting, nil
}

// DeleteVoting drops the ballot, every key under its ledger prefix and its
// receipt in one transaction.
func (s *Store) DeleteVoting(_ context.Context, votingID string) (int, error) {
	votingID = strings.TrimSpace(votingID)
	removed := 0
	err := s.update(func(txn *badger.Txn) error {
		removed = 0
		if _, err := txn.Get(votingKey(votingID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return domainerrors.ErrVotingNotFound
			}
			return err
		}
		keys := collectKeys(txn, votePrefix(votingID))
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		removed = len(keys)
		if err := txn.Delete(receiptKey(votingID)); err != nil {
			return err
		}
		return txn.Delete(votingKey(votingID))
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrVotingNotFound) {
			return 0, err
		}
		return 0, s.logError("voting_badger_delete_voting_failed", err, "voting_id", votingID)
	}
	return removed, nil
}

// CastVote reads the ballot and the ledger key and writes both in one
// transaction. Badger aborts one of two racing transactions with
// ErrConflict; the retry then sees the other voter's record.
func (s *Store) CastVote(_ context.Context, record entities.VoteRecord, now time.Time) (entities.Voting, error) {
	votingID := strings.TrimSpace(record.VotingID)
	email := entities.NormalizeEmail(record.VoterEmail)
	record.VotingID = votingID
	record.VoterEmail = email
	var updated entities.Voting
	err := s.update(func(txn *badger.Txn) error {
		voting, err := loadVoting(txn, votingID)
		if err != nil {
			return err
		}
		if !voting.AcceptsVotes(now) {
			return domainerrors.ErrVotingClosed
		}
		if _, err := txn.Get(voteKey(votingID, email)); err == nil {
			return domainerrors.ErrAlreadyVoted
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		for _, index := range record.SelectedOptions {
			if index < 0 || index >= len(voting.Options) {
				return domainerrors.ErrInvalidSelection
			}
		}
		for _, index := range record.SelectedOptions {
			voting.Votes[index]++
		}
		voting.UpdatedAt = now.UTC()
		if err := putJSON(txn, votingKey(votingID), votingDocFromEntity(voting)); err != nil {
			return err
		}
		if err := putJSON(txn, voteKey(votingID, email), voteDocFromEntity(record)); err != nil {
			return err
		}
		updated = voting
		return nil
	})
	if err != nil {
		if domainerrors.IsRejection(err) {
			return entities.Voting{}, err
		}
		return entities.Voting{}, s.logError("voting_badger_cast_vote_failed", err, "voting_id", votingID, "voter", email)
	}
	return updated, nil
}

func (s *Store) GetVoteRecord(_ context.Context, votingID string, voterEmail string) (entities.VoteRecord, bool, error) {
	var (
		doc   voteDoc
		found bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		ok, err := getJSON(txn, voteKey(strings.TrimSpace(votingID), entities.NormalizeEmail(voterEmail)), &doc)
		found = ok
		return err
	})
	if err != nil {
		return entities.VoteRecord{}, false, s.logError("voting_badger_get_vote_record_failed", err, "voting_id", votingID)
	}
	if !found {
		return entities.VoteRecord{}, false, nil
	}
	return doc.toEntity(), true, nil
}

func (s *Store) ListVoteRecords(_ context.Context, votingID string) ([]entities.VoteRecord, error) {
	items := make([]entities.VoteRecord, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, votePrefix(strings.TrimSpace(votingID)), func(value []byte) error {
			var doc voteDoc
			if err := json.Unmarshal(value, &doc); err != nil {
				return err
			}
			items = append(items, doc.toEntity())
			return nil
		})
	})
	if err != nil {
		return nil, s.logError("voting_badger_list_vote_records_failed", err, "voting_id", votingID)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CastAt.Equal(items[j].CastAt) {
			return items[i].VoterEmail < items[j].VoterEmail
		}
		return items[i].CastAt.Before(items[j].CastAt)
	})
	return items, nil
}

func (s *Store) GetReceipt(_ context.Context, votingID string) (entities.NotificationReceipt, bool, error) {
	var (
		doc   receiptDoc
		found bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		ok, err := getJSON(txn, receiptKey(strings.TrimSpace(votingID)), &doc)
		found = ok
		return err
	})
	if err != nil {
		return entities.NotificationReceipt{}, false, s.logError("voting_badger_get_receipt_failed", err, "voting_id", votingID)
	}
	if !found {
		return entities.NotificationReceipt{}, false, nil
	}
	return entities.NotificationReceipt{
		VotingID:         doc.VotingID,
		NotificationSent: doc.NotificationSent,
		SentAt:           doc.SentAt.UTC(),
	}, true, nil
}

func (s *Store) MarkNotificationSent(_ context.Context, votingID string, sentAt time.Time) error {
	votingID = strings.TrimSpace(votingID)
	err := s.update(func(txn *badger.Txn) error {
		if _, err := txn.Get(votingKey(votingID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return domainerrors.ErrVotingNotFound
			}
			return err
		}
		return putJSON(txn, receiptKey(votingID), receiptDoc{
			VotingID:         votingID,
			NotificationSent: true,
			SentAt:           sentAt.UTC(),
		})
	})
	if err != nil && !errors.Is(err, domainerrors.ErrVotingNotFound) {
		return s.logError("voting_badger_mark_receipt_failed", err, "voting_id", votingID)
	}
	return err
}

func (s *Store) ListUnnotifiedCompleted(_ context.Context, limit int) ([]entities.Voting, error) {
	if limit <= 0 {
		limit = 100
	}
	items := make([]entities.Voting, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, []byte(prefixVoting), func(value []byte) error {
			var doc votingDoc
			if err := json.Unmarshal(value, &doc); err != nil {
				return err
			}
			if entities.VotingStatus(doc.Status) != entities.VotingStatusCompleted {
				return nil
			}
			var receipt receiptDoc
			sent, err := getJSON(txn, receiptKey(doc.VotingID), &receipt)
			if err != nil {
				return err
			}
			if sent && receipt.NotificationSent {
				return nil
			}
			items = append(items, doc.toEntity())
			return nil
		})
	})
	if err != nil {
		return nil, s.logError("voting_badger_list_unnotified_failed", err)
	}
	sortByCreation(items)
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) Get(_ context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	key = strings.TrimSpace(key)
	var (
		doc   idempotencyDoc
		found bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		ok, err := getJSON(txn, []byte(prefixIdem+key), &doc)
		found = ok
		return err
	})
	if err != nil {
		return ports.IdempotencyRecord{}, false, s.logError("voting_badger_idempotency_get_failed", err, "idempotency_key", key)
	}
	if !found || !doc.ExpiresAt.After(now.UTC()) {
		return ports.IdempotencyRecord{}, false, nil
	}
	return ports.IdempotencyRecord{
		Key:         doc.Key,
		RequestHash: doc.RequestHash,
		VotingID:    doc.VotingID,
		ExpiresAt:   doc.ExpiresAt.UTC(),
	}, true, nil
}

// Put stores the record with a badger TTL so expired keys are collected by
// the store itself.
func (s *Store) Put(_ context.Context, record ports.IdempotencyRecord) error {
	key := strings.TrimSpace(record.Key)
	doc := idempotencyDoc{
		Key:         key,
		RequestHash: strings.TrimSpace(record.RequestHash),
		VotingID:    strings.TrimSpace(record.VotingID),
		ExpiresAt:   record.ExpiresAt.UTC(),
	}
	err := s.update(func(txn *badger.Txn) error {
		var existing idempotencyDoc
		found, err := getJSON(txn, []byte(prefixIdem+key), &existing)
		if err != nil {
			return err
		}
		if found && existing.ExpiresAt.After(time.Now().UTC()) {
			if existing.RequestHash != doc.RequestHash || existing.VotingID != doc.VotingID {
				return domainerrors.ErrIdempotencyConflict
			}
			return nil
		}
		raw, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		entry := badger.NewEntry([]byte(prefixIdem+key), raw)
		if ttl := time.Until(doc.ExpiresAt); ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil && !errors.Is(err, domainerrors.ErrIdempotencyConflict) {
		return s.logError("voting_badger_idempotency_put_failed", err, "idempotency_key", key)
	}
	return err
}

func (s *Store) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		outboxID = uuid.NewString()
	}
	createdAt := envelope.OccurredAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	err = s.update(func(txn *badger.Txn) error {
		var existing outboxDoc
		found, err := getJSON(txn, []byte(prefixOutbox+outboxID), &existing)
		if err != nil {
			return err
		}
		if found {
			if !bytes.Equal(existing.Payload, payload) {
				return domainerrors.ErrConflict
			}
			return nil
		}
		return putJSON(txn, []byte(prefixOutbox+outboxID), outboxDoc{
			OutboxID:     outboxID,
			EventType:    strings.TrimSpace(envelope.EventType),
			PartitionKey: strings.TrimSpace(envelope.PartitionKey),
			Payload:      payload,
			CreatedAt:    createdAt,
		})
	})
	if err != nil && !errors.Is(err, domainerrors.ErrConflict) {
		return s.logError("voting_badger_append_outbox_failed", err, "outbox_id", outboxID)
	}
	return err
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	items := make([]ports.OutboxMessage, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, []byte(prefixOutbox), func(value []byte) error {
			var doc outboxDoc
			if err := json.Unmarshal(value, &doc); err != nil {
				return err
			}
			if doc.Published {
				return nil
			}
			items = append(items, ports.OutboxMessage{
				OutboxID:     doc.OutboxID,
				EventType:    doc.EventType,
				PartitionKey: doc.PartitionKey,
				Payload:      doc.Payload,
				CreatedAt:    doc.CreatedAt.UTC(),
			})
			return nil
		})
	})
	if err != nil {
		return nil, s.logError("voting_badger_list_pending_outbox_failed", err, "limit", limit)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].OutboxID < items[j].OutboxID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, publishedAt time.Time) error {
	outboxID = strings.TrimSpace(outboxID)
	err := s.update(func(txn *badger.Txn) error {
		var doc outboxDoc
		found, err := getJSON(txn, []byte(prefixOutbox+outboxID), &doc)
		if err != nil {
			return err
		}
		if !found {
			return domainerrors.ErrConflict
		}
		doc.Published = true
		publishedAtUTC := publishedAt.UTC()
		doc.PublishedAt = &publishedAtUTC
		return putJSON(txn, []byte(prefixOutbox+outboxID), doc)
	})
	if err != nil && !errors.Is(err, domainerrors.ErrConflict) {
		return s.logError("voting_badger_mark_outbox_published_failed", err, "outbox_id", outboxID)
	}
	return err
}

func (s *Store) scanVotings(keep func(entities.Voting) bool) ([]entities.Voting, error) {
	items := make([]entities.Voting, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, []byte(prefixVoting), func(value []byte) error {
			var doc votingDoc
			if err := json.Unmarshal(value, &doc); err != nil {
				return err
			}
			if voting := doc.toEntity(); keep(voting) {
				items = append(items, voting)
			}
			return nil
		})
	})
	if err != nil {
		return nil, s.logError("voting_badger_scan_votings_failed", err)
	}
	sortByCreation(items)
	return items, nil
}

func (s *Store) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "governance/voting-engine",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	s.logger.Error("voting badger operation failed", fields...)
	return err
}

func loadVoting(txn *badger.Txn, votingID string) (entities.Voting, error) {
	var doc votingDoc
	found, err := getJSON(txn, votingKey(votingID), &doc)
	if err != nil {
		return entities.Voting{}, err
	}
	if !found {
		return entities.Voting{}, domainerrors.ErrVotingNotFound
	}
	return doc.toEntity(), nil
}

func getJSON(txn *badger.Txn, key []byte, target any) (bool, error) {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	err = item.Value(func(value []byte) error {
		return json.Unmarshal(value, target)
	})
	return err == nil, err
}

func putJSON(txn *badger.Txn, key []byte, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return txn.Set(key, raw)
}

func scanPrefix(txn *badger.Txn, prefix []byte, fn func(value []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
}

// collectKeys copies keys out of the iterator so they stay valid after it
// is closed.
func collectKeys(txn *badger.Txn, prefix []byte) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()
	keys := make([][]byte, 0)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys
}

func sortByCreation(items []entities.Voting) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].VotingID < items[j].VotingID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}

var _ ports.VotingRepository = (*Store)(nil)
var _ ports.VoteLedger = (*Store)(nil)
var _ ports.NotificationReceiptStore = (*Store)(nil)
var _ ports.IdempotencyStore = (*Store)(nil)
var _ ports.OutboxWriter = (*Store)(nil)
var _ ports.OutboxRepository = (*Store)(nil)
