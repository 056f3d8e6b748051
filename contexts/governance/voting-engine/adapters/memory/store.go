package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"sntportal/contexts/governance/voting-engine/domain/entities"
	domainerrors "sntportal/contexts/governance/voting-engine/domain/errors"
	"sntportal/contexts/governance/voting-engine/ports"

	"github.com/google/uuid"
)

type outboxRecord struct {
	message   ports.OutboxMessage
	published bool
}

// Store keeps ballots, the vote ledger and receipts behind one mutex, which
// makes CastVote a single critical section.
type Store struct {
	mu sync.RWMutex

	votings     map[string]entities.Voting
	records     map[string]map[string]entities.VoteRecord
	receipts    map[string]entities.NotificationReceipt
	idempotency map[string]ports.IdempotencyRecord
	outbox      map[string]outboxRecord

	now time.Time
}

func NewStore(seed []entities.Voting) *Store {
	votings := make(map[string]entities.Voting, len(seed))
	for _, voting := range seed {
		if voting.Votes == nil {
			voting.Votes = make(map[int]int)
		}
		votings[voting.VotingID] = voting.Clone()
	}
	return &Store{
		votings:     votings,
		records:     make(map[string]map[string]entities.VoteRecord),
		receipts:    make(map[string]entities.NotificationReceipt),
		idempotency: make(map[string]ports.IdempotencyRecord),
		outbox:      make(map[string]outboxRecord),
	}
}

// SetNow pins the store clock. A zero value restores wall-clock time.
func (s *Store) SetNow(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now.UTC()
}

func (s *Store) CreateVoting(_ context.Context, voting entities.Voting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	votingID := strings.TrimSpace(voting.VotingID)
	if _, exists := s.votings[votingID]; exists {
		return domainerrors.ErrConflict
	}
	voting.VotingID = votingID
	if voting.Votes == nil {
		voting.Votes = make(map[int]int)
	}
	s.votings[votingID] = voting.Clone()
	return nil
}

func (s *Store) GetVoting(_ context.Context, votingID string) (entities.Voting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	voting, ok := s.votings[strings.TrimSpace(votingID)]
	if !ok {
		return entities.Voting{}, domainerrors.ErrVotingNotFound
	}
	return voting.Clone(), nil
}

func (s *Store) ListVotings(_ context.Context) ([]entities.Voting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Voting, 0, len(s.votings))
	for _, voting := range s.votings {
		items = append(items, voting.Clone())
	}
	sortByCreation(items)
	return items, nil
}

func (s *Store) ListDueVotings(_ context.Context, now time.Time) ([]entities.Voting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Voting, 0)
	for _, voting := range s.votings {
		if voting.IsDue(now) {
			items = append(items, voting.Clone())
		}
	}
	sortByCreation(items)
	return items, nil
}

func (s *Store) CompleteVoting(_ context.Context, votingID string, now time.Time) (entities.Voting, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	votingID = strings.TrimSpace(votingID)
	voting, ok := s.votings[votingID]
	if !ok {
		return entities.Voting{}, false, domainerrors.ErrVotingNotFound
	}
	if !voting.IsDue(now) {
		return voting.Clone(), false, nil
	}
	completedAt := now.UTC()
	voting.Status = entities.VotingStatusCompleted
	voting.CompletedAt = &completedAt
	voting.UpdatedAt = completedAt
	s.votings[votingID] = voting
	return voting.Clone(), true, nil
}

func (s *Store) ArchiveVoting(_ context.Context, votingID string, now time.Time) (entities.Voting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	votingID = strings.TrimSpace(votingID)
	voting, ok := s.votings[votingID]
	if !ok {
		return entities.Voting{}, domainerrors.ErrVotingNotFound
	}
	if voting.Status != entities.VotingStatusCompleted || voting.Archived {
		return entities.Voting{}, domainerrors.ErrInvalidTransition
	}
	archivedAt := now.UTC()
	voting.Archived = true
	voting.ArchivedAt = &archivedAt
	voting.UpdatedAt = archivedAt
	s.votings[votingID] = voting
	return voting.Clone(), nil
}

func (s *Store) DeleteVoting(_ context.Context, votingID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	votingID = strings.TrimSpace(votingID)
	if _, ok := s.votings[votingID]; !ok {
		return 0, domainerrors.ErrVotingNotFound
	}
	removed := len(s.records[votingID])
	delete(s.votings, votingID)
	delete(s.records, votingID)
	delete(s.receipts, votingID)
	return removed, nil
}

func (s *Store) CastVote(_ context.Context, record entities.VoteRecord, now time.Time) (entities.Voting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	votingID := strings.TrimSpace(record.VotingID)
	email := entities.NormalizeEmail(record.VoterEmail)
	voting, ok := s.votings[votingID]
	if !ok {
		return entities.Voting{}, domainerrors.ErrVotingNotFound
	}
	if !voting.AcceptsVotes(now) {
		return entities.Voting{}, domainerrors.ErrVotingClosed
	}
	ledger := s.records[votingID]
	if ledger == nil {
		ledger = make(map[string]entities.VoteRecord)
		s.records[votingID] = ledger
	}
	if _, exists := ledger[email]; exists {
		return entities.Voting{}, domainerrors.ErrAlreadyVoted
	}
	for _, index := range record.SelectedOptions {
		if index < 0 || index >= len(voting.Options) {
			return entities.Voting{}, domainerrors.ErrInvalidSelection
		}
	}

	for _, index := range record.SelectedOptions {
		voting.Votes[index]++
	}
	voting.UpdatedAt = now.UTC()
	s.votings[votingID] = voting
	record.VotingID = votingID
	record.VoterEmail = email
	record.SelectedOptions = append([]int(nil), record.SelectedOptions...)
	ledger[email] = record
	return voting.Clone(), nil
}

func (s *Store) GetVoteRecord(_ context.Context, votingID string, voterEmail string) (entities.VoteRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[strings.TrimSpace(votingID)][entities.NormalizeEmail(voterEmail)]
	if !ok {
		return entities.VoteRecord{}, false, nil
	}
	record.SelectedOptions = append([]int(nil), record.SelectedOptions...)
	return record, true, nil
}

func (s *Store) ListVoteRecords(_ context.Context, votingID string) ([]entities.VoteRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ledger := s.records[strings.TrimSpace(votingID)]
	items := make([]entities.VoteRecord, 0, len(ledger))
	for _, record := range ledger {
		record.SelectedOptions = append([]int(nil), record.SelectedOptions...)
		items = append(items, record)
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
	s.mu.RLock()
	defer s.mu.RUnlock()
	receipt, ok := s.receipts[strings.TrimSpace(votingID)]
	return receipt, ok, nil
}

func (s *Store) MarkNotificationSent(_ context.Context, votingID string, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	votingID = strings.TrimSpace(votingID)
	if _, ok := s.votings[votingID]; !ok {
		return domainerrors.ErrVotingNotFound
	}
	s.receipts[votingID] = entities.NotificationReceipt{
		VotingID:         votingID,
		NotificationSent: true,
		SentAt:           sentAt.UTC(),
	}
	return nil
}

func (s *Store) ListUnnotifiedCompleted(_ context.Context, limit int) ([]entities.Voting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	items := make([]entities.Voting, 0)
	for votingID, voting := range s.votings {
		if voting.Status != entities.VotingStatusCompleted {
			continue
		}
		if receipt, ok := s.receipts[votingID]; ok && receipt.NotificationSent {
			continue
		}
		items = append(items, voting.Clone())
	}
	sortByCreation(items)
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) Get(_ context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key = strings.TrimSpace(key)
	record, exists := s.idempotency[key]
	if !exists {
		return ports.IdempotencyRecord{}, false, nil
	}
	if !record.ExpiresAt.After(now.UTC()) {
		delete(s.idempotency, key)
		return ports.IdempotencyRecord{}, false, nil
	}
	return record, true, nil
}

func (s *Store) Put(_ context.Context, record ports.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.TrimSpace(record.Key)
	if existing, exists := s.idempotency[key]; exists {
		if existing.RequestHash != record.RequestHash || existing.VotingID != record.VotingID {
			return domainerrors.ErrIdempotencyConflict
		}
		return nil
	}
	s.idempotency[key] = ports.IdempotencyRecord{
		Key:         key,
		RequestHash: strings.TrimSpace(record.RequestHash),
		VotingID:    strings.TrimSpace(record.VotingID),
		ExpiresAt:   record.ExpiresAt.UTC(),
	}
	return nil
}

func (s *Store) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		outboxID = uuid.NewString()
	}
	if existing, ok := s.outbox[outboxID]; ok {
		if !bytes.Equal(existing.message.Payload, payload) {
			return domainerrors.ErrConflict
		}
		return nil
	}
	createdAt := envelope.OccurredAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	s.outbox[outboxID] = outboxRecord{
		message: ports.OutboxMessage{
			OutboxID:     outboxID,
			EventType:    strings.TrimSpace(envelope.EventType),
			PartitionKey: strings.TrimSpace(envelope.PartitionKey),
			Payload:      payload,
			CreatedAt:    createdAt,
		},
	}
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	items := make([]ports.OutboxMessage, 0, len(s.outbox))
	for _, row := range s.outbox {
		if !row.published {
			items = append(items, row.message)
		}
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

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	outboxID = strings.TrimSpace(outboxID)
	row, ok := s.outbox[outboxID]
	if !ok {
		return domainerrors.ErrConflict
	}
	row.published = true
	s.outbox[outboxID] = row
	return nil
}

func (s *Store) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.now.IsZero() {
		return s.now
	}
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
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
var _ ports.Clock = (*Store)(nil)
var _ ports.IDGenerator = (*Store)(nil)
