package ports

import (
	"context"
	"time"

	"sntportal/contexts/governance/voting-engine/domain/entities"
	contractsv1 "sntportal/contracts/gen/events/v1"
)

type EventEnvelope = contractsv1.Envelope

// VotingRepository is the ballot store. CompleteVoting and ArchiveVoting are
// conditional updates: they only succeed from the expected prior state.
type VotingRepository interface {
	CreateVoting(ctx context.Context, voting entities.Voting) error
	GetVoting(ctx context.Context, votingID string) (entities.Voting, error)
	ListVotings(ctx context.Context) ([]entities.Voting, error)
	ListDueVotings(ctx context.Context, now time.Time) ([]entities.Voting, error)
	CompleteVoting(ctx context.Context, votingID string, now time.Time) (entities.Voting, bool, error)
	ArchiveVoting(ctx context.Context, votingID string, now time.Time) (entities.Voting, error)
	DeleteVoting(ctx context.Context, votingID string) (int, error)
}

// VoteLedger writes the tally increments and the vote record as one unit.
// CastVote re-checks ballot state and ledger presence inside that unit and
// returns ErrAlreadyVoted or ErrVotingClosed when another writer got there
// first.
type VoteLedger interface {
	CastVote(ctx context.Context, record entities.VoteRecord, now time.Time) (entities.Voting, error)
	GetVoteRecord(ctx context.Context, votingID string, voterEmail string) (entities.VoteRecord, bool, error)
	ListVoteRecords(ctx context.Context, votingID string) ([]entities.VoteRecord, error)
}

type NotificationReceiptStore interface {
	GetReceipt(ctx context.Context, votingID string) (entities.NotificationReceipt, bool, error)
	MarkNotificationSent(ctx context.Context, votingID string, sentAt time.Time) error
	ListUnnotifiedCompleted(ctx context.Context, limit int) ([]entities.Voting, error)
}

type IdempotencyRecord struct {
	Key         string
	RequestHash string
	VotingID    string
	ExpiresAt   time.Time
}

type IdempotencyStore interface {
	Get(ctx context.Context, key string, now time.Time) (IdempotencyRecord, bool, error)
	Put(ctx context.Context, record IdempotencyRecord) error
}

type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxWriter interface {
	AppendOutbox(ctx context.Context, envelope EventEnvelope) error
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

// RosterProvider resolves the full member directory.
type RosterProvider interface {
	ListMembers(ctx context.Context) ([]entities.Member, error)
}

type VotingCompletedNotice struct {
	VotingID    string
	VotingTitle string
	Results     []entities.OptionResult
	Recipients  []entities.Member
}

// NotificationTransport hands a completion notice to the delivery service.
// A nil error means the service accepted it.
type NotificationTransport interface {
	SendVotingCompleted(ctx context.Context, notice VotingCompletedNotice) error
}

// CompletionNotifier fires the receipt-guarded completion notice. sent is
// false when the receipt was already set.
type CompletionNotifier interface {
	NotifyCompletion(ctx context.Context, voting entities.Voting) (sent bool, err error)
}

type Metrics interface {
	VotingCreated()
	VoteCast(multipleChoice bool, selected int)
	VoteRejected(reason string)
	VotingCompleted()
	VotingArchived()
	VotingDeleted()
	NotificationSent()
	NotificationFailed()
	ReconcileSweep(duration time.Duration, failed int)
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
