package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	application "sntportal/contexts/governance/voting-engine/application"
	"sntportal/contexts/governance/voting-engine/domain/entities"
	domainerrors "sntportal/contexts/governance/voting-engine/domain/errors"
	"sntportal/contexts/governance/voting-engine/ports"
)

const defaultTransportTimeout = 10 * time.Second

// BallotLocks serializes notifier runs per ballot within one process. An
// entry lives only while some run holds or waits for it.
type BallotLocks struct {
	mu    sync.Mutex
	locks map[string]*ballotLock
}

type ballotLock struct {
	mu   sync.Mutex
	refs int
}

func (b *BallotLocks) lock(votingID string) func() {
	b.mu.Lock()
	if b.locks == nil {
		b.locks = make(map[string]*ballotLock)
	}
	entry, ok := b.locks[votingID]
	if !ok {
		entry = &ballotLock{}
		b.locks[votingID] = entry
	}
	entry.refs++
	b.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		b.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(b.locks, votingID)
		}
		b.mu.Unlock()
	}
}

func (b *BallotLocks) held() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.locks)
}

// Notifier sends the completion notice for a ballot at most once on
// success. The receipt is written only after the transport accepts the
// notice, so a failed attempt is retried on the next observation.
type Notifier struct {
	Receipts  ports.NotificationReceiptStore
	Roster    ports.RosterProvider
	Transport ports.NotificationTransport
	Clock     ports.Clock
	Metrics   ports.Metrics
	Timeout   time.Duration
	// Locks is shared by every copy of the notifier. Nil disables the
	// per-ballot serialization.
	Locks  *BallotLocks
	Logger *slog.Logger
}

func (n Notifier) NotifyCompletion(ctx context.Context, voting entities.Voting) (bool, error) {
	if voting.Status != entities.VotingStatusCompleted {
		return false, domainerrors.ErrInvalidTransition
	}
	if n.Locks != nil {
		unlock := n.Locks.lock(voting.VotingID)
		defer unlock()
	}
	return n.notify(ctx, voting)
}

func (n Notifier) notify(ctx context.Context, voting entities.Voting) (bool, error) {
	logger := application.ResolveLogger(n.Logger)
	metrics := application.ResolveMetrics(n.Metrics)

	receipt, found, err := n.Receipts.GetReceipt(ctx, voting.VotingID)
	if err != nil {
		return false, err
	}
	if found && receipt.NotificationSent {
		logger.Debug("voting completion notice already sent",
			"event", "voting_notify_skipped",
			"module", application.LogModule,
			"layer", "application",
			"voting_id", voting.VotingID,
		)
		return false, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, n.resolveTimeout())
	defer cancel()

	members, err := n.Roster.ListMembers(callCtx)
	if err != nil {
		metrics.NotificationFailed()
		logger.Warn("voting roster fetch failed",
			"event", "voting_notify_roster_failed",
			"module", application.LogModule,
			"layer", "application",
			"voting_id", voting.VotingID,
			"error", err.Error(),
		)
		return false, fmt.Errorf("%w: %v", domainerrors.ErrRosterUnavailable, err)
	}

	notice := ports.VotingCompletedNotice{
		VotingID:    voting.VotingID,
		VotingTitle: voting.Title,
		Results:     entities.Tally(voting),
		Recipients:  members,
	}
	if err := n.Transport.SendVotingCompleted(callCtx, notice); err != nil {
		metrics.NotificationFailed()
		logger.Warn("voting completion notice failed",
			"event", "voting_notify_transport_failed",
			"module", application.LogModule,
			"layer", "application",
			"voting_id", voting.VotingID,
			"recipients", len(members),
			"error", err.Error(),
		)
		return false, fmt.Errorf("%w: %v", domainerrors.ErrNotificationFailed, err)
	}

	now := time.Now().UTC()
	if n.Clock != nil {
		now = n.Clock.Now().UTC()
	}
	if err := n.Receipts.MarkNotificationSent(ctx, voting.VotingID, now); err != nil {
		logger.Error("voting notification receipt write failed",
			"event", "voting_notify_receipt_failed",
			"module", application.LogModule,
			"layer", "application",
			"voting_id", voting.VotingID,
			"error", err.Error(),
		)
		return false, err
	}
	metrics.NotificationSent()
	logger.Info("voting completion notice sent",
		"event", "voting_notify_sent",
		"module", application.LogModule,
		"layer", "application",
		"voting_id", voting.VotingID,
		"recipients", len(members),
	)
	return true, nil
}

func (n Notifier) resolveTimeout() time.Duration {
	if n.Timeout <= 0 {
		return defaultTransportTimeout
	}
	return n.Timeout
}

var _ ports.CompletionNotifier = Notifier{}
