package entities

import (
	"sort"
	"strings"
	"time"

	domainerrors "sntportal/contexts/governance/voting-engine/domain/errors"
)

const (
	MinOptions = 2
	MaxOptions = 10
)

type VotingStatus string

const (
	VotingStatusActive    VotingStatus = "active"
	VotingStatusCompleted VotingStatus = "completed"
)

// Voting is one ballot. Options, IsMultipleChoice and EndDate are fixed at
// creation; only Status, Archived and Votes change afterwards.
type Voting struct {
	VotingID         string
	Title            string
	Description      string
	Options          []string
	IsMultipleChoice bool
	EndDate          time.Time
	Status           VotingStatus
	Archived         bool
	Votes            map[int]int
	CreatedBy        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CompletedAt      *time.Time
	ArchivedAt       *time.Time
}

// IsDue reports whether an active ballot has reached its deadline.
func (v Voting) IsDue(now time.Time) bool {
	return v.Status == VotingStatusActive && !now.Before(v.EndDate)
}

func (v Voting) AcceptsVotes(now time.Time) bool {
	return v.Status == VotingStatusActive && !v.Archived && now.Before(v.EndDate)
}

func (v Voting) TotalVotes() int {
	total := 0
	for _, count := range v.Votes {
		total += count
	}
	return total
}

// ValidateSelection checks option indices against the ballot shape. The
// returned slice is sorted so ledger rows are stable regardless of input order.
func (v Voting) ValidateSelection(indices []int) ([]int, error) {
	if len(indices) == 0 {
		return nil, domainerrors.ErrInvalidSelection
	}
	if !v.IsMultipleChoice && len(indices) != 1 {
		return nil, domainerrors.ErrInvalidSelection
	}
	seen := make(map[int]struct{}, len(indices))
	selected := make([]int, 0, len(indices))
	for _, index := range indices {
		if index < 0 || index >= len(v.Options) {
			return nil, domainerrors.ErrInvalidSelection
		}
		if _, dup := seen[index]; dup {
			return nil, domainerrors.ErrInvalidSelection
		}
		seen[index] = struct{}{}
		selected = append(selected, index)
	}
	sort.Ints(selected)
	return selected, nil
}

// Clone returns a deep copy so stores never hand out shared maps.
func (v Voting) Clone() Voting {
	out := v
	out.Options = append([]string(nil), v.Options...)
	out.Votes = make(map[int]int, len(v.Votes))
	for index, count := range v.Votes {
		out.Votes[index] = count
	}
	if v.CompletedAt != nil {
		completedAt := *v.CompletedAt
		out.CompletedAt = &completedAt
	}
	if v.ArchivedAt != nil {
		archivedAt := *v.ArchivedAt
		out.ArchivedAt = &archivedAt
	}
	return out
}

// VoterSnapshot is denormalized into the ledger at cast time and never updated.
type VoterSnapshot struct {
	Email      string
	FirstName  string
	LastName   string
	PlotNumber string
}

type VoteRecord struct {
	VotingID        string
	VoterEmail      string
	SelectedOptions []int
	Voter           VoterSnapshot
	CastAt          time.Time
}

type NotificationReceipt struct {
	VotingID         string
	NotificationSent bool
	SentAt           time.Time
}

// Member is one roster entry resolved from the member directory.
type Member struct {
	Email      string
	FirstName  string
	LastName   string
	PlotNumber string
	Role       string
}

// NormalizeEmail is the canonical form used in ledger keys.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
