package badgerstore

import (
	"encoding/json"
	"time"

	"sntportal/contexts/governance/voting-engine/domain/entities"
)

type votingDoc struct {
	VotingID         string      `json:"voting_id"`
	Title            string      `json:"title"`
	Description      string      `json:"description"`
	Options          []string    `json:"options"`
	IsMultipleChoice bool        `json:"is_multiple_choice"`
	EndDate          time.Time   `json:"end_date"`
	Status           string      `json:"status"`
	Archived         bool        `json:"archived"`
	Votes            map[int]int `json:"votes"`
	CreatedBy        string      `json:"created_by"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
	CompletedAt      *time.Time  `json:"completed_at,omitempty"`
	ArchivedAt       *time.Time  `json:"archived_at,omitempty"`
}

func votingDocFromEntity(voting entities.Voting) votingDoc {
	votes := make(map[int]int, len(voting.Votes))
	for index, count := range voting.Votes {
		if count > 0 {
			votes[index] = count
		}
	}
	return votingDoc{
		VotingID:         voting.VotingID,
		Title:            voting.Title,
		Description:      voting.Description,
		Options:          append([]string(nil), voting.Options...),
		IsMultipleChoice: voting.IsMultipleChoice,
		EndDate:          voting.EndDate.UTC(),
		Status:           string(voting.Status),
		Archived:         voting.Archived,
		Votes:            votes,
		CreatedBy:        voting.CreatedBy,
		CreatedAt:        voting.CreatedAt.UTC(),
		UpdatedAt:        voting.UpdatedAt.UTC(),
		CompletedAt:      voting.CompletedAt,
		ArchivedAt:       voting.ArchivedAt,
	}
}

func (d votingDoc) toEntity() entities.Voting {
	votes := make(map[int]int, len(d.Votes))
	for index, count := range d.Votes {
		votes[index] = count
	}
	return entities.Voting{
		VotingID:         d.VotingID,
		Title:            d.Title,
		Description:      d.Description,
		Options:          append([]string(nil), d.Options...),
		IsMultipleChoice: d.IsMultipleChoice,
		EndDate:          d.EndDate.UTC(),
		Status:           entities.VotingStatus(d.Status),
		Archived:         d.Archived,
		Votes:            votes,
		CreatedBy:        d.CreatedBy,
		CreatedAt:        d.CreatedAt.UTC(),
		UpdatedAt:        d.UpdatedAt.UTC(),
		CompletedAt:      d.CompletedAt,
		ArchivedAt:       d.ArchivedAt,
	}
}

type voteDoc struct {
	VotingID        string    `json:"voting_id"`
	VoterEmail      string    `json:"voter_email"`
	SelectedOptions []int     `json:"selected_options"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	PlotNumber      string    `json:"plot_number"`
	CastAt          time.Time `json:"cast_at"`
}

func voteDocFromEntity(record entities.VoteRecord) voteDoc {
	return voteDoc{
		VotingID:        record.VotingID,
		VoterEmail:      record.VoterEmail,
		SelectedOptions: append([]int(nil), record.SelectedOptions...),
		FirstName:       record.Voter.FirstName,
		LastName:        record.Voter.LastName,
		PlotNumber:      record.Voter.PlotNumber,
		CastAt:          record.CastAt.UTC(),
	}
}

func (d voteDoc) toEntity() entities.VoteRecord {
	return entities.VoteRecord{
		VotingID:        d.VotingID,
		VoterEmail:      d.VoterEmail,
		SelectedOptions: append([]int(nil), d.SelectedOptions...),
		Voter: entities.VoterSnapshot{
			Email:      d.VoterEmail,
			FirstName:  d.FirstName,
			LastName:   d.LastName,
			PlotNumber: d.PlotNumber,
		},
		CastAt: d.CastAt.UTC(),
	}
}

type receiptDoc struct {
	VotingID         string    `json:"voting_id"`
	NotificationSent bool      `json:"notification_sent"`
	SentAt           time.Time `json:"sent_at"`
}

type idempotencyDoc struct {
	Key         string    `json:"key"`
	RequestHash string    `json:"request_hash"`
	VotingID    string    `json:"voting_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type outboxDoc struct {
	OutboxID     string          `json:"outbox_id"`
	EventType    string          `json:"event_type"`
	PartitionKey string          `json:"partition_key"`
	Payload      json.RawMessage `json:"payload"`
	Published    bool            `json:"published"`
	CreatedAt    time.Time       `json:"created_at"`
	PublishedAt  *time.Time      `json:"published_at,omitempty"`
}
