package postgresadapter

import (
	"encoding/json"
	"time"

	"sntportal/contexts/governance/voting-engine/domain/entities"
)

type votingModel struct {
	VotingID         string     `gorm:"column:voting_id;primaryKey"`
	Title            string     `gorm:"column:title;not null"`
	Description      string     `gorm:"column:description;not null"`
	Options          string     `gorm:"column:options;not null"`
	IsMultipleChoice bool       `gorm:"column:is_multiple_choice;not null"`
	EndDate          time.Time  `gorm:"column:end_date;not null;index"`
	Status           string     `gorm:"column:status;not null;index"`
	Archived         bool       `gorm:"column:archived;not null"`
	CreatedBy        string     `gorm:"column:created_by"`
	CreatedAt        time.Time  `gorm:"column:created_at"`
	UpdatedAt        time.Time  `gorm:"column:updated_at"`
	CompletedAt      *time.Time `gorm:"column:completed_at"`
	ArchivedAt       *time.Time `gorm:"column:archived_at"`
}

func (votingModel) TableName() string {
	return "votings"
}

func votingModelFromEntity(voting entities.Voting) (votingModel, error) {
	options, err := json.Marshal(voting.Options)
	if err != nil {
		return votingModel{}, err
	}
	return votingModel{
		VotingID:         voting.VotingID,
		Title:            voting.Title,
		Description:      voting.Description,
		Options:          string(options),
		IsMultipleChoice: voting.IsMultipleChoice,
		EndDate:          dbTime(voting.EndDate),
		Status:           string(voting.Status),
		Archived:         voting.Archived,
		CreatedBy:        voting.CreatedBy,
		CreatedAt:        dbTime(voting.CreatedAt),
		UpdatedAt:        dbTime(voting.UpdatedAt),
		CompletedAt:      optionalTime(voting.CompletedAt),
		ArchivedAt:       optionalTime(voting.ArchivedAt),
	}, nil
}

func (m votingModel) toEntity(votes map[int]int) (entities.Voting, error) {
	var options []string
	if err := json.Unmarshal([]byte(m.Options), &options); err != nil {
		return entities.Voting{}, err
	}
	if votes == nil {
		votes = make(map[int]int)
	}
	return entities.Voting{
		VotingID:         m.VotingID,
		Title:            m.Title,
		Description:      m.Description,
		Options:          options,
		IsMultipleChoice: m.IsMultipleChoice,
		EndDate:          m.EndDate.UTC(),
		Status:           entities.VotingStatus(m.Status),
		Archived:         m.Archived,
		Votes:            votes,
		CreatedBy:        m.CreatedBy,
		CreatedAt:        m.CreatedAt.UTC(),
		UpdatedAt:        m.UpdatedAt.UTC(),
		CompletedAt:      optionalTime(m.CompletedAt),
		ArchivedAt:       optionalTime(m.ArchivedAt),
	}, nil
}

// optionTallyModel holds one counter per option so a cast increments rows
// in place instead of rewriting the ballot.
type optionTallyModel struct {
	VotingID    string `gorm:"column:voting_id;primaryKey"`
	OptionIndex int    `gorm:"column:option_index;primaryKey;autoIncrement:false"`
	Votes       int    `gorm:"column:votes;not null;default:0"`
}

func (optionTallyModel) TableName() string {
	return "voting_option_tallies"
}

type voteRecordModel struct {
	VotingID        string    `gorm:"column:voting_id;primaryKey"`
	VoterEmail      string    `gorm:"column:voter_email;primaryKey"`
	SelectedOptions string    `gorm:"column:selected_options;not null"`
	FirstName       string    `gorm:"column:first_name"`
	LastName        string    `gorm:"column:last_name"`
	PlotNumber      string    `gorm:"column:plot_number"`
	CastAt          time.Time `gorm:"column:cast_at"`
}

func (voteRecordModel) TableName() string {
	return "voting_vote_records"
}

func (m voteRecordModel) toEntity() entities.VoteRecord {
	var selected []int
	_ = json.Unmarshal([]byte(m.SelectedOptions), &selected)
	return entities.VoteRecord{
		VotingID:        m.VotingID,
		VoterEmail:      m.VoterEmail,
		SelectedOptions: selected,
		Voter: entities.VoterSnapshot{
			Email:      m.VoterEmail,
			FirstName:  m.FirstName,
			LastName:   m.LastName,
			PlotNumber: m.PlotNumber,
		},
		CastAt: m.CastAt.UTC(),
	}
}

type receiptModel struct {
	VotingID         string    `gorm:"column:voting_id;primaryKey"`
	NotificationSent bool      `gorm:"column:notification_sent;not null"`
	SentAt           time.Time `gorm:"column:sent_at"`
}

func (receiptModel) TableName() string {
	return "voting_notification_receipts"
}

type idempotencyModel struct {
	Key         string    `gorm:"column:key;primaryKey"`
	RequestHash string    `gorm:"column:request_hash"`
	VotingID    string    `gorm:"column:voting_id"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
}

func (idempotencyModel) TableName() string {
	return "voting_engine_idempotency"
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status;index"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "voting_outbox"
}

func optionalTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	timestamp := dbTime(*value)
	return &timestamp
}
