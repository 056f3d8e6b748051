package http

import "time"

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type CreateVotingRequest struct {
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Options          []string  `json:"options"`
	IsMultipleChoice bool      `json:"is_multiple_choice"`
	EndDate          time.Time `json:"end_date"`
}

type CastVoteRequest struct {
	OptionIndices []int `json:"option_indices"`
}

type OptionResult struct {
	Index      int    `json:"index"`
	Option     string `json:"option"`
	Votes      int    `json:"votes"`
	Percentage string `json:"percentage"`
}

type VotingResponse struct {
	VotingID         string         `json:"voting_id"`
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	Options          []string       `json:"options"`
	IsMultipleChoice bool           `json:"is_multiple_choice"`
	EndDate          time.Time      `json:"end_date"`
	Status           string         `json:"status"`
	Archived         bool           `json:"archived"`
	Votes            map[int]int    `json:"votes"`
	TotalVotes       int            `json:"total_votes"`
	Results          []OptionResult `json:"results"`
	CreatedBy        string         `json:"created_by"`
	CreatedAt        time.Time      `json:"created_at"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
	ArchivedAt       *time.Time     `json:"archived_at,omitempty"`
}

type CreateVotingResponse struct {
	Voting   VotingResponse `json:"voting"`
	Replayed bool           `json:"replayed"`
}

type VotingListResponse struct {
	State string           `json:"state"`
	Items []VotingResponse `json:"items"`
}

type VoteRecordResponse struct {
	VoterEmail      string    `json:"voter_email"`
	FirstName       string    `json:"first_name,omitempty"`
	LastName        string    `json:"last_name,omitempty"`
	PlotNumber      string    `json:"plot_number,omitempty"`
	SelectedOptions []int     `json:"selected_options"`
	CastAt          time.Time `json:"cast_at"`
}

type BallotResponse struct {
	Voting VotingResponse      `json:"voting"`
	MyVote *VoteRecordResponse `json:"my_vote,omitempty"`
}

type CastVoteResponse struct {
	Voting VotingResponse     `json:"voting"`
	Record VoteRecordResponse `json:"record"`
}

type ResultsResponse struct {
	Voting  VotingResponse       `json:"voting"`
	Voters  int                  `json:"voters"`
	Records []VoteRecordResponse `json:"records,omitempty"`
}

type DeleteVotingResponse struct {
	VotingID       string `json:"voting_id"`
	RemovedRecords int    `json:"removed_records"`
}

type SweepResponse struct {
	Completed int `json:"completed"`
	Notified  int `json:"notified"`
	Failed    int `json:"failed"`
}
