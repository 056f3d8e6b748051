package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sntportal/contexts/governance/voting-engine/ports"
)

// Client posts completion notices to the mail delivery service.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:   strings.TrimSpace(endpoint),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type resultPayload struct {
	Option     string `json:"option"`
	Votes      int    `json:"votes"`
	Percentage string `json:"percentage"`
}

type recipientPayload struct {
	Email      string `json:"email"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	PlotNumber string `json:"plotNumber,omitempty"`
}

type noticePayload struct {
	VotingTitle string             `json:"votingTitle"`
	VotingID    string             `json:"votingId"`
	Results     []resultPayload    `json:"results"`
	Users       []recipientPayload `json:"users"`
}

// SendVotingCompleted treats any 2xx as accepted.
func (c *Client) SendVotingCompleted(ctx context.Context, notice ports.VotingCompletedNotice) error {
	if c.endpoint == "" {
		return errors.New("notification endpoint is not configured")
	}
	payload := noticePayload{
		VotingTitle: notice.VotingTitle,
		VotingID:    notice.VotingID,
		Results:     make([]resultPayload, 0, len(notice.Results)),
		Users:       make([]recipientPayload, 0, len(notice.Recipients)),
	}
	for _, result := range notice.Results {
		payload.Results = append(payload.Results, resultPayload{
			Option:     result.Option,
			Votes:      result.Votes,
			Percentage: result.Percentage,
		})
	}
	for _, member := range notice.Recipients {
		payload.Users = append(payload.Users, recipientPayload{
			Email:      member.Email,
			FirstName:  member.FirstName,
			LastName:   member.LastName,
			PlotNumber: member.PlotNumber,
		})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding notice: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating notice request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting notice: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("notification service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return nil
}

var _ ports.NotificationTransport = (*Client)(nil)
