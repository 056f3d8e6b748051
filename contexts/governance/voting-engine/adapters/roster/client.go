package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sntportal/contexts/governance/voting-engine/domain/entities"
	"sntportal/contexts/governance/voting-engine/ports"
)

const maxResponseBytes = 4 << 20

// Client reads the member directory from the users service.
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
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type userPayload struct {
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	PlotNumber string `json:"plot_number"`
	Role       string `json:"role"`
}

type usersResponse struct {
	Users []userPayload `json:"users"`
}

// ListMembers fetches GET <endpoint> and returns every member with an email.
func (c *Client) ListMembers(ctx context.Context) ([]entities.Member, error) {
	if c.endpoint == "" {
		return nil, errors.New("roster endpoint is not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating roster request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching roster: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("roster returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload usersResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding roster: %w", err)
	}
	members := make([]entities.Member, 0, len(payload.Users))
	for _, user := range payload.Users {
		email := entities.NormalizeEmail(user.Email)
		if email == "" {
			continue
		}
		members = append(members, entities.Member{
			Email:      email,
			FirstName:  strings.TrimSpace(user.FirstName),
			LastName:   strings.TrimSpace(user.LastName),
			PlotNumber: strings.TrimSpace(user.PlotNumber),
			Role:       string(entities.ParseRole(user.Role)),
		})
	}
	return members, nil
}

var _ ports.RosterProvider = (*Client)(nil)
