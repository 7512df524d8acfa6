// Package client provides an HTTP client for the colonyfeed service API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Event is one row of the activity feed as served by the API.
type Event struct {
	Category         string  `json:"category"`
	PrimaryText      string  `json:"primary_text"`
	DisplayDate      string  `json:"display_date"`
	Timestamp        int64   `json:"timestamp"`
	TimestampUnknown bool    `json:"timestamp_unknown,omitempty"`
	BlockHash        string  `json:"block_hash,omitempty"`
	Role             *string `json:"role,omitempty"`
	DomainID         *string `json:"domain_id,omitempty"`
	Amount           *string `json:"amount,omitempty"`
	Token            *string `json:"token,omitempty"`
	FundingPotID     *string `json:"funding_pot_id,omitempty"`
	UserAddress      *string `json:"user_address,omitempty"`
}

// SourceWarning reports a category whose fetch failed during the cycle that
// produced the feed.
type SourceWarning struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// Feed is the response of the feed endpoint.
type Feed struct {
	Events   []Event         `json:"events"`
	Warnings []SourceWarning `json:"warnings,omitempty"`
	Loading  bool            `json:"loading"`
	Count    int             `json:"count"`
}

// Client is the HTTP client for the colonyfeed service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new feed service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 3 * time.Minute}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// GetFeed fetches the activity feed. With refresh set, the server runs a
// full aggregation cycle before answering; otherwise it serves its current
// snapshot, which may still be loading.
func (c *Client) GetFeed(ctx context.Context, refresh bool) (*Feed, error) {
	u := c.baseURL + "/api/v1/feed"
	if refresh {
		u += "?refresh=true"
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var feed Feed
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("fetched feed", "events", feed.Count, "loading", feed.Loading)
	return &feed, nil
}

// WaitForFeed polls until the server has a committed feed or the context
// ends. Polling matches the loading behavior of the feed endpoint: the
// first snapshot request starts a cycle, later ones pick up its result.
func (c *Client) WaitForFeed(ctx context.Context, interval time.Duration) (*Feed, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		feed, err := c.GetFeed(ctx, false)
		if err != nil {
			return nil, err
		}
		if !feed.Loading {
			return feed, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// GetRecipient resolves the payout recipient behind a funding pot.
func (c *Client) GetRecipient(ctx context.Context, fundingPotID string) (string, error) {
	u := c.baseURL + "/api/v1/recipients/" + url.PathEscape(fundingPotID)

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", c.parseErrorResponse(resp)
	}

	var body struct {
		FundingPotID string `json:"funding_pot_id"`
		Recipient    string `json:"recipient"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("resolved recipient", "funding_pot_id", fundingPotID, "recipient", body.Recipient)
	return body.Recipient, nil
}

// Health checks the server health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// parseErrorResponse extracts the error message from an API error response.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, body.Error)
}
