// Package directory resolves user display information from the account
// service behind the scanning.UserDirectory port.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/avelar/facetrace/internal/domain/scanning"
	"github.com/avelar/facetrace/pkg/common/logger"
)

var _ scanning.UserDirectory = (*Client)(nil)

const maxResponseBytes = 1 << 16

// Config holds the account service connection settings.
type Config struct {
	BaseURL string
	APIKey  string
	// Timeout bounds one lookup. Defaults to 5s.
	Timeout time.Duration
}

// Client looks up user profiles over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *logger.Logger
}

// NewClient returns a user directory client.
func NewClient(cfg Config, logger *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With("component", "user_directory_client"),
	}
}

type profileResponse struct {
	DisplayName string `json:"display_name"`
}

// DisplayName returns the user's public display name. Callers fall back to a
// generic search query on error.
func (c *Client) DisplayName(ctx context.Context, userID uuid.UUID) (string, error) {
	endpoint := fmt.Sprintf("%s/v1/users/%s/profile", c.baseURL, userID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("building profile request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling user directory: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn(ctx, "Failed to close profile response body", "error", closeErr)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("reading profile response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("user directory returned status %d", resp.StatusCode)
	}

	var parsed profileResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decoding profile response: %w", err)
	}
	return parsed.DisplayName, nil
}
