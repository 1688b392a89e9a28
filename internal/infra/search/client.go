// Package search provides the HTTP client for the external image-search
// provider behind the scanning.SearchProvider port.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/avelar/facetrace/internal/domain/scanning"
	"github.com/avelar/facetrace/pkg/common/logger"
)

var _ scanning.SearchProvider = (*Client)(nil)

// PageSize is the fixed number of candidates requested per query.
const PageSize = 10

// maxResponseBytes bounds how much of a provider response is read.
const maxResponseBytes = 1 << 20

// Config holds the search provider connection settings.
type Config struct {
	BaseURL string
	APIKey  string
	// Timeout bounds one search call end to end. Defaults to 10s.
	Timeout time.Duration
}

// Configured reports whether a real provider is set up. When false, the
// pipeline serves demo results instead.
func (c Config) Configured() bool { return c.BaseURL != "" && c.APIKey != "" }

// Client queries the image-search provider over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *logger.Logger
}

// NewClient returns a search provider client.
func NewClient(cfg Config, logger *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With("component", "search_client"),
	}
}

type searchResponse struct {
	Results []struct {
		ImageURL      string `json:"image_url"`
		SourcePageURL string `json:"source_page_url"`
	} `json:"results"`
}

// SearchImages returns up to PageSize candidates for the query.
func (c *Client) SearchImages(ctx context.Context, query string) ([]scanning.ImageCandidate, error) {
	start := time.Now()

	endpoint := fmt.Sprintf("%s/v1/images?q=%s&limit=%s",
		c.baseURL, url.QueryEscape(query), strconv.Itoa(PageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building search request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling search provider: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn(ctx, "Failed to close search response body", "error", closeErr)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading search response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("search provider returned status %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	candidates := make([]scanning.ImageCandidate, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		candidates = append(candidates, scanning.ImageCandidate{
			ImageURL:      r.ImageURL,
			SourcePageURL: r.SourcePageURL,
		})
		if len(candidates) == PageSize {
			break
		}
	}

	c.logger.Debug(ctx, "Image search finished",
		"candidate_count", len(candidates),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return candidates, nil
}
