// Package matcher provides the HTTP client for the external face-matching
// service. The pipeline only depends on the scanning.FaceMatcher port; this
// package is the one place that knows the provider's wire format.
package matcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avelar/facetrace/internal/domain/scanning"
	"github.com/avelar/facetrace/pkg/common/logger"
)

var _ scanning.FaceMatcher = (*Client)(nil)

// maxResponseBytes bounds how much of a matcher response is read. Match lists
// are small; anything larger is a misbehaving server.
const maxResponseBytes = 1 << 20

// Config holds the matcher service connection settings.
type Config struct {
	BaseURL string
	APIKey  string
	// Timeout bounds one match call end to end. Defaults to 15s.
	Timeout time.Duration
}

// Client calls the face-matching service over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *logger.Logger
}

// NewClient returns a face matcher client.
func NewClient(cfg Config, logger *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With("component", "face_matcher_client"),
	}
}

type findMatchesRequest struct {
	// Image is base64-encoded by encoding/json.
	Image         []byte `json:"image"`
	MinSimilarity int    `json:"min_similarity"`
}

type findMatchesResponse struct {
	Matches []struct {
		FaceID     string `json:"face_id"`
		Similarity int    `json:"similarity"`
	} `json:"matches"`
}

// FindMatches submits the image and returns all indexed faces found in it
// with a similarity of at least minSimilarity.
func (c *Client) FindMatches(ctx context.Context, image []byte, minSimilarity int) ([]scanning.FaceMatch, error) {
	start := time.Now()

	body, err := json.Marshal(findMatchesRequest{Image: image, MinSimilarity: minSimilarity})
	if err != nil {
		return nil, fmt.Errorf("encoding match request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/matches", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building match request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling face matcher: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn(ctx, "Failed to close matcher response body", "error", closeErr)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading matcher response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("face matcher returned status %d", resp.StatusCode)
	}

	var parsed findMatchesResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decoding matcher response: %w", err)
	}

	matches := make([]scanning.FaceMatch, 0, len(parsed.Matches))
	for _, m := range parsed.Matches {
		matches = append(matches, scanning.FaceMatch{FaceID: m.FaceID, Similarity: m.Similarity})
	}

	c.logger.Debug(ctx, "Face match call finished",
		"match_count", len(matches),
		"image_bytes", len(image),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return matches, nil
}
