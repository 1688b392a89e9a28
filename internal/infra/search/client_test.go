package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avelar/facetrace/pkg/common/logger"
)

func testLogger() *logger.Logger {
	return logger.New(io.Discard, logger.LevelDebug, "test", nil)
}

func TestSearchImagesParsesCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer key-123", r.Header.Get("Authorization"))
		require.Equal(t, "ada lovelace", r.URL.Query().Get("q"))
		require.Equal(t, "10", r.URL.Query().Get("limit"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]string{
				{"image_url": "https://img.example.com/1.jpg", "source_page_url": "https://example.com/1"},
				{"image_url": "https://img.example.com/2.jpg", "source_page_url": "https://example.com/2"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "key-123"}, testLogger())
	candidates, err := c.SearchImages(context.Background(), "ada lovelace")
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	require.Equal(t, "https://img.example.com/1.jpg", candidates[0].ImageURL)
	require.Equal(t, "https://example.com/1", candidates[0].SourcePageURL)
}

func TestSearchImagesTruncatesToPageSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		results := make([]map[string]string, PageSize+5)
		for i := range results {
			results[i] = map[string]string{"image_url": "https://img.example.com/x.jpg"}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": results})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "key-123"}, testLogger())
	candidates, err := c.SearchImages(context.Background(), "query")
	require.NoError(t, err)
	require.Len(t, candidates, PageSize)
}

func TestSearchImagesErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "key-123"}, testLogger())
	_, err := c.SearchImages(context.Background(), "query")
	require.Error(t, err)
	require.ErrorContains(t, err, "status 429")
}

func TestConfigConfigured(t *testing.T) {
	require.False(t, Config{}.Configured())
	require.False(t, Config{BaseURL: "https://api.example.com"}.Configured())
	require.True(t, Config{BaseURL: "https://api.example.com", APIKey: "k"}.Configured())
}
