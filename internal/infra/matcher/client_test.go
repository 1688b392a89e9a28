package matcher

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

func TestFindMatchesRoundTrip(t *testing.T) {
	image := []byte("fake image")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/matches", r.URL.Path)

		var req struct {
			Image         []byte `json:"image"`
			MinSimilarity int    `json:"min_similarity"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, image, req.Image)
		require.Equal(t, 80, req.MinSimilarity)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"matches": []map[string]any{
				{"face_id": "face-ext-1", "similarity": 92},
				{"face_id": "face-ext-2", "similarity": 84},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "key-123"}, testLogger())
	matches, err := c.FindMatches(context.Background(), image, 80)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, "face-ext-1", matches[0].FaceID)
	require.Equal(t, 92, matches[0].Similarity)
}

func TestFindMatchesErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, testLogger())
	_, err := c.FindMatches(context.Background(), []byte("img"), 80)
	require.Error(t, err)
	require.ErrorContains(t, err, "status 502")
}
