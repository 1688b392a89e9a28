package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/avelar/facetrace/pkg/common/logger"
)

func testLogger() *logger.Logger {
	return logger.New(io.Discard, logger.LevelDebug, "test", nil)
}

func TestDisplayNameRoundTrip(t *testing.T) {
	userID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, fmt.Sprintf("/v1/users/%s/profile", userID), r.URL.Path)
		require.Equal(t, "Bearer key-123", r.Header.Get("Authorization"))

		_ = json.NewEncoder(w).Encode(map[string]string{"display_name": "Jamie Rivera"})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "key-123"}, testLogger())
	name, err := c.DisplayName(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, "Jamie Rivera", name)
}

func TestDisplayNameErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, testLogger())
	_, err := c.DisplayName(context.Background(), uuid.New())
	require.Error(t, err)
	require.ErrorContains(t, err, "status 404")
}
