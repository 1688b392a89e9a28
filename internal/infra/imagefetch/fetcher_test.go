package imagefetch

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avelar/facetrace/pkg/common/logger"
)

func testLogger() *logger.Logger {
	return logger.New(io.Discard, logger.LevelDebug, "test", nil)
}

func TestFetchStagesAndReleases(t *testing.T) {
	payload := []byte("fake image bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	f := NewFetcher(testLogger())
	staged, err := f.Fetch(context.Background(), srv.URL+"/image.jpg")
	require.NoError(t, err)

	data, err := staged.Bytes()
	require.NoError(t, err)
	require.Equal(t, payload, data)

	path := staged.(*stagedFile).path
	require.NoError(t, staged.Close())
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestFetchRejectsOversizedImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(w, bytes.NewReader(make([]byte, maxImageBytes+1)))
	}))
	defer srv.Close()

	f := NewFetcher(testLogger())
	_, err := f.Fetch(context.Background(), srv.URL+"/huge.jpg")
	require.Error(t, err)
	require.ErrorContains(t, err, "size cap")
}

func TestFetchRejectsNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(testLogger())
	_, err := f.Fetch(context.Background(), srv.URL+"/missing.jpg")
	require.Error(t, err)
	require.ErrorContains(t, err, "status 404")
}
