// Package imagefetch downloads candidate images with bounded size and time
// and stages them on disk for the face matcher. Staged files are released
// through StagedImage.Close on every exit path.
package imagefetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/avelar/facetrace/internal/domain/scanning"
	"github.com/avelar/facetrace/pkg/common/logger"
)

var _ scanning.ImageFetcher = (*Fetcher)(nil)

const (
	// maxImageBytes caps one download at 10 MB; anything larger is aborted.
	maxImageBytes = 10 << 20

	// defaultTimeout bounds one download end to end so a stalled server
	// cannot starve the whole job.
	defaultTimeout = 10 * time.Second
)

// Fetcher downloads candidate images over HTTP and stages them as temp files.
type Fetcher struct {
	http   *http.Client
	logger *logger.Logger
}

// NewFetcher returns an image fetcher with the default size and time bounds.
func NewFetcher(logger *logger.Logger) *Fetcher {
	return &Fetcher{
		http:   &http.Client{Timeout: defaultTimeout},
		logger: logger.With("component", "image_fetcher"),
	}
}

// Fetch downloads the image at url into a temp file. The returned StagedImage
// owns the file; callers must Close it on every path.
func (f *Fetcher) Fetch(ctx context.Context, url string) (scanning.StagedImage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building download request: %w", err)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading image: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			f.logger.Warn(ctx, "Failed to close download body", "url", url, "error", closeErr)
		}
	}()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("image download returned status %d", resp.StatusCode)
	}
	if resp.ContentLength > maxImageBytes {
		return nil, fmt.Errorf("image exceeds size cap: %d bytes", resp.ContentLength)
	}

	tmp, err := os.CreateTemp("", "facetrace-staged-*")
	if err != nil {
		return nil, fmt.Errorf("creating staging file: %w", err)
	}

	// Read one byte past the cap to distinguish "exactly at cap" from "over".
	written, err := io.Copy(tmp, io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		removeStaged(tmp)
		return nil, fmt.Errorf("staging image: %w", err)
	}
	if written > maxImageBytes {
		removeStaged(tmp)
		return nil, fmt.Errorf("image exceeds size cap: %d bytes", maxImageBytes)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("closing staging file: %w", err)
	}

	return &stagedFile{path: tmp.Name()}, nil
}

func removeStaged(f *os.File) {
	_ = f.Close()
	_ = os.Remove(f.Name())
}

// stagedFile is a downloaded image staged on disk.
type stagedFile struct {
	path string
}

// Bytes reads the staged content.
func (s *stagedFile) Bytes() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading staged image: %w", err)
	}
	return data, nil
}

// Close removes the staged file. Safe to call once per staged image.
func (s *stagedFile) Close() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing staged image: %w", err)
	}
	return nil
}
