package httpfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/user/recipe-extraction-service/internal/repository"
)

const userAgent = `Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36`

// Bodies larger than this are cut off; recipe pages fit comfortably and
// unbounded reads would let one hostile page exhaust memory.
const maxBodyBytes = 4 << 20

// FetcherImpl provides a concrete implementation for the PageFetcher
// interface using net/http with a bounded per-request timeout.
type FetcherImpl struct {
	client *http.Client
}

// NewFetcher creates a new FetcherImpl.
func NewFetcher(timeout time.Duration) *FetcherImpl {
	return &FetcherImpl{
		client: &http.Client{Timeout: timeout},
	}
}

// FetchHTML downloads a URL and returns the response body.
func (f *FetcherImpl) FetchHTML(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return "", fmt.Errorf("%w: %s", repository.ErrFetchTimeout, url)
		}
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: %s returned %d", repository.ErrFetchStatus, url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read body of %s: %w", url, err)
	}
	return string(body), nil
}
