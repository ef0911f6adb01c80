package repository

import (
	"context"
	"errors"
)

var (
	// ErrFetchTimeout is returned when a page download exceeds its bound.
	ErrFetchTimeout = errors.New("page fetch timed out")
	// ErrFetchStatus is returned for non-2xx responses.
	ErrFetchStatus = errors.New("page fetch returned a non-success status")
)

// PageFetcher defines the contract for plain (non-rendering) page downloads.
type PageFetcher interface {
	// FetchHTML downloads a URL and returns the response body as a string.
	FetchHTML(ctx context.Context, url string) (string, error)
}
