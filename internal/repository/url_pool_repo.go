package repository

import "context"

// URLPoolRepository manages the per-job URL pools. The raw pool holds every
// pre-filtered candidate in discovery order and is preserved for the
// lifetime of the job so failed chunks can be retried from their original
// index ranges. The filtered pool holds only AI-confirmed recipe URLs;
// extraction reads exclusively from it.
type URLPoolRepository interface {
	// AppendRaw appends a batch of candidate URLs to the raw pool.
	AppendRaw(ctx context.Context, jobID string, urls []string) error
	// RawRange returns raw pool entries in [start, end).
	RawRange(ctx context.Context, jobID string, start, end int) ([]string, error)
	// AppendFiltered appends AI-confirmed URLs to the filtered pool.
	AppendFiltered(ctx context.Context, jobID string, urls []string) error
	// FilteredLen returns the current filtered pool size.
	FilteredLen(ctx context.Context, jobID string) (int, error)
	// FilteredRange returns filtered pool entries in [start, end).
	FilteredRange(ctx context.Context, jobID string, start, end int) ([]string, error)
	// DeletePools removes both pools for a job.
	DeletePools(ctx context.Context, jobID string) error
}
