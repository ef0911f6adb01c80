package repository

import (
	"context"
	"errors"

	"github.com/user/recipe-extraction-service/internal/entity"
)

var (
	// ErrJobNotFound is returned when a job id resolves to nothing.
	ErrJobNotFound = errors.New("extraction job not found")
)

// ChunkOutcome is the single record-outcome payload shared by the chunk
// success and failure paths. Failure is nil for a completed chunk.
type ChunkOutcome struct {
	Chunk      int
	StartIndex int
	EndIndex   int
	Failure    error
}

// JobRepository defines the contract for extraction job persistence. All
// mutations are narrow, additive patches (atomic increments, list appends,
// compare-and-swap status updates) so that concurrent chunk completions
// cannot lose updates or resurrect a terminal job.
type JobRepository interface {
	// Create persists a freshly submitted job.
	Create(ctx context.Context, job *entity.ExtractionJob) error
	// FindByID retrieves a job by id, or ErrJobNotFound.
	FindByID(ctx context.Context, id string) (*entity.ExtractionJob, error)

	// BeginFiltering sets the URL/chunk totals and moves the job from
	// discovering_urls to filtering. Returns false if the job was no longer
	// in discovering_urls.
	BeginFiltering(ctx context.Context, id string, totalURLs, totalChunks int) (bool, error)

	// RecordChunkOutcome atomically applies one chunk's result (a counter
	// increment on success, a failure-list append on failure) and returns the
	// post-update progress snapshot. Safe to call on a terminal job; the
	// outcome is still recorded but the returned status lets callers skip
	// further transitions.
	RecordChunkOutcome(ctx context.Context, id string, outcome ChunkOutcome) (entity.ChunkProgress, error)

	// ClearFailedChunks removes the given chunk numbers from the failure
	// list ahead of a manual retry, so their re-run outcomes are counted
	// fresh. A nil slice clears every failed chunk.
	ClearFailedChunks(ctx context.Context, id string, chunks []int) error

	// Transition performs a compare-and-swap status change. Returns false,
	// without error, when the job was not in the expected status.
	Transition(ctx context.Context, id string, from, to entity.JobStatus) (bool, error)

	// Fail moves the job to failed with a human-readable message, from any
	// non-terminal state. Returns false if the job was already terminal.
	Fail(ctx context.Context, id, message string) (bool, error)

	// Cancel moves the job to cancelled, from any non-terminal state.
	Cancel(ctx context.Context, id string) (bool, error)

	// SetTotalURLs overwrites the job's URL total, used when filtering
	// resolves and the total is recomputed from the persisted filtered pool.
	SetTotalURLs(ctx context.Context, id string, total int) error

	// BeginExtraction CAS-transitions the job into extracting_data with the
	// confirmed per-round extraction limit.
	BeginExtraction(ctx context.Context, id string, from entity.JobStatus, limit int) (bool, error)

	// IncrementRetry bumps the job-level manual retry counter and returns
	// the new value.
	IncrementRetry(ctx context.Context, id string) (int, error)

	// RecordBatchProgress additively patches per-batch extraction progress:
	// attempted count, extracted count, and the accumulated extracted-URL
	// list used to compute the residual pool for "extract more".
	RecordBatchProgress(ctx context.Context, id string, processed, extracted int, extractedURLs []string) error

	// DeleteByUser removes every job owned by (userID, communityID) and
	// returns the deleted job ids along with their count.
	DeleteByUser(ctx context.Context, userID, communityID string) ([]string, error)
}
