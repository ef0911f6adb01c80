package entity

import "time"

// JobStatus enumerates the lifecycle states of an extraction job.
type JobStatus string

const (
	StatusDiscoveringURLs      JobStatus = "discovering_urls"
	StatusFiltering            JobStatus = "filtering"
	StatusAwaitingConfirmation JobStatus = "awaiting_confirmation"
	StatusExtractingData       JobStatus = "extracting_data"
	StatusCompleted            JobStatus = "completed"
	StatusFailed               JobStatus = "failed"
	StatusCancelled            JobStatus = "cancelled"
)

// Terminal reports whether a job in this status accepts no further mutations.
// Completed is terminal for everything except an explicit "extract more",
// which re-enters extracting_data through its own guarded transition.
func (s JobStatus) Terminal() bool {
	return s == StatusFailed || s == StatusCancelled
}

// legalTransitions encodes the full state machine. Failed is additionally
// reachable from any non-terminal state via a job-fatal error, and cancelled
// from any non-terminal state via a user cancel; those two are handled by
// guarded SQL updates rather than this table.
var legalTransitions = map[JobStatus][]JobStatus{
	StatusDiscoveringURLs:      {StatusFiltering},
	StatusFiltering:            {StatusAwaitingConfirmation},
	StatusAwaitingConfirmation: {StatusExtractingData, StatusFiltering},
	StatusExtractingData:       {StatusExtractingData, StatusCompleted},
	// extract-more and manual chunk retry re-open an otherwise settled job
	StatusCompleted: {StatusExtractingData},
	StatusFailed:    {StatusFiltering},
}

// CanTransition reports whether moving a job from one status to another is
// legal. Transitions into failed/cancelled are always legal from any
// non-terminal state.
func CanTransition(from, to JobStatus) bool {
	if to == StatusFailed || to == StatusCancelled {
		return !from.Terminal()
	}
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// JobKind identifies what a job's source URL points at.
type JobKind string

const (
	KindProfile JobKind = "profile"
	KindRecipe  JobKind = "recipe"
)

// MaxJobRetries is the hard cap on manual chunk-retry rounds per job.
// Exceeding it is a job-fatal, user-facing stop condition.
const MaxJobRetries = 3

// ChunkFailureThreshold is the aggregate chunk failure rate above which a
// filtering job is failed early, without waiting for straggler chunks.
const ChunkFailureThreshold = 0.5

// FailedChunk records one classification chunk that exhausted its retries.
// The index range addresses the preserved raw URL pool so the chunk can be
// re-submitted precisely.
type FailedChunk struct {
	Chunk      int       `json:"chunk"`
	StartIndex int       `json:"start_index"`
	EndIndex   int       `json:"end_index"`
	Error      string    `json:"error"`
	FailedAt   time.Time `json:"failed_at"`
}

// ExtractionJob mirrors the `extraction_jobs` PostgreSQL table schema.
type ExtractionJob struct {
	ID              string
	UserID          string
	CommunityID     string
	SourceURL       string
	Kind            JobKind
	Status          JobStatus
	TotalURLs       int
	ProcessedURLs   int
	ExtractionLimit int
	ExtractedCount  int
	ExtractedURLs   []string
	TotalChunks     int
	CompletedChunks int
	FailedChunks    []FailedChunk
	RetryCount      int
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ChunkProgress is the post-update snapshot returned by the atomic
// chunk-outcome recording, used to evaluate the filtering termination check.
type ChunkProgress struct {
	Status          JobStatus
	TotalChunks     int
	CompletedChunks int
	FailedChunks    int
}

// AllResolved reports whether every chunk has either completed or failed.
func (p ChunkProgress) AllResolved() bool {
	return p.TotalChunks > 0 && p.CompletedChunks+p.FailedChunks >= p.TotalChunks
}

// FailureRate returns the fraction of chunks that have failed so far.
func (p ChunkProgress) FailureRate() float64 {
	if p.TotalChunks == 0 {
		return 0
	}
	return float64(p.FailedChunks) / float64(p.TotalChunks)
}
