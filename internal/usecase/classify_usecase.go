package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/user/recipe-extraction-service/internal/entity"
	"github.com/user/recipe-extraction-service/internal/repository"
	"github.com/user/recipe-extraction-service/pkg/metrics"
	"github.com/user/recipe-extraction-service/pkg/task"
)

var (
	// ErrRetryNotAllowed is returned when a manual retry is requested for a
	// job whose status does not permit one.
	ErrRetryNotAllowed = errors.New("job status does not allow a chunk retry")
	// ErrRetryLimitExceeded is returned when the job-level retry cap is hit.
	// This is a user-facing stop condition, not a silent retry.
	ErrRetryLimitExceeded = errors.New("job retry limit exceeded")
	// ErrChunkNotFailed is returned when a single-chunk retry names a chunk
	// that is not in the failure list.
	ErrChunkNotFailed = errors.New("chunk is not in the failed list")
)

// TotalChunks returns ceil(n / chunkSize).
func TotalChunks(n, chunkSize int) int {
	if chunkSize <= 0 {
		chunkSize = 1
	}
	return (n + chunkSize - 1) / chunkSize
}

// ChunkRange returns the [start, end) index range of one chunk. Ranges
// partition [0, n) with no gaps or overlaps.
func ChunkRange(chunk, chunkSize, n int) (int, int) {
	start := chunk * chunkSize
	end := start + chunkSize
	if end > n {
		end = n
	}
	return start, end
}

// ChunkClassifier fans a job's raw URL pool out into fixed-size chunks,
// classifies each chunk with the LLM (sub-batched to the provider's
// ceiling, retried with exponential backoff), and records every chunk
// outcome through one atomic path that also evaluates the filtering
// termination condition. Completion and failure deliberately share that
// single path so the job cannot stall on callback arrival order.
type ChunkClassifier struct {
	classifier   repository.URLClassifier
	pools        repository.URLPoolRepository
	jobs         repository.JobRepository
	runner       task.Runner
	chunkSize    int
	subBatchSize int
	maxAttempts  int
	backoffBase  time.Duration
	sleep        func(time.Duration)
}

// NewChunkClassifier creates a new ChunkClassifier use case.
func NewChunkClassifier(
	classifier repository.URLClassifier,
	pools repository.URLPoolRepository,
	jobs repository.JobRepository,
	runner task.Runner,
	chunkSize, subBatchSize, maxAttempts int,
	backoffBase time.Duration,
) *ChunkClassifier {
	return &ChunkClassifier{
		classifier:   classifier,
		pools:        pools,
		jobs:         jobs,
		runner:       runner,
		chunkSize:    chunkSize,
		subBatchSize: subBatchSize,
		maxAttempts:  maxAttempts,
		backoffBase:  backoffBase,
		sleep:        time.Sleep,
	}
}

// Start launches every chunk as an independent task immediately: true
// fan-out, no bounded queue. Each chunk carries its own index range so a
// retry can be addressed precisely.
func (c *ChunkClassifier) Start(jobID string, totalURLs int) {
	totalChunks := TotalChunks(totalURLs, c.chunkSize)
	slog.Info("Starting chunk classification", "job_id", jobID, "urls", totalURLs, "chunks", totalChunks)

	for chunk := 0; chunk < totalChunks; chunk++ {
		start, end := ChunkRange(chunk, c.chunkSize, totalURLs)
		c.runner.Go(fmt.Sprintf("classify:%s:%d", jobID, chunk), func(ctx context.Context) {
			c.runChunk(ctx, jobID, chunk, start, end)
		})
	}
}

// RetryChunks re-submits failed chunks. A nil chunkNumber retries all of
// them; otherwise only the named chunk. Chunks are re-read from the
// preserved raw URL pool, never from the filtered pool, which may well be
// empty for a chunk that failed.
func (c *ChunkClassifier) RetryChunks(ctx context.Context, jobID string, chunkNumber *int) error {
	job, err := c.jobs.FindByID(ctx, jobID)
	if err != nil {
		return err
	}

	switch job.Status {
	case entity.StatusFiltering, entity.StatusAwaitingConfirmation, entity.StatusFailed:
		// Retryable.
	default:
		return fmt.Errorf("%w: status is %s", ErrRetryNotAllowed, job.Status)
	}

	targets := job.FailedChunks
	if chunkNumber != nil {
		targets = nil
		for _, fc := range job.FailedChunks {
			if fc.Chunk == *chunkNumber {
				targets = []entity.FailedChunk{fc}
				break
			}
		}
		if len(targets) == 0 {
			return fmt.Errorf("%w: chunk %d", ErrChunkNotFailed, *chunkNumber)
		}
	}
	if len(targets) == 0 {
		return nil
	}

	retries, err := c.jobs.IncrementRetry(ctx, jobID)
	if err != nil {
		return err
	}
	if retries > entity.MaxJobRetries {
		if ok, _ := c.jobs.Fail(ctx, jobID, "chunk retry limit exceeded"); ok {
			metrics.JobsFinishedTotal.WithLabelValues(string(entity.StatusFailed)).Inc()
		}
		return ErrRetryLimitExceeded
	}

	// Re-open a settled job so the re-run outcomes count toward a fresh
	// termination check.
	if job.Status != entity.StatusFiltering {
		if _, err := c.jobs.Transition(ctx, jobID, job.Status, entity.StatusFiltering); err != nil {
			return err
		}
	}

	chunks := make([]int, 0, len(targets))
	for _, fc := range targets {
		chunks = append(chunks, fc.Chunk)
	}
	if chunkNumber == nil {
		chunks = nil // clear all
	}
	if err := c.jobs.ClearFailedChunks(ctx, jobID, chunks); err != nil {
		return err
	}

	slog.Info("Re-submitting failed chunks", "job_id", jobID, "chunks", len(targets), "retry", retries)
	for _, fc := range targets {
		c.runner.Go(fmt.Sprintf("classify-retry:%s:%d", jobID, fc.Chunk), func(ctx context.Context) {
			c.runChunk(ctx, jobID, fc.Chunk, fc.StartIndex, fc.EndIndex)
		})
	}
	return nil
}

func (c *ChunkClassifier) runChunk(ctx context.Context, jobID string, chunk, start, end int) {
	err := c.classifyRange(ctx, jobID, start, end)
	if err != nil {
		slog.Error("Chunk exhausted its attempts", "job_id", jobID, "chunk", chunk, "error", err)
	}
	c.recordOutcome(ctx, jobID, repository.ChunkOutcome{
		Chunk:      chunk,
		StartIndex: start,
		EndIndex:   end,
		Failure:    err,
	})
}

// classifyRange classifies one raw-pool index range, retrying the whole
// chunk with exponential backoff until attempts are exhausted.
func (c *ChunkClassifier) classifyRange(ctx context.Context, jobID string, start, end int) error {
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			c.sleep(c.backoffBase << (attempt - 1))
		}
		if lastErr = c.classifyOnce(ctx, jobID, start, end); lastErr == nil {
			return nil
		}
		slog.Warn("Chunk classification attempt failed",
			"job_id", jobID, "range_start", start, "range_end", end,
			"attempt", attempt+1, "error", lastErr,
		)
	}
	return lastErr
}

func (c *ChunkClassifier) classifyOnce(ctx context.Context, jobID string, start, end int) error {
	urls, err := c.pools.RawRange(ctx, jobID, start, end)
	if err != nil {
		return fmt.Errorf("failed to read raw URL range [%d,%d): %w", start, end, err)
	}

	var confirmed []string
	for sub := 0; sub < len(urls); sub += c.subBatchSize {
		batchEnd := sub + c.subBatchSize
		if batchEnd > len(urls) {
			batchEnd = len(urls)
		}
		batch := urls[sub:batchEnd]

		verdicts, err := c.classifier.ClassifyURLs(ctx, batch)
		if err != nil {
			return fmt.Errorf("classification call failed: %w", err)
		}
		for _, u := range batch {
			if verdicts[u] {
				confirmed = append(confirmed, u)
			}
		}
	}

	if len(confirmed) > 0 {
		if err := c.pools.AppendFiltered(ctx, jobID, confirmed); err != nil {
			return fmt.Errorf("failed to append filtered URLs: %w", err)
		}
	}
	return nil
}

// recordOutcome is the single record-and-check path shared by chunk success
// and chunk failure.
func (c *ChunkClassifier) recordOutcome(ctx context.Context, jobID string, outcome repository.ChunkOutcome) {
	progress, err := c.jobs.RecordChunkOutcome(ctx, jobID, outcome)
	if err != nil {
		slog.Error("Failed to record chunk outcome", "job_id", jobID, "chunk", outcome.Chunk, "error", err)
		return
	}

	if outcome.Failure == nil {
		metrics.ClassificationChunksTotal.WithLabelValues("completed").Inc()
	} else {
		metrics.ClassificationChunksTotal.WithLabelValues("failed").Inc()
	}

	c.evaluateProgress(ctx, jobID, progress)
}

// evaluateProgress applies the filtering termination rules to a post-update
// snapshot. It is idempotent and safe to run redundantly from any number of
// completion callbacks: the status transitions are compare-and-swap, so
// only one evaluation wins and late ones fall through.
func (c *ChunkClassifier) evaluateProgress(ctx context.Context, jobID string, progress entity.ChunkProgress) {
	if progress.Status != entity.StatusFiltering {
		// Terminal or already transitioned; a late outcome was recorded but
		// must not move the job.
		return
	}

	if progress.FailureRate() > entity.ChunkFailureThreshold {
		// Early exit: no need to wait for stragglers on a doomed job.
		msg := fmt.Sprintf("classification failed for %d of %d chunks", progress.FailedChunks, progress.TotalChunks)
		ok, err := c.jobs.Fail(ctx, jobID, msg)
		if err != nil {
			slog.Error("Failed to fail job past failure threshold", "job_id", jobID, "error", err)
			return
		}
		if ok {
			metrics.JobsFinishedTotal.WithLabelValues(string(entity.StatusFailed)).Inc()
			slog.Warn("Job failed: chunk failure rate crossed threshold", "job_id", jobID, "failed_chunks", progress.FailedChunks, "total_chunks", progress.TotalChunks)
		}
		return
	}

	if !progress.AllResolved() {
		return
	}

	// Every chunk resolved with an acceptable failure rate. The job's URL
	// total becomes the actual persisted filtered pool size, not the
	// pre-filter candidate count.
	filtered, err := c.pools.FilteredLen(ctx, jobID)
	if err != nil {
		slog.Error("Failed to read filtered pool size", "job_id", jobID, "error", err)
		return
	}
	ok, err := c.jobs.Transition(ctx, jobID, entity.StatusFiltering, entity.StatusAwaitingConfirmation)
	if err != nil {
		slog.Error("Failed to move job to awaiting_confirmation", "job_id", jobID, "error", err)
		return
	}
	if !ok {
		return // another callback won the race
	}
	if err := c.jobs.SetTotalURLs(ctx, jobID, filtered); err != nil {
		slog.Error("Failed to update job URL total", "job_id", jobID, "error", err)
	}
	slog.Info("Classification finished, awaiting confirmation", "job_id", jobID, "filtered_urls", filtered)
}
