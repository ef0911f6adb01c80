package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/google/uuid"

	"github.com/user/recipe-extraction-service/internal/entity"
	"github.com/user/recipe-extraction-service/internal/repository"
	"github.com/user/recipe-extraction-service/pkg/metrics"
	"github.com/user/recipe-extraction-service/pkg/task"
)

var (
	// ErrInvalidSourceURL is returned for an unparseable job submission URL.
	ErrInvalidSourceURL = errors.New("invalid source URL")
	// ErrInvalidLimit is returned for a non-positive extraction count.
	ErrInvalidLimit = errors.New("extraction limit must be positive")
	// ErrNotConfirmable is returned when confirmation arrives for a job that
	// is not awaiting it.
	ErrNotConfirmable = errors.New("job is not awaiting confirmation")
	// ErrNotExtendable is returned when "extract more" is requested for a
	// job that is neither extracting nor completed.
	ErrNotExtendable = errors.New("job cannot extract more in its current status")
	// ErrNotCancellable is returned for a cancel on an already-terminal job.
	ErrNotCancellable = errors.New("job is already terminal")
)

// DeletedCounts reports what deleteAllJobData removed.
type DeletedCounts struct {
	Jobs    int   `json:"jobs"`
	Recipes int64 `json:"recipes"`
}

// JobManager exposes the job lifecycle to external callers and wires the
// pipeline stages together: submission schedules discovery, discovery
// hands off to classification, confirmation schedules extraction. The job
// record's state machine is the single source of truth for what each
// operation is allowed to do.
type JobManager struct {
	jobs       repository.JobRepository
	pools      repository.URLPoolRepository
	recipes    repository.RecipeRepository
	crawler    *SitemapCrawler
	classifier *ChunkClassifier
	cascade    *ExtractionCascade
	runner     task.Runner
}

// NewJobManager creates a new JobManager use case.
func NewJobManager(
	jobs repository.JobRepository,
	pools repository.URLPoolRepository,
	recipes repository.RecipeRepository,
	crawler *SitemapCrawler,
	classifier *ChunkClassifier,
	cascade *ExtractionCascade,
	runner task.Runner,
) *JobManager {
	return &JobManager{
		jobs:       jobs,
		pools:      pools,
		recipes:    recipes,
		crawler:    crawler,
		classifier: classifier,
		cascade:    cascade,
		runner:     runner,
	}
}

// Submit creates a job for a source URL and schedules discovery.
func (m *JobManager) Submit(ctx context.Context, userID, communityID, sourceURL string, kind entity.JobKind) (string, error) {
	if _, err := url.ParseRequestURI(sourceURL); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidSourceURL, sourceURL)
	}
	if kind == "" {
		kind = entity.KindRecipe
	}

	job := &entity.ExtractionJob{
		ID:          uuid.NewString(),
		UserID:      userID,
		CommunityID: communityID,
		SourceURL:   sourceURL,
		Kind:        kind,
		Status:      entity.StatusDiscoveringURLs,
	}
	if err := m.jobs.Create(ctx, job); err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}

	slog.Info("Extraction job submitted", "job_id", job.ID, "source_url", sourceURL, "kind", kind)
	m.runner.Go("discover:"+job.ID, func(ctx context.Context) {
		m.runDiscovery(ctx, job.ID, sourceURL)
	})
	return job.ID, nil
}

// runDiscovery crawls the sitemap and, on success, fans out classification.
func (m *JobManager) runDiscovery(ctx context.Context, jobID, sourceURL string) {
	summary, err := m.crawler.Run(ctx, jobID, sourceURL)
	if err != nil {
		slog.Error("Discovery failed", "job_id", jobID, "error", err)
		if ok, failErr := m.jobs.Fail(ctx, jobID, err.Error()); failErr != nil {
			slog.Error("Failed to record discovery failure", "job_id", jobID, "error", failErr)
		} else if ok {
			metrics.JobsFinishedTotal.WithLabelValues(string(entity.StatusFailed)).Inc()
		}
		return
	}
	if summary.TotalCandidates == 0 {
		return // job moved on without us (e.g. cancelled mid-crawl)
	}
	m.classifier.Start(jobID, summary.TotalCandidates)
}

// GetStatus retrieves the job record for status reporting.
func (m *JobManager) GetStatus(ctx context.Context, jobID string) (*entity.ExtractionJob, error) {
	return m.jobs.FindByID(ctx, jobID)
}

// Confirm sets the extraction limit for a job awaiting confirmation and
// schedules the extraction batch.
func (m *JobManager) Confirm(ctx context.Context, jobID string, limit int) error {
	if limit <= 0 {
		return ErrInvalidLimit
	}
	ok, err := m.jobs.BeginExtraction(ctx, jobID, entity.StatusAwaitingConfirmation, limit)
	if err != nil {
		return err
	}
	if !ok {
		if _, err := m.jobs.FindByID(ctx, jobID); err != nil {
			return err
		}
		return ErrNotConfirmable
	}

	slog.Info("Extraction confirmed", "job_id", jobID, "limit", limit)
	m.runner.Go("extract:"+jobID, func(ctx context.Context) {
		m.cascade.RunBatch(ctx, jobID)
	})
	return nil
}

// ExtractMore re-enters extraction against the residual pool (the filtered
// pool minus already-extracted URLs), without re-crawling.
func (m *JobManager) ExtractMore(ctx context.Context, jobID string, additionalCount int) error {
	if additionalCount <= 0 {
		return ErrInvalidLimit
	}

	// A finished round leaves the job completed; an in-flight round leaves
	// it extracting_data. Either re-enters extraction.
	for _, from := range []entity.JobStatus{entity.StatusCompleted, entity.StatusExtractingData} {
		ok, err := m.jobs.BeginExtraction(ctx, jobID, from, additionalCount)
		if err != nil {
			return err
		}
		if ok {
			slog.Info("Extracting more", "job_id", jobID, "additional", additionalCount)
			m.runner.Go("extract-more:"+jobID, func(ctx context.Context) {
				m.cascade.RunBatch(ctx, jobID)
			})
			return nil
		}
	}

	if _, err := m.jobs.FindByID(ctx, jobID); err != nil {
		return err
	}
	return ErrNotExtendable
}

// Cancel marks the job cancelled. In-flight work is not forcibly aborted;
// its late writes land in a terminal job and are ignored by the guarded
// transitions.
func (m *JobManager) Cancel(ctx context.Context, jobID string) error {
	ok, err := m.jobs.Cancel(ctx, jobID)
	if err != nil {
		return err
	}
	if !ok {
		if _, err := m.jobs.FindByID(ctx, jobID); err != nil {
			return err
		}
		return ErrNotCancellable
	}
	metrics.JobsFinishedTotal.WithLabelValues(string(entity.StatusCancelled)).Inc()
	slog.Info("Job cancelled", "job_id", jobID)
	return nil
}

// RetryFailedChunks re-submits every failed classification chunk.
func (m *JobManager) RetryFailedChunks(ctx context.Context, jobID string) error {
	return m.classifier.RetryChunks(ctx, jobID, nil)
}

// RetrySingleChunk re-submits one failed classification chunk.
func (m *JobManager) RetrySingleChunk(ctx context.Context, jobID string, chunkNumber int) error {
	return m.classifier.RetryChunks(ctx, jobID, &chunkNumber)
}

// ListRecipes returns every recipe extracted by a job.
func (m *JobManager) ListRecipes(ctx context.Context, jobID string) ([]*entity.ExtractedRecipe, error) {
	if _, err := m.jobs.FindByID(ctx, jobID); err != nil {
		return nil, err
	}
	return m.recipes.ListByJob(ctx, jobID)
}

// DeleteAllJobData removes every job, recipe, and URL pool owned by
// (userID, communityID) and reports the counts.
func (m *JobManager) DeleteAllJobData(ctx context.Context, userID, communityID string) (DeletedCounts, error) {
	var counts DeletedCounts

	// Recipes first: their ownership scope is resolved through the jobs.
	recipesDeleted, err := m.recipes.DeleteByUser(ctx, userID, communityID)
	if err != nil {
		return counts, fmt.Errorf("failed to delete recipes: %w", err)
	}
	counts.Recipes = recipesDeleted

	jobIDs, err := m.jobs.DeleteByUser(ctx, userID, communityID)
	if err != nil {
		return counts, fmt.Errorf("failed to delete jobs: %w", err)
	}
	counts.Jobs = len(jobIDs)

	for _, id := range jobIDs {
		if err := m.pools.DeletePools(ctx, id); err != nil {
			// Orphaned pool keys expire with redis maintenance; not fatal.
			slog.Warn("Failed to delete URL pools", "job_id", id, "error", err)
		}
	}

	slog.Info("Deleted all job data", "user_id", userID, "community_id", communityID, "jobs", counts.Jobs, "recipes", counts.Recipes)
	return counts, nil
}
