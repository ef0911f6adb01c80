package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/user/recipe-extraction-service/internal/entity"
	"github.com/user/recipe-extraction-service/internal/repository"
)

// JobRepoImpl provides a concrete implementation for the JobRepository
// interface using PostgreSQL. Counter mutations are expressed as SQL
// increments and status changes as guarded updates, so concurrent chunk
// completions never read-modify-write a stale snapshot.
type JobRepoImpl struct {
	db *pgxpool.Pool
}

// NewJobRepo creates a new instance of JobRepoImpl.
func NewJobRepo(db *pgxpool.Pool) *JobRepoImpl {
	return &JobRepoImpl{db: db}
}

const jobColumns = `
	id, user_id, community_id, source_url, kind, status,
	total_urls, processed_urls, extraction_limit, extracted_count, extracted_urls,
	total_chunks, completed_chunks, failed_chunks,
	retry_count, error_message, created_at, updated_at`

// Create persists a freshly submitted job.
func (r *JobRepoImpl) Create(ctx context.Context, job *entity.ExtractionJob) error {
	failedJSON, err := json.Marshal(job.FailedChunks)
	if err != nil {
		return err
	}
	if job.ExtractedURLs == nil {
		job.ExtractedURLs = []string{}
	}

	query := `
		INSERT INTO extraction_jobs (
			id, user_id, community_id, source_url, kind, status,
			total_urls, processed_urls, extraction_limit, extracted_count, extracted_urls,
			total_chunks, completed_chunks, failed_chunks,
			retry_count, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, now(), now());
	`
	_, err = r.db.Exec(ctx, query,
		job.ID,
		job.UserID,
		job.CommunityID,
		job.SourceURL,
		job.Kind,
		job.Status,
		job.TotalURLs,
		job.ProcessedURLs,
		job.ExtractionLimit,
		job.ExtractedCount,
		job.ExtractedURLs,
		job.TotalChunks,
		job.CompletedChunks,
		failedJSON,
		job.RetryCount,
		job.ErrorMessage,
	)
	return err
}

// FindByID retrieves a job by id.
func (r *JobRepoImpl) FindByID(ctx context.Context, id string) (*entity.ExtractionJob, error) {
	query := `SELECT ` + jobColumns + ` FROM extraction_jobs WHERE id = $1;`
	row := r.db.QueryRow(ctx, query, id)

	var job entity.ExtractionJob
	var failedJSON []byte

	err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.CommunityID,
		&job.SourceURL,
		&job.Kind,
		&job.Status,
		&job.TotalURLs,
		&job.ProcessedURLs,
		&job.ExtractionLimit,
		&job.ExtractedCount,
		&job.ExtractedURLs,
		&job.TotalChunks,
		&job.CompletedChunks,
		&failedJSON,
		&job.RetryCount,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrJobNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(failedJSON, &job.FailedChunks); err != nil {
		return nil, fmt.Errorf("failed to decode failed_chunks for job %s: %w", id, err)
	}

	return &job, nil
}

// BeginFiltering sets URL/chunk totals and moves discovering_urls to filtering.
func (r *JobRepoImpl) BeginFiltering(ctx context.Context, id string, totalURLs, totalChunks int) (bool, error) {
	query := `
		UPDATE extraction_jobs
		SET status = $2, total_urls = $3, total_chunks = $4, updated_at = now()
		WHERE id = $1 AND status = $5;
	`
	tag, err := r.db.Exec(ctx, query, id, entity.StatusFiltering, totalURLs, totalChunks, entity.StatusDiscoveringURLs)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// RecordChunkOutcome atomically applies one chunk result and returns the
// post-update progress snapshot.
func (r *JobRepoImpl) RecordChunkOutcome(ctx context.Context, id string, outcome repository.ChunkOutcome) (entity.ChunkProgress, error) {
	var (
		progress entity.ChunkProgress
		row      pgx.Row
	)

	if outcome.Failure == nil {
		query := `
			UPDATE extraction_jobs
			SET completed_chunks = completed_chunks + 1, updated_at = now()
			WHERE id = $1
			RETURNING status, total_chunks, completed_chunks, jsonb_array_length(failed_chunks);
		`
		row = r.db.QueryRow(ctx, query, id)
	} else {
		record := entity.FailedChunk{
			Chunk:      outcome.Chunk,
			StartIndex: outcome.StartIndex,
			EndIndex:   outcome.EndIndex,
			Error:      outcome.Failure.Error(),
		}
		recordJSON, err := json.Marshal(record)
		if err != nil {
			return progress, err
		}
		query := `
			UPDATE extraction_jobs
			SET failed_chunks = failed_chunks || jsonb_set($2::jsonb, '{failed_at}', to_jsonb(now())),
			    updated_at = now()
			WHERE id = $1
			RETURNING status, total_chunks, completed_chunks, jsonb_array_length(failed_chunks);
		`
		row = r.db.QueryRow(ctx, query, id, recordJSON)
	}

	err := row.Scan(&progress.Status, &progress.TotalChunks, &progress.CompletedChunks, &progress.FailedChunks)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return progress, repository.ErrJobNotFound
		}
		return progress, err
	}
	return progress, nil
}

// ClearFailedChunks removes the given chunk numbers (or all, when nil) from
// the failure list ahead of a manual retry.
func (r *JobRepoImpl) ClearFailedChunks(ctx context.Context, id string, chunks []int) error {
	if chunks == nil {
		query := `
			UPDATE extraction_jobs
			SET failed_chunks = '[]'::jsonb, updated_at = now()
			WHERE id = $1;
		`
		_, err := r.db.Exec(ctx, query, id)
		return err
	}

	query := `
		UPDATE extraction_jobs
		SET failed_chunks = COALESCE(
			(SELECT jsonb_agg(e)
			 FROM jsonb_array_elements(failed_chunks) e
			 WHERE NOT ((e->>'chunk')::int = ANY($2))),
			'[]'::jsonb),
		    updated_at = now()
		WHERE id = $1;
	`
	_, err := r.db.Exec(ctx, query, id, chunks)
	return err
}

// Transition performs a compare-and-swap status change.
func (r *JobRepoImpl) Transition(ctx context.Context, id string, from, to entity.JobStatus) (bool, error) {
	if !entity.CanTransition(from, to) {
		return false, fmt.Errorf("illegal job transition %s -> %s", from, to)
	}
	query := `
		UPDATE extraction_jobs
		SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2;
	`
	tag, err := r.db.Exec(ctx, query, id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Fail moves the job to failed with a message, from any non-terminal state.
// A terminal job is left untouched: a late failure must not resurrect or
// re-label a cancelled job.
func (r *JobRepoImpl) Fail(ctx context.Context, id, message string) (bool, error) {
	query := `
		UPDATE extraction_jobs
		SET status = $2, error_message = $3, updated_at = now()
		WHERE id = $1 AND status NOT IN ($4, $5, $6);
	`
	tag, err := r.db.Exec(ctx, query, id, entity.StatusFailed, message,
		entity.StatusCompleted, entity.StatusFailed, entity.StatusCancelled)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Cancel moves the job to cancelled, from any non-terminal state.
func (r *JobRepoImpl) Cancel(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE extraction_jobs
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status NOT IN ($3, $4, $5);
	`
	tag, err := r.db.Exec(ctx, query, id, entity.StatusCancelled,
		entity.StatusCompleted, entity.StatusFailed, entity.StatusCancelled)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetTotalURLs overwrites the job's URL total.
func (r *JobRepoImpl) SetTotalURLs(ctx context.Context, id string, total int) error {
	query := `UPDATE extraction_jobs SET total_urls = $2, updated_at = now() WHERE id = $1;`
	_, err := r.db.Exec(ctx, query, id, total)
	return err
}

// BeginExtraction CAS-transitions the job into extracting_data with the
// confirmed per-round limit.
func (r *JobRepoImpl) BeginExtraction(ctx context.Context, id string, from entity.JobStatus, limit int) (bool, error) {
	if !entity.CanTransition(from, entity.StatusExtractingData) {
		return false, fmt.Errorf("illegal job transition %s -> %s", from, entity.StatusExtractingData)
	}
	query := `
		UPDATE extraction_jobs
		SET status = $3, extraction_limit = $4, updated_at = now()
		WHERE id = $1 AND status = $2;
	`
	tag, err := r.db.Exec(ctx, query, id, from, entity.StatusExtractingData, limit)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// IncrementRetry bumps the manual retry counter and returns the new value.
func (r *JobRepoImpl) IncrementRetry(ctx context.Context, id string) (int, error) {
	query := `
		UPDATE extraction_jobs
		SET retry_count = retry_count + 1, updated_at = now()
		WHERE id = $1
		RETURNING retry_count;
	`
	var count int
	if err := r.db.QueryRow(ctx, query, id).Scan(&count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, repository.ErrJobNotFound
		}
		return 0, err
	}
	return count, nil
}

// RecordBatchProgress additively patches per-batch extraction progress.
func (r *JobRepoImpl) RecordBatchProgress(ctx context.Context, id string, processed, extracted int, extractedURLs []string) error {
	if extractedURLs == nil {
		extractedURLs = []string{}
	}
	query := `
		UPDATE extraction_jobs
		SET processed_urls = processed_urls + $2,
		    extracted_count = extracted_count + $3,
		    extracted_urls = extracted_urls || $4,
		    updated_at = now()
		WHERE id = $1;
	`
	_, err := r.db.Exec(ctx, query, id, processed, extracted, extractedURLs)
	return err
}

// DeleteByUser removes every job owned by (userID, communityID) and returns
// the deleted job ids.
func (r *JobRepoImpl) DeleteByUser(ctx context.Context, userID, communityID string) ([]string, error) {
	query := `
		DELETE FROM extraction_jobs
		WHERE user_id = $1 AND community_id = $2
		RETURNING id;
	`
	rows, err := r.db.Query(ctx, query, userID, communityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
