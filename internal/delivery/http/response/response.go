package response

import (
	"time"

	"github.com/user/recipe-extraction-service/internal/entity"
)

type SubmitJobResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	JobID   string `json:"job_id"`
}

// JobStatusResponse is the polling DTO for a job's lifecycle state.
type JobStatusResponse struct {
	JobID           string               `json:"job_id"`
	SourceURL       string               `json:"source_url"`
	Kind            string               `json:"kind"`
	Status          string               `json:"status"`
	TotalURLs       int                  `json:"total_urls"`
	ProcessedURLs   int                  `json:"processed_urls"`
	ExtractionLimit int                  `json:"extraction_limit,omitempty"`
	ExtractedCount  int                  `json:"extracted_count"`
	TotalChunks     int                  `json:"total_chunks"`
	CompletedChunks int                  `json:"completed_chunks"`
	FailedChunks    []entity.FailedChunk `json:"failed_chunks,omitempty"`
	RetryCount      int                  `json:"retry_count,omitempty"`
	ErrorMessage    string               `json:"error_message,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

func NewJobStatusResponse(job *entity.ExtractionJob) JobStatusResponse {
	return JobStatusResponse{
		JobID:           job.ID,
		SourceURL:       job.SourceURL,
		Kind:            string(job.Kind),
		Status:          string(job.Status),
		TotalURLs:       job.TotalURLs,
		ProcessedURLs:   job.ProcessedURLs,
		ExtractionLimit: job.ExtractionLimit,
		ExtractedCount:  job.ExtractedCount,
		TotalChunks:     job.TotalChunks,
		CompletedChunks: job.CompletedChunks,
		FailedChunks:    job.FailedChunks,
		RetryCount:      job.RetryCount,
		ErrorMessage:    job.ErrorMessage,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
	}
}

type RecipeResponse struct {
	ID           int64    `json:"id"`
	SourceURL    string   `json:"source_url"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	ImageURL     string   `json:"image_url,omitempty"`
	Ingredients  []string `json:"ingredients"`
	Instructions []string `json:"instructions"`
	Servings     string   `json:"servings,omitempty"`
	PrepTime     string   `json:"prep_time,omitempty"`
	CookTime     string   `json:"cook_time,omitempty"`
	Category     string   `json:"category,omitempty"`
	Method       string   `json:"extraction_method"`
}

func NewRecipeResponse(r *entity.ExtractedRecipe) RecipeResponse {
	return RecipeResponse{
		ID:           r.ID,
		SourceURL:    r.SourceURL,
		Title:        r.Title,
		Description:  r.Description,
		ImageURL:     r.ImageURL,
		Ingredients:  r.Ingredients,
		Instructions: r.Instructions,
		Servings:     r.Servings,
		PrepTime:     r.PrepTime,
		CookTime:     r.CookTime,
		Category:     r.Category,
		Method:       string(r.Method),
	}
}

type RecipeListResponse struct {
	JobID   string           `json:"job_id"`
	Count   int              `json:"count"`
	Recipes []RecipeResponse `json:"recipes"`
}

type DeleteUserDataResponse struct {
	Status         string `json:"status"`
	JobsDeleted    int    `json:"jobs_deleted"`
	RecipesDeleted int64  `json:"recipes_deleted"`
}

type SegmentResponse struct {
	Step        int     `json:"step"`
	Instruction string  `json:"instruction"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
}

type AnalyzeSegmentsResponse struct {
	VideoURL string            `json:"video_url"`
	Segments []SegmentResponse `json:"segments"`
}
