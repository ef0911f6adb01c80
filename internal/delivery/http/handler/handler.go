package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/user/recipe-extraction-service/internal/delivery/http/request"
	"github.com/user/recipe-extraction-service/internal/delivery/http/response"
	"github.com/user/recipe-extraction-service/internal/entity"
	"github.com/user/recipe-extraction-service/internal/repository"
	"github.com/user/recipe-extraction-service/internal/usecase"
)

type Handler struct {
	jobs     *usecase.JobManager
	segments *usecase.VideoSegmentAnalyzer
}

func NewHandler(jobs *usecase.JobManager, segments *usecase.VideoSegmentAnalyzer) *Handler {
	return &Handler{
		jobs:     jobs,
		segments: segments,
	}
}

func (h *Handler) HandleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req request.SubmitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		h.writeJSONError(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if _, err := url.ParseRequestURI(req.SourceURL); err != nil {
		h.writeJSONError(w, "Invalid source_url format", http.StatusBadRequest)
		return
	}

	jobID, err := h.jobs.Submit(r.Context(), req.UserID, req.CommunityID, req.SourceURL, entity.JobKind(req.Kind))
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidSourceURL) {
			h.writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("Failed to submit job", "source_url", req.SourceURL, "error", err)
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusAccepted, response.SubmitJobResponse{
		Status:  "success",
		Message: "Job submitted, URL discovery started",
		JobID:   jobID,
	})
}

func (h *Handler) HandleGetJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	job, err := h.jobs.GetStatus(r.Context(), jobID)
	if err != nil {
		h.writeLookupError(w, jobID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.NewJobStatusResponse(job))
}

func (h *Handler) HandleConfirmExtraction(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	var req request.ConfirmExtractionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.jobs.Confirm(r.Context(), jobID, req.Count); err != nil {
		switch {
		case errors.Is(err, usecase.ErrInvalidLimit):
			h.writeJSONError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, repository.ErrJobNotFound):
			h.writeJSONError(w, "Job not found", http.StatusNotFound)
		case errors.Is(err, usecase.ErrNotConfirmable):
			h.writeJSONError(w, err.Error(), http.StatusConflict)
		default:
			slog.Error("Failed to confirm extraction", "job_id", jobID, "error", err)
			h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "success", "message": "Extraction started"})
}

func (h *Handler) HandleExtractMore(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	var req request.ExtractMoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.jobs.ExtractMore(r.Context(), jobID, req.AdditionalCount); err != nil {
		switch {
		case errors.Is(err, usecase.ErrInvalidLimit):
			h.writeJSONError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, repository.ErrJobNotFound):
			h.writeJSONError(w, "Job not found", http.StatusNotFound)
		case errors.Is(err, usecase.ErrNotExtendable):
			h.writeJSONError(w, err.Error(), http.StatusConflict)
		default:
			slog.Error("Failed to extend extraction", "job_id", jobID, "error", err)
			h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "success", "message": "Additional extraction started"})
}

func (h *Handler) HandleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if err := h.jobs.Cancel(r.Context(), jobID); err != nil {
		switch {
		case errors.Is(err, repository.ErrJobNotFound):
			h.writeJSONError(w, "Job not found", http.StatusNotFound)
		case errors.Is(err, usecase.ErrNotCancellable):
			h.writeJSONError(w, err.Error(), http.StatusConflict)
		default:
			slog.Error("Failed to cancel job", "job_id", jobID, "error", err)
			h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Job cancelled"})
}

func (h *Handler) HandleRetryChunks(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	var req request.RetryChunksRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	var err error
	if req.ChunkNumber != nil {
		err = h.jobs.RetrySingleChunk(r.Context(), jobID, *req.ChunkNumber)
	} else {
		err = h.jobs.RetryFailedChunks(r.Context(), jobID)
	}
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrJobNotFound):
			h.writeJSONError(w, "Job not found", http.StatusNotFound)
		case errors.Is(err, usecase.ErrRetryLimitExceeded):
			h.writeJSONError(w, err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, usecase.ErrRetryNotAllowed), errors.Is(err, usecase.ErrChunkNotFailed):
			h.writeJSONError(w, err.Error(), http.StatusConflict)
		default:
			slog.Error("Failed to retry chunks", "job_id", jobID, "error", err)
			h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "success", "message": "Chunk retry started"})
}

func (h *Handler) HandleListRecipes(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	recipes, err := h.jobs.ListRecipes(r.Context(), jobID)
	if err != nil {
		h.writeLookupError(w, jobID, err)
		return
	}

	resp := response.RecipeListResponse{
		JobID:   jobID,
		Count:   len(recipes),
		Recipes: make([]response.RecipeResponse, 0, len(recipes)),
	}
	for _, recipe := range recipes {
		resp.Recipes = append(resp.Recipes, response.NewRecipeResponse(recipe))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleDeleteUserData(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		h.writeJSONError(w, "userId path parameter is required", http.StatusBadRequest)
		return
	}
	communityID := r.URL.Query().Get("community_id")

	counts, err := h.jobs.DeleteAllJobData(r.Context(), userID, communityID)
	if err != nil {
		slog.Error("Failed to delete user data", "user_id", userID, "error", err)
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, response.DeleteUserDataResponse{
		Status:         "success",
		JobsDeleted:    counts.Jobs,
		RecipesDeleted: counts.Recipes,
	})
}

func (h *Handler) HandleAnalyzeSegments(w http.ResponseWriter, r *http.Request) {
	var req request.AnalyzeSegmentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.VideoURL == "" || len(req.Instructions) == 0 || req.TotalDuration <= 0 {
		h.writeJSONError(w, "video_url, instructions and total_duration are required", http.StatusBadRequest)
		return
	}

	segments, err := h.segments.Analyze(r.Context(), req.VideoURL, req.Instructions, req.TotalDuration)
	if err != nil {
		slog.Error("Failed to analyze video segments", "video_url", req.VideoURL, "error", err)
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	resp := response.AnalyzeSegmentsResponse{
		VideoURL: req.VideoURL,
		Segments: make([]response.SegmentResponse, 0, len(segments)),
	}
	for _, s := range segments {
		resp.Segments = append(resp.Segments, response.SegmentResponse{
			Step:        s.Step,
			Instruction: s.Instruction,
			Start:       s.Start,
			End:         s.End,
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeLookupError(w http.ResponseWriter, jobID string, err error) {
	if errors.Is(err, repository.ErrJobNotFound) {
		h.writeJSONError(w, "Job not found", http.StatusNotFound)
		return
	}
	slog.Error("Failed to load job", "job_id", jobID, "error", err)
	h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to write JSON response", "error", err)
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
