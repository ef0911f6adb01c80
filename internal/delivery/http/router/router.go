package router

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/user/recipe-extraction-service/internal/delivery/http/handler"
	"github.com/user/recipe-extraction-service/internal/delivery/http/middleware"
)

func New(h *handler.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.HandleHealthCheck)

	mux.HandleFunc("POST /api/jobs", h.HandleSubmitJob)
	mux.HandleFunc("GET /api/jobs/{id}", h.HandleGetJobStatus)
	mux.HandleFunc("POST /api/jobs/{id}/confirm", h.HandleConfirmExtraction)
	mux.HandleFunc("POST /api/jobs/{id}/extract-more", h.HandleExtractMore)
	mux.HandleFunc("POST /api/jobs/{id}/cancel", h.HandleCancelJob)
	mux.HandleFunc("POST /api/jobs/{id}/retry-chunks", h.HandleRetryChunks)
	mux.HandleFunc("GET /api/jobs/{id}/recipes", h.HandleListRecipes)

	mux.HandleFunc("POST /api/videos/segments", h.HandleAnalyzeSegments)

	mux.HandleFunc("DELETE /api/users/{userId}/data", h.HandleDeleteUserData)

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Apply middlewares
	var chainedHandler http.Handler = mux
	chainedHandler = middleware.Metrics(chainedHandler)
	chainedHandler = middleware.Logging(chainedHandler)

	return chainedHandler
}
