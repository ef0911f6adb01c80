package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/user/recipe-extraction-service/internal/repository"
)

const requestTimeout = 10 * time.Second

// Scheduler notifies a downstream enrichment service about newly saved
// recipes with a small HTTP POST. When no endpoint is configured it is a
// logging no-op, so extraction works standalone.
type Scheduler struct {
	endpoint string
	client   *http.Client
}

// NewScheduler creates a new enrichment scheduler. An empty endpoint
// disables the hand-off.
func NewScheduler(endpoint string) *Scheduler {
	return &Scheduler{
		endpoint: endpoint,
		client:   &http.Client{Timeout: requestTimeout},
	}
}

var _ repository.EnrichmentScheduler = (*Scheduler)(nil)

// ScheduleEnrichment posts the recipe ID to the enrichment endpoint.
func (s *Scheduler) ScheduleEnrichment(ctx context.Context, recipeID int64) error {
	if s.endpoint == "" {
		slog.Debug("Enrichment endpoint not configured, skipping", "recipe_id", recipeID)
		return nil
	}

	body, err := json.Marshal(map[string]int64{"recipe_id": recipeID})
	if err != nil {
		return fmt.Errorf("failed to encode enrichment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build enrichment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to schedule enrichment for recipe %d: %w", recipeID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("enrichment endpoint returned status %d for recipe %d", resp.StatusCode, recipeID)
	}
	slog.Debug("Enrichment scheduled", "recipe_id", recipeID)
	return nil
}
